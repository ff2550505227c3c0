package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/skyhangar/flightline/internal/config"
	"github.com/skyhangar/flightline/internal/engine"
	"github.com/skyhangar/flightline/internal/idempotency"
	"github.com/skyhangar/flightline/internal/observability"
	"github.com/skyhangar/flightline/internal/template"
	"github.com/skyhangar/flightline/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config             *config.Config
	Logger             *zap.Logger
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver
	Engine             *engine.Engine
	Templates          *template.Registry
	IdempotencyStore   idempotency.Store
	Metrics            *observability.Metrics
	Readiness          observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes bypass authentication.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	// Authenticated routes get the full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	actions := actionDeps{
		engine:  deps.Engine,
		idem:    deps.IdempotencyStore,
		idemCfg: deps.Config.Idempotency,
		metrics: deps.Metrics,
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth)
		r.Use(observability.TracingMiddleware)
		r.Use(BuildRequestContext)
		r.Use(ResolveCapabilities(deps.CapabilityResolver, logger))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Post("/items", handleItemCreate(deps.Engine, deps.Metrics))
		r.Get("/items", handleItemList(deps.Engine))
		r.Get("/items/{itemId}", handleItemGet(deps.Engine))
		r.Post("/items/{itemId}/approve", handleItemAction(actions, model.RequestApprove))
		r.Post("/items/{itemId}/reject", handleItemAction(actions, model.RequestReject))
		r.Post("/items/{itemId}/cancel", handleItemAction(actions, model.RequestCancel))
		r.Get("/items/{itemId}/actions", handleItemActions(deps.Engine))
		r.Get("/items/{itemId}/history", handleItemHistory(deps.Engine))

		r.Get("/templates", handleTemplateList(deps.Templates))
		r.Get("/templates/{templateId}", handleTemplateGet(deps.Templates))
	})

	return r
}
