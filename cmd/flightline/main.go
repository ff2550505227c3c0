// Package main is the entry point for the Flightline approval service.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/skyhangar/flightline/internal/capability"
	"github.com/skyhangar/flightline/internal/config"
	"github.com/skyhangar/flightline/internal/engine"
	"github.com/skyhangar/flightline/internal/escalation"
	"github.com/skyhangar/flightline/internal/idempotency"
	"github.com/skyhangar/flightline/internal/observability"
	"github.com/skyhangar/flightline/internal/template"
	"github.com/skyhangar/flightline/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "flightline", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Load workflow templates, validate, build registry.
	loader := template.NewLoader()
	templates, err := loader.LoadAll(cfg.Templates.Directories)
	if err != nil {
		logger.Error("template loading failed", zap.Error(err))
		return 1
	}

	validator := template.NewValidator()
	verrs := validator.Validate(templates)
	if len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("template validation error", zap.String("error", ve.Error()))
		}
		logger.Error("template validation failed", zap.Int("errors", len(verrs)))
		return 1
	}

	registry := template.NewRegistry(templates)
	metrics.SetTemplatesLoaded(float64(len(templates)))
	metrics.RecordTemplateReload("success")
	logger.Info("templates loaded",
		zap.Int("count", len(templates)),
		zap.String("checksum", registry.Checksum()),
	)

	// Step 5: Initialize capability resolver.
	capResolver, err := buildCapabilityResolver(cfg.Capability)
	if err != nil {
		logger.Error("capability resolver initialization failed", zap.Error(err))
		return 1
	}
	capResolver.SetMetrics(metrics)

	// Step 6: Initialize the work item state store.
	stateStore, storeCloser, err := buildStateStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("state store initialization failed", zap.Error(err))
		return 1
	}

	// Step 7: Initialize the idempotency store (optional).
	idemStore, idemCloser := buildIdempotencyStore(cfg.Idempotency, logger)

	// Step 8: Build the transition engine.
	eng := engine.NewEngine(stateStore, registry,
		engine.WithConflictRetries(cfg.Engine.ConflictRetries),
	)

	// Step 9: Build the HTTP router.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)

	readinessChecks := observability.ReadinessChecks{
		TemplatesLoaded: func() bool { return len(registry.All()) > 0 },
	}
	if hc, ok := stateStore.(observability.HealthChecker); ok {
		readinessChecks.StateStore = hc
	}
	if hc, ok := idemStore.(observability.HealthChecker); ok {
		readinessChecks.IdempotencyStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Logger:             logger,
		Authenticate:       transport.JWTAuthenticator(cfg.Identity, jwks),
		CapabilityResolver: capResolver,
		Engine:             eng,
		Templates:          registry,
		IdempotencyStore:   idemStore,
		Metrics:            metrics,
		Readiness:          readinessChecks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 10: Start background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	if cfg.Escalation.Enabled {
		processor := escalation.NewProcessor(eng, stateStore, registry,
			cfg.Escalation.CheckInterval, logger, metrics)
		go processor.Run(bgCtx)
	}

	// Step 11: Start the HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("templates", len(templates)),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel background tasks.
	bgCancel()

	// Close stores.
	if storeCloser != nil {
		storeCloser()
	}
	if idemCloser != nil {
		idemCloser()
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildCapabilityResolver creates the appropriate resolver based on config.
func buildCapabilityResolver(cfg config.CapabilityConfig) (*capability.Resolver, error) {
	switch cfg.Evaluator {
	case "static", "":
		evaluator, err := capability.NewStaticPolicyEvaluator(cfg.StaticPolicyFile)
		if err != nil {
			return nil, fmt.Errorf("static policy: %w", err)
		}
		return capability.NewResolver(evaluator, cfg.Cache.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported capability evaluator: %q", cfg.Evaluator)
	}
}

// buildStateStore creates the work item store based on config.
func buildStateStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (engine.StateStore, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory state store")
		return engine.NewMemoryStateStore(), nil, nil
	case "postgres", "":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("state store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("state store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("state store: connect: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("state store: ping: %w", err)
		}

		return engine.NewPgStateStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported state store driver: %q", cfg.Driver)
	}
}

// buildIdempotencyStore creates the idempotency store based on config.
// Returns nil if idempotency is disabled.
func buildIdempotencyStore(cfg config.IdempotencyConfig, logger *zap.Logger) (idempotency.Store, func()) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Store.Driver {
	case "redis":
		addr := os.Getenv(cfg.Store.AddrEnv)
		if addr == "" {
			logger.Warn("idempotency store address not configured, using in-memory store")
			return idempotency.NewMemoryStore(), nil
		}
		client := redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   cfg.Store.DB,
		})
		logger.Info("using redis idempotency store", zap.String("addr", addr))
		return idempotency.NewRedisStore(client), func() { client.Close() }
	default:
		logger.Info("using in-memory idempotency store")
		return idempotency.NewMemoryStore(), nil
	}
}
