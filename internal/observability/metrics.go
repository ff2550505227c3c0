package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	engineDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1}
	bodySizeBuckets       = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Work item metrics
	ItemsCreatedTotal   *prometheus.CounterVec
	ItemsActive         *prometheus.GaugeVec
	ItemCompletionsTotal *prometheus.CounterVec

	// Transition metrics
	TransitionsTotal          *prometheus.CounterVec
	TransitionDuration        *prometheus.HistogramVec
	TransitionRejectionsTotal *prometheus.CounterVec
	TransitionConflictsTotal  *prometheus.CounterVec

	// Escalation metrics
	EscalationsTotal     *prometheus.CounterVec
	EscalationSweepDuration prometheus.Histogram

	// Cache metrics
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter
	IdempotencyHitsTotal       *prometheus.CounterVec

	// System metrics
	TemplateReloadTotal *prometheus.CounterVec
	TemplatesLoaded     prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightline_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightline_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightline_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightline_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Work items
		ItemsCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightline_items_created_total",
			Help: "Total number of work items created.",
		}, []string{"template_id"}),
		ItemsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flightline_items_active",
			Help: "Number of active work items.",
		}, []string{"template_id"}),
		ItemCompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightline_item_completions_total",
			Help: "Total number of work items reaching a terminal status.",
		}, []string{"template_id", "final_status"}),

		// Transitions
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightline_transitions_total",
			Help: "Total number of applied transitions.",
		}, []string{"template_id", "action"}),
		TransitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightline_transition_duration_seconds",
			Help:    "Transition application duration in seconds.",
			Buckets: engineDurationBuckets,
		}, []string{"action"}),
		TransitionRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightline_transition_rejections_total",
			Help: "Total number of transitions rejected by validation.",
		}, []string{"template_id", "action", "code"}),
		TransitionConflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightline_transition_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts.",
		}, []string{"template_id"}),

		// Escalations
		EscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightline_escalations_total",
			Help: "Total number of stale item escalations.",
		}, []string{"template_id", "status"}),
		EscalationSweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flightline_escalation_sweep_duration_seconds",
			Help:    "Escalation sweep duration in seconds.",
			Buckets: engineDurationBuckets,
		}),

		// Cache
		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightline_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightline_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),
		IdempotencyHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightline_idempotency_hits_total",
			Help: "Total idempotent replays served from the idempotency store.",
		}, []string{"action"}),

		// System
		TemplateReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightline_template_reload_total",
			Help: "Total template reloads.",
		}, []string{"status"}),
		TemplatesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flightline_templates_loaded",
			Help: "Number of loaded workflow templates.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Work items
		m.ItemsCreatedTotal,
		m.ItemsActive,
		m.ItemCompletionsTotal,
		// Transitions
		m.TransitionsTotal,
		m.TransitionDuration,
		m.TransitionRejectionsTotal,
		m.TransitionConflictsTotal,
		// Escalations
		m.EscalationsTotal,
		m.EscalationSweepDuration,
		// Cache
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
		m.IdempotencyHitsTotal,
		// System
		m.TemplateReloadTotal,
		m.TemplatesLoaded,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordItemCreated records a new work item.
func (m *Metrics) RecordItemCreated(templateID string) {
	m.ItemsCreatedTotal.WithLabelValues(templateID).Inc()
	m.ItemsActive.WithLabelValues(templateID).Inc()
}

// RecordItemCompletion records a work item reaching a terminal status.
func (m *Metrics) RecordItemCompletion(templateID, finalStatus string) {
	m.ItemCompletionsTotal.WithLabelValues(templateID, finalStatus).Inc()
	m.ItemsActive.WithLabelValues(templateID).Dec()
}

// RecordTransition records a successfully applied transition.
func (m *Metrics) RecordTransition(templateID, action string, duration time.Duration) {
	m.TransitionsTotal.WithLabelValues(templateID, action).Inc()
	m.TransitionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordTransitionRejection records a transition refused by validation.
func (m *Metrics) RecordTransitionRejection(templateID, action, code string) {
	m.TransitionRejectionsTotal.WithLabelValues(templateID, action, code).Inc()
}

// RecordTransitionConflict records a lost compare-and-swap.
func (m *Metrics) RecordTransitionConflict(templateID string) {
	m.TransitionConflictsTotal.WithLabelValues(templateID).Inc()
}

// RecordEscalation records an escalation attempt outcome.
func (m *Metrics) RecordEscalation(templateID, status string) {
	m.EscalationsTotal.WithLabelValues(templateID, status).Inc()
}

// RecordEscalationSweep records the duration of one escalation sweep.
func (m *Metrics) RecordEscalationSweep(duration time.Duration) {
	m.EscalationSweepDuration.Observe(duration.Seconds())
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	m.CapabilityCacheMissesTotal.Inc()
}

// RecordIdempotencyHit records an idempotent replay.
func (m *Metrics) RecordIdempotencyHit(action string) {
	m.IdempotencyHitsTotal.WithLabelValues(action).Inc()
}

// RecordTemplateReload records a template reload.
func (m *Metrics) RecordTemplateReload(status string) {
	m.TemplateReloadTotal.WithLabelValues(status).Inc()
}

// SetTemplatesLoaded sets the number of loaded templates.
func (m *Metrics) SetTemplatesLoaded(count float64) {
	m.TemplatesLoaded.Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
