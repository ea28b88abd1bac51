package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
)

// Metrics holds all Prometheus metrics for the edge service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	gateDecisions  *prometheus.CounterVec
	gateLatency    prometheus.Histogram
	sessionFetches *prometheus.CounterVec
	externalErrors *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	syncSignals    *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		gateDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_gate_decisions_total",
				Help: "Gate verdicts by decision and reason.",
			},
			[]string{"decision", "reason"},
		),
		gateLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "edge_gate_duration_seconds",
				Help:    "Time spent deciding each navigation request.",
				Buckets: prometheus.DefBuckets,
			},
		),
		sessionFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_session_fetches_total",
				Help: "Session/user fetches by result.",
			},
			[]string{"result"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		syncSignals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_sync_signals_total",
				Help: "Cross-context auth sync signals by type and direction.",
			},
			[]string{"type", "direction"},
		),
	}
}

// RecordGateDecision counts an allow or redirect verdict.
func (m *Metrics) RecordGateDecision(decision, reason string) {
	m.gateDecisions.WithLabelValues(decision, reason).Inc()
}

// RecordGateLatency records how long a gate evaluation took.
func (m *Metrics) RecordGateLatency(d time.Duration) {
	m.gateLatency.Observe(d.Seconds())
}

// RecordSessionFetch counts a session/user fetch outcome.
func (m *Metrics) RecordSessionFetch(result string) {
	m.sessionFetches.WithLabelValues(result).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordSyncSignal counts a published or received cross-context signal.
func (m *Metrics) RecordSyncSignal(sigType, direction string) {
	m.syncSignals.WithLabelValues(sigType, direction).Inc()
}

// GetGateSnapshot returns a snapshot of gate metrics suitable for the
// GET /v1/metrics/gate endpoint.
func (m *Metrics) GetGateSnapshot() *domain.GateMetrics {
	allowed := getCounterValue(m.gateDecisions, "allow", "ok") +
		getCounterValue(m.gateDecisions, "allow", "public") +
		getCounterValue(m.gateDecisions, "allow", "anonymous")
	redirected := sumRedirects(m.gateDecisions)
	fetches := getCounterValue(m.sessionFetches, "ok") +
		getCounterValue(m.sessionFetches, "error")
	failures := getCounterValue(m.sessionFetches, "error")
	hits := getCounterValue(m.cacheHits, "profile")
	misses := getCounterValue(m.cacheMisses, "profile")

	total := allowed + redirected
	redirectRate := float64(0)
	if total > 0 {
		redirectRate = redirected / total
	}
	cacheHitRate := float64(0)
	if hits+misses > 0 {
		cacheHitRate = hits / (hits + misses)
	}

	return &domain.GateMetrics{
		Allowed:         int64(allowed),
		Redirected:      int64(redirected),
		RedirectRate:    redirectRate,
		SessionFetches:  int64(fetches),
		SessionFailures: int64(failures),
		CacheHitRate:    cacheHitRate,
		Period:          "all_time",
	}
}

// redirect reasons recorded by the gate.
var redirectReasons = []string{
	"no_session", "unverified", "step_skip", "completed", "business_block",
	"auth_entry", "already_verified", "transient", "identity_gone",
}

func sumRedirects(cv *prometheus.CounterVec) float64 {
	total := float64(0)
	for _, reason := range redirectReasons {
		total += getCounterValue(cv, "redirect", reason)
	}
	return total
}

// getCounterValue extracts the current float64 value from a CounterVec.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
