package router

import (
	"math"
	"sync/atomic"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func floatFromBits(bits uint64) float64 { return math.Float64frombits(bits) }
func floatToBits(f float64) uint64      { return math.Float64bits(f) }

const metricsNamespace = "llm_router"

// promMetrics holds the Prometheus counters exposed alongside the
// in-memory atomic counters: one CounterVec per labeled dimension,
// registered once via promauto.
type promMetrics struct {
	requestsTotal *prometheus.CounterVec
	costTotal     prometheus.Counter
	savedTotal    prometheus.Counter
}

// newPromMetrics registers its counters against a private registry
// rather than prometheus.DefaultRegisterer, so constructing more than
// one Router (as the test suite does) never hits a duplicate-metric
// registration panic. The HTTP layer exposes reg's gatherer on
// /metrics alongside whatever else it registers there.
func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	f := promauto.With(reg)
	return &promMetrics{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Total routed requests by backend kind (local, cloud) and outcome (success, failure).",
		}, []string{"backend", "outcome"}),
		costTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cost_total_usd",
			Help:      "Cumulative cloud spend in USD.",
		}),
		savedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "saved_total_usd",
			Help:      "Cumulative would-have-been cloud spend avoided by local execution.",
		}),
	}
}

// Stats is the read-only counter snapshot exposed via GET /router/stats.
// Every field is updated with an atomic add so concurrent requests
// never race, at the cost of fields occasionally being mutually
// inconsistent across one snapshot read — an accepted tradeoff.
type Stats struct {
	totalRequests  atomic.Int64
	localUsed      atomic.Int64
	cloudUsed      atomic.Int64
	fallbackCount  atomic.Int64
	visionRequests atomic.Int64
	totalCostBits  atomic.Uint64
	totalSavedBits atomic.Uint64

	prom     *promMetrics
	registry *prometheus.Registry
}

// Snapshot is the point-in-time read returned to callers.
type StatsSnapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	LocalUsed      int64   `json:"local_used"`
	CloudUsed      int64   `json:"cloud_used"`
	FallbackCount  int64   `json:"fallback_count"`
	VisionRequests int64   `json:"vision_requests"`
	TotalCost      float64 `json:"total_cost"`
	TotalSaved     float64 `json:"total_saved"`
}

func addFloat(bits *atomic.Uint64, delta float64) {
	for {
		old := bits.Load()
		next := floatBitsAdd(old, delta)
		if bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func floatBitsAdd(oldBits uint64, delta float64) uint64 {
	old := floatFromBits(oldBits)
	return floatToBits(old + delta)
}

// Stats returns a consistent-per-field snapshot of the router's
// counters.
func (r *Router) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalRequests:  r.stats.totalRequests.Load(),
		LocalUsed:      r.stats.localUsed.Load(),
		CloudUsed:      r.stats.cloudUsed.Load(),
		FallbackCount:  r.stats.fallbackCount.Load(),
		VisionRequests: r.stats.visionRequests.Load(),
		TotalCost:      floatFromBits(r.stats.totalCostBits.Load()),
		TotalSaved:     floatFromBits(r.stats.totalSavedBits.Load()),
	}
}

// updateStats folds one completed request's decision and outcome into
// the counters.
func (r *Router) updateStats(hasImage bool, outcome coretypes.RequestOutcome) {
	r.stats.totalRequests.Add(1)

	backend := "none"
	if outcome.ModelRef != "" {
		if isLocalRef(outcome.ModelRef) {
			r.stats.localUsed.Add(1)
			backend = "local"
		} else {
			r.stats.cloudUsed.Add(1)
			backend = "cloud"
		}
	}
	if outcome.CostWarning {
		r.stats.fallbackCount.Add(1)
	}
	if hasImage {
		r.stats.visionRequests.Add(1)
	}

	var lastCost float64
	if n := len(outcome.Attempts); n > 0 {
		lastCost = outcome.Attempts[n-1].Cost
	}
	addFloat(&r.stats.totalCostBits, lastCost)
	addFloat(&r.stats.totalSavedBits, outcome.SavedCost)

	if r.stats.prom != nil {
		outcomeLabel := "failure"
		if outcome.Succeeded() {
			outcomeLabel = "success"
		}
		r.stats.prom.requestsTotal.WithLabelValues(backend, outcomeLabel).Inc()
		r.stats.prom.costTotal.Add(lastCost)
		r.stats.prom.savedTotal.Add(outcome.SavedCost)
	}
}

// MetricsRegistry exposes the Router's private Prometheus registry so
// an HTTP handler can serve it on /metrics.
func (r *Router) MetricsRegistry() *prometheus.Registry { return r.stats.registry }

func isLocalRef(ref string) bool {
	return ref == "local" || (len(ref) >= 6 && ref[:6] == "local:")
}
