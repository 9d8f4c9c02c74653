package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// SlotSearchDuration tracks slot-finder latency per outcome (found, exhausted)
	SlotSearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "slot_search_duration_seconds", Help: "Slot search duration in seconds.", Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5}},
		[]string{"outcome"},
	)
	// CandidatesEvaluated counts candidate placements scored by the evaluator
	CandidatesEvaluated = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "candidates_evaluated_total", Help: "Candidate placements evaluated."},
	)
	// CommitConflicts counts commits lost to a concurrent writer
	CommitConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "commit_conflicts_total", Help: "Slot commits aborted by optimistic concurrency."},
	)
	// DisruptionsHandled counts disruption events by type and job outcome
	DisruptionsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "disruptions_handled_total", Help: "Disruption events handled, by type and outcome."},
		[]string{"type", "outcome"},
	)
	// TravelFallbacks counts routing-backend failures answered by the distance fallback
	TravelFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "travel_fallbacks_total", Help: "Travel estimates served by the distance fallback."},
	)
	// OptimizerSwaps counts accepted optimizer moves
	OptimizerSwaps = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "optimizer_swaps_total", Help: "Accepted optimizer swaps."},
	)
	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the package registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(SlotSearchDuration)
		Registry.MustRegister(CandidatesEvaluated)
		Registry.MustRegister(CommitConflicts)
		Registry.MustRegister(DisruptionsHandled)
		Registry.MustRegister(TravelFallbacks)
		Registry.MustRegister(OptimizerSwaps)
		Registry.MustRegister(WebhookDeliveries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
