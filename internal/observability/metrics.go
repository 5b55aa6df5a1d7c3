package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatchd_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatchd_dispatch_total", Help: "Dispatch outcomes"},
		[]string{"provider", "outcome"},
	)
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "dispatchd_provider_send_latency_seconds", Help: "Provider send latency"},
		[]string{"provider"},
	)
	BulkTestItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatchd_bulk_test_items_total", Help: "Bulk test item results"},
		[]string{"result"},
	)
	Enqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatchd_enqueue_total", Help: "SQS enqueue results"},
		[]string{"result"},
	)
	DedupeSkips = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dispatchd_dedupe_skips_total", Help: "Scheduler jobs skipped by the dedupe key"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, Dispatches, ProviderLatency, BulkTestItems, Enqueues, DedupeSkips)
}
