package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for gate health and throughput
var (
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_scans_total",
			Help: "Total number of scan payloads received",
		},
		[]string{"source"},
	)

	OutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_outcomes_total",
			Help: "Total number of check-in outcomes by status",
		},
		[]string{"status"},
	)

	DuplicatesSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gate_duplicates_suppressed_total",
			Help: "Total number of scans suppressed by the cooldown window",
		},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_api_requests_total",
			Help: "Total number of platform API attempts by operation and result",
		},
		[]string{"op", "result"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gate_api_request_duration_seconds",
			Help:    "Duration of platform API attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_logins_total",
			Help: "Total number of platform logins by result",
		},
		[]string{"result"},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(ScansTotal)
	prometheus.MustRegister(OutcomesTotal)
	prometheus.MustRegister(DuplicatesSuppressedTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(LoginsTotal)
}
