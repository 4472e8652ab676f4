package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsedeck_integration_polls_total",
			Help: "Integration polls by service type and resulting status.",
		},
		[]string{"service_type", "status"},
	)
	pollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulsedeck_integration_poll_duration_seconds",
			Help:    "Time spent polling one integration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service_type"},
	)
	metricFetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsedeck_metric_fetch_errors_total",
			Help: "Capability fetches that failed, by service type and capability.",
		},
		[]string{"service_type", "capability"},
	)
	pollerRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pulsedeck_poller_running",
		Help: "1 while the poller loop is running.",
	})
)

func init() {
	prometheus.MustRegister(pollsTotal, pollDuration, metricFetchErrors, pollerRunning)
}
