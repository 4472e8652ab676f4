package notify

import "github.com/prometheus/client_golang/prometheus"

var (
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsedeck_notifications_total",
			Help: "Notification deliveries by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	ruleFiringsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsedeck_rule_firings_total",
			Help: "Qualifying rule events by outcome (fired, suppressed, aggregated, summary).",
		},
		[]string{"outcome"},
	)
	evaluatorDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulsedeck_evaluator_dropped_snapshots_total",
		Help: "Snapshots dropped because the evaluation queue was full.",
	})
)

func init() {
	prometheus.MustRegister(notificationsTotal, ruleFiringsTotal, evaluatorDropped)
}
