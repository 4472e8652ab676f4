package stream

import "github.com/prometheus/client_golang/prometheus"

var (
	streamClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pulsedeck_stream_clients",
		Help: "Connected live-stream clients.",
	})
	streamFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsedeck_stream_frames_total",
			Help: "Frames offered to stream clients by event and outcome.",
		},
		[]string{"event", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(streamClients, streamFramesTotal)
}
