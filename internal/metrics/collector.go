package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Server side
	RegisteredApplications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webtail_registered_applications",
			Help: "Number of identities with a live broadcast channel",
		},
	)
	RelaySessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webtail_relay_sessions",
			Help: "Open client relay sessions",
		},
	)
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webtail_frames_received_total",
			Help: "Frames received from relay clients by envelope kind",
		},
		[]string{"kind"},
	)
	FramesDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webtail_frames_discarded_total",
			Help: "Frames not republished, by reason",
		},
		[]string{"reason"},
	)
	SubscribersLagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webtail_subscribers_lagged_total",
			Help: "Subscribers dropped because their buffer was full",
		},
	)
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webtail_stream_subscribers",
			Help: "Open server-sent event streams",
		},
	)

	// Client side
	ClientReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webtail_client_sessions_total",
			Help: "Relay session attempts by outcome",
		},
		[]string{"outcome"},
	)
	ClientEnvelopes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webtail_client_envelopes_total",
			Help: "Envelopes handled by the client send gate",
		},
		[]string{"result"},
	)
)
