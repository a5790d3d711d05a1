package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics of the push endpoint
type Metrics struct {
	ConnectedClients prometheus.Gauge
	FramesDelivered  *prometheus.CounterVec
	DroppedClients   prometheus.Counter
	RateLimited      prometheus.Counter
	RelayErrors      prometheus.Counter
}

// NewMetrics registers the metrics on reg; a nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "insight_ws_connected_clients",
			Help: "Number of connected live-update clients",
		}),
		FramesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_ws_frames_delivered_total",
			Help: "Frames queued to clients by frame type",
		}, []string{"type"}),
		DroppedClients: factory.NewCounter(prometheus.CounterOpts{
			Name: "insight_ws_dropped_clients_total",
			Help: "Clients disconnected because their send buffer was full",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "insight_ws_rate_limited_frames_total",
			Help: "Inbound frames discarded by the per-client rate limiter",
		}),
		RelayErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "insight_ws_relay_errors_total",
			Help: "Updates from the Redis channel that could not be decoded",
		}),
	}
}
