package metrics

import "github.com/prometheus/client_golang/prometheus"

// HubMetrics holds Prometheus metrics for overlay WebSocket fan-out.
type HubMetrics struct {
	ActiveConnections  prometheus.Gauge
	ActiveStreamers    prometheus.Gauge
	MessagesPublished  prometheus.Counter
	SlowClientsEvicted prometheus.Counter
	WriteFailures      prometheus.Counter
	RejectedClients    prometheus.Counter
	SendDuration       prometheus.Histogram
}

// NewHubMetrics creates and registers hub metrics on the given registry.
func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active overlay WebSocket connections.",
		}),
		ActiveStreamers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_streamers",
			Help:      "Number of streamers with at least one overlay connected.",
		}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_published_total",
			Help:      "Total number of overlay messages published.",
		}),
		SlowClientsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_clients_evicted_total",
			Help:      "Total number of overlay clients evicted for a full send buffer.",
		}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "write_failures_total",
			Help:      "Total number of overlay clients dropped after a failed write.",
		}),
		RejectedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_clients_total",
			Help:      "Total number of overlay clients rejected by the per-streamer limit.",
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "message_send_duration_seconds",
			Help:      "Duration of a single overlay message write in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.ActiveStreamers, m.MessagesPublished,
		m.SlowClientsEvicted, m.WriteFailures, m.RejectedClients, m.SendDuration)
	return m
}
