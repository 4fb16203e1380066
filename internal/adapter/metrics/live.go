package metrics

import "github.com/prometheus/client_golang/prometheus"

// LiveMetrics holds Prometheus metrics for live webcast connections and gift processing.
type LiveMetrics struct {
	ConnectedStreamers prometheus.Gauge
	ConnectAttempts    *prometheus.CounterVec
	SessionDrops       prometheus.Counter
	RetriesScheduled   *prometheus.CounterVec
	GiftsApplied       prometheus.Counter
	PointsApplied      prometheus.Counter
	BottlesFilled      prometheus.Counter
	BottlesUsed        prometheus.Counter
}

// NewLiveMetrics creates and registers live connection metrics on the given registry.
func NewLiveMetrics(reg prometheus.Registerer) *LiveMetrics {
	m := &LiveMetrics{
		ConnectedStreamers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "connected_streamers",
			Help:      "Number of streamers with an open webcast session.",
		}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "connect_attempts_total",
			Help:      "Total number of webcast connect attempts, by result.",
		}, []string{"result"}),
		SessionDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "session_drops_total",
			Help:      "Total number of webcast sessions lost after connecting.",
		}),
		RetriesScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "retries_scheduled_total",
			Help:      "Total number of reconnects scheduled, by reason.",
		}, []string{"reason"}),
		GiftsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gifts_applied_total",
			Help:      "Total number of gift events applied to a bottle.",
		}),
		PointsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_applied_total",
			Help:      "Total number of points contributed by gifts, before clamping.",
		}),
		BottlesFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bottles_filled_total",
			Help:      "Total number of times a bottle reached capacity.",
		}),
		BottlesUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bottles_used_total",
			Help:      "Total number of bottle use-and-reset operations.",
		}),
	}

	reg.MustRegister(m.ConnectedStreamers, m.ConnectAttempts, m.SessionDrops, m.RetriesScheduled,
		m.GiftsApplied, m.PointsApplied, m.BottlesFilled, m.BottlesUsed)
	return m
}
