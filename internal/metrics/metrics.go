// Package metrics exposes the operational counters and gauges this
// core tracks, served over GET /api/metrics via promhttp.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	LiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "imcore",
		Name:      "live_sessions",
		Help:      "Number of sessions currently held in the session map.",
	})

	SessionEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imcore",
		Name:      "session_evictions_total",
		Help:      "Sessions evicted by Add(), labeled by reason.",
	}, []string{"reason"})

	PublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imcore",
		Name:      "broker_publish_failures_total",
		Help:      "Broker publish attempts that returned an error.",
	})

	OfflineEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imcore",
		Name:      "offline_enqueued_total",
		Help:      "Entries appended to the offline queue.",
	})

	OfflineDrained = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imcore",
		Name:      "offline_drained_total",
		Help:      "Entries drained from the offline queue on connect.",
	})

	BrokerReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imcore",
		Name:      "broker_reconnects_total",
		Help:      "Broker consumer reconnect attempts.",
	})

	DeliveryDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imcore",
		Name:      "delivery_dropped_total",
		Help:      "Deliveries dropped, labeled by reason.",
	}, []string{"reason"})
)

// Registry is a dedicated prometheus registry so tests can construct
// fresh metrics instances without colliding with the global default.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		LiveSessions,
		SessionEvictions,
		PublishFailures,
		OfflineEnqueued,
		OfflineDrained,
		BrokerReconnects,
		DeliveryDropped,
	)
}
