package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	LiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_live_connections",
		Help: "Current open websocket connections.",
	})

	LivePushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beacon_live_pushes_total",
		Help: "Notifications pushed to at least one live connection.",
	})
	OfflinePublishes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beacon_offline_publishes_total",
		Help: "Notifications published while the target user had no live connection.",
	})
	ReplayedNotifications = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beacon_replayed_notifications_total",
		Help: "Notifications delivered via backlog replay on join.",
	})
	SendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beacon_send_failures_total",
		Help: "Transport send attempts that failed for a single handle.",
	})
)

// Register installs the beacon collectors on the default prometheus registry.
func Register() {
	prometheus.MustRegister(
		LiveConnections,
		LivePushes, OfflinePublishes,
		ReplayedNotifications, SendFailures,
	)
}
