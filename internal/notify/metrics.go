package notify

import "github.com/prometheus/client_golang/prometheus"

var (
	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labgraph_notify_deliveries_total",
			Help: "Notification deliveries by channel and result.",
		},
		[]string{"channel", "result"},
	)
	notificationsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labgraph_notify_dropped_total",
			Help: "Notifications dropped because the delivery queue was full.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(notificationsSent, notificationsDropped)
}
