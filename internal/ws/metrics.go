package ws

import "github.com/prometheus/client_golang/prometheus"

var (
	liveClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "labgraph_ws_clients",
		Help: "Connected live feed clients.",
	})
	messagesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "labgraph_ws_messages_dropped_total",
		Help: "Live feed messages dropped for slow clients.",
	})
)

func init() {
	prometheus.MustRegister(liveClients, messagesDropped)
}
