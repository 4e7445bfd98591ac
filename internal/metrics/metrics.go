package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MessagesAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_appended_total",
		Help: "Messages durably appended to the ledger.",
	})
	EventsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_live_events_delivered_total",
		Help: "Live events delivered to connected sessions.",
	})
	OpenSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_open_sessions",
		Help: "Currently open websocket sessions.",
	})
)

func init() {
	prometheus.MustRegister(MessagesAppended, EventsDelivered, OpenSessions)
}
