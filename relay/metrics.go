package relay

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "minichat",
		Subsystem: "relay",
		Name:      "sessions",
		Help:      "Number of open websocket sessions.",
	})

	usersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "minichat",
		Subsystem: "relay",
		Name:      "online_users",
		Help:      "Number of users with at least one session.",
	})

	framesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minichat",
		Subsystem: "relay",
		Name:      "frames_received_total",
		Help:      "Frames received from clients, by event.",
	}, []string{"event"})

	messagesStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "minichat",
		Subsystem: "relay",
		Name:      "messages_stored_total",
		Help:      "Chat messages saved.",
	})
)

func init() {
	prometheus.MustRegister(sessionsGauge, usersGauge, framesReceived, messagesStored)
}
