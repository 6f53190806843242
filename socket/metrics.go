package socket

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minichat",
		Subsystem: "socket",
		Name:      "events_received_total",
		Help:      "Server pushed events, by event name.",
	}, []string{"event"})

	emitsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minichat",
		Subsystem: "socket",
		Name:      "emits_total",
		Help:      "Client emits written to the connection, by event name.",
	}, []string{"event"})

	emitsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minichat",
		Subsystem: "socket",
		Name:      "emits_dropped_total",
		Help:      "Client emits dropped: no connection, closing or full buffer.",
	}, []string{"event"})

	dialFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "minichat",
		Subsystem: "socket",
		Name:      "dial_failures_total",
		Help:      "Failed connection attempts.",
	})

	liveConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "minichat",
		Subsystem: "socket",
		Name:      "connections",
		Help:      "Open connections.",
	})
)

func init() {
	prometheus.MustRegister(eventsReceived, emitsSent, emitsDropped, dialFailures, liveConns)
}
