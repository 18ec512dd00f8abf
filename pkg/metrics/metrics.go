package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics chat_service collectors on a private registry
type Metrics struct {
	Registry *prometheus.Registry

	EventsPublished *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
	Sessions        prometheus.Gauge
}

// New register chat collectors plus go / process collectors
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "fanout_events_total",
			Help:      "Events published to the fan-out, by event and target kind.",
		}, []string{"event", "target"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "fanout_failures_total",
			Help:      "Fan-out publish or sink failures, by stage.",
		}, []string{"stage"}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "websocket_sessions",
			Help:      "Live websocket sessions on this instance.",
		}),
	}
	m.Registry.MustRegister(
		m.EventsPublished,
		m.PublishFailures,
		m.Sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
