package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const metricsNamespace = "roomchat"

// Metrics holds the Prometheus collectors for the service. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	connections  prometheus.Gauge
	events       *prometheus.CounterVec
	droppedSends prometheus.Counter
}

// NewMetrics registers the service collectors with reg. rooms reports the
// current number of rooms at scrape time.
func NewMetrics(reg prometheus.Registerer, rooms func() int) *Metrics {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "rooms",
		Help:      "Number of rooms in the registry.",
	}, func() float64 {
		return float64(rooms())
	})

	return &Metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections",
			Help:      "Number of open WebSocket connections.",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Inbound events handled, by event name and outcome.",
		}, []string{"event", "status"}),
		droppedSends: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_sends_total",
			Help:      "Connections dropped because their send buffer was full.",
		}),
	}
}

// ObserveEvent counts one handled inbound event. It matches chat.EventHook.
func (m *Metrics) ObserveEvent(event, status string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventLabel(event), status).Inc()
}

func (m *Metrics) connectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) sendDropped() {
	if m != nil {
		m.droppedSends.Inc()
	}
}

// eventLabel keeps client-chosen event names out of the label set.
func eventLabel(event string) string {
	switch event {
	case chat.EventRoomList, chat.EventRoomCreate, chat.EventRoomJoin,
		chat.EventMessageSend, chat.EventMessageTyping:
		return event
	case "":
		return "malformed"
	default:
		return "unknown"
	}
}
