package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "panelsense"

type Metrics struct {
	FramesReceived  prometheus.Counter
	DecodeErrors    prometheus.Counter
	CommandsSent    prometheus.Counter
	AuthAttempts    *prometheus.CounterVec
	ConnectionState prometheus.Gauge
	TypeMismatches  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames received from the server.",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound frames that could not be decoded.",
		}),
		CommandsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Entity commands written to the connection.",
		}),
		AuthAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by result.",
		}, []string{"result"}),
		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state (0 disconnected, 1 connecting, 2 connected, 3 failed).",
		}),
		TypeMismatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "type_mismatch_total",
			Help:      "Entity updates dropped because their domain did not match the observer.",
		}),
	}
}

// NewTestMetrics registers on a throwaway registry.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func (m *Metrics) AuthSucceeded() {
	m.AuthAttempts.WithLabelValues("success").Inc()
}

func (m *Metrics) AuthFailed() {
	m.AuthAttempts.WithLabelValues("failure").Inc()
}
