package services

import (
	"github.com/MegaGrindStone/chat-ui/internal/chat"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics is a chat.Observer that records turn outcomes and inference latency in its own Prometheus
// registry.
type Metrics struct {
	registry *prometheus.Registry

	turns            *prometheus.CounterVec
	inFlight         prometheus.Gauge
	inferenceSeconds *prometheus.HistogramVec
}

const (
	outcomeOK      = "ok"
	outcomeApology = "apology"
	outcomeError   = "error"
)

// NewMetrics creates a Metrics observer with a fresh registry that also carries the Go runtime and
// process collectors.
func NewMetrics() Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := Metrics{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatui",
			Name:      "turns_total",
			Help:      "Completed conversation turns by input type and outcome.",
		}, []string{"input_type", "outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatui",
			Name:      "turns_in_flight",
			Help:      "Conversation turns currently being processed.",
		}),
		inferenceSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatui",
			Name:      "turn_processing_seconds",
			Help:      "Time from turn start to backend reply.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"model"}),
	}
	reg.MustRegister(m.turns, m.inFlight, m.inferenceSeconds)

	return m
}

// Registry returns the registry to expose over HTTP.
func (m Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// OnTurnEvent implements chat.Observer.
func (m Metrics) OnTurnEvent(ev chat.TurnEvent) {
	switch ev.State {
	case chat.StateNormalizing:
		m.inFlight.Inc()
	case chat.StateIdle:
		m.inFlight.Dec()

		outcome := outcomeOK
		switch {
		case ev.Err != nil:
			outcome = outcomeError
		case ev.InferenceFailed:
			outcome = outcomeApology
		}
		m.turns.WithLabelValues(string(ev.InputType), outcome).Inc()

		if ev.Assistant != nil && ev.Assistant.ProcessingTime != nil {
			m.inferenceSeconds.WithLabelValues(ev.Assistant.ModelUsed).Observe(*ev.Assistant.ProcessingTime)
		}
	default:
	}
}
