// Package metrics exposes lifecycle and model-call counters in the
// Prometheus exposition format.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tapline/internal/events"
)

const namespace = "tapline"

type Metrics struct {
	Registry   *prometheus.Registry
	Events     *prometheus.CounterVec
	ModelCalls *prometheus.CounterVec
}

// New builds a private registry with process and runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"type"}),
		ModelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model call outcomes by kind (analysis, synthesis).",
		}, []string{"kind", "outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Events,
		m.ModelCalls,
	)
	return m
}

// Register counts every event published on the bus.
func (m *Metrics) Register(bus *events.Bus) {
	bus.Subscribe("metrics", func(_ context.Context, e events.Event) error {
		m.Events.WithLabelValues(e.Type).Inc()
		return nil
	})
}

// ObserveModel matches the analysis observer hook.
func (m *Metrics) ObserveModel(kind, outcome string) {
	m.ModelCalls.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
