package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MegaGrindStone/chat-ui/internal/chat"
	"github.com/MegaGrindStone/chat-ui/internal/models"
	"github.com/MegaGrindStone/chat-ui/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }

func (failingBackend) Generate(context.Context, models.GenerateRequest) (models.Output, error) {
	return models.Output{}, errors.New("connection refused")
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestMetricsObserver(t *testing.T) {
	metrics := services.NewMetrics()
	reg := metrics.Registry()
	store := services.NewMemoryStore()
	ctx := context.Background()

	ok := chat.NewOrchestrator(store, chat.NewGateway(staticBackend{reply: "Hi there!"}, testLogger()), testLogger(), metrics)
	_, err := ok.SendTurn(ctx, chat.NewSession("conv_1", "deepseek-r1:8b"), chat.Input{Type: models.InputTypeText, Text: "Hello"})
	require.NoError(t, err)

	failing := chat.NewOrchestrator(store, chat.NewGateway(failingBackend{}, testLogger()), testLogger(), metrics)
	_, err = failing.SendTurn(ctx, chat.NewSession("conv_2", "deepseek-r1:8b"), chat.Input{Type: models.InputTypeText, Text: "Hello"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, metricValue(t, reg, "chatui_turns_total", map[string]string{"input_type": "text", "outcome": "ok"}))
	assert.Equal(t, 1.0, metricValue(t, reg, "chatui_turns_total", map[string]string{"input_type": "text", "outcome": "apology"}))
	assert.Equal(t, 0.0, metricValue(t, reg, "chatui_turns_in_flight", nil))
	assert.Equal(t, 1.0, metricValue(t, reg, "chatui_turn_processing_seconds", map[string]string{"model": "deepseek-r1:8b"}))
}
