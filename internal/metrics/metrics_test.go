package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestCommitAppliedIncrementsCounter(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())
	m.CommitApplied()
	m.CommitApplied()
	require.Equal(t, float64(2), counterValue(t, m.CommitsAppliedTotal))
}

func TestConnectionLifecycleTracksActiveConnections(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())
	m.ConnectionOpened()
	m.ConnectionOpened()
	require.Equal(t, float64(2), gaugeValue(t, m.ActiveConnections))

	m.ConnectionClosed()
	require.Equal(t, float64(1), gaugeValue(t, m.ActiveConnections))
}

func TestSetActiveDocuments(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())
	m.SetActiveDocuments(3)
	require.Equal(t, float64(3), gaugeValue(t, m.ActiveDocuments))
}

func TestNilMetricsIsSafeToCall(t *testing.T) {
	var m *Metrics
	m.CommitApplied()
	m.ContentReset()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.SetActiveDocuments(1)
}
