package telemetry

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromMetricsIncCounter(t *testing.T) {
	m := NewPromMetrics()
	m.IncCounter("tool_calls_total", 1, "read_files")
	m.IncCounter("tool_calls_total", 2, "read_files")

	got, err := m.registry.Gather()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tool_calls_total", got[0].GetName())
	assert.Equal(t, 3.0, got[0].Metric[0].GetCounter().GetValue())
}

func TestPromMetricsRecordTimerAndGauge(t *testing.T) {
	m := NewPromMetrics()
	m.RecordTimer("step_duration_seconds", 2*time.Second)
	m.RecordGauge("active_runs", 5, "orchestrator")

	got, err := m.registry.Gather()
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestPromMetricsHandlerServesExposition(t *testing.T) {
	m := NewPromMetrics()
	m.IncCounter("requests_total", 1)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "requests_total")
}

func TestTagLabelsGeneratesGenericNames(t *testing.T) {
	assert.Equal(t, []string{"tag0", "tag1"}, tagLabels(2))
	assert.Equal(t, []string{}, tagLabels(0))
}
