package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func findFamily(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func labelValue(metric *dto.Metric, name string) string {
	for _, l := range metric.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestObserveRequest(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("ok")
	m.ObserveRequest("ok")
	m.ObserveRequest("INVALID_INPUT")

	counts := map[string]float64{}
	for _, metric := range findFamily(t, m, "chat_relay_requests_total").GetMetric() {
		counts[labelValue(metric, "outcome")] = metric.GetCounter().GetValue()
	}
	require.Equal(t, map[string]float64{"ok": 2, "INVALID_INPUT": 1}, counts)
}

func TestObserveAgentCall(t *testing.T) {
	m := NewMetrics()
	m.ObserveAgentCall(300*time.Millisecond, true)
	m.ObserveAgentCall(2*time.Second, false)

	samples := map[string]uint64{}
	for _, metric := range findFamily(t, m, "chat_relay_agent_request_duration_seconds").GetMetric() {
		samples[labelValue(metric, "status")] = metric.GetHistogram().GetSampleCount()
	}
	require.Equal(t, map[string]uint64{"ok": 1, "error": 1}, samples)
}

func TestObserveSanitized(t *testing.T) {
	m := NewMetrics()
	m.ObserveSanitized("input")

	metrics := findFamily(t, m, "chat_relay_sanitized_total").GetMetric()
	require.Len(t, metrics, 1)
	require.Equal(t, "input", labelValue(metrics[0], "direction"))
	require.Equal(t, float64(1), metrics[0].GetCounter().GetValue())
}

func TestHandler(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `chat_relay_requests_total{outcome="ok"} 1`)
}
