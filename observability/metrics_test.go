package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTurn("success", time.Second)
		m.RecordRound("tools")
		m.RecordToolCall("x", true, time.Millisecond)
		m.RecordExtraction("tagged")
		m.IncConnections()
		m.DecConnections()
		m.SetSessions(3)
		m.RecordTransportError("read")
		m.RecordNotification("sent")
	})
}

func TestRecorders(t *testing.T) {
	m := NewMetrics()
	m.RecordTurn("success", 2*time.Second)
	m.RecordTurn("", time.Second)
	m.RecordToolCall("create_schedule", false, time.Millisecond)
	m.RecordToolCall("create_schedule", true, time.Millisecond)
	m.RecordExtraction("tagged")
	m.IncConnections()
	m.IncConnections()
	m.DecConnections()
	m.SetSessions(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("create_schedule", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionTiers.WithLabelValues("tagged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connections))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Sessions))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.RecordRound("forced")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tablecopilot_gateway_rounds_total{mode="forced"} 1`)
}
