// Package observability holds the Prometheus collectors of the service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	Turns           *prometheus.CounterVec
	TurnDuration    *prometheus.HistogramVec
	GatewayRounds   *prometheus.CounterVec
	ToolCalls       *prometheus.CounterVec
	ToolDuration    *prometheus.HistogramVec
	ExtractionTiers *prometheus.CounterVec
	Connections     prometheus.Gauge
	Sessions        prometheus.Gauge
	TransportErrs   *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
}

// NewMetrics constructs a registry with the service collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	turns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablecopilot_turns_total",
		Help: "Processed turns by outcome",
	}, []string{"outcome"})

	turnDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tablecopilot_turn_duration_seconds",
		Help:    "Turn duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	rounds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablecopilot_gateway_rounds_total",
		Help: "Model rounds by mode (tools, forced, reflection)",
	}, []string{"mode"})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablecopilot_tool_calls_total",
		Help: "Tool dispatches by tool and status",
	}, []string{"tool", "status"})

	toolDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tablecopilot_tool_duration_seconds",
		Help:    "Tool dispatch duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	tiers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablecopilot_extraction_tier_total",
		Help: "Final answers by the extraction tier that produced them",
	}, []string{"tier"})

	conns := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tablecopilot_active_connections",
		Help: "Open WebSocket connections",
	})

	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tablecopilot_active_sessions",
		Help: "Sessions held in the session store",
	})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablecopilot_transport_errors_total",
		Help: "Transport-level errors by reason",
	}, []string{"reason"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablecopilot_notifications_total",
		Help: "Reminder notifications by status",
	}, []string{"status"})

	reg.MustRegister(turns, turnDur, rounds, toolCalls, toolDur, tiers, conns, sessions, trErrors, notifications)

	return &Metrics{
		registry:        reg,
		Turns:           turns,
		TurnDuration:    turnDur,
		GatewayRounds:   rounds,
		ToolCalls:       toolCalls,
		ToolDuration:    toolDur,
		ExtractionTiers: tiers,
		Connections:     conns,
		Sessions:        sessions,
		TransportErrs:   trErrors,
		Notifications:   notifications,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordRound counts one model round.
func (m *Metrics) RecordRound(mode string) {
	if m == nil {
		return
	}
	m.GatewayRounds.WithLabelValues(mode).Inc()
}

// RecordToolCall records one tool dispatch.
func (m *Metrics) RecordToolCall(tool string, isError bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if isError {
		status = "error"
	}
	m.ToolCalls.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordExtraction counts the tier a final answer came from.
func (m *Metrics) RecordExtraction(tier string) {
	if m == nil {
		return
	}
	m.ExtractionTiers.WithLabelValues(tier).Inc()
}

// IncConnections increments the open connection gauge.
func (m *Metrics) IncConnections() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

// DecConnections decrements the open connection gauge.
func (m *Metrics) DecConnections() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}

// SetSessions sets the session gauge.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.Sessions.Set(float64(n))
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.TransportErrs.WithLabelValues(reason).Inc()
}

// RecordNotification counts a reminder delivery attempt.
func (m *Metrics) RecordNotification(status string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(status).Inc()
}
