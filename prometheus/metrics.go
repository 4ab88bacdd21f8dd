// Package prometheus exports retry, persistence and tool metrics.
package prometheus

import (
	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/heal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors. A nil *Metrics is a no-op.
type Metrics struct {
	Retries     *prometheus.CounterVec
	Saves       *prometheus.CounterVec
	ToolResults *prometheus.CounterVec
	Finishes    *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_retries_total",
			Help: "Retries attempted after a classified stream failure, by kind.",
		}, []string{"kind"}),
		Saves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_conversation_saves_total",
			Help: "Conversation snapshot writes, by result.",
		}, []string{"result"}),
		ToolResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_tool_results_total",
			Help: "Tool results fed back to the model, by tool and status.",
		}, []string{"tool", "status"}),
		Finishes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_turns_total",
			Help: "Completed turns, by finish reason.",
		}, []string{"reason"}),
	}
}

// ObserveRetry counts one retry. Its signature matches retry.Observer.
func (m *Metrics) ObserveRetry(err *heal.RetryableError, _ int) {
	if m == nil || err == nil {
		return
	}
	m.Retries.WithLabelValues(string(err.Kind)).Inc()
}

// ObserveSave counts one persistence attempt. Its signature matches
// turn.WithSaveHook.
func (m *Metrics) ObserveSave(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Saves.WithLabelValues(result).Inc()
}

// ObserveEvent counts tool results and finished turns.
func (m *Metrics) ObserveEvent(evt relay.Event) {
	if m == nil {
		return
	}
	switch e := evt.(type) {
	case relay.EventToolResult:
		status := string(relay.StatusCompleted)
		if e.IsError {
			status = string(relay.StatusFailed)
		}
		m.ToolResults.WithLabelValues(e.Name, status).Inc()
	case relay.EventFinish:
		m.Finishes.WithLabelValues(string(e.Reason)).Inc()
	}
}
