// Package metrics provides observability for the orchestrator and
// gateway, grounded on the pack's promauto-based per-subsystem Metrics
// struct pattern (abramin-Credo's internal/decision/metrics).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters the gateway and the orchestrator's
// Activities emit. A nil *Metrics is safe to call methods on (all
// methods guard against it), so callers that don't care about metrics
// can leave it unset. Every metric here is recorded from either plain
// request-handling code (the gateway) or from inside a Temporal
// activity — never from workflow code itself, since workflow code
// replays and a counter incremented there would double-count on every
// replay instead of once per real event.
type Metrics struct {
	CommandsProcessed   *prometheus.CounterVec
	OrchestratorAttaches prometheus.Counter
	SagaCompensations   *prometheus.CounterVec
	LevelChanges        *prometheus.CounterVec
}

// New registers and returns the shared metric set. Call once per
// process (cmd/worker and cmd/api each construct their own, since they
// run as separate processes with separate /metrics endpoints).
func New() *Metrics {
	return &Metrics{
		CommandsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verifyengine_commands_processed_total",
			Help: "Total orchestrator commands processed by command kind and outcome.",
		}, []string{"command", "outcome"}),

		SagaCompensations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verifyengine_saga_compensations_total",
			Help: "Total two-party saga compensation runs by trigger reason.",
		}, []string{"reason"}),

		LevelChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verifyengine_level_changes_total",
			Help: "Total subject level transitions by new level.",
		}, []string{"new_level"}),

		OrchestratorAttaches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verifyengine_orchestrator_attaches_total",
			Help: "Total gateway calls that attached to a subject's orchestrator workflow.",
		}),
	}
}

func (m *Metrics) CommandProcessed(command, outcome string) {
	if m != nil {
		m.CommandsProcessed.WithLabelValues(command, outcome).Inc()
	}
}

func (m *Metrics) SagaCompensated(reason string) {
	if m != nil {
		m.SagaCompensations.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) LevelChanged(newLevel string) {
	if m != nil {
		m.LevelChanges.WithLabelValues(newLevel).Inc()
	}
}

func (m *Metrics) OrchestratorAttached() {
	if m != nil {
		m.OrchestratorAttaches.Inc()
	}
}
