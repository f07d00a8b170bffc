// Package metrics provides Prometheus metrics for the decision engine.
package metrics

import (
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const namespace = "agent_council"

var (
	// GateDecisions counts write-gate outcomes.
	// Labels: result (created, merged, rejected)
	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "gate_decisions_total",
			Help:      "Total number of memory write-gate decisions by result",
		},
		[]string{"result"},
	)

	// RetrieveDuration tracks how long relevance retrieval takes.
	RetrieveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "retrieve_duration_seconds",
			Help:      "Duration of memory retrieve operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// AllocationFallbacks counts tasks that fell back to the default agent.
	AllocationFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agents",
			Name:      "allocation_fallbacks_total",
			Help:      "Total number of allocations served by the default agent",
		},
	)

	// RouterDecisions counts chosen tiers.
	// Labels: role (CLASSIFY, GROUNDED, SYNTH)
	RouterDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "decisions_total",
			Help:      "Total number of routing decisions by role",
		},
		[]string{"role"},
	)

	// WorkerDrafts counts draft attempts.
	// Labels: result (ok, timeout, error)
	WorkerDrafts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "worker_drafts_total",
			Help:      "Total number of worker draft attempts by result",
		},
		[]string{"result"},
	)

	// PlanValidations counts validation reports.
	// Labels: result (valid, unmet, unknown_action)
	PlanValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plan",
			Name:      "validations_total",
			Help:      "Total number of plan validations by result",
		},
		[]string{"result"},
	)

	// DebateRounds counts completed debate rounds.
	DebateRounds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "debate",
			Name:      "rounds_total",
			Help:      "Total number of completed debate rounds",
		},
	)

	// DependencyCycles counts requests rejected for cyclic task dependencies.
	DependencyCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "dependency_cycles_total",
			Help:      "Total number of requests rejected for dependency cycles",
		},
	)
)

// WriteText writes every engine metric family in the text exposition format.
func WriteText(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
