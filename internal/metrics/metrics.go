package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline run outcomes used as metric labels.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomePaused    = "paused"
	OutcomeBlocked   = "blocked"
)

var (
	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_autopilot",
			Name:      "pipeline_runs_total",
			Help:      "Total pipeline runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_autopilot",
			Name:      "stage_seconds",
			Help:      "Pipeline stage latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 10},
		},
		[]string{"stage"},
	)

	guardrailBlocksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_autopilot",
			Name:      "guardrail_blocks_total",
			Help:      "Mitigations rejected by the guardrail engine.",
		},
	)

	approvalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_autopilot",
			Name:      "approvals_total",
			Help:      "Mitigation approvals received.",
		},
	)
)

// Register attaches autopilot collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pipelineRunsTotal,
		stageDurationSeconds,
		guardrailBlocksTotal,
		approvalsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a finished pipeline run.
func ObserveRun(outcome string) {
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records a stage duration.
func ObserveStage(stage string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveGuardrailBlock counts a guardrail rejection.
func ObserveGuardrailBlock() {
	guardrailBlocksTotal.Inc()
}

// ObserveApproval counts a received mitigation approval.
func ObserveApproval() {
	approvalsTotal.Inc()
}
