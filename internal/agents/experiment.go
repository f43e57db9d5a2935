package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// Experimenter validates hypotheses against the collected evidence. Each
// hypothesis is checked independently; validation adjusts the prior
// confidence up or down.
type Experimenter struct {
	logger *slog.Logger
}

// NewExperimenter constructs the validator.
func NewExperimenter(logger *slog.Logger) *Experimenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Experimenter{logger: logger}
}

// Validate returns one result per hypothesis, in order.
func (e *Experimenter) Validate(ctx context.Context, hypotheses []models.Hypothesis, evidence models.Evidence) ([]models.ExperimentResult, error) {
	results := make([]models.ExperimentResult, 0, len(hypotheses))
	for i, h := range hypotheses {
		validated, findings := e.check(h, evidence)

		confidence := h.Confidence - 0.2
		if validated {
			confidence = h.Confidence + 0.15
		}
		results = append(results, models.ExperimentResult{
			HypothesisID: i,
			Validated:    validated,
			Findings:     findings,
			Confidence:   clamp01(confidence),
		})
	}

	e.logger.Debug("experiments complete", slog.Int("count", len(results)))
	return results, nil
}

func (e *Experimenter) check(h models.Hypothesis, evidence models.Evidence) (bool, string) {
	desc := strings.ToLower(h.Description)
	m := evidence.Metrics

	switch {
	case containsAny(desc, "deploy", "release"):
		if d, ok := latestDeploy(evidence, time.Hour); ok {
			return true, fmt.Sprintf("Deploy %s landed %s before evidence collection",
				d.Version, evidence.CollectedAt.Sub(d.DeployedAt).Round(time.Minute))
		}
		return false, "No deploy within the last hour"

	case containsAny(desc, "connection pool"):
		if logsContain(evidence.Logs, "connection pool") {
			return true, "Logs show connection pool wait timeouts"
		}
		return false, "No connection pool errors in logs"

	case containsAny(desc, "dependency", "downstream", "database", "backpressure"):
		if logsContain(evidence.Logs, "503", "timeout", "timed out") || len(evidence.Traces) > 0 {
			return true, "Logs and traces point at a degraded dependency"
		}
		return false, "No dependency failure signals in logs or traces"

	case containsAny(desc, "memory", "resource", "contention", "capacity", "traffic", "leak"):
		if m["cpu_usage"] > 85 || m["memory_usage"] > 85 {
			return true, fmt.Sprintf("Resource usage saturated (cpu %.0f%%, memory %.0f%%)",
				m["cpu_usage"], m["memory_usage"])
		}
		return false, "Resource usage within normal bounds"

	case containsAny(desc, "consumer", "producer", "queue"):
		if m["queue_depth"] > 1000 {
			return true, fmt.Sprintf("Queue depth at %.0f confirms the backlog", m["queue_depth"])
		}
		return false, "Queue depth within normal bounds"

	default:
		return false, "No evidence check matched this hypothesis"
	}
}

func latestDeploy(evidence models.Evidence, window time.Duration) (models.Deploy, bool) {
	cutoff := evidence.CollectedAt
	if cutoff.IsZero() {
		cutoff = time.Now().UTC()
	}
	for _, d := range evidence.RecentDeploys {
		age := cutoff.Sub(d.DeployedAt)
		if age >= 0 && age <= window {
			return d, true
		}
	}
	return models.Deploy{}, false
}

func logsContain(logs []string, needles ...string) bool {
	for _, line := range logs {
		lower := strings.ToLower(line)
		for _, needle := range needles {
			if strings.Contains(lower, needle) {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, needles ...string) bool {
	lower := strings.ToLower(s)
	for _, needle := range needles {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}
