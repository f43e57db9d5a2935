package agents

import (
	"context"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// RuleHypothesizer generates root-cause hypotheses from a fixed table per
// incident type. A deploy within the last hour boosts the confidence of
// deploy-related hypotheses.
type RuleHypothesizer struct {
	logger *slog.Logger
}

// NewRuleHypothesizer constructs the rule-based generator.
func NewRuleHypothesizer(logger *slog.Logger) *RuleHypothesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleHypothesizer{logger: logger}
}

// Generate returns the candidate hypotheses for the diagnosed incident type,
// ordered by prior confidence.
func (g *RuleHypothesizer) Generate(ctx context.Context, incidentType models.IncidentType, evidence models.Evidence, reasoning string) ([]models.Hypothesis, error) {
	hypotheses := hypothesisTable(incidentType)

	if deployWithin(evidence, time.Hour) {
		for i := range hypotheses {
			if containsAny(hypotheses[i].Description, "deploy", "release") {
				hypotheses[i].Confidence = clamp01(hypotheses[i].Confidence + 0.1)
			}
		}
	}

	g.logger.Debug("hypotheses generated",
		slog.String("incident_type", string(incidentType)),
		slog.Int("count", len(hypotheses)))
	return hypotheses, nil
}

func hypothesisTable(incidentType models.IncidentType) []models.Hypothesis {
	switch incidentType {
	case models.IncidentTypeLatencySpike:
		return []models.Hypothesis{
			{
				Description:        "Recent deploy introduced a slow code path",
				Confidence:         0.7,
				EvidenceNeeded:     []string{"deploy timeline", "trace samples"},
				ValidationCriteria: "A deploy landed shortly before the latency increase",
			},
			{
				Description:        "Database or downstream dependency slowdown",
				Confidence:         0.6,
				EvidenceNeeded:     []string{"trace samples", "dependency metrics"},
				ValidationCriteria: "Traces show the majority of request time in a dependency span",
			},
			{
				Description:        "Resource contention degrading request processing",
				Confidence:         0.5,
				EvidenceNeeded:     []string{"cpu and memory metrics"},
				ValidationCriteria: "CPU or memory usage above 85%",
			},
		}
	case models.IncidentTypeErrorRate:
		return []models.Hypothesis{
			{
				Description:        "Recent deploy introduced a defect",
				Confidence:         0.75,
				EvidenceNeeded:     []string{"deploy timeline", "error logs"},
				ValidationCriteria: "Errors started after the most recent deploy",
			},
			{
				Description:        "Downstream dependency is failing",
				Confidence:         0.65,
				EvidenceNeeded:     []string{"error logs", "dependency health"},
				ValidationCriteria: "Logs show upstream 5xx responses or timeouts",
			},
			{
				Description:        "Connection pool exhaustion under load",
				Confidence:         0.55,
				EvidenceNeeded:     []string{"error logs", "connection metrics"},
				ValidationCriteria: "Logs show pool wait timeouts",
			},
		}
	case models.IncidentTypeResourceSaturation:
		return []models.Hypothesis{
			{
				Description:        "Traffic increased beyond provisioned capacity",
				Confidence:         0.7,
				EvidenceNeeded:     []string{"request rate", "replica count"},
				ValidationCriteria: "Resource usage saturated across all replicas",
			},
			{
				Description:        "Memory leak accumulating over time",
				Confidence:         0.6,
				EvidenceNeeded:     []string{"memory trend", "GC logs"},
				ValidationCriteria: "Memory grows monotonically between restarts",
			},
			{
				Description:        "Recent deploy shipped an inefficient code path",
				Confidence:         0.5,
				EvidenceNeeded:     []string{"deploy timeline", "cpu profile"},
				ValidationCriteria: "Resource usage stepped up at deploy time",
			},
		}
	case models.IncidentTypeQueueDepth:
		return []models.Hypothesis{
			{
				Description:        "Consumers slowed down or crashed",
				Confidence:         0.7,
				EvidenceNeeded:     []string{"consumer lag", "consumer health"},
				ValidationCriteria: "Consumption rate dropped while production held steady",
			},
			{
				Description:        "Producer burst exceeding consumer capacity",
				Confidence:         0.6,
				EvidenceNeeded:     []string{"production rate"},
				ValidationCriteria: "Production rate spiked above historical peak",
			},
			{
				Description:        "Downstream backpressure stalling consumers",
				Confidence:         0.5,
				EvidenceNeeded:     []string{"dependency latency"},
				ValidationCriteria: "Consumer processing time dominated by a dependency call",
			},
		}
	default:
		return []models.Hypothesis{
			{
				Description:        "Unclassified anomaly, likely a broad capacity issue",
				Confidence:         0.4,
				EvidenceNeeded:     []string{"full metric snapshot"},
				ValidationCriteria: "Any resource or latency signal trending away from baseline",
			},
		}
	}
}

func deployWithin(evidence models.Evidence, window time.Duration) bool {
	cutoff := evidence.CollectedAt
	if cutoff.IsZero() {
		cutoff = time.Now().UTC()
	}
	for _, d := range evidence.RecentDeploys {
		if cutoff.Sub(d.DeployedAt) <= window && cutoff.Sub(d.DeployedAt) >= 0 {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
