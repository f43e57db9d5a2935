package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-autopilot/internal/engine"
	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// Triage classifies the incident type from the evidence metrics using fixed
// operational thresholds. Checks run in a priority order; the first signal
// that fires decides the classification.
type Triage struct {
	logger *slog.Logger
}

// NewTriage constructs the classifier.
func NewTriage(logger *slog.Logger) *Triage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Triage{logger: logger}
}

// Classify determines the incident type. Unknown classifications get a low
// confidence so downstream consumers can tell a guess from a diagnosis.
func (t *Triage) Classify(ctx context.Context, evidence models.Evidence, baseline map[string]float64, runbook string) (engine.Classification, error) {
	m := evidence.Metrics

	if p99 := m["latency_p99"]; p99 > 1000 {
		return engine.Classification{
			Type:       models.IncidentTypeLatencySpike,
			Confidence: 0.9,
			Reasoning:  fmt.Sprintf("p99 latency at %.0fms exceeds the 1000ms threshold", p99),
		}, nil
	}

	if errRate := m["error_rate"]; errRate > 5 {
		return engine.Classification{
			Type:       models.IncidentTypeErrorRate,
			Confidence: 0.95,
			Reasoning:  fmt.Sprintf("Error rate at %.1f%% exceeds the 5%% threshold", errRate),
		}, nil
	}

	if cpu, mem := m["cpu_usage"], m["memory_usage"]; cpu > 85 || mem > 85 {
		return engine.Classification{
			Type:       models.IncidentTypeResourceSaturation,
			Confidence: 0.85,
			Reasoning:  fmt.Sprintf("Resource usage saturated (cpu %.0f%%, memory %.0f%%)", cpu, mem),
		}, nil
	}

	if queue := m["queue_depth"]; queue > 1000 {
		return engine.Classification{
			Type:       models.IncidentTypeQueueDepth,
			Confidence: 0.8,
			Reasoning:  fmt.Sprintf("Queue depth at %.0f exceeds the 1000 message threshold", queue),
		}, nil
	}

	t.logger.Debug("no classification threshold crossed, marking unknown")
	return engine.Classification{
		Type:       models.IncidentTypeUnknown,
		Confidence: 0.5,
		Reasoning:  "No metric crossed a classification threshold",
	}, nil
}
