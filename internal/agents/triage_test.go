package agents

import (
	"context"
	"testing"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

func classify(t *testing.T, metrics map[string]float64) (models.IncidentType, float64) {
	t.Helper()
	tri := NewTriage(nil)
	c, err := tri.Classify(context.Background(), models.Evidence{Metrics: metrics}, nil, "")
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if c.Reasoning == "" {
		t.Fatalf("classification must carry reasoning")
	}
	return c.Type, c.Confidence
}

func TestClassifyThresholds(t *testing.T) {
	cases := []struct {
		name       string
		metrics    map[string]float64
		wantType   models.IncidentType
		confidence float64
	}{
		{"error rate", map[string]float64{"error_rate": 8.5}, models.IncidentTypeErrorRate, 0.95},
		{"latency", map[string]float64{"latency_p99": 2400}, models.IncidentTypeLatencySpike, 0.9},
		{"cpu saturation", map[string]float64{"cpu_usage": 92}, models.IncidentTypeResourceSaturation, 0.85},
		{"memory saturation", map[string]float64{"memory_usage": 89}, models.IncidentTypeResourceSaturation, 0.85},
		{"queue depth", map[string]float64{"queue_depth": 2500}, models.IncidentTypeQueueDepth, 0.8},
		{"nothing firing", map[string]float64{"latency_p99": 300}, models.IncidentTypeUnknown, 0.5},
		{"no metrics", nil, models.IncidentTypeUnknown, 0.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotType, gotConf := classify(t, tc.metrics)
			if gotType != tc.wantType {
				t.Fatalf("expected %s, got %s", tc.wantType, gotType)
			}
			if gotConf != tc.confidence {
				t.Fatalf("expected confidence %v, got %v", tc.confidence, gotConf)
			}
		})
	}
}

func TestClassifyLatencyWinsOverErrorRate(t *testing.T) {
	gotType, _ := classify(t, map[string]float64{"error_rate": 9, "latency_p99": 3000})
	if gotType != models.IncidentTypeLatencySpike {
		t.Fatalf("latency has priority when both thresholds fire, got %s", gotType)
	}
}
