package models

import (
	"testing"
	"time"
)

func TestNewIncidentStartsAtDetection(t *testing.T) {
	incident := NewIncident("INC-1", "checkout-service", SeverityHigh)

	if incident.Stage != StageDetection {
		t.Fatalf("expected detection stage, got %s", incident.Stage)
	}
	if incident.IncidentType != IncidentTypeUnknown {
		t.Fatalf("type must start unknown, got %s", incident.IncidentType)
	}
	if incident.StartTime.IsZero() || incident.EndTime != nil {
		t.Fatalf("start time must be set and end time empty")
	}
}

func TestStageTerminal(t *testing.T) {
	for _, stage := range []Stage{StageDetection, StageScout, StageExecutor, StagePostcheck} {
		if stage.Terminal() {
			t.Fatalf("%s must not be terminal", stage)
		}
	}
	for _, stage := range []Stage{StageCompleted, StageFailed} {
		if !stage.Terminal() {
			t.Fatalf("%s must be terminal", stage)
		}
	}
}

func TestCloseSetsEndTimeOnce(t *testing.T) {
	incident := NewIncident("INC-1", "svc", SeverityLow)

	first := time.Now().UTC()
	incident.Close(first)
	incident.Close(first.Add(time.Hour))

	if !incident.EndTime.Equal(first) {
		t.Fatalf("end time must not move once set")
	}
}

func TestCloneIsDeep(t *testing.T) {
	incident := NewIncident("INC-1", "svc", SeverityHigh)
	incident.Evidence = &Evidence{
		Metrics: map[string]float64{"cpu_usage": 90},
		Logs:    []string{"WARN something"},
	}
	incident.ProposedMitigation = &Mitigation{
		Type:       MitigationScaleUp,
		Parameters: map[string]string{"target_replicas": "6"},
	}
	incident.AddTimelineEvent("scout", "collected", nil)

	clone := incident.Clone()
	clone.Evidence.Metrics["cpu_usage"] = 1
	clone.ProposedMitigation.Parameters["target_replicas"] = "99"
	clone.Timeline[0].Message = "mutated"
	clone.AddTimelineEvent("triage", "extra", nil)

	if incident.Evidence.Metrics["cpu_usage"] != 90 {
		t.Fatalf("evidence metrics shared between clone and original")
	}
	if incident.ProposedMitigation.Parameters["target_replicas"] != "6" {
		t.Fatalf("mitigation parameters shared between clone and original")
	}
	if incident.Timeline[0].Message != "collected" || len(incident.Timeline) != 1 {
		t.Fatalf("timeline shared between clone and original")
	}
}
