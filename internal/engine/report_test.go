package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

func TestBuildReportSections(t *testing.T) {
	incident := models.NewIncident("INC-1", "checkout-service", models.SeverityHigh)
	incident.IncidentType = models.IncidentTypeResourceSaturation
	incident.Hypotheses = []models.Hypothesis{
		{Description: "Traffic increased beyond provisioned capacity", Confidence: 0.7},
	}
	incident.Experiments = []models.ExperimentResult{
		{HypothesisID: 0, Validated: true, Findings: "saturated across replicas", Confidence: 0.85},
	}
	incident.AppliedMitigation = &models.Mitigation{
		Type:        models.MitigationScaleUp,
		Description: "Scale up checkout-service from 3 to 6 replicas",
		RiskLevel:   "low",
	}
	incident.Metrics.TimeToMitigationSeconds = 42
	incident.AddTimelineEvent("scout", "Collected evidence", nil)
	incident.Close(incident.StartTime.Add(5 * time.Minute))

	recovery := RecoveryStatus{
		Recovered: true,
		Checks: map[string]RecoveryCheck{
			"latency": {Recovered: true, Baseline: 200, Current: 220},
			"cpu":     {Recovered: true, Current: 45},
		},
	}

	report := BuildReport(incident, recovery, "Traffic increased beyond provisioned capacity")

	for _, want := range []string{
		"# Incident Report: INC-1",
		"**Service:** checkout-service",
		"## Root Cause",
		"Traffic increased beyond provisioned capacity",
		"## Mitigation",
		"Scale up checkout-service from 3 to 6 replicas",
		"## Recovery",
		"All monitored metrics recovered",
		"latency: OK",
		"## Timeline",
		"Collected evidence",
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
}

func TestBuildReportWithoutRootCause(t *testing.T) {
	incident := models.NewIncident("INC-2", "svc", models.SeverityLow)

	report := BuildReport(incident, RecoveryStatus{Recovered: false}, "")
	if !strings.Contains(report, "No hypothesis was validated") {
		t.Fatalf("expected missing-root-cause note:\n%s", report)
	}
	if !strings.Contains(report, "One or more metrics did not recover") {
		t.Fatalf("expected failed-recovery note:\n%s", report)
	}
}
