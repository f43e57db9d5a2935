package guardrails

import (
	"testing"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

func scaleUp(target string) *models.Mitigation {
	return &models.Mitigation{
		Type:       models.MitigationScaleUp,
		Reversible: true,
		Parameters: map[string]string{"target_replicas": target},
	}
}

func TestCheckRejectsIrreversibleMitigation(t *testing.T) {
	e := NewEngine(DefaultConfig())

	check := e.Check(&models.Mitigation{
		Type:       models.MitigationTrafficShed,
		Reversible: false,
	}, models.SeverityCritical, "checkout-service")

	if check.Passed {
		t.Fatalf("irreversible mitigation must be rejected")
	}
	if check.PolicyViolated != "reversibility_required" {
		t.Fatalf("expected reversibility_required, got %s", check.PolicyViolated)
	}
}

func TestCheckRejectsExcessiveScaleTarget(t *testing.T) {
	e := NewEngine(DefaultConfig())

	check := e.Check(scaleUp("11"), models.SeverityHigh, "checkout-service")
	if check.Passed {
		t.Fatalf("target above max replicas must be rejected")
	}
	if check.PolicyViolated != "max_scale_replicas" {
		t.Fatalf("expected max_scale_replicas, got %s", check.PolicyViolated)
	}
}

func TestCheckSeverityNeverBypassesPolicy(t *testing.T) {
	e := NewEngine(DefaultConfig())

	for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityLow} {
		check := e.Check(scaleUp("11"), sev, "checkout-service")
		if check.Passed {
			t.Fatalf("severity %s bypassed the scale cap", sev)
		}
	}
}

func TestCheckFlagsApprovalForPolicyTypes(t *testing.T) {
	e := NewEngine(DefaultConfig())

	m := &models.Mitigation{Type: models.MitigationRollback, Reversible: true}
	check := e.Check(m, models.SeverityHigh, "checkout-service")

	if !check.Passed {
		t.Fatalf("rollback should pass with an approval requirement, got %+v", check)
	}
	if !m.RequiresApproval {
		t.Fatalf("rollback must be flagged for approval")
	}
}

func TestCheckFlagsApprovalForProductionService(t *testing.T) {
	e := NewEngine(DefaultConfig())

	m := scaleUp("5")
	check := e.Check(m, models.SeverityMedium, "payments-prod")

	if !check.Passed {
		t.Fatalf("expected pass, got %+v", check)
	}
	if !m.RequiresApproval {
		t.Fatalf("production service must require approval")
	}
}

func TestCheckPassesCleanMitigation(t *testing.T) {
	e := NewEngine(DefaultConfig())

	m := scaleUp("5")
	check := e.Check(m, models.SeverityMedium, "checkout-service")

	if !check.Passed {
		t.Fatalf("expected pass, got %+v", check)
	}
	if m.RequiresApproval {
		t.Fatalf("scale_up on a non-production service needs no approval")
	}
}

func TestCanAutoExecute(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowAutoMitigation = true
	e := NewEngine(cfg)

	if !e.CanAutoExecute(scaleUp("5"), models.SeverityHigh) {
		t.Fatalf("scale_up should auto-execute when allowed")
	}
	if e.CanAutoExecute(&models.Mitigation{Type: models.MitigationRollback, Reversible: true}, models.SeverityHigh) {
		t.Fatalf("rollback must never auto-execute")
	}

	flagged := scaleUp("5")
	flagged.RequiresApproval = true
	if e.CanAutoExecute(flagged, models.SeverityHigh) {
		t.Fatalf("approval-flagged mitigation must not auto-execute")
	}

	disabled := NewEngine(DefaultConfig())
	if disabled.CanAutoExecute(scaleUp("5"), models.SeverityHigh) {
		t.Fatalf("auto execution must be off by default")
	}
}

func TestNewEngineFillsDefaults(t *testing.T) {
	e := NewEngine(Config{})

	cfg := e.Config()
	if cfg.MaxScaleReplicas != 10 || cfg.MaxScaleFactor != 3 {
		t.Fatalf("zero limits must fall back to defaults, got %+v", cfg)
	}
	if len(cfg.RequireApprovalFor) == 0 {
		t.Fatalf("approval list must fall back to defaults")
	}
	// Booleans are taken verbatim: a zero-value Config opts out of the
	// production approval policy, so callers must start from DefaultConfig.
	if cfg.ProductionRequiresApproval || cfg.AllowAutoMitigation {
		t.Fatalf("boolean policies must not be backfilled, got %+v", cfg)
	}

	m := scaleUp("5")
	if check := e.Check(m, models.SeverityMedium, "payments-prod"); !check.Passed {
		t.Fatalf("expected pass, got %+v", check)
	}
	if m.RequiresApproval {
		t.Fatalf("production approval is off for a zero-value config")
	}
}
