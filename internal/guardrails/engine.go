package guardrails

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// Config holds the safety policies enforced on proposed mitigations.
type Config struct {
	MaxScaleReplicas           int      `yaml:"maxScaleReplicas"`
	MaxScaleFactor             int      `yaml:"maxScaleFactor"`
	RequireApprovalFor         []string `yaml:"requireApprovalFor"`
	AllowAutoMitigation        bool     `yaml:"allowAutoMitigation"`
	ProductionRequiresApproval bool     `yaml:"productionRequiresApproval"`
	RollbackWindowHours        int      `yaml:"rollbackWindowHours"`
}

// DefaultConfig returns the default safety policies.
func DefaultConfig() Config {
	return Config{
		MaxScaleReplicas:           10,
		MaxScaleFactor:             3,
		RequireApprovalFor:         []string{"rollback", "scale_down", "restart_service"},
		AllowAutoMitigation:        false,
		ProductionRequiresApproval: true,
		RollbackWindowHours:        24,
	}
}

// Engine evaluates mitigations against safety policy. Stateless apart from its
// configuration.
type Engine struct {
	cfg Config
}

// NewEngine constructs a guardrail engine, falling back to defaults for
// unset numeric limits. Boolean fields are taken as given: a zero-value
// Config disables ProductionRequiresApproval, so callers wanting the
// default policies must start from DefaultConfig and override from there
// (config.Load does this).
func NewEngine(cfg Config) *Engine {
	defaults := DefaultConfig()
	if cfg.MaxScaleReplicas <= 0 {
		cfg.MaxScaleReplicas = defaults.MaxScaleReplicas
	}
	if cfg.MaxScaleFactor <= 0 {
		cfg.MaxScaleFactor = defaults.MaxScaleFactor
	}
	if cfg.RequireApprovalFor == nil {
		cfg.RequireApprovalFor = defaults.RequireApprovalFor
	}
	if cfg.RollbackWindowHours <= 0 {
		cfg.RollbackWindowHours = defaults.RollbackWindowHours
	}
	return &Engine{cfg: cfg}
}

// Config exposes the active policy limits; the mitigation selector uses the
// scale caps when computing targets.
func (e *Engine) Config() Config {
	return e.cfg
}

// Check evaluates the mitigation against policy. Rules run in order and the
// first hard failure short-circuits. The requires_approval mutation on the
// mitigation is observable regardless of the verdict. Severity never bypasses
// a safety check; it only influences approval routing upstream.
func (e *Engine) Check(mitigation *models.Mitigation, severity models.Severity, serviceName string) models.GuardrailCheck {
	if !mitigation.Reversible {
		return models.GuardrailCheck{
			Passed:         false,
			Reason:         "Non-reversible mitigations are not allowed",
			PolicyViolated: "reversibility_required",
		}
	}

	if e.approvalRequiredFor(mitigation.Type) && !e.cfg.AllowAutoMitigation {
		mitigation.RequiresApproval = true
	}

	if mitigation.Type == models.MitigationScaleUp {
		target := paramInt(mitigation.Parameters, "target_replicas")
		if target > e.cfg.MaxScaleReplicas {
			return models.GuardrailCheck{
				Passed:         false,
				Reason:         fmt.Sprintf("Target replicas %d exceeds max %d", target, e.cfg.MaxScaleReplicas),
				PolicyViolated: "max_scale_replicas",
			}
		}
	}

	if strings.Contains(strings.ToLower(serviceName), "prod") && e.cfg.ProductionRequiresApproval {
		mitigation.RequiresApproval = true
	}

	return models.GuardrailCheck{
		Passed: true,
		Reason: "All guardrail checks passed",
	}
}

// CanAutoExecute reports whether the mitigation may run without human
// approval. Only low-risk action types qualify, and only when auto mitigation
// is globally enabled.
func (e *Engine) CanAutoExecute(mitigation *models.Mitigation, severity models.Severity) bool {
	if !e.cfg.AllowAutoMitigation {
		return false
	}
	if mitigation.RequiresApproval {
		return false
	}
	switch mitigation.Type {
	case models.MitigationScaleUp, models.MitigationFeatureFlagDisable:
		return true
	default:
		return false
	}
}

func (e *Engine) approvalRequiredFor(t models.MitigationType) bool {
	for _, name := range e.cfg.RequireApprovalFor {
		if strings.EqualFold(name, string(t)) {
			return true
		}
	}
	return false
}

func paramInt(params map[string]string, key string) int {
	if params == nil {
		return 0
	}
	n, err := strconv.Atoi(params[key])
	if err != nil {
		return 0
	}
	return n
}
