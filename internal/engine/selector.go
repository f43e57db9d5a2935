package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// SelectionInput carries everything the mitigation selector may consult.
type SelectionInput struct {
	IncidentType models.IncidentType
	RootCause    string
	ServiceName  string
	Evidence     models.Evidence
	State        models.ServiceState
	Runbook      string
	Metrics      map[string]float64
}

// ScaleLimits are the guardrail caps applied to computed scale targets.
type ScaleLimits struct {
	MaxReplicas int
	MaxFactor   int
}

// Selector maps a diagnosed incident to one concrete mitigation. Rules are an
// ordered list of predicate+builder pairs; the first rule whose predicate
// matches and whose builder succeeds wins. A builder may decline (e.g. a
// rollback with no resolvable previous version), in which case evaluation
// falls through to the next rule. The final rule always produces.
type Selector struct {
	limits         ScaleLimits
	maxUnavailable int
	rules          []selectionRule
}

type selectionRule struct {
	name  string
	match func(SelectionInput) bool
	build func(*Selector, SelectionInput) (*models.Mitigation, bool)
}

// NewSelector constructs a selector bound to the supplied scale limits.
func NewSelector(limits ScaleLimits, maxUnavailable int) *Selector {
	if limits.MaxReplicas <= 0 {
		limits.MaxReplicas = 10
	}
	if limits.MaxFactor <= 0 {
		limits.MaxFactor = 3
	}
	if maxUnavailable <= 0 {
		maxUnavailable = 1
	}
	s := &Selector{limits: limits, maxUnavailable: maxUnavailable}
	s.rules = []selectionRule{
		{name: "deployment_regression", match: matchDeployRegression, build: (*Selector).buildRollback},
		{name: "resource_saturation", match: matchResourceSaturation, build: (*Selector).buildScaleUp},
		{name: "dependency_failure", match: matchDependencyFailure, build: (*Selector).buildFlagDisable},
		{name: "error_rate", match: matchErrorRate, build: (*Selector).buildRestart},
		{name: "default", match: func(SelectionInput) bool { return true }, build: (*Selector).buildDefaultScaleUp},
	}
	return s
}

// Propose evaluates the rule list top to bottom and returns the first
// mitigation produced. The default rule guarantees a result.
func (s *Selector) Propose(input SelectionInput) *models.Mitigation {
	for _, rule := range s.rules {
		if !rule.match(input) {
			continue
		}
		if mitigation, ok := rule.build(s, input); ok {
			return mitigation
		}
	}
	// Unreachable: the default rule always builds.
	mitigation, _ := s.buildDefaultScaleUp(SelectionInput{})
	return mitigation
}

func matchDeployRegression(in SelectionInput) bool {
	cause := strings.ToLower(in.RootCause)
	for _, kw := range []string{"deploy", "deployment", "rollout", "release"} {
		if strings.Contains(cause, kw) {
			return true
		}
	}
	runbook := strings.ToLower(in.Runbook)
	if (strings.Contains(runbook, "rollback") || strings.Contains(runbook, "roll back")) &&
		len(in.Evidence.RecentDeploys) > 0 {
		return true
	}
	return false
}

func (s *Selector) buildRollback(in SelectionInput) (*models.Mitigation, bool) {
	deploys := in.Evidence.RecentDeploys
	if len(deploys) < 2 {
		// No verifiable previous version; decline so a safer rule applies.
		return nil, false
	}
	current := deploys[0].Version
	previous := deploys[1].Version
	if previous == "" {
		return nil, false
	}

	m := &models.Mitigation{
		Type:        models.MitigationRollback,
		Description: fmt.Sprintf("Rollback %s from %s to %s", in.ServiceName, current, previous),
		Parameters: map[string]string{
			"current_version": current,
			"target_version":  previous,
		},
		Reversible:      true,
		EstimatedImpact: "Service will return to previous stable state",
		RiskLevel:       "medium",
	}
	if strings.Contains(strings.ToLower(in.ServiceName), "prod") {
		m.RequiresApproval = true
	}
	return m, true
}

func matchResourceSaturation(in SelectionInput) bool {
	if in.IncidentType == models.IncidentTypeResourceSaturation {
		return true
	}
	cause := strings.ToLower(in.RootCause)
	if strings.Contains(cause, "resource") || strings.Contains(cause, "memory") {
		return true
	}
	runbook := strings.ToLower(in.Runbook)
	for _, kw := range []string{"scale", "replica", "autoscal"} {
		if strings.Contains(runbook, kw) {
			return true
		}
	}
	return false
}

func (s *Selector) buildScaleUp(in SelectionInput) (*models.Mitigation, bool) {
	current := currentReplicas(in.State)
	target := s.scaleTarget(current, 2, in.Metrics)
	return &models.Mitigation{
		Type:        models.MitigationScaleUp,
		Description: fmt.Sprintf("Scale up %s from %d to %d replicas", in.ServiceName, current, target),
		Parameters: map[string]string{
			"current_replicas": strconv.Itoa(current),
			"target_replicas":  strconv.Itoa(target),
		},
		Reversible:      true,
		EstimatedImpact: fmt.Sprintf("Adds %d replicas to absorb load", target-current),
		RiskLevel:       "low",
	}, true
}

func matchDependencyFailure(in SelectionInput) bool {
	cause := strings.ToLower(in.RootCause)
	if strings.Contains(cause, "dependency") || strings.Contains(cause, "downstream") {
		return true
	}
	runbook := strings.ToLower(in.Runbook)
	for _, kw := range []string{"feature flag", "disable", "degrade"} {
		if strings.Contains(runbook, kw) {
			return true
		}
	}
	return false
}

func (s *Selector) buildFlagDisable(in SelectionInput) (*models.Mitigation, bool) {
	flag := chooseFeatureFlag(in)
	return &models.Mitigation{
		Type:        models.MitigationFeatureFlagDisable,
		Description: fmt.Sprintf("Disable feature %q to cut the failing dependency path", flag),
		Parameters: map[string]string{
			"feature":  flag,
			"fallback": "direct-db-access",
		},
		Reversible:      true,
		EstimatedImpact: "Slower fallback path, but reduced error volume",
		RiskLevel:       "low",
	}, true
}

func chooseFeatureFlag(in SelectionInput) string {
	runbook := strings.ToLower(in.Runbook)
	if strings.Contains(runbook, "cache") || strings.Contains(runbook, "redis") {
		for _, flag := range in.State.FeatureFlags {
			lower := strings.ToLower(flag)
			if strings.Contains(lower, "cache") || strings.Contains(lower, "redis") {
				return flag
			}
		}
	}
	if len(in.State.FeatureFlags) > 0 {
		return in.State.FeatureFlags[0]
	}
	return "cache-integration"
}

func matchErrorRate(in SelectionInput) bool {
	return in.IncidentType == models.IncidentTypeErrorRate
}

func (s *Selector) buildRestart(in SelectionInput) (*models.Mitigation, bool) {
	return &models.Mitigation{
		Type:        models.MitigationRestartService,
		Description: fmt.Sprintf("Rolling restart of %s to clear connection state", in.ServiceName),
		Parameters: map[string]string{
			"strategy":        "rolling",
			"max_unavailable": strconv.Itoa(s.maxUnavailable),
		},
		// Modeled reversible so the hard reversibility guardrail gates on
		// approval rather than rejecting restarts outright.
		Reversible:      true,
		EstimatedImpact: "Brief interruption per pod while connection pools drain",
		RiskLevel:       "medium",
	}, true
}

func (s *Selector) buildDefaultScaleUp(in SelectionInput) (*models.Mitigation, bool) {
	current := currentReplicas(in.State)
	target := s.scaleTarget(current, 1, in.Metrics)
	return &models.Mitigation{
		Type:        models.MitigationScaleUp,
		Description: fmt.Sprintf("Conservative scale-up of %s from %d to %d replicas", in.ServiceName, current, target),
		Parameters: map[string]string{
			"current_replicas": strconv.Itoa(current),
			"target_replicas":  strconv.Itoa(target),
		},
		Reversible:      true,
		EstimatedImpact: "Adds capacity while investigation continues",
		RiskLevel:       "low",
	}, true
}

// scaleTarget computes the replica target: the base bump is escalated by
// pressure signals (each tier can only raise it), then the result is clamped
// to the guardrail caps and floored so scaling always adds at least one
// replica.
func (s *Selector) scaleTarget(current, base int, metrics map[string]float64) int {
	bump := base

	raise := func(to int) {
		if bump < to {
			bump = to
		}
	}

	cpu := metrics["cpu_usage"]
	mem := metrics["memory_usage"]
	switch {
	case cpu > 90 || mem > 90:
		raise(3)
	case cpu > 85 || mem > 85:
		raise(2)
	}

	switch p99 := metrics["latency_p99"]; {
	case p99 > 3000:
		raise(3)
	case p99 > 2000:
		raise(2)
	}

	switch queue := metrics["queue_depth"]; {
	case queue > 2000:
		raise(3)
	case queue > 1000:
		raise(2)
	}

	if metrics["error_rate"] > 5 {
		raise(2)
	}

	target := current + bump
	if target > s.limits.MaxReplicas {
		target = s.limits.MaxReplicas
	}
	if limit := current * s.limits.MaxFactor; target > limit {
		target = limit
	}
	if target < current+1 {
		target = current + 1
	}
	return target
}

func currentReplicas(state models.ServiceState) int {
	if state.CurrentReplicas > 0 {
		return state.CurrentReplicas
	}
	return 1
}
