package models

import "time"

// IncidentType enumerates the anomaly classes the pipeline can diagnose.
type IncidentType string

const (
	IncidentTypeLatencySpike       IncidentType = "latency_spike"
	IncidentTypeErrorRate          IncidentType = "error_rate_increase"
	IncidentTypeResourceSaturation IncidentType = "resource_saturation"
	IncidentTypeQueueDepth         IncidentType = "queue_depth_growth"
	IncidentTypeUnknown            IncidentType = "unknown"
)

// Severity captures impact levels.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Stage identifies a position in the incident pipeline.
type Stage string

const (
	StageDetection  Stage = "detection"
	StageScout      Stage = "scout"
	StageTriage     Stage = "triage"
	StageHypothesis Stage = "hypothesis"
	StageExperiment Stage = "experiment"
	StageExecutor   Stage = "executor"
	StagePostcheck  Stage = "postcheck"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// Terminal reports whether no further transition may leave the stage.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// MitigationType enumerates the remediation actions available to the executor.
type MitigationType string

const (
	MitigationRollback           MitigationType = "rollback"
	MitigationScaleUp            MitigationType = "scale_up"
	MitigationScaleDown          MitigationType = "scale_down"
	MitigationFeatureFlagDisable MitigationType = "feature_flag_disable"
	MitigationTrafficShed        MitigationType = "traffic_shed"
	MitigationRestartService     MitigationType = "restart_service"
)

// Deploy records a single deployment of the affected service.
type Deploy struct {
	Service    string    `json:"service"`
	Version    string    `json:"version"`
	DeployedAt time.Time `json:"deployed_at"`
	DeployedBy string    `json:"deployed_by"`
	Commit     string    `json:"commit"`
}

// Evidence is the diagnostic snapshot assembled by the scout collaborator.
// It is produced once per incident and read-only afterwards.
type Evidence struct {
	Metrics       map[string]float64 `json:"metrics"`
	Logs          []string           `json:"logs"`
	RecentDeploys []Deploy           `json:"recent_deploys"`
	Traces        []string           `json:"traces"`
	Dependencies  []string           `json:"dependencies"`
	CollectedAt   time.Time          `json:"collected_at"`
}

// ServiceState describes the live deployment shape of the affected service,
// used by the mitigation selector to parameterize actions.
type ServiceState struct {
	CurrentReplicas int      `json:"current_replicas"`
	FeatureFlags    []string `json:"feature_flags"`
}

// Hypothesis is a candidate root-cause explanation awaiting validation.
type Hypothesis struct {
	Description        string   `json:"description"`
	Confidence         float64  `json:"confidence"`
	EvidenceNeeded     []string `json:"evidence_needed"`
	ValidationCriteria string   `json:"validation_criteria"`
}

// ExperimentResult records the validation outcome for one hypothesis.
// HypothesisID is the index into the incident's hypothesis list.
type ExperimentResult struct {
	HypothesisID int     `json:"hypothesis_id"`
	Validated    bool    `json:"validated"`
	Findings     string  `json:"findings"`
	Confidence   float64 `json:"confidence"`
}

// Mitigation is a concrete remedial action with risk metadata. RequiresApproval
// may be flipped by the guardrail engine after construction.
type Mitigation struct {
	Type             MitigationType    `json:"type"`
	Description      string            `json:"description"`
	Parameters       map[string]string `json:"parameters"`
	Reversible       bool              `json:"reversible"`
	EstimatedImpact  string            `json:"estimated_impact"`
	RiskLevel        string            `json:"risk_level"`
	RequiresApproval bool              `json:"requires_approval"`
}

// GuardrailCheck is the verdict of a safety policy evaluation.
type GuardrailCheck struct {
	Passed         bool   `json:"passed"`
	Reason         string `json:"reason"`
	PolicyViolated string `json:"policy_violated,omitempty"`
}

// IncidentMetrics tracks operational measurements for a single incident.
type IncidentMetrics struct {
	DetectionLatencySeconds float64 `json:"detection_latency_seconds"`
	TriageConfidence        float64 `json:"triage_confidence"`
	TimeToMitigationSeconds float64 `json:"time_to_mitigation_seconds"`
	MitigationSuccess       bool    `json:"mitigation_success"`
}

// TimelineEvent is one append-only audit entry on an incident.
type TimelineEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Stage     string            `json:"stage"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
}

// Incident is the aggregate root tracked across the pipeline stages.
type Incident struct {
	ID          string     `json:"id"`
	ServiceName string     `json:"service_name"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`

	Stage        Stage        `json:"stage"`
	Severity     Severity     `json:"severity"`
	IncidentType IncidentType `json:"incident_type"`

	Evidence           *Evidence          `json:"evidence,omitempty"`
	Hypotheses         []Hypothesis       `json:"hypotheses"`
	Experiments        []ExperimentResult `json:"experiments"`
	ProposedMitigation *Mitigation        `json:"proposed_mitigation,omitempty"`
	AppliedMitigation  *Mitigation        `json:"applied_mitigation,omitempty"`

	MitigationApproved bool   `json:"mitigation_approved"`
	MetricsRecovered   bool   `json:"metrics_recovered"`
	Summary            string `json:"incident_summary"`

	Metrics IncidentMetrics `json:"metrics"`

	Timeline []TimelineEvent `json:"timeline"`
}

// NewIncident constructs an incident at the detection stage.
func NewIncident(id, serviceName string, severity Severity) *Incident {
	return &Incident{
		ID:           id,
		ServiceName:  serviceName,
		StartTime:    time.Now().UTC(),
		Stage:        StageDetection,
		Severity:     severity,
		IncidentType: IncidentTypeUnknown,
	}
}

// AddTimelineEvent appends an audit entry. Entries are never removed or reordered.
func (i *Incident) AddTimelineEvent(stage, message string, data map[string]string) {
	i.Timeline = append(i.Timeline, TimelineEvent{
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		Message:   message,
		Data:      data,
	})
}

// Close sets the end time exactly once.
func (i *Incident) Close(at time.Time) {
	if i.EndTime == nil {
		t := at.UTC()
		i.EndTime = &t
	}
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (i *Incident) Clone() *Incident {
	cp := *i
	if i.EndTime != nil {
		t := *i.EndTime
		cp.EndTime = &t
	}
	if i.Evidence != nil {
		ev := *i.Evidence
		ev.Metrics = copyFloatMap(i.Evidence.Metrics)
		ev.Logs = append([]string(nil), i.Evidence.Logs...)
		ev.RecentDeploys = append([]Deploy(nil), i.Evidence.RecentDeploys...)
		ev.Traces = append([]string(nil), i.Evidence.Traces...)
		ev.Dependencies = append([]string(nil), i.Evidence.Dependencies...)
		cp.Evidence = &ev
	}
	cp.Hypotheses = append([]Hypothesis(nil), i.Hypotheses...)
	cp.Experiments = append([]ExperimentResult(nil), i.Experiments...)
	cp.ProposedMitigation = cloneMitigation(i.ProposedMitigation)
	cp.AppliedMitigation = cloneMitigation(i.AppliedMitigation)
	cp.Timeline = append([]TimelineEvent(nil), i.Timeline...)
	return &cp
}

func cloneMitigation(m *Mitigation) *Mitigation {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Parameters != nil {
		cp.Parameters = make(map[string]string, len(m.Parameters))
		for k, v := range m.Parameters {
			cp.Parameters[k] = v
		}
	}
	return &cp
}

func copyFloatMap(src map[string]float64) map[string]float64 {
	if src == nil {
		return nil
	}
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
