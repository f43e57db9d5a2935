package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/miradorstack/mirador-autopilot/internal/guardrails"
	"github.com/miradorstack/mirador-autopilot/internal/metrics"
	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/state"
)

// ScoutReport is everything the evidence-gathering collaborator returns.
type ScoutReport struct {
	Evidence models.Evidence
	Runbook  string
	State    models.ServiceState
}

// EvidenceGatherer collects the diagnostic snapshot for an incident.
type EvidenceGatherer interface {
	Gather(ctx context.Context, incident *models.Incident, current, baseline map[string]float64) (ScoutReport, error)
}

// Classification is the triage verdict.
type Classification struct {
	Type       models.IncidentType
	Confidence float64
	Reasoning  string
}

// Classifier determines the incident type from evidence.
type Classifier interface {
	Classify(ctx context.Context, evidence models.Evidence, baseline map[string]float64, runbook string) (Classification, error)
}

// HypothesisGenerator proposes candidate root causes. Implementations must
// return at least one hypothesis; the pipeline does not care whether they are
// rule-based or model-backed.
type HypothesisGenerator interface {
	Generate(ctx context.Context, incidentType models.IncidentType, evidence models.Evidence, reasoning string) ([]models.Hypothesis, error)
}

// ExperimentRunner validates hypotheses, one result per hypothesis in order.
type ExperimentRunner interface {
	Validate(ctx context.Context, hypotheses []models.Hypothesis, evidence models.Evidence) ([]models.ExperimentResult, error)
}

// ApplyResult reports the outcome of executing a mitigation.
type ApplyResult struct {
	Success   bool
	AppliedAt time.Time
	Message   string
}

// MitigationApplier executes (or simulates) a mitigation.
type MitigationApplier interface {
	Apply(ctx context.Context, mitigation models.Mitigation, serviceName string) (ApplyResult, error)
}

// MetricsProber samples the service's metrics after a mitigation was applied.
type MetricsProber interface {
	Observe(ctx context.Context, serviceName string) (map[string]float64, error)
}

// StageError attributes a pipeline failure to the stage it occurred in.
type StageError struct {
	Stage models.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// stageStatus makes every exit path from a stage explicit.
type stageStatus int

const (
	statusOK stageStatus = iota
	statusBlocked
	statusPaused
)

// runState threads the shared context between stages of one pipeline run.
type runState struct {
	incident    *models.Incident
	current     map[string]float64
	baseline    map[string]float64
	report      ScoutReport
	reasoning   string
	rootCause   string
	autoApprove bool
}

// Pipeline orchestrates the incident response stages. Stages within a run
// execute strictly sequentially; concurrent runs for different incidents
// share only the store.
type Pipeline struct {
	logger       *slog.Logger
	store        *state.Store
	guardrails   *guardrails.Engine
	selector     *Selector
	verifier     *Verifier
	gatherer     EvidenceGatherer
	classifier   Classifier
	generator    HypothesisGenerator
	experimenter ExperimentRunner
	applier      MitigationApplier
	prober       MetricsProber

	mu      sync.Mutex
	pending map[string]*runState
}

// NewPipeline constructs the orchestrator. All collaborators are required
// except the prober; without one the postcheck reuses the pre-mitigation
// snapshot.
func NewPipeline(
	logger *slog.Logger,
	store *state.Store,
	guardrailEngine *guardrails.Engine,
	selector *Selector,
	verifier *Verifier,
	gatherer EvidenceGatherer,
	classifier Classifier,
	generator HypothesisGenerator,
	experimenter ExperimentRunner,
	applier MitigationApplier,
	prober MetricsProber,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if verifier == nil {
		verifier = NewVerifier()
	}
	return &Pipeline{
		logger:       logger,
		store:        store,
		guardrails:   guardrailEngine,
		selector:     selector,
		verifier:     verifier,
		gatherer:     gatherer,
		classifier:   classifier,
		generator:    generator,
		experimenter: experimenter,
		applier:      applier,
		prober:       prober,
		pending:      make(map[string]*runState),
	}
}

// Run executes the pipeline for one incident. It returns with the incident at
// a terminal stage, or at the executor stage when the mitigation was blocked
// by guardrails or is awaiting approval. Collaborator failures are not
// retried; they mark the incident failed and surface as a StageError.
func (p *Pipeline) Run(ctx context.Context, incident *models.Incident, current, baseline map[string]float64, autoApprove bool) (*models.Incident, error) {
	if incident == nil {
		return nil, fmt.Errorf("incident is required")
	}

	unlock := p.store.LockIncident(incident.ID)
	defer unlock()

	rs := &runState{
		incident:    incident,
		current:     current,
		baseline:    baseline,
		autoApprove: autoApprove,
	}

	p.logger.Info("pipeline started",
		slog.String("incident_id", incident.ID),
		slog.String("service", incident.ServiceName))

	stages := []struct {
		stage models.Stage
		fn    func(context.Context, *runState) error
	}{
		{models.StageScout, p.runScout},
		{models.StageTriage, p.runTriage},
		{models.StageHypothesis, p.runHypothesis},
		{models.StageExperiment, p.runExperiment},
	}
	for _, st := range stages {
		start := time.Now()
		err := st.fn(ctx, rs)
		metrics.ObserveStage(string(st.stage), time.Since(start))
		if err != nil {
			return rs.incident, p.fail(rs.incident, st.stage, err)
		}
		p.persist(rs.incident)
	}

	status, err := p.runExecutor(ctx, rs)
	switch {
	case err != nil:
		return rs.incident, p.fail(rs.incident, models.StageExecutor, err)
	case status == statusBlocked:
		metrics.ObserveRun(metrics.OutcomeBlocked)
		return rs.incident, nil
	case status == statusPaused:
		metrics.ObserveRun(metrics.OutcomePaused)
		p.logger.Info("pipeline paused awaiting approval", slog.String("incident_id", incident.ID))
		return rs.incident, nil
	}

	return rs.incident, nil
}

// ApproveMitigation resumes a paused run. It is the only legal way to leave
// the paused sub-state and is idempotent: once a mitigation has been applied,
// further calls return the stored result without reapplying.
func (p *Pipeline) ApproveMitigation(ctx context.Context, incidentID string) (*models.Incident, error) {
	unlock := p.store.LockIncident(incidentID)
	defer unlock()

	stored, err := p.store.Get(incidentID)
	if err != nil {
		return nil, err
	}
	if stored.AppliedMitigation != nil {
		return stored, nil
	}
	if stored.ProposedMitigation == nil {
		return nil, fmt.Errorf("incident %s has no proposed mitigation", incidentID)
	}

	p.mu.Lock()
	rs, ok := p.pending[incidentID]
	delete(p.pending, incidentID)
	p.mu.Unlock()
	if !ok {
		rs = p.rebuildRunState(stored)
	}

	metrics.ObserveApproval()
	rs.incident.MitigationApproved = true
	rs.incident.AddTimelineEvent("executor", "Mitigation approved", nil)

	if err := p.applyAndVerify(ctx, rs); err != nil {
		return rs.incident, p.fail(rs.incident, models.StageExecutor, err)
	}
	return rs.incident, nil
}

func (p *Pipeline) runScout(ctx context.Context, rs *runState) error {
	rs.incident.Stage = models.StageScout

	report, err := p.gatherer.Gather(ctx, rs.incident, rs.current, rs.baseline)
	if err != nil {
		return fmt.Errorf("gather evidence: %w", err)
	}
	rs.report = report

	evidence := report.Evidence
	rs.incident.Evidence = &evidence
	rs.incident.AddTimelineEvent("scout",
		fmt.Sprintf("Collected %d log lines and %d recent deploys", len(evidence.Logs), len(evidence.RecentDeploys)),
		map[string]string{
			"metrics_count": strconv.Itoa(len(evidence.Metrics)),
			"logs_count":    strconv.Itoa(len(evidence.Logs)),
		})
	return nil
}

func (p *Pipeline) runTriage(ctx context.Context, rs *runState) error {
	rs.incident.Stage = models.StageTriage

	classification, err := p.classifier.Classify(ctx, rs.report.Evidence, rs.baseline, rs.report.Runbook)
	if err != nil {
		return fmt.Errorf("classify incident: %w", err)
	}

	rs.incident.IncidentType = classification.Type
	rs.incident.Metrics.TriageConfidence = classification.Confidence
	rs.reasoning = classification.Reasoning
	rs.incident.AddTimelineEvent("triage", classification.Reasoning, map[string]string{
		"type":       string(classification.Type),
		"confidence": strconv.FormatFloat(classification.Confidence, 'f', 2, 64),
	})
	return nil
}

func (p *Pipeline) runHypothesis(ctx context.Context, rs *runState) error {
	rs.incident.Stage = models.StageHypothesis

	hypotheses, err := p.generator.Generate(ctx, rs.incident.IncidentType, rs.report.Evidence, rs.reasoning)
	if err != nil {
		return fmt.Errorf("generate hypotheses: %w", err)
	}
	if len(hypotheses) == 0 {
		return fmt.Errorf("hypothesis generator returned no hypotheses")
	}

	rs.incident.Hypotheses = hypotheses
	rs.incident.AddTimelineEvent("hypothesis",
		fmt.Sprintf("Generated %d hypotheses for investigation", len(hypotheses)),
		map[string]string{"count": strconv.Itoa(len(hypotheses))})
	return nil
}

func (p *Pipeline) runExperiment(ctx context.Context, rs *runState) error {
	rs.incident.Stage = models.StageExperiment

	results, err := p.experimenter.Validate(ctx, rs.incident.Hypotheses, rs.report.Evidence)
	if err != nil {
		return fmt.Errorf("validate hypotheses: %w", err)
	}
	if len(results) != len(rs.incident.Hypotheses) {
		return fmt.Errorf("experiment results mismatch: %d results for %d hypotheses",
			len(results), len(rs.incident.Hypotheses))
	}

	rs.incident.Experiments = results
	rs.rootCause = mostLikelyCause(rs.incident.Hypotheses, results)

	validated := 0
	for _, r := range results {
		if r.Validated {
			validated++
		}
	}
	rs.incident.AddTimelineEvent("experiment",
		fmt.Sprintf("Validated %d/%d hypotheses", validated, len(results)),
		map[string]string{"validated_count": strconv.Itoa(validated)})
	return nil
}

func (p *Pipeline) runExecutor(ctx context.Context, rs *runState) (stageStatus, error) {
	rs.incident.Stage = models.StageExecutor
	start := time.Now()
	defer func() { metrics.ObserveStage(string(models.StageExecutor), time.Since(start)) }()

	mitigation := p.selector.Propose(SelectionInput{
		IncidentType: rs.incident.IncidentType,
		RootCause:    rs.rootCause,
		ServiceName:  rs.incident.ServiceName,
		Evidence:     rs.report.Evidence,
		State:        rs.report.State,
		Runbook:      rs.report.Runbook,
		Metrics:      rs.current,
	})

	check := p.guardrails.Check(mitigation, rs.incident.Severity, rs.incident.ServiceName)
	if !check.Passed {
		metrics.ObserveGuardrailBlock()
		// The rejected action stays on the timeline for operator inspection;
		// ProposedMitigation stays nil so it can never be approved.
		data := map[string]string{
			"reason":                 check.Reason,
			"policy":                 check.PolicyViolated,
			"mitigation_type":        string(mitigation.Type),
			"mitigation_description": mitigation.Description,
		}
		for k, v := range mitigation.Parameters {
			data[k] = v
		}
		rs.incident.AddTimelineEvent("executor", "Mitigation blocked by guardrails", data)
		p.persist(rs.incident)
		p.logger.Warn("mitigation blocked",
			slog.String("incident_id", rs.incident.ID),
			slog.String("policy", check.PolicyViolated))
		return statusBlocked, nil
	}

	rs.incident.ProposedMitigation = mitigation

	if mitigation.RequiresApproval && !rs.autoApprove {
		rs.incident.AddTimelineEvent("executor", "Mitigation proposed, awaiting approval",
			map[string]string{"mitigation_type": string(mitigation.Type)})

		p.mu.Lock()
		p.pending[rs.incident.ID] = rs
		p.mu.Unlock()

		p.persist(rs.incident)
		return statusPaused, nil
	}

	if err := p.applyAndVerify(ctx, rs); err != nil {
		return statusOK, err
	}
	return statusOK, nil
}

// applyAndVerify executes the proposed mitigation and runs the postcheck.
// Both the main run and the approval resume path go through here; there is no
// second implementation of the apply/verify sequence.
func (p *Pipeline) applyAndVerify(ctx context.Context, rs *runState) error {
	mitigation := rs.incident.ProposedMitigation

	result, err := p.applier.Apply(ctx, *mitigation, rs.incident.ServiceName)
	if err != nil {
		return fmt.Errorf("apply mitigation: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("apply mitigation: %s", result.Message)
	}

	// The SLA clock starts at detection, not at approval.
	elapsed := time.Since(rs.incident.StartTime).Seconds()
	rs.incident.Metrics.TimeToMitigationSeconds = elapsed

	applied := *mitigation
	rs.incident.AppliedMitigation = &applied
	rs.incident.MitigationApproved = true
	rs.incident.AddTimelineEvent("executor", "Mitigation applied", map[string]string{
		"mitigation_type":    string(mitigation.Type),
		"applied_at":         result.AppliedAt.UTC().Format(time.RFC3339),
		"time_to_mitigation": fmt.Sprintf("%.1fs", elapsed),
	})
	p.persist(rs.incident)

	return p.runPostcheck(ctx, rs)
}

func (p *Pipeline) runPostcheck(ctx context.Context, rs *runState) error {
	rs.incident.Stage = models.StagePostcheck
	start := time.Now()
	defer func() { metrics.ObserveStage(string(models.StagePostcheck), time.Since(start)) }()

	current := rs.current
	if p.prober != nil {
		observed, err := p.prober.Observe(ctx, rs.incident.ServiceName)
		if err != nil {
			return fmt.Errorf("observe post-mitigation metrics: %w", err)
		}
		if len(observed) > 0 {
			current = observed
			rs.current = observed
		}
	}

	status := p.verifier.CheckRecovery(rs.baseline, current)
	rs.incident.MetricsRecovered = status.Recovered
	rs.incident.Metrics.MitigationSuccess = status.Recovered
	rs.incident.Summary = BuildReport(rs.incident, status, rs.rootCause)
	rs.incident.AddTimelineEvent("postcheck", "Recovery verification complete",
		map[string]string{"recovered": strconv.FormatBool(status.Recovered)})

	now := time.Now()
	if status.Recovered {
		rs.incident.Stage = models.StageCompleted
		rs.incident.Close(now)
		rs.incident.AddTimelineEvent("completed", "Incident pipeline completed", nil)
		metrics.ObserveRun(metrics.OutcomeCompleted)
	} else {
		rs.incident.Stage = models.StageFailed
		rs.incident.Close(now)
		rs.incident.AddTimelineEvent("failed", "Metrics did not recover after mitigation", nil)
		metrics.ObserveRun(metrics.OutcomeFailed)
	}
	p.persist(rs.incident)

	p.logger.Info("pipeline finished",
		slog.String("incident_id", rs.incident.ID),
		slog.String("stage", string(rs.incident.Stage)),
		slog.Bool("recovered", status.Recovered))
	return nil
}

// fail marks the incident terminally failed, recording the error on the
// timeline. The pipeline never leaves an incident in a non-terminal,
// non-paused state after an error.
func (p *Pipeline) fail(incident *models.Incident, stage models.Stage, err error) error {
	incident.Stage = models.StageFailed
	incident.AddTimelineEvent("failed", fmt.Sprintf("Pipeline failed: %v", err), nil)
	incident.Close(time.Now())
	p.persist(incident)
	metrics.ObserveRun(metrics.OutcomeFailed)

	p.logger.Error("pipeline failed",
		slog.String("incident_id", incident.ID),
		slog.String("stage", string(stage)),
		slog.Any("error", err))
	return &StageError{Stage: stage, Err: err}
}

func (p *Pipeline) persist(incident *models.Incident) {
	err := p.store.Update(incident.ID, incident)
	if errors.Is(err, state.ErrNotFound) {
		err = p.store.Create(incident)
	}
	if err != nil {
		p.logger.Warn("failed to persist incident",
			slog.String("incident_id", incident.ID),
			slog.Any("error", err))
	}
}

// rebuildRunState reconstructs enough context to resume an approval when the
// in-memory pause context is gone (e.g. after a restart with a durable store).
func (p *Pipeline) rebuildRunState(incident *models.Incident) *runState {
	rs := &runState{incident: incident}
	if incident.Evidence != nil {
		rs.report.Evidence = *incident.Evidence
		rs.current = incident.Evidence.Metrics
	}
	rs.rootCause = mostLikelyCause(incident.Hypotheses, incident.Experiments)
	return rs
}

// mostLikelyCause picks the highest-confidence validated result, falling back
// to the first result, and resolves the matching hypothesis description.
func mostLikelyCause(hypotheses []models.Hypothesis, results []models.ExperimentResult) string {
	if len(results) == 0 {
		return ""
	}

	best := results[0]
	found := false
	for _, r := range results {
		if r.Validated && (!found || r.Confidence > best.Confidence) {
			best = r
			found = true
		}
	}

	if best.HypothesisID >= 0 && best.HypothesisID < len(hypotheses) {
		return hypotheses[best.HypothesisID].Description
	}
	return ""
}
