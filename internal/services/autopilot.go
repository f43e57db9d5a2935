package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-autopilot/internal/engine"
	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/simulator"
	"github.com/miradorstack/mirador-autopilot/internal/state"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

// ErrNotFound is returned for lookups of unknown incidents.
var ErrNotFound = state.ErrNotFound

// Statistics extends the store aggregates with run latency percentiles.
type Statistics struct {
	state.Statistics
	RunLatencyP50 time.Duration `json:"run_latency_p50"`
	RunLatencyP95 time.Duration `json:"run_latency_p95"`
}

// Autopilot is the service facade over the store, the pipeline and the
// scenario simulator.
type Autopilot struct {
	logger      *slog.Logger
	store       *state.Store
	pipeline    *engine.Pipeline
	latencies   *utils.LatencyTracker
	autoApprove bool
}

// NewAutopilot constructs the service facade.
func NewAutopilot(logger *slog.Logger, store *state.Store, pipeline *engine.Pipeline, autoApprove bool) *Autopilot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Autopilot{
		logger:      logger,
		store:       store,
		pipeline:    pipeline,
		latencies:   utils.NewLatencyTracker(1024),
		autoApprove: autoApprove,
	}
}

// Simulate generates a scenario incident and runs the pipeline on it. The
// incident is returned in whatever state the run left it, including failed;
// a run error is only surfaced when no incident could be produced at all.
func (a *Autopilot) Simulate(ctx context.Context, scenario simulator.Scenario, serviceName string) (*models.Incident, error) {
	generated, err := simulator.Generate(scenario, serviceName)
	if err != nil {
		return nil, err
	}
	if err := a.store.Create(generated.Incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	start := time.Now()
	incident, runErr := a.pipeline.Run(ctx, generated.Incident, generated.Current, generated.Baseline, a.autoApprove)
	duration := time.Since(start)
	a.latencies.Observe(duration)

	if runErr != nil {
		var stageErr *engine.StageError
		if errors.As(runErr, &stageErr) {
			// The incident carries the failure on its timeline; callers get
			// the terminal incident rather than an opaque error.
			return incident, nil
		}
		return incident, runErr
	}
	return incident, nil
}

// Approve resumes a paused incident by approving its proposed mitigation.
func (a *Autopilot) Approve(ctx context.Context, incidentID string) (*models.Incident, error) {
	incident, err := a.pipeline.ApproveMitigation(ctx, incidentID)
	if err != nil {
		var stageErr *engine.StageError
		if errors.As(err, &stageErr) {
			return incident, nil
		}
		return nil, err
	}
	return incident, nil
}

// Get returns one incident by ID.
func (a *Autopilot) Get(incidentID string) (*models.Incident, error) {
	return a.store.Get(incidentID)
}

// List returns the most recent incidents, newest first.
func (a *Autopilot) List(limit int) []*models.Incident {
	return a.store.List(limit)
}

// Active returns incidents that have not reached a terminal stage.
func (a *Autopilot) Active() []*models.Incident {
	return a.store.Active()
}

// Stats aggregates incident statistics and pipeline run latencies.
func (a *Autopilot) Stats() Statistics {
	return Statistics{
		Statistics:    a.store.Statistics(),
		RunLatencyP50: a.latencies.Percentile(50),
		RunLatencyP95: a.latencies.Percentile(95),
	}
}
