// Package agents provides the rule-based collaborator implementations wired
// into the pipeline: evidence gathering, triage, hypothesis generation,
// experiment validation and mitigation application.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-autopilot/internal/engine"
	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// RunbookSource resolves the operational runbook for a service.
type RunbookSource interface {
	Fetch(ctx context.Context, serviceName string) (string, error)
}

// Scout assembles the diagnostic evidence snapshot for an incident. Logs,
// traces and deploy history are synthesized from the metric signals; in a
// live deployment these would come from the observability backends.
type Scout struct {
	logger   *slog.Logger
	runbooks RunbookSource
}

// NewScout constructs the evidence gatherer. The runbook source is optional;
// without one incidents proceed with an empty runbook.
func NewScout(logger *slog.Logger, runbooks RunbookSource) *Scout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scout{logger: logger, runbooks: runbooks}
}

// Gather builds the evidence snapshot from the current metrics.
func (s *Scout) Gather(ctx context.Context, incident *models.Incident, current, baseline map[string]float64) (engine.ScoutReport, error) {
	now := time.Now().UTC()

	metrics := make(map[string]float64, len(current))
	for k, v := range current {
		metrics[k] = v
	}

	evidence := models.Evidence{
		Metrics:       metrics,
		Logs:          synthesizeLogs(incident.ServiceName, current),
		RecentDeploys: recentDeploys(incident.ServiceName, now),
		Traces:        traceSamples(incident.ServiceName, current),
		Dependencies:  serviceDependencies(incident.ServiceName),
		CollectedAt:   now,
	}

	runbook := ""
	if s.runbooks != nil {
		fetched, err := s.runbooks.Fetch(ctx, incident.ServiceName)
		if err != nil {
			// A missing runbook degrades mitigation selection but must not
			// abort the investigation.
			s.logger.Warn("runbook fetch failed",
				slog.String("service", incident.ServiceName),
				slog.Any("error", err))
		} else {
			runbook = fetched
		}
	}

	state := models.ServiceState{
		CurrentReplicas: replicasFrom(current),
		FeatureFlags:    []string{"cache-integration", "async-checkout", "new-recommendation-engine"},
	}

	return engine.ScoutReport{Evidence: evidence, Runbook: runbook, State: state}, nil
}

func replicasFrom(metrics map[string]float64) int {
	if n, ok := metrics["current_replicas"]; ok && n >= 1 {
		return int(n)
	}
	return 3
}

func synthesizeLogs(service string, metrics map[string]float64) []string {
	logs := []string{
		fmt.Sprintf("INFO %s readiness probe passed", service),
	}
	if metrics["error_rate"] > 5 {
		logs = append(logs,
			"ERROR connection pool exhausted: timed out waiting for connection after 5000ms",
			"ERROR upstream returned 503 Service Unavailable",
		)
	}
	if metrics["latency_p99"] > 1000 {
		logs = append(logs,
			"WARN slow query detected: SELECT on orders took 2.31s",
			"WARN request exceeded latency SLO, shed to degraded path",
		)
	}
	if metrics["cpu_usage"] > 85 || metrics["memory_usage"] > 85 {
		logs = append(logs,
			"WARN memory usage above threshold, GC pause times increasing",
			"WARN CPU throttling detected on 2 of 3 pods",
		)
	}
	if queue := metrics["queue_depth"]; queue > 1000 {
		logs = append(logs,
			fmt.Sprintf("WARN consumer lag growing, queue depth at %.0f", queue),
		)
	}
	return logs
}

func recentDeploys(service string, now time.Time) []models.Deploy {
	return []models.Deploy{
		{
			Service:    service,
			Version:    "v2.4.1",
			DeployedAt: now.Add(-25 * time.Minute),
			DeployedBy: "deploy-bot",
			Commit:     "8f3ac21",
		},
		{
			Service:    service,
			Version:    "v2.4.0",
			DeployedAt: now.Add(-26 * time.Hour),
			DeployedBy: "deploy-bot",
			Commit:     "b91d4e7",
		},
	}
}

func traceSamples(service string, metrics map[string]float64) []string {
	if metrics["latency_p99"] <= 1000 {
		return nil
	}
	return []string{
		fmt.Sprintf("trace 7c41d9: %s -> postgres-primary 1840ms (87%% of span)", service),
		fmt.Sprintf("trace a02f5e: %s -> redis-cache MISS, fallback to db 920ms", service),
	}
}

func serviceDependencies(service string) []string {
	deps := []string{"postgres-primary", "redis-cache", "auth-service"}
	return append(deps, service+"-worker")
}
