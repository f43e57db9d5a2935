package agents

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

type fakeRunbooks struct {
	runbook string
	err     error
}

func (f fakeRunbooks) Fetch(ctx context.Context, serviceName string) (string, error) {
	return f.runbook, f.err
}

func TestGatherBuildsEvidence(t *testing.T) {
	s := NewScout(nil, fakeRunbooks{runbook: "scale up replicas"})

	incident := models.NewIncident("INC-1", "checkout-service", models.SeverityHigh)
	current := map[string]float64{
		"error_rate":  8.5,
		"latency_p99": 1500,
		"queue_depth": 1200,
	}

	report, err := s.Gather(context.Background(), incident, current, nil)
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	if report.Evidence.Metrics["error_rate"] != 8.5 {
		t.Fatalf("metrics not carried into evidence")
	}
	if report.Runbook != "scale up replicas" {
		t.Fatalf("runbook not fetched, got %q", report.Runbook)
	}
	if len(report.Evidence.RecentDeploys) != 2 {
		t.Fatalf("expected deploy history, got %d entries", len(report.Evidence.RecentDeploys))
	}
	if report.Evidence.CollectedAt.IsZero() {
		t.Fatalf("collection timestamp missing")
	}

	joined := strings.Join(report.Evidence.Logs, "\n")
	for _, want := range []string{"503", "slow query", "queue depth"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected log signal %q in %q", want, joined)
		}
	}
}

func TestGatherCopiesMetrics(t *testing.T) {
	s := NewScout(nil, nil)

	incident := models.NewIncident("INC-1", "checkout-service", models.SeverityLow)
	current := map[string]float64{"cpu_usage": 50}

	report, err := s.Gather(context.Background(), incident, current, nil)
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	current["cpu_usage"] = 99
	if report.Evidence.Metrics["cpu_usage"] != 50 {
		t.Fatalf("evidence shares the caller's metric map")
	}
}

func TestGatherToleratesRunbookFailure(t *testing.T) {
	s := NewScout(nil, fakeRunbooks{err: fmt.Errorf("docs service down")})

	incident := models.NewIncident("INC-1", "checkout-service", models.SeverityLow)
	report, err := s.Gather(context.Background(), incident, nil, nil)
	if err != nil {
		t.Fatalf("runbook failure must not abort gathering: %v", err)
	}
	if report.Runbook != "" {
		t.Fatalf("expected empty runbook, got %q", report.Runbook)
	}
}

func TestGatherReadsReplicasFromMetrics(t *testing.T) {
	s := NewScout(nil, nil)

	incident := models.NewIncident("INC-1", "checkout-service", models.SeverityLow)
	report, err := s.Gather(context.Background(), incident, map[string]float64{"current_replicas": 5}, nil)
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if report.State.CurrentReplicas != 5 {
		t.Fatalf("expected 5 replicas, got %d", report.State.CurrentReplicas)
	}

	report, _ = s.Gather(context.Background(), incident, nil, nil)
	if report.State.CurrentReplicas != 3 {
		t.Fatalf("expected default 3 replicas, got %d", report.State.CurrentReplicas)
	}
}
