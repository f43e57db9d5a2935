package state

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

func TestCreateAndGetReturnsCopy(t *testing.T) {
	s := NewStore()

	incident := models.NewIncident("INC-1", "checkout-service", models.SeverityHigh)
	if err := s.Create(incident); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := s.Get("INC-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	got.ServiceName = "mutated"

	again, _ := s.Get("INC-1")
	if again.ServiceName != "checkout-service" {
		t.Fatalf("store handed out a shared reference")
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	s := NewStore()

	if err := s.Create(models.NewIncident("INC-1", "a", models.SeverityLow)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := s.Create(models.NewIncident("INC-1", "b", models.SeverityLow)); err == nil {
		t.Fatalf("duplicate ID must be rejected")
	}
}

func TestGetUnknownReturnsErrNotFound(t *testing.T) {
	s := NewStore()

	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Update("nope", models.NewIncident("nope", "a", models.SeverityLow)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := NewStore()

	for i := 0; i < 3; i++ {
		incident := models.NewIncident(fmt.Sprintf("INC-%d", i), "svc", models.SeverityLow)
		incident.StartTime = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		if err := s.Create(incident); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	list := s.List(2)
	if len(list) != 2 {
		t.Fatalf("expected 2 incidents, got %d", len(list))
	}
	if list[0].ID != "INC-2" || list[1].ID != "INC-1" {
		t.Fatalf("expected newest first, got %s, %s", list[0].ID, list[1].ID)
	}
}

func TestActiveExcludesTerminalStages(t *testing.T) {
	s := NewStore()

	open := models.NewIncident("INC-open", "svc", models.SeverityLow)
	open.Stage = models.StageExecutor
	done := models.NewIncident("INC-done", "svc", models.SeverityLow)
	done.Stage = models.StageCompleted
	failed := models.NewIncident("INC-failed", "svc", models.SeverityLow)
	failed.Stage = models.StageFailed

	for _, in := range []*models.Incident{open, done, failed} {
		if err := s.Create(in); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	active := s.Active()
	if len(active) != 1 || active[0].ID != "INC-open" {
		t.Fatalf("expected only the executor-stage incident, got %+v", active)
	}
}

func TestStatisticsAveragesCompletedOnly(t *testing.T) {
	s := NewStore()

	completed := models.NewIncident("INC-1", "svc", models.SeverityHigh)
	completed.Stage = models.StageCompleted
	completed.Metrics = models.IncidentMetrics{
		DetectionLatencySeconds: 10,
		TriageConfidence:        0.9,
		TimeToMitigationSeconds: 120,
		MitigationSuccess:       true,
	}

	running := models.NewIncident("INC-2", "svc", models.SeverityHigh)
	running.Stage = models.StageTriage
	running.Metrics.DetectionLatencySeconds = 99

	for _, in := range []*models.Incident{completed, running} {
		if err := s.Create(in); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	stats := s.Statistics()
	if stats.TotalIncidents != 2 || stats.Completed != 1 || stats.Active != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.AvgDetectionLatencySeconds != 10 {
		t.Fatalf("averages must cover completed incidents only, got %f", stats.AvgDetectionLatencySeconds)
	}
	if stats.SuccessRate != 100 {
		t.Fatalf("expected 100%% success rate, got %f", stats.SuccessRate)
	}
	if stats.AvgTriageConfidence != 90 {
		t.Fatalf("expected confidence 90, got %f", stats.AvgTriageConfidence)
	}
}

func TestStatisticsEmptyStore(t *testing.T) {
	s := NewStore()

	stats := s.Statistics()
	if stats.TotalIncidents != 0 || stats.SuccessRate != 0 || stats.AvgTimeToMitigationSeconds != 0 {
		t.Fatalf("empty store must report zeros, got %+v", stats)
	}
}

func TestConcurrentUpdatesDoNotRace(t *testing.T) {
	s := NewStore()
	if err := s.Create(models.NewIncident("INC-1", "svc", models.SeverityLow)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			unlock := s.LockIncident("INC-1")
			defer unlock()

			incident, err := s.Get("INC-1")
			if err != nil {
				t.Errorf("get failed: %v", err)
				return
			}
			incident.AddTimelineEvent("test", fmt.Sprintf("update %d", n), nil)
			if err := s.Update("INC-1", incident); err != nil {
				t.Errorf("update failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.Get("INC-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.Timeline) != 16 {
		t.Fatalf("expected 16 timeline entries, got %d", len(got.Timeline))
	}
}
