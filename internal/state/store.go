package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// ErrNotFound signals that no incident exists for the requested ID.
var ErrNotFound = errors.New("incident not found")

// Store is an in-memory registry of incidents. It is the single source of truth
// shared by pipeline runs and approval callbacks; writes to the same incident
// are serialized via per-incident locks. Safe only within a single process.
type Store struct {
	mu        sync.RWMutex
	incidents map[string]*models.Incident
	locks     map[string]*sync.Mutex
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		incidents: make(map[string]*models.Incident),
		locks:     make(map[string]*sync.Mutex),
	}
}

// Create registers a new incident. The ID must be unique.
func (s *Store) Create(incident *models.Incident) error {
	if incident == nil || incident.ID == "" {
		return fmt.Errorf("incident id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.incidents[incident.ID]; exists {
		return fmt.Errorf("incident %s already exists", incident.ID)
	}
	s.incidents[incident.ID] = incident.Clone()
	return nil
}

// Get returns a copy of the incident, or ErrNotFound.
func (s *Store) Get(id string) (*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	incident, ok := s.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return incident.Clone(), nil
}

// Update replaces the stored incident. Last writer wins; callers mutating the
// same incident concurrently must hold the incident lock.
func (s *Store) Update(id string, incident *models.Incident) error {
	if incident == nil {
		return fmt.Errorf("incident is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.incidents[id]; !ok {
		return ErrNotFound
	}
	s.incidents[id] = incident.Clone()
	return nil
}

// LockIncident acquires the per-incident mutex and returns the release func.
// The lock exists independently of the incident record so it can be taken
// before creation completes.
func (s *Store) LockIncident(id string) func() {
	s.mu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// List returns up to limit incidents ordered by start time, newest first.
func (s *Store) List(limit int) []*models.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()

	incidents := make([]*models.Incident, 0, len(s.incidents))
	for _, incident := range s.incidents {
		incidents = append(incidents, incident.Clone())
	}
	sort.Slice(incidents, func(i, j int) bool {
		return incidents[i].StartTime.After(incidents[j].StartTime)
	})

	if limit > 0 && len(incidents) > limit {
		incidents = incidents[:limit]
	}
	return incidents
}

// Active returns incidents that have not reached a terminal stage.
func (s *Store) Active() []*models.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]*models.Incident, 0)
	for _, incident := range s.incidents {
		if !incident.Stage.Terminal() {
			active = append(active, incident.Clone())
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].StartTime.After(active[j].StartTime)
	})
	return active
}

// Statistics aggregates operational metrics over completed incidents.
type Statistics struct {
	TotalIncidents             int     `json:"total_incidents"`
	Completed                  int     `json:"completed"`
	Active                     int     `json:"active"`
	AvgDetectionLatencySeconds float64 `json:"avg_detection_latency"`
	AvgTimeToMitigationSeconds float64 `json:"avg_time_to_mitigation"`
	SuccessRate                float64 `json:"success_rate"`
	AvgTriageConfidence        float64 `json:"triage_confidence"`
}

// Statistics computes aggregates. Averages cover completed incidents only and
// are zero when nothing has completed yet.
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{TotalIncidents: len(s.incidents)}

	var detection, mitigation, confidence float64
	var succeeded int
	for _, incident := range s.incidents {
		if !incident.Stage.Terminal() {
			stats.Active++
		}
		if incident.Stage != models.StageCompleted {
			continue
		}
		stats.Completed++
		detection += incident.Metrics.DetectionLatencySeconds
		mitigation += incident.Metrics.TimeToMitigationSeconds
		confidence += incident.Metrics.TriageConfidence
		if incident.Metrics.MitigationSuccess {
			succeeded++
		}
	}

	if stats.Completed == 0 {
		return stats
	}

	n := float64(stats.Completed)
	stats.AvgDetectionLatencySeconds = detection / n
	stats.AvgTimeToMitigationSeconds = mitigation / n
	stats.SuccessRate = float64(succeeded) / n * 100
	stats.AvgTriageConfidence = confidence / n * 100
	return stats
}
