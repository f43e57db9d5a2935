// Package simulator produces synthetic incident scenarios for exercising the
// pipeline end to end without live telemetry backends.
package simulator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// Scenario names a canned incident shape.
type Scenario string

const (
	ScenarioLatencySpike       Scenario = "latency_spike"
	ScenarioErrorRate          Scenario = "error_rate"
	ScenarioResourceSaturation Scenario = "resource_saturation"
	ScenarioQueueDepth         Scenario = "queue_depth"
)

// Scenarios lists the supported scenario names.
func Scenarios() []Scenario {
	return []Scenario{
		ScenarioLatencySpike,
		ScenarioErrorRate,
		ScenarioResourceSaturation,
		ScenarioQueueDepth,
	}
}

// Generated bundles a fresh incident with its metric snapshots.
type Generated struct {
	Incident *models.Incident
	Current  map[string]float64
	Baseline map[string]float64
}

// Generate creates an incident for the named scenario. IDs are unique per
// call; metric values are fixed per scenario so runs are reproducible.
func Generate(scenario Scenario, serviceName string) (Generated, error) {
	if serviceName == "" {
		serviceName = "checkout-service"
	}

	baseline := map[string]float64{
		"latency_p50":  80,
		"latency_p95":  150,
		"latency_p99":  200,
		"error_rate":   0.1,
		"cpu_usage":    45,
		"memory_usage": 50,
		"queue_depth":  50,
		"request_rate": 1200,
	}

	var (
		current  map[string]float64
		severity models.Severity
	)
	switch Scenario(strings.ToLower(string(scenario))) {
	case ScenarioLatencySpike:
		severity = models.SeverityHigh
		current = map[string]float64{
			"latency_p50":  400,
			"latency_p95":  1800,
			"latency_p99":  2400,
			"error_rate":   1.2,
			"cpu_usage":    55,
			"memory_usage": 60,
			"queue_depth":  120,
			"request_rate": 1250,
		}
	case ScenarioErrorRate:
		severity = models.SeverityCritical
		current = map[string]float64{
			"latency_p50":  120,
			"latency_p95":  450,
			"latency_p99":  900,
			"error_rate":   8.5,
			"cpu_usage":    50,
			"memory_usage": 55,
			"queue_depth":  200,
			"request_rate": 1100,
		}
	case ScenarioResourceSaturation:
		severity = models.SeverityHigh
		current = map[string]float64{
			"latency_p50":      180,
			"latency_p95":      600,
			"latency_p99":      850,
			"error_rate":       2.1,
			"cpu_usage":        92,
			"memory_usage":     89,
			"queue_depth":      300,
			"request_rate":     2400,
			"current_replicas": 3,
		}
	case ScenarioQueueDepth:
		severity = models.SeverityMedium
		current = map[string]float64{
			"latency_p50":  100,
			"latency_p95":  280,
			"latency_p99":  520,
			"error_rate":   0.8,
			"cpu_usage":    60,
			"memory_usage": 62,
			"queue_depth":  2500,
			"request_rate": 1300,
		}
	default:
		return Generated{}, fmt.Errorf("unknown scenario %q", scenario)
	}

	id := "INC-" + uuid.NewString()[:8]
	incident := models.NewIncident(id, serviceName, severity)
	incident.Metrics.DetectionLatencySeconds = 12

	return Generated{Incident: incident, Current: current, Baseline: baseline}, nil
}

// RecoveredProber reports post-mitigation metrics back inside tolerance. It
// stands in for a live metrics backend in simulation runs.
type RecoveredProber struct{}

// Observe returns a healthy metrics snapshot.
func (RecoveredProber) Observe(ctx context.Context, serviceName string) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]float64{
		"latency_p50":  90,
		"latency_p95":  170,
		"latency_p99":  220,
		"error_rate":   0.15,
		"cpu_usage":    45,
		"memory_usage": 60,
		"queue_depth":  50,
	}, nil
}
