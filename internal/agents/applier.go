package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-autopilot/internal/engine"
	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// Applier executes mitigations. This implementation simulates the control
// plane calls; the result shape matches what a real executor would report.
type Applier struct {
	logger *slog.Logger
}

// NewApplier constructs the mitigation executor.
func NewApplier(logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{logger: logger}
}

// Apply carries out the mitigation against the named service.
func (a *Applier) Apply(ctx context.Context, mitigation models.Mitigation, serviceName string) (engine.ApplyResult, error) {
	if err := ctx.Err(); err != nil {
		return engine.ApplyResult{}, err
	}

	var message string
	switch mitigation.Type {
	case models.MitigationRollback:
		message = fmt.Sprintf("Rolled back %s to %s", serviceName, mitigation.Parameters["target_version"])
	case models.MitigationScaleUp:
		message = fmt.Sprintf("Scaled %s to %s replicas", serviceName, mitigation.Parameters["target_replicas"])
	case models.MitigationScaleDown:
		message = fmt.Sprintf("Scaled %s down to %s replicas", serviceName, mitigation.Parameters["target_replicas"])
	case models.MitigationFeatureFlagDisable:
		message = fmt.Sprintf("Disabled feature flag %q on %s", mitigation.Parameters["feature"], serviceName)
	case models.MitigationTrafficShed:
		message = fmt.Sprintf("Shedding %s%% of traffic from %s", mitigation.Parameters["shed_percent"], serviceName)
	case models.MitigationRestartService:
		message = fmt.Sprintf("Rolling restart of %s started", serviceName)
	default:
		return engine.ApplyResult{
			Success: false,
			Message: fmt.Sprintf("unsupported mitigation type %q", mitigation.Type),
		}, nil
	}

	a.logger.Info("mitigation applied",
		slog.String("service", serviceName),
		slog.String("type", string(mitigation.Type)))

	return engine.ApplyResult{
		Success:   true,
		AppliedAt: time.Now().UTC(),
		Message:   message,
	}, nil
}
