package scheduler

import (
	"context"
	"fmt"

	appbilling "github.com/vetclinic/backend/internal/application/billing"
	"go.uber.org/zap"
)

// MaintenanceRunner is the part of the billing maintenance service the
// nightly tasks drive
type MaintenanceRunner interface {
	NormalizeAllReferences(ctx context.Context) (*appbilling.NormalizeResponse, error)
	BackfillNumbers(ctx context.Context) (*appbilling.BackfillResponse, error)
}

// MaintenanceExecutor runs billing repair jobs
type MaintenanceExecutor struct {
	runner MaintenanceRunner
	logger *zap.Logger
}

// NewMaintenanceExecutor creates an executor over runner
func NewMaintenanceExecutor(runner MaintenanceRunner, logger *zap.Logger) *MaintenanceExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceExecutor{runner: runner, logger: logger}
}

// Execute implements JobExecutor
func (e *MaintenanceExecutor) Execute(ctx context.Context, job *Job) error {
	switch job.Task {
	case TaskNormalizeReferences:
		res, err := e.runner.NormalizeAllReferences(ctx)
		if err != nil {
			return err
		}
		e.logger.Info("Legacy references normalized",
			zap.Int64("normalized", res.Normalized),
			zap.Int64("remaining", res.Remaining),
		)
		return nil

	case TaskBackfillNumbers:
		res, err := e.runner.BackfillNumbers(ctx)
		if err != nil {
			return err
		}
		e.logger.Info("Invoice numbers backfilled",
			zap.Int("assigned", len(res.Assigned)),
			zap.Int("failed", res.Failed),
		)
		if res.Failed > 0 {
			return fmt.Errorf("%w: %d", ErrPartialBackfill, res.Failed)
		}
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnknownTask, job.Task)
	}
}
