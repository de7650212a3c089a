package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrUnknownTask is returned for tasks the executor cannot run
	ErrUnknownTask = errors.New("unknown maintenance task")

	// ErrInvalidSchedule is returned for schedule expressions that are not daily
	ErrInvalidSchedule = errors.New("invalid maintenance schedule")

	// ErrPartialBackfill is returned when some invoices could not be numbered
	ErrPartialBackfill = errors.New("number backfill left invoices unnumbered")
)
