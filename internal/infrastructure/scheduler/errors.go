package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when submitting to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
	// ErrQueueFull is returned when the job queue cannot accept more runs
	ErrQueueFull = errors.New("sync queue is full")
	// ErrInvalidConfig is returned for invalid scheduler configuration
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
	// ErrUnknownKind is returned for a sync kind the scheduler does not know
	ErrUnknownKind = errors.New("unknown sync kind")
)
