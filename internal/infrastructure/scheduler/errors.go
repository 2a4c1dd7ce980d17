package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when trying to submit a task to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the task queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrEmptyPipeline is returned when a pipeline has no steps
	ErrEmptyPipeline = errors.New("pipeline has no steps")

	// ErrNoWebhookProcessor is returned when a webhook event is dispatched
	// before a processor was set
	ErrNoWebhookProcessor = errors.New("no webhook processor configured")

	// ErrSchedulerStopped marks tasks still queued when the scheduler stopped
	ErrSchedulerStopped = errors.New("scheduler stopped before the task ran")
)
