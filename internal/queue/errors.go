package queue

import "errors"

var (
	// ErrNotFound is returned when a job does not exist or is not visible to
	// the requesting owner.
	ErrNotFound = errors.New("job not found")
	// ErrLimitReached is returned when an owner already has the maximum number
	// of active jobs.
	ErrLimitReached = errors.New("active job limit reached")
	// ErrLeaseLost is returned when a worker saves a job it no longer owns,
	// typically after the job was reclaimed following a stale heartbeat.
	ErrLeaseLost = errors.New("job lease lost")
	// ErrTerminal is returned when an operation requires a job that is still
	// queued or processing.
	ErrTerminal = errors.New("job already finished")
)
