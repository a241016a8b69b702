// Package jobs implements the background job scheduler: named units of work
// run on fixed intervals, tracked through a pending/running/terminal
// lifecycle and observed through a read-only monitor.
package jobs

import (
	"context"
	"time"
)

// Status is the lifecycle state of a job run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final. Terminal states are sticky:
// once reached, a record never transitions again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Result is the opaque structured payload a job produces on success.
type Result map[string]any

// Job is a unit of schedulable work. Implementations must be safe to Clone:
// the scheduler never re-runs a registered template directly, it launches a
// fresh clone per dispatch.
type Job interface {
	// ID returns the unique job id this instance is registered under.
	ID() string

	// Name returns the logical job type (shared across runs).
	Name() string

	// Metadata returns immutable creation-time attributes.
	Metadata() map[string]any

	// Clone returns a new instance of the same job under a fresh run id.
	Clone(runID string) Job

	// Execute performs the work. Long-running implementations should honor
	// ctx cancellation; the scheduler cancels ctx on CancelJob and Stop.
	Execute(ctx context.Context) (Result, error)
}

// Record is the observable state of one job registration or run.
type Record struct {
	JobID       string         `json:"job_id"`
	Name        string         `json:"name"`
	Template    string         `json:"template,omitempty"` // logical id this run was cloned from
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Result      Result         `json:"result,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Duration returns the run duration when both start and end are set.
func (r Record) Duration() (time.Duration, bool) {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0, false
	}
	return r.CompletedAt.Sub(*r.StartedAt), true
}

// ScheduleEntry describes the recurring schedule owned by a logical job id.
// NextRun advances by exactly Interval on every dispatch and never moves
// backward.
type ScheduleEntry struct {
	JobID    string        `json:"job_id"`
	Interval time.Duration `json:"interval"`
	NextRun  time.Time     `json:"next_run"`
	LastRun  *time.Time    `json:"last_run,omitempty"`
}
