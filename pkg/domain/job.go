package domain

import (
	"context"
	"time"
)

// JobStatus tracks a job through its lifecycle. The only legal progression is
// pending -> running -> {completed, failed}; terminal states never transition.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ProcessMode selects how simultaneously-eligible stages are scheduled.
type ProcessMode string

const (
	// ModeSequential walks the topological order one stage at a time.
	ModeSequential ProcessMode = "sequential"

	// ModeHierarchical allows stages with no mutual dependency to run
	// concurrently. With a chain-shaped graph it behaves like sequential.
	ModeHierarchical ProcessMode = "hierarchical"
)

// Valid reports whether the mode is one of the known process modes.
func (m ProcessMode) Valid() bool {
	return m == ModeSequential || m == ModeHierarchical
}

// JobConfig carries the per-job generation knobs supplied at submission.
type JobConfig struct {
	Temperature float64
	Mode        ProcessMode
}

// Job is one end-to-end report request tracked through its lifecycle.
//
// Ownership discipline: the façade is the sole creator of the pending record,
// the orchestrator is the sole writer of status/result afterwards. A job is
// mutated exactly once into a terminal state and never again.
type Job struct {
	ID     string
	Topic  string
	Config JobConfig

	Status   JobStatus
	Report   string
	Document []byte
	Error    string

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// JobStore is a thread-safe mapping from job identifier to job record.
// Implementations must guarantee readers never observe a record mid-transition.
type JobStore interface {
	// Create inserts a new pending record. Returns ErrDuplicateJob if the
	// identifier already exists.
	Create(ctx context.Context, id, topic string, cfg JobConfig) error

	// Get returns a copy of the record. Returns ErrJobNotFound if absent.
	Get(ctx context.Context, id string) (Job, error)

	// MarkRunning transitions pending -> running.
	MarkRunning(ctx context.Context, id string) error

	// Complete transitions to completed with the final report and rendered
	// document. Returns ErrJobTerminal if the job already reached a
	// terminal state.
	Complete(ctx context.Context, id, report string, doc []byte) error

	// Fail transitions to failed with a human-readable diagnostic.
	Fail(ctx context.Context, id, message string) error
}
