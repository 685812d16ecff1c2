// Package domain provides shared domain types for the LEGION automation core.
// These types are used across all internal packages to ensure consistent data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case per architecture requirements.
package domain

import (
	"time"

	"github.com/mrz1836/legion/internal/constants"
)

// Task represents a single scheduled, retryable unit of remote-facing work.
// Tasks are owned exclusively by the executor and persisted after every
// status change so a crash resumes from the last committed state.
//
// Example JSON representation:
//
//	{
//	    "id": 42,
//	    "kind": "raid",
//	    "payload": {"target_id": 7},
//	    "not_before": "2026-08-26T10:00:00Z",
//	    "priority": 10,
//	    "attempt_count": 1,
//	    "max_attempts": 3,
//	    "status": "pending",
//	    "created_at": "2026-08-26T09:58:00Z",
//	    "updated_at": "2026-08-26T10:01:00Z",
//	    "schema_version": "1.0"
//	}
type Task struct {
	// ID is the unique identifier for the task, assigned by the store from
	// a monotonically increasing counter. Lower ids enqueue earlier, which
	// gives the scheduler its deterministic FIFO tie-break.
	ID int64 `json:"id"`

	// Kind identifies the registered handler that executes this task.
	Kind constants.TaskKind `json:"kind"`

	// Payload carries kind-specific parameters (target ids, coordinates,
	// building slots). Interpreted only by the handler.
	Payload map[string]any `json:"payload,omitempty"`

	// NotBefore is the earliest time the task is eligible to run.
	NotBefore time.Time `json:"not_before"`

	// Priority orders eligible tasks: higher runs first. Ties break on
	// lower id.
	Priority int `json:"priority"`

	// AttemptCount is the number of failed attempts so far. It increments
	// only on logic-class failures; connection outages never consume it.
	AttemptCount int `json:"attempt_count"`

	// MaxAttempts is the bounded retry budget for logic-class failures.
	// Must be at least 1.
	MaxAttempts int `json:"max_attempts"`

	// Status represents the current state in the task lifecycle.
	// Uses constants.TaskStatus values (pending, running, succeeded, ...).
	Status constants.TaskStatus `json:"status"`

	// CreatedAt is when the task was enqueued.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the task was last modified.
	UpdatedAt time.Time `json:"updated_at"`

	// CompletedAt is when the task reached a terminal status (nil before).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// LastError records the most recent failure reason, kept through
	// re-enqueues so a permanently failed task surfaces its cause.
	LastError string `json:"last_error,omitempty"`

	// Transitions is the append-only status history for audit.
	Transitions []Transition `json:"transitions,omitempty"`

	// SchemaVersion indicates the version of the Task struct schema.
	// This enables forward-compatible schema migrations.
	SchemaVersion string `json:"schema_version"`
}

// Transition records a single status change in a task's history.
type Transition struct {
	// FromStatus is the status before the change.
	FromStatus constants.TaskStatus `json:"from_status"`

	// ToStatus is the status after the change.
	ToStatus constants.TaskStatus `json:"to_status"`

	// Timestamp is when the change happened (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Reason is a short human-readable cause ("handler succeeded",
	// "logic failure", "interrupted", ...).
	Reason string `json:"reason,omitempty"`
}

// AttemptsExhausted reports whether the task has used its whole retry budget.
func (t *Task) AttemptsExhausted() bool {
	return t.AttemptCount >= t.MaxAttempts
}

// PayloadInt64 reads an integer payload field, tolerating the float64 form
// that encoding/json produces for numbers.
func (t *Task) PayloadInt64(key string) (int64, bool) {
	v, ok := t.Payload[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// PayloadString reads a string payload field.
func (t *Task) PayloadString(key string) (string, bool) {
	v, ok := t.Payload[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
