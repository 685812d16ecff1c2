// Package task provides the durable task queue and scheduling engine for LEGION.
//
// This file implements the task state machine, which enforces valid status
// transitions and maintains an audit trail of all status changes.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors, std lib
//   - MUST NOT import: internal/browser, internal/session, internal/cli
package task

import (
	"context"
	"fmt"

	"github.com/mrz1836/legion/internal/clock"
	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
)

// ValidTransitions defines all allowed status transitions in the task lifecycle.
// Format: from_status -> []to_statuses
//
// The state machine follows this flow:
//
//	Pending → Running, Cancelled
//	Running → Succeeded, Failed
//	Failed  → Pending (re-enqueue while the attempt budget allows)
//
// A Failed task with its attempt budget exhausted stays Failed; the executor
// archives it instead of re-enqueueing, which is how Failed becomes terminal.
//
//nolint:gochecknoglobals // Exported for testing and read-only lookup table
var ValidTransitions = map[constants.TaskStatus][]constants.TaskStatus{
	constants.TaskStatusPending: {constants.TaskStatusRunning, constants.TaskStatusCancelled},
	constants.TaskStatusRunning: {constants.TaskStatusSucceeded, constants.TaskStatusFailed},
	constants.TaskStatusFailed:  {constants.TaskStatusPending},
}

// terminalStatuses defines states where no further transitions are allowed.
// Failed is absent because it is terminal only once the attempt budget is
// exhausted; use IsTerminal on the task for that check.
//
//nolint:gochecknoglobals // Read-only lookup table for terminal state checks
var terminalStatuses = map[constants.TaskStatus]bool{
	constants.TaskStatusSucceeded: true,
	constants.TaskStatusCancelled: true,
}

// IsValidTransition checks if a transition from one status to another is allowed.
// Returns false for transitions from terminal states or to the same state.
func IsValidTransition(from, to constants.TaskStatus) bool {
	// Same status is not a valid transition
	if from == to {
		return false
	}

	validTargets, exists := ValidTransitions[from]
	if !exists {
		return false // Terminal state or unknown state
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus returns true for statuses that never transition again
// regardless of the task's attempt budget: Succeeded, Cancelled.
func IsTerminalStatus(status constants.TaskStatus) bool {
	return terminalStatuses[status]
}

// IsTerminal reports whether the task has reached its final resting state:
// Succeeded, Cancelled, or Failed with the attempt budget exhausted.
func IsTerminal(t *domain.Task) bool {
	if IsTerminalStatus(t.Status) {
		return true
	}
	return t.Status == constants.TaskStatusFailed && t.AttemptsExhausted()
}

// Transition validates and applies a status transition to the task.
// It records the transition in the task's history and updates timestamps.
// The caller is responsible for persisting the updated task.
//
// Returns an error if:
//   - ctx is canceled
//   - task is nil
//   - The transition is invalid (returns wrapped ErrInvalidTransition)
func Transition(ctx context.Context, clk clock.Clock, t *domain.Task, to constants.TaskStatus, reason string) error {
	// Check for cancellation
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Validate task is not nil
	if t == nil {
		return fmt.Errorf("%w: task is nil", legionerrors.ErrInvalidTransition)
	}

	from := t.Status

	// Validate transition
	if !IsValidTransition(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s",
			legionerrors.ErrInvalidTransition, from, to)
	}

	now := clk.Now().UTC()

	// Record transition in history
	t.Transitions = append(t.Transitions, domain.Transition{
		FromStatus: from,
		ToStatus:   to,
		Timestamp:  now,
		Reason:     reason,
	})

	// Update task status
	t.Status = to
	t.UpdatedAt = now

	// Stamp completion for resting states. A Failed task only rests once its
	// attempt budget is spent; earlier failures are re-enqueued.
	if IsTerminal(t) {
		t.CompletedAt = &now
	}

	return nil
}
