package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/legion/internal/clock"
	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
)

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name string
		from constants.TaskStatus
		to   constants.TaskStatus
		want bool
	}{
		{"pending to running", constants.TaskStatusPending, constants.TaskStatusRunning, true},
		{"pending to cancelled", constants.TaskStatusPending, constants.TaskStatusCancelled, true},
		{"running to succeeded", constants.TaskStatusRunning, constants.TaskStatusSucceeded, true},
		{"running to failed", constants.TaskStatusRunning, constants.TaskStatusFailed, true},
		{"failed to pending", constants.TaskStatusFailed, constants.TaskStatusPending, true},
		{"pending to succeeded", constants.TaskStatusPending, constants.TaskStatusSucceeded, false},
		{"running to pending", constants.TaskStatusRunning, constants.TaskStatusPending, false},
		{"running to cancelled", constants.TaskStatusRunning, constants.TaskStatusCancelled, false},
		{"succeeded is terminal", constants.TaskStatusSucceeded, constants.TaskStatusPending, false},
		{"cancelled is terminal", constants.TaskStatusCancelled, constants.TaskStatusPending, false},
		{"same status", constants.TaskStatusPending, constants.TaskStatusPending, false},
		{"unknown status", constants.TaskStatus("bogus"), constants.TaskStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidTransition(tt.from, tt.to))
		})
	}
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus(constants.TaskStatusSucceeded))
	assert.True(t, IsTerminalStatus(constants.TaskStatusCancelled))
	assert.False(t, IsTerminalStatus(constants.TaskStatusFailed),
		"failed is terminal only once the budget is spent")
	assert.False(t, IsTerminalStatus(constants.TaskStatusPending))
	assert.False(t, IsTerminalStatus(constants.TaskStatusRunning))
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		name string
		task domain.Task
		want bool
	}{
		{"succeeded", domain.Task{Status: constants.TaskStatusSucceeded}, true},
		{"cancelled", domain.Task{Status: constants.TaskStatusCancelled}, true},
		{"failed with attempts left", domain.Task{Status: constants.TaskStatusFailed, AttemptCount: 1, MaxAttempts: 3}, false},
		{"failed exhausted", domain.Task{Status: constants.TaskStatusFailed, AttemptCount: 3, MaxAttempts: 3}, true},
		{"pending", domain.Task{Status: constants.TaskStatusPending}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTerminal(&tt.task))
		})
	}
}

func TestTransition_RecordsHistory(t *testing.T) {
	ctx := context.Background()
	task := &domain.Task{Status: constants.TaskStatusPending}

	require.NoError(t, Transition(ctx, clock.RealClock{}, task, constants.TaskStatusRunning, "selected"))

	assert.Equal(t, constants.TaskStatusRunning, task.Status)
	require.Len(t, task.Transitions, 1)
	assert.Equal(t, constants.TaskStatusPending, task.Transitions[0].FromStatus)
	assert.Equal(t, constants.TaskStatusRunning, task.Transitions[0].ToStatus)
	assert.Equal(t, "selected", task.Transitions[0].Reason)
	assert.False(t, task.Transitions[0].Timestamp.IsZero())
	assert.Nil(t, task.CompletedAt, "running is not a resting state")
}

func TestTransition_StampsCompletionForRestingStates(t *testing.T) {
	ctx := context.Background()

	task := &domain.Task{Status: constants.TaskStatusRunning, MaxAttempts: 3}
	require.NoError(t, Transition(ctx, clock.RealClock{}, task, constants.TaskStatusSucceeded, ""))
	require.NotNil(t, task.CompletedAt)
	assert.WithinDuration(t, time.Now().UTC(), *task.CompletedAt, 5*time.Second)

	// A failed task with budget remaining keeps going.
	task = &domain.Task{Status: constants.TaskStatusRunning, AttemptCount: 1, MaxAttempts: 3}
	require.NoError(t, Transition(ctx, clock.RealClock{}, task, constants.TaskStatusFailed, "logic failure"))
	assert.Nil(t, task.CompletedAt)

	// An exhausted failed task rests.
	task = &domain.Task{Status: constants.TaskStatusRunning, AttemptCount: 3, MaxAttempts: 3}
	require.NoError(t, Transition(ctx, clock.RealClock{}, task, constants.TaskStatusFailed, "budget spent"))
	assert.NotNil(t, task.CompletedAt)
}

func TestTransition_RejectsInvalid(t *testing.T) {
	ctx := context.Background()

	task := &domain.Task{Status: constants.TaskStatusPending}
	err := Transition(ctx, clock.RealClock{}, task, constants.TaskStatusSucceeded, "")
	require.ErrorIs(t, err, legionerrors.ErrInvalidTransition)
	assert.Equal(t, constants.TaskStatusPending, task.Status, "task unchanged on invalid transition")
	assert.Empty(t, task.Transitions)
}

func TestTransition_NilTask(t *testing.T) {
	err := Transition(context.Background(), clock.RealClock{}, nil, constants.TaskStatusRunning, "")
	assert.ErrorIs(t, err, legionerrors.ErrInvalidTransition)
}

func TestTransition_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := &domain.Task{Status: constants.TaskStatusPending}
	err := Transition(ctx, clock.RealClock{}, task, constants.TaskStatusRunning, "")
	assert.ErrorIs(t, err, context.Canceled)
}
