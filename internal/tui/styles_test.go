package tui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/guard"
)

func TestTaskStatusIcon_CoversEveryStatus(t *testing.T) {
	statuses := []constants.TaskStatus{
		constants.TaskStatusPending,
		constants.TaskStatusRunning,
		constants.TaskStatusSucceeded,
		constants.TaskStatusFailed,
		constants.TaskStatusCancelled,
	}
	for _, s := range statuses {
		assert.NotEqual(t, "?", TaskStatusIcon(s), "status %s needs an icon", s)
	}
	assert.Equal(t, "?", TaskStatusIcon(constants.TaskStatus("bogus")))
}

func TestTargetStateIcon_CoversEveryState(t *testing.T) {
	states := []constants.TargetState{
		constants.TargetStateIdle,
		constants.TargetStateDispatched,
		constants.TargetStateInTransit,
		constants.TargetStateAwaitingReturn,
	}
	for _, s := range states {
		assert.NotEqual(t, "?", TargetStateIcon(s), "state %s needs an icon", s)
	}
}

func TestFormatStatusWithIcon(t *testing.T) {
	assert.Equal(t, "✓ succeeded", FormatStatusWithIcon(constants.TaskStatusSucceeded))
	assert.Equal(t, "✗ failed", FormatStatusWithIcon(constants.TaskStatusFailed))
}

func TestFormatHealthBadge(t *testing.T) {
	healthy := FormatHealthBadge(guard.State{Health: guard.HealthHealthy})
	assert.Contains(t, healthy, "healthy")
	assert.NotContains(t, healthy, "failures")

	suspended := FormatHealthBadge(guard.State{
		Health:              guard.HealthSuspended,
		ConsecutiveFailures: 4,
		CurrentBackoff:      8 * time.Second,
	})
	assert.Contains(t, suspended, "suspended")
	assert.Contains(t, suspended, "4 failures")
	assert.Contains(t, suspended, "8s")
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab   ", padRight("ab", 5))
	assert.Equal(t, "abc", padRight("abcde", 3))
	// ANSI codes do not count toward the visible width.
	styled := "\x1b[1mok\x1b[0m"
	padded := padRight(styled, 4)
	assert.Equal(t, "ok  ", stripANSI(padded))
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "plain", stripANSI("plain"))
	assert.Equal(t, "red", stripANSI("\x1b[31mred\x1b[0m"))
}

func TestItoa(t *testing.T) {
	assert.Equal(t, "0", itoa(0))
	assert.Equal(t, "42", itoa(42))
	assert.Equal(t, "-7", itoa(-7))
}
