package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/domain"
)

func TestTable_RenderAlignsColumns(t *testing.T) {
	tbl := NewTable("ID", "NAME")
	tbl.AddRow("1", "alpha")
	tbl.AddRow("42", "b")

	var sb strings.Builder
	require.NoError(t, tbl.Render(&sb))

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "1")
	assert.Contains(t, lines[2], "42")
	// Name column starts at the same offset in both data rows.
	assert.Equal(t, strings.Index(lines[1], "alpha"), strings.Index(lines[2], "b"))
}

func TestTable_AddRowPadsMissingCells(t *testing.T) {
	tbl := NewTable("A", "B", "C")
	tbl.AddRow("x")

	var sb strings.Builder
	require.NoError(t, tbl.Render(&sb))
	assert.Contains(t, sb.String(), "x")
}

func TestTaskTable_RowsCarryScheduleColumns(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	tasks := []domain.Task{
		{
			ID:           7,
			Kind:         constants.TaskKindRaid,
			Status:       constants.TaskStatusPending,
			NotBefore:    now.Add(90 * time.Second),
			AttemptCount: 1,
			MaxAttempts:  3,
			Priority:     10,
		},
	}

	out := TaskTable(tasks, now).String()
	assert.Contains(t, out, "7")
	assert.Contains(t, out, "raid")
	assert.Contains(t, out, "in 1m30s")
	assert.Contains(t, out, "1/3")
}

func TestFarmTable_ShowsEligibilityAndDisabledMark(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	targets := []domain.RaidTarget{
		{
			ID: 1, Name: "oasis", X: 3, Y: -4,
			State:            constants.TargetStateInTransit,
			NextEligibleTime: now.Add(2 * time.Hour),
			RaidsSent:        12,
			Enabled:          true,
		},
		{
			ID: 2, Name: "ruins", X: 0, Y: 9,
			State:   constants.TargetStateIdle,
			Enabled: false,
		},
	}

	out := FarmTable(targets, now).String()
	assert.Contains(t, out, "(3|-4)")
	assert.Contains(t, out, "in 2h00m")
	assert.Contains(t, out, "disabled")
	// Idle target with zero eligible time raids now.
	assert.Contains(t, out, "now")
}

func TestSelectorTable_GroupsCandidatesUnderEntry(t *testing.T) {
	entries := []domain.SelectorEntry{
		{
			Name: "login-user",
			Kind: constants.ElementKindInput,
			Candidates: []domain.Candidate{
				{Locator: "input[name='user']", Confidence: 0.9, Source: domain.CandidateSourceSeed},
				{Locator: "#old", Confidence: 0.1, Source: domain.CandidateSourceHealed, Demoted: true},
			},
		},
	}

	out := SelectorTable(entries).String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "login-user")
	assert.NotContains(t, lines[2], "login-user", "entry name prints only on its first candidate row")
	assert.Contains(t, out, "demoted")
	assert.Contains(t, out, "0.90")
}
