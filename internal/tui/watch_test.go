package tui

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/domain"
	"github.com/mrz1836/legion/internal/guard"
)

type fakeTaskLister struct {
	tasks []domain.Task
	err   error
}

func (f *fakeTaskLister) ListActive(_ context.Context) ([]domain.Task, error) {
	return f.tasks, f.err
}

type fakeFarmLister struct {
	targets []domain.RaidTarget
	err     error
}

func (f *fakeFarmLister) ListTargets(_ context.Context) ([]domain.RaidTarget, error) {
	return f.targets, f.err
}

type fakeGuardStater struct {
	state guard.State
}

func (f *fakeGuardStater) State() guard.State { return f.state }

func newWatchSource() SessionSource {
	return SessionSource{
		Name: "default",
		Tasks: &fakeTaskLister{tasks: []domain.Task{
			{ID: 1, Kind: constants.TaskKindRaid, Status: constants.TaskStatusPending, MaxAttempts: 3},
		}},
		Farms: &fakeFarmLister{targets: []domain.RaidTarget{
			{ID: 1, Name: "oasis", State: constants.TargetStateIdle, Enabled: true},
		}},
		Guard: &fakeGuardStater{state: guard.State{Health: guard.HealthHealthy}},
	}
}

func TestWatchModel_QuitKeys(t *testing.T) {
	for _, key := range []string{"q", "ctrl+c"} {
		t.Run(key, func(t *testing.T) {
			m := NewWatchModel(context.Background(), DefaultWatchConfig(), newWatchSource())

			msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
			if key == "ctrl+c" {
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			}
			updated, cmd := m.Update(msg)

			require.NotNil(t, cmd, "quit key must produce a command")
			assert.Empty(t, updated.(*WatchModel).View(), "quitting view renders nothing")
		})
	}
}

func TestWatchModel_RefreshLoadsAllSources(t *testing.T) {
	m := NewWatchModel(context.Background(), DefaultWatchConfig(), newWatchSource())

	msg := m.refresh()()
	refreshed, ok := msg.(refreshMsg)
	require.True(t, ok)
	require.Len(t, refreshed.snapshots, 1)

	snap := refreshed.snapshots[0]
	assert.Equal(t, "default", snap.name)
	assert.Len(t, snap.tasks, 1)
	assert.Len(t, snap.targets, 1)
	require.NotNil(t, snap.state)
	assert.Equal(t, guard.HealthHealthy, snap.state.Health)
}

func TestWatchModel_ViewShowsSessionSections(t *testing.T) {
	m := NewWatchModel(context.Background(), DefaultWatchConfig(), newWatchSource())

	updated, _ := m.Update(m.refresh()().(refreshMsg))
	view := updated.(*WatchModel).View()

	assert.Contains(t, view, "session default")
	assert.Contains(t, view, "raid")
	assert.Contains(t, view, "oasis")
	assert.Contains(t, view, "q to quit")
}

func TestWatchModel_StoreErrorSurfacesPerSession(t *testing.T) {
	src := newWatchSource()
	src.Tasks = &fakeTaskLister{err: stderrors.New("queue.json: permission denied")}
	m := NewWatchModel(context.Background(), DefaultWatchConfig(), src)

	updated, _ := m.Update(m.refresh()().(refreshMsg))
	view := updated.(*WatchModel).View()

	assert.Contains(t, view, "permission denied")
}

func TestWatchModel_TickSchedulesRefresh(t *testing.T) {
	m := NewWatchModel(context.Background(), WatchConfig{Interval: time.Millisecond}, newWatchSource())

	_, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
}
