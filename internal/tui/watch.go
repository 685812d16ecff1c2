package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrz1836/legion/internal/domain"
	"github.com/mrz1836/legion/internal/guard"
)

// TaskLister lists the active task queue. Satisfied by task.Store.
type TaskLister interface {
	ListActive(ctx context.Context) ([]domain.Task, error)
}

// FarmLister lists the farm targets, re-reading persisted state so the view
// tracks a running worker in another process.
type FarmLister interface {
	ListTargets(ctx context.Context) ([]domain.RaidTarget, error)
}

// GuardStater reports connection health. Nil when the dashboard watches
// state files of a worker running in another process.
type GuardStater interface {
	State() guard.State
}

// SessionSource is one session partition's data feeds for the dashboard.
type SessionSource struct {
	Name  string
	Tasks TaskLister
	Farms FarmLister
	Guard GuardStater
}

// WatchConfig holds configuration for the watch dashboard.
type WatchConfig struct {
	// Interval is the refresh interval.
	Interval time.Duration
}

// DefaultWatchConfig returns the default watch configuration.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{Interval: 2 * time.Second}
}

// sessionSnapshot is one refreshed view of a session partition.
type sessionSnapshot struct {
	name    string
	tasks   []domain.Task
	targets []domain.RaidTarget
	state   *guard.State
	err     error
}

// tickMsg signals time for a refresh.
type tickMsg time.Time

// refreshMsg carries new data from a refresh.
type refreshMsg struct {
	snapshots []sessionSnapshot
}

// WatchModel is the Bubble Tea model for the read-only watch dashboard.
// It implements tea.Model (Init, Update, View).
type WatchModel struct {
	sources   []SessionSource
	snapshots []sessionSnapshot
	config    WatchConfig
	spin      spinner.Model
	lastRefresh time.Time
	quitting  bool

	// baseCtx is stored for use in async Bubble Tea commands.
	baseCtx context.Context //nolint:containedctx // Required for Bubble Tea async commands
}

// NewWatchModel creates a watch model over the given session sources.
func NewWatchModel(ctx context.Context, cfg WatchConfig, sources ...SessionSource) *WatchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorPrimary)
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultWatchConfig().Interval
	}
	return &WatchModel{
		sources: sources,
		config:  cfg,
		spin:    sp,
		baseCtx: ctx,
	}
}

// Init starts the refresh timer, the spinner and the initial data load.
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.tick(), m.spin.Tick)
}

// Update handles messages and returns the updated model and any commands.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), m.tick())

	case refreshMsg:
		m.snapshots = msg.snapshots
		m.lastRefresh = time.Now()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the dashboard: per session a connection badge, the queue
// table and the farm table.
func (m *WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(StyleBold.Render("LEGION"))
	sb.WriteString("  " + m.spin.View())
	if !m.lastRefresh.IsZero() {
		sb.WriteString(StyleDim.Render("  refreshed " + m.lastRefresh.Format("15:04:05")))
	}
	sb.WriteString("\n\n")

	if len(m.snapshots) == 0 {
		sb.WriteString(StyleDim.Render("loading…") + "\n")
	}

	now := time.Now()
	for i := range m.snapshots {
		snap := &m.snapshots[i]
		sb.WriteString(m.renderSession(snap, now))
		sb.WriteString("\n")
	}

	sb.WriteString(StyleDim.Render("q to quit"))
	sb.WriteString("\n")
	return sb.String()
}

// renderSession renders one session partition's section.
func (m *WatchModel) renderSession(snap *sessionSnapshot, now time.Time) string {
	var sb strings.Builder

	header := StyleBold.Render("session " + snap.name)
	if snap.state != nil {
		header += "  " + FormatHealthBadge(*snap.state)
	}
	sb.WriteString(header + "\n")

	if snap.err != nil {
		sb.WriteString(NewOutputStyles().Error.Render("✗ "+snap.err.Error()) + "\n")
		return sb.String()
	}

	if len(snap.tasks) == 0 {
		sb.WriteString(StyleDim.Render("queue empty") + "\n")
	} else {
		sb.WriteString(TaskTable(snap.tasks, now).String())
	}
	if len(snap.targets) > 0 {
		sb.WriteString("\n")
		sb.WriteString(FarmTable(snap.targets, now).String())
	}
	sb.WriteString(fmt.Sprintf("%s\n",
		StyleDim.Render(fmt.Sprintf("%d queued, %d targets", len(snap.tasks), len(snap.targets)))))
	return sb.String()
}

// tick schedules the next refresh.
func (m *WatchModel) tick() tea.Cmd {
	return tea.Tick(m.config.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh re-reads every source. Store errors surface per session instead
// of killing the dashboard.
func (m *WatchModel) refresh() tea.Cmd {
	return func() tea.Msg {
		snapshots := make([]sessionSnapshot, 0, len(m.sources))
		for _, src := range m.sources {
			snapshots = append(snapshots, m.load(src))
		}
		return refreshMsg{snapshots: snapshots}
	}
}

// load reads one session's state.
func (m *WatchModel) load(src SessionSource) sessionSnapshot {
	snap := sessionSnapshot{name: src.Name}
	if src.Guard != nil {
		state := src.Guard.State()
		snap.state = &state
	}
	if src.Tasks != nil {
		tasks, err := src.Tasks.ListActive(m.baseCtx)
		if err != nil {
			snap.err = err
			return snap
		}
		snap.tasks = tasks
	}
	if src.Farms != nil {
		targets, err := src.Farms.ListTargets(m.baseCtx)
		if err != nil {
			snap.err = err
			return snap
		}
		snap.targets = targets
	}
	return snap
}

// Run starts the Bubble Tea program and blocks until the user quits.
func (m *WatchModel) Run() error {
	p := tea.NewProgram(m, tea.WithContext(m.baseCtx))
	_, err := p.Run()
	return err
}
