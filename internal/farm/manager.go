package farm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	stderrors "errors"

	"github.com/rs/zerolog"

	"github.com/mrz1836/legion/internal/clock"
	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/ctxutil"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/store"
)

// timeAfter is the timer seam for inter-dispatch spacing. Stubbed in tests.
//
//nolint:gochecknoglobals // Test seam following the established retry pattern
var timeAfter = time.After

// PayloadKeyTargetID names the raid task payload field carrying the target id.
const PayloadKeyTargetID = "target_id"

// Enqueuer is the executor surface the manager needs: it produces raid tasks
// instead of sending troops itself, which keeps raid timing decoupled from
// raid execution reliability.
type Enqueuer interface {
	Enqueue(ctx context.Context, t *domain.Task) (int64, error)
}

// Options configures a Manager. Zero fields fall back to package defaults.
type Options struct {
	// HomeX, HomeY are the coordinates raids depart from.
	HomeX int
	HomeY int

	// Tribe selects the troop speed table.
	Tribe string

	// ServerSpeed is the game-world speed multiplier.
	ServerSpeed float64

	// Cadence is the minimum interval between raids on one target.
	Cadence time.Duration

	// SafetyMargin pads the computed troop return time.
	SafetyMargin time.Duration

	// DispatchSpacing is the fixed pause between consecutive dispatches in
	// one tick. Not adaptive.
	DispatchSpacing time.Duration

	// RaidPriority is assigned to produced raid tasks.
	RaidPriority int

	// MaxAttempts is the attempt budget for produced raid tasks.
	MaxAttempts int

	// Clock supplies time for eligibility math.
	Clock clock.Clock
}

// farmsState is the persisted shape of farms.json.
type farmsState struct {
	SchemaVersion string              `json:"schema_version"`
	NextID        int64               `json:"next_id"`
	Targets       []domain.RaidTarget `json:"targets"`
}

// Manager owns the farm list and the per-target raid state machine.
// Lifecycle transitions happen only here, in response to confirmed
// dispatches and elapsed time. One worker owns a Manager; no internal
// locking.
type Manager struct {
	file   *store.File
	opts   Options
	clk    clock.Clock
	logger zerolog.Logger

	nextID  int64
	targets map[int64]*domain.RaidTarget
}

// NewManager creates a Manager backed by the given farms state file.
func NewManager(file *store.File, opts Options, logger zerolog.Logger) *Manager {
	if opts.Cadence <= 0 {
		opts.Cadence = constants.DefaultRaidCadence
	}
	if opts.SafetyMargin <= 0 {
		opts.SafetyMargin = constants.DefaultSafetyMargin
	}
	if opts.DispatchSpacing <= 0 {
		opts.DispatchSpacing = constants.DefaultDispatchSpacing
	}
	if opts.RaidPriority == 0 {
		opts.RaidPriority = constants.DefaultRaidPriority
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = constants.DefaultMaxAttempts
	}
	if opts.ServerSpeed <= 0 {
		opts.ServerSpeed = constants.DefaultServerSpeed
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Manager{
		file:    file,
		opts:    opts,
		clk:     clk,
		logger:  logger.With().Str("component", "farm").Logger(),
		targets: make(map[int64]*domain.RaidTarget),
	}
}

// Load reads the farm list from disk. A missing file yields an empty list.
func (m *Manager) Load(ctx context.Context) error {
	var state farmsState
	err := m.file.Load(ctx, &state)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			m.targets = make(map[int64]*domain.RaidTarget)
			m.nextID = 1
			return nil
		}
		return err
	}

	m.nextID = state.NextID
	if m.nextID == 0 {
		m.nextID = 1
	}
	m.targets = make(map[int64]*domain.RaidTarget, len(state.Targets))
	for i := range state.Targets {
		t := state.Targets[i]
		m.targets[t.ID] = &t
	}
	return nil
}

// Save persists the farm list.
func (m *Manager) Save(ctx context.Context) error {
	state := farmsState{
		SchemaVersion: constants.FarmsSchemaVersion,
		NextID:        m.nextID,
		Targets:       m.snapshot(),
	}
	return m.file.Save(ctx, &state)
}

// Add creates a new farm target. The one-way travel time is computed from
// euclidean distance and the slowest unit's speed; targets start Idle,
// enabled, and immediately eligible.
func (m *Manager) Add(ctx context.Context, name string, x, y int, troops map[string]int) (*domain.RaidTarget, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, legionerrors.Wrap(legionerrors.ErrEmptyValue, "target name")
	}

	travel, err := TravelTime(m.opts.HomeX, m.opts.HomeY, x, y, troops, m.opts.Tribe, m.opts.ServerSpeed)
	if err != nil {
		return nil, err
	}

	if m.nextID == 0 {
		m.nextID = 1
	}
	t := &domain.RaidTarget{
		ID:         m.nextID,
		Name:       name,
		X:          x,
		Y:          y,
		Troops:     troops,
		TravelTime: travel,
		State:      constants.TargetStateIdle,
		Enabled:    true,
	}
	m.nextID++
	m.targets[t.ID] = t

	m.logger.Info().
		Int64("target_id", t.ID).
		Str("name", name).
		Int("x", x).Int("y", y).
		Dur("travel_time", travel).
		Msg("farm target added")

	if err := m.Save(ctx); err != nil {
		return nil, err
	}
	out := *t
	return &out, nil
}

// Remove deletes a target from the farm list.
func (m *Manager) Remove(ctx context.Context, id int64) error {
	if _, ok := m.targets[id]; !ok {
		return fmt.Errorf("target %d: %w", id, legionerrors.ErrTargetNotFound)
	}
	delete(m.targets, id)
	return m.Save(ctx)
}

// Enable toggles a target in or out of automatic scheduling without losing
// its history.
func (m *Manager) Enable(ctx context.Context, id int64, enabled bool) error {
	t, ok := m.targets[id]
	if !ok {
		return fmt.Errorf("target %d: %w", id, legionerrors.ErrTargetNotFound)
	}
	t.Enabled = enabled
	return m.Save(ctx)
}

// Get returns a copy of the target.
func (m *Manager) Get(id int64) (domain.RaidTarget, error) {
	t, ok := m.targets[id]
	if !ok {
		return domain.RaidTarget{}, fmt.Errorf("target %d: %w", id, legionerrors.ErrTargetNotFound)
	}
	return *t, nil
}

// List returns copies of all targets sorted by id.
func (m *Manager) List() []domain.RaidTarget {
	return m.snapshot()
}

// Dispatch marks an Idle target Dispatched and produces a raid task for the
// executor. Dispatching is only legal from Idle: a target with an
// outstanding raid fails with AlreadyOutstanding so troops are never sent
// twice.
func (m *Manager) Dispatch(ctx context.Context, exec Enqueuer, id int64) (int64, error) {
	t, ok := m.targets[id]
	if !ok {
		return 0, fmt.Errorf("target %d: %w", id, legionerrors.ErrTargetNotFound)
	}
	if !t.Enabled {
		return 0, fmt.Errorf("target %d: %w", id, legionerrors.ErrTargetDisabled)
	}
	if t.Outstanding() {
		return 0, fmt.Errorf("target %d is %s: %w", id, t.State, legionerrors.ErrAlreadyOutstanding)
	}

	t.State = constants.TargetStateDispatched
	t.LastError = ""
	if err := m.Save(ctx); err != nil {
		return 0, err
	}

	taskID, err := exec.Enqueue(ctx, &domain.Task{
		Kind:        constants.TaskKindRaid,
		Payload:     map[string]any{PayloadKeyTargetID: t.ID, "name": t.Name},
		Priority:    m.opts.RaidPriority,
		MaxAttempts: m.opts.MaxAttempts,
	})
	if err != nil {
		// The raid task never entered the queue; nothing was sent.
		t.State = constants.TargetStateIdle
		if serr := m.Save(ctx); serr != nil {
			return 0, serr
		}
		return 0, err
	}

	m.logger.Info().
		Int64("target_id", t.ID).
		Int64("task_id", taskID).
		Str("name", t.Name).
		Msg("raid task produced")
	return taskID, nil
}

// Confirm records a confirmed troop dispatch: Dispatched becomes InTransit,
// and the eligibility window closes until the troops are home. A
// page-reported one-way duration overrides the computed estimate upward,
// never downward — the local timer is a lower bound, and shortening it risks
// premature double-dispatch.
func (m *Manager) Confirm(ctx context.Context, id int64, dispatchedAt time.Time, reportedTravel time.Duration) error {
	t, ok := m.targets[id]
	if !ok {
		return fmt.Errorf("target %d: %w", id, legionerrors.ErrTargetNotFound)
	}
	if t.State != constants.TargetStateDispatched {
		return fmt.Errorf("target %d is %s, expected %s: %w",
			id, t.State, constants.TargetStateDispatched, legionerrors.ErrAlreadyOutstanding)
	}

	travel := t.TravelTime
	if reportedTravel > travel {
		m.logger.Debug().
			Int64("target_id", id).
			Dur("estimated", travel).
			Dur("reported", reportedTravel).
			Msg("page-reported travel time overrides estimate")
		travel = reportedTravel
		t.TravelTime = reportedTravel
	}

	t.State = constants.TargetStateInTransit
	t.LastDispatchTime = dispatchedAt
	t.RaidsSent++

	eligible := dispatchedAt.Add(2*travel + m.opts.SafetyMargin)
	if eligible.After(t.NextEligibleTime) {
		t.NextEligibleTime = eligible
	}

	m.logger.Info().
		Int64("target_id", id).
		Time("next_eligible", t.NextEligibleTime).
		Int("raids_sent", t.RaidsSent).
		Msg("raid dispatch confirmed")

	return m.Save(ctx)
}

// Release returns a target to Idle after its raid task permanently failed:
// no troops were sent, so the eligibility window never closed. The failure
// reason is recorded on the target; the task's own failure is surfaced by
// the executor, never hidden here.
func (m *Manager) Release(ctx context.Context, id int64, reason string) error {
	t, ok := m.targets[id]
	if !ok {
		return fmt.Errorf("target %d: %w", id, legionerrors.ErrTargetNotFound)
	}
	if t.State == constants.TargetStateIdle {
		return nil
	}

	t.State = constants.TargetStateIdle
	t.LastError = reason

	m.logger.Warn().
		Int64("target_id", id).
		Str("reason", reason).
		Msg("raid target released without dispatch")

	return m.Save(ctx)
}

// Tick advances time-driven transitions for every target and produces raid
// tasks for targets whose eligibility window and cadence have both elapsed.
// Multiple eligible targets dispatch sequentially with the fixed
// inter-dispatch spacing to avoid burst request patterns. Returns the ids of
// produced tasks.
func (m *Manager) Tick(ctx context.Context, exec Enqueuer, now time.Time) ([]int64, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	changed := false
	for _, t := range m.targets {
		if m.advance(t, now) {
			changed = true
		}
	}
	if changed {
		if err := m.Save(ctx); err != nil {
			return nil, err
		}
	}

	var produced []int64
	for _, id := range m.sortedIDs() {
		t := m.targets[id]
		if !m.eligible(t, now) {
			continue
		}

		if len(produced) > 0 {
			select {
			case <-ctx.Done():
				return produced, ctx.Err()
			case <-timeAfter(m.opts.DispatchSpacing):
			}
		}

		taskID, err := m.Dispatch(ctx, exec, id)
		if err != nil {
			m.logger.Error().Err(err).Int64("target_id", id).Msg("dispatch failed during tick")
			continue
		}
		produced = append(produced, taskID)
	}
	return produced, nil
}

// advance applies elapsed-time transitions to one target, cascading when a
// long gap between ticks covers both the arrival and the return. Returns
// true when the state changed.
func (m *Manager) advance(t *domain.RaidTarget, now time.Time) bool {
	changed := false
	for {
		switch t.State {
		case constants.TargetStateInTransit:
			if !t.LastDispatchTime.IsZero() && !now.Before(t.LastDispatchTime.Add(t.TravelTime)) {
				t.State = constants.TargetStateAwaitingReturn
				changed = true
				continue
			}
		case constants.TargetStateAwaitingReturn:
			if !t.NextEligibleTime.IsZero() && !now.Before(t.NextEligibleTime) {
				t.State = constants.TargetStateIdle
				changed = true
				continue
			}
		case constants.TargetStateIdle, constants.TargetStateDispatched:
			// Idle waits for the tick's eligibility scan; Dispatched waits
			// for the raid task outcome, not for elapsed time.
		}
		return changed
	}
}

// eligible reports whether an Idle target is due for a new raid: enabled,
// its troops home (next_eligible elapsed), and the configured cadence
// elapsed since the last dispatch. Never-raided targets are due immediately.
func (m *Manager) eligible(t *domain.RaidTarget, now time.Time) bool {
	if !t.Enabled || t.State != constants.TargetStateIdle {
		return false
	}
	if t.LastDispatchTime.IsZero() {
		return true
	}
	if now.Before(t.NextEligibleTime) {
		return false
	}
	return !now.Before(t.LastDispatchTime.Add(m.opts.Cadence))
}

// sortedIDs returns target ids in ascending order for deterministic ticks.
func (m *Manager) sortedIDs() []int64 {
	ids := make([]int64, 0, len(m.targets))
	for id := range m.targets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// snapshot returns copies of all targets sorted by id.
func (m *Manager) snapshot() []domain.RaidTarget {
	out := make([]domain.RaidTarget, 0, len(m.targets))
	for _, t := range m.targets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
