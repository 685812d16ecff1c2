// Package task provides the durable task queue and scheduling engine for LEGION.
//
// This file implements the Executor, the single logical worker that pulls
// eligible tasks from the store, dispatches them to kind handlers, and applies
// the retry policy. Connection outages are waited out by the connectivity
// guard and never consume a task's attempt budget; logic failures are retried
// with capped exponential backoff until the budget is spent.
package task

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/legion/internal/clock"
	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/ctxutil"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/guard"
)

// timeAfter is the timer seam for loop sleeps. Stubbed in tests to avoid
// real waits.
//
//nolint:gochecknoglobals // Test seam following the established retry pattern
var timeAfter = time.After

// maxTaskBackoffShift caps the re-enqueue backoff exponent.
const maxTaskBackoffShift = 20

// HandlerFunc executes one task attempt. The context carries the per-task
// deadline. A nil return marks the attempt succeeded; errors are classified
// by the executor into connection, challenge and logic outcomes.
type HandlerFunc func(ctx context.Context, t *domain.Task) error

// ChallengeFunc is the escalation hook fired when an attempt runs into a
// human-solvable challenge. The task has already been deferred when it fires.
type ChallengeFunc func(t domain.Task, cause error)

// PermanentFailureFunc fires when a task spends its whole attempt budget.
// The session worker uses it to release raid targets whose dispatch never
// happened.
type PermanentFailureFunc func(ctx context.Context, t domain.Task)

// CycleFunc runs at the top of every loop cycle, before task selection.
// The farm manager's tick is wired here so raid production shares the
// executor's cadence.
type CycleFunc func(ctx context.Context, now time.Time) error

// StopFunc is the cooperative stop predicate, consulted only at loop and
// task boundaries so an in-flight action always completes or fails cleanly.
type StopFunc func() bool

// Options configures an Executor. Zero fields fall back to the package
// defaults in constants.
type Options struct {
	// PollInterval bounds the idle sleep between cycles.
	PollInterval time.Duration

	// NotBeforeTolerance is how stale a not_before may be at enqueue time.
	NotBeforeTolerance time.Duration

	// TaskTimeout is the deadline applied to each handler invocation.
	TaskTimeout time.Duration

	// BackoffBase seeds the re-enqueue delay after a logic failure.
	BackoffBase time.Duration

	// BackoffMax caps the re-enqueue delay.
	BackoffMax time.Duration

	// ChallengeDelay defers a task that ran into a challenge.
	ChallengeDelay time.Duration

	// Clock supplies time for eligibility and backoff math.
	Clock clock.Clock

	// Guard waits out connection outages. Optional; without it connection
	// failures are treated as logic failures.
	Guard *guard.Guard

	// OnChallenge is the challenge escalation hook. Optional.
	OnChallenge ChallengeFunc

	// OnPermanentFailure fires for tasks that exhaust their budget. Optional.
	OnPermanentFailure PermanentFailureFunc

	// BeforeCycle runs at the top of each loop cycle. Optional.
	BeforeCycle CycleFunc
}

// Executor is the central scheduler. It owns its store exclusively and
// persists every status transition before the next task starts, so at most
// one task is ever mid-execution across restarts.
type Executor struct {
	store    *Store
	handlers map[constants.TaskKind]HandlerFunc

	pollInterval       time.Duration
	notBeforeTolerance time.Duration
	taskTimeout        time.Duration
	backoffBase        time.Duration
	backoffMax         time.Duration
	challengeDelay     time.Duration
	clk                clock.Clock
	guard              *guard.Guard
	onChallenge        ChallengeFunc
	onPermanentFailure PermanentFailureFunc
	beforeCycle        CycleFunc
	logger             zerolog.Logger
}

// NewExecutor creates an Executor over the given store.
func NewExecutor(s *Store, opts Options, logger zerolog.Logger) *Executor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = constants.DefaultPollInterval
	}
	if opts.NotBeforeTolerance <= 0 {
		opts.NotBeforeTolerance = constants.DefaultNotBeforeTolerance
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = constants.DefaultTaskTimeout
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = constants.DefaultTaskBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = constants.DefaultTaskBackoffMax
	}
	if opts.ChallengeDelay <= 0 {
		opts.ChallengeDelay = constants.DefaultChallengeDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Executor{
		store:              s,
		handlers:           make(map[constants.TaskKind]HandlerFunc),
		pollInterval:       opts.PollInterval,
		notBeforeTolerance: opts.NotBeforeTolerance,
		taskTimeout:        opts.TaskTimeout,
		backoffBase:        opts.BackoffBase,
		backoffMax:         opts.BackoffMax,
		challengeDelay:     opts.ChallengeDelay,
		clk:                opts.Clock,
		guard:              opts.Guard,
		onChallenge:        opts.OnChallenge,
		onPermanentFailure: opts.OnPermanentFailure,
		beforeCycle:        opts.BeforeCycle,
		logger:             logger.With().Str("component", "executor").Logger(),
	}
}

// Register installs the handler for a task kind. Registering twice replaces
// the previous handler.
func (e *Executor) Register(kind constants.TaskKind, h HandlerFunc) {
	e.handlers[kind] = h
}

// Store exposes the executor's store for read-only surfaces (status, watch).
func (e *Executor) Store() *Store {
	return e.store
}

// Enqueue validates the task and inserts it into the queue, returning the
// assigned id. A not_before older than now by more than the tolerance is
// rejected; inside the tolerance it clamps to now. The attempt budget must
// be at least one and the kind must be known.
func (e *Executor) Enqueue(ctx context.Context, t *domain.Task) (int64, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return 0, err
	}
	if t == nil {
		return 0, fmt.Errorf("%w: task is nil", legionerrors.ErrInvalidTask)
	}
	if t.MaxAttempts < 1 {
		return 0, fmt.Errorf("%w: max_attempts must be at least 1, got %d",
			legionerrors.ErrInvalidTask, t.MaxAttempts)
	}
	if !knownKind(t.Kind) {
		return 0, fmt.Errorf("%w: %w: %q", legionerrors.ErrInvalidTask,
			legionerrors.ErrUnknownTaskKind, t.Kind)
	}

	now := e.clk.Now().UTC()
	switch {
	case t.NotBefore.IsZero():
		t.NotBefore = now
	case now.Sub(t.NotBefore) > e.notBeforeTolerance:
		return 0, fmt.Errorf("%w: not_before %s is more than %s in the past",
			legionerrors.ErrInvalidTask, t.NotBefore.Format(time.RFC3339), e.notBeforeTolerance)
	case t.NotBefore.Before(now):
		t.NotBefore = now
	}

	t.Status = constants.TaskStatusPending
	t.CreatedAt = now
	t.UpdatedAt = now
	t.SchemaVersion = constants.QueueSchemaVersion

	return e.store.Enqueue(ctx, t)
}

// Recover handles tasks left in the running state by a crash. The action's
// real-world effect cannot be verified after the fact, so each one is
// treated as a failed attempt and re-enqueued or permanently failed by the
// usual rule. Call once before the first cycle.
func (e *Executor) Recover(ctx context.Context) error {
	active, err := e.store.ListActive(ctx)
	if err != nil {
		return err
	}

	for i := range active {
		t := &active[i]
		if t.Status != constants.TaskStatusRunning {
			continue
		}

		e.logger.Warn().
			Int64("task_id", t.ID).
			Str("kind", t.Kind.String()).
			Msg("recovering task interrupted mid-execution")

		if err := e.failAttempt(ctx, t, legionerrors.ErrLogicFailure, "interrupted by restart"); err != nil {
			return err
		}
	}
	return nil
}

// RunOnce selects and executes the next eligible task: smallest not_before
// at or before now, ties broken by higher priority, then lowest id. Returns
// the task in its post-attempt state, or ErrNoEligibleTask when the queue
// has nothing to do right now.
func (e *Executor) RunOnce(ctx context.Context) (*domain.Task, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	now := e.clk.Now().UTC()
	t, err := e.pickEligible(ctx, now)
	if err != nil {
		return nil, err
	}

	if err := Transition(ctx, e.clk, t, constants.TaskStatusRunning, "selected by scheduler"); err != nil {
		return nil, err
	}
	if err := e.store.Update(ctx, t); err != nil {
		return nil, err
	}

	e.logger.Info().
		Int64("task_id", t.ID).
		Str("kind", t.Kind.String()).
		Int("attempt", t.AttemptCount+1).
		Int("max_attempts", t.MaxAttempts).
		Msg("task started")

	runErr := e.execute(ctx, t)

	// A canceled context means shutdown mid-action. Leave the task running;
	// Recover treats it as an interrupted attempt on the next start.
	if runErr != nil && ctxutil.Canceled(ctx) != nil {
		return nil, runErr
	}

	if runErr == nil {
		return t, e.succeed(ctx, t)
	}
	if stderrors.Is(runErr, legionerrors.ErrChallengeRequired) {
		return t, e.deferForChallenge(ctx, t, runErr)
	}
	return t, e.failAttempt(ctx, t, runErr, "logic failure")
}

// RunLoop drives RunOnce until the context is canceled or the stop predicate
// returns true. The predicate is consulted only at cycle boundaries. When no
// task is eligible the loop sleeps until the nearest not_before or the poll
// interval, whichever is sooner; it never busy-spins.
func (e *Executor) RunLoop(ctx context.Context, stop StopFunc) error {
	for {
		if err := ctxutil.Canceled(ctx); err != nil {
			return err
		}
		if stop != nil && stop() {
			e.logger.Info().Msg("stop requested, leaving run loop")
			return nil
		}

		now := e.clk.Now().UTC()
		if e.beforeCycle != nil {
			if err := e.beforeCycle(ctx, now); err != nil {
				if ctxutil.Canceled(ctx) != nil {
					return err
				}
				e.logger.Error().Err(err).Msg("cycle hook failed")
			}
		}

		_, err := e.RunOnce(ctx)
		switch {
		case err == nil:
			// Execute the next eligible task immediately.
		case stderrors.Is(err, legionerrors.ErrNoEligibleTask):
			if err := e.sleep(ctx, now); err != nil {
				return err
			}
		case ctxutil.Canceled(ctx) != nil:
			return err
		default:
			// Store-level failures should not hot-loop.
			e.logger.Error().Err(err).Msg("scheduler cycle failed")
			if err := e.sleep(ctx, now); err != nil {
				return err
			}
		}
	}
}

// execute runs the task's handler under the per-task deadline, routed
// through the connectivity guard so connection outages retry transparently.
// A handler that exceeds its own deadline is a logic failure, not an outage.
func (e *Executor) execute(ctx context.Context, t *domain.Task) error {
	h, ok := e.handlers[t.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", legionerrors.ErrUnknownTaskKind, t.Kind)
	}

	op := func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, e.taskTimeout)
		defer cancel()

		err := h(hctx, t)
		if err != nil && stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: task deadline (%s) exceeded: %w",
				legionerrors.ErrLogicFailure, e.taskTimeout, err)
		}
		return err
	}

	if e.guard != nil {
		return e.guard.Execute(ctx, op)
	}
	return op(ctx)
}

// succeed finishes a successful attempt: the task is archived as Succeeded.
func (e *Executor) succeed(ctx context.Context, t *domain.Task) error {
	if err := Transition(ctx, e.clk, t, constants.TaskStatusSucceeded, "handler succeeded"); err != nil {
		return err
	}
	if err := e.store.Update(ctx, t); err != nil {
		return err
	}

	e.logger.Info().
		Int64("task_id", t.ID).
		Str("kind", t.Kind.String()).
		Msg("task succeeded")

	return e.store.Archive(ctx, t)
}

// deferForChallenge re-enqueues a task that ran into a human-solvable
// challenge. The deferral consumes no attempt: rapid retries cannot succeed
// and the task itself did nothing wrong.
func (e *Executor) deferForChallenge(ctx context.Context, t *domain.Task, cause error) error {
	t.LastError = cause.Error()
	if err := Transition(ctx, e.clk, t, constants.TaskStatusFailed, "challenge required"); err != nil {
		return err
	}
	if err := Transition(ctx, e.clk, t, constants.TaskStatusPending, "deferred for challenge"); err != nil {
		return err
	}
	t.NotBefore = e.clk.Now().UTC().Add(e.challengeDelay)
	if err := e.store.Update(ctx, t); err != nil {
		return err
	}

	e.logger.Warn().
		Int64("task_id", t.ID).
		Time("not_before", t.NotBefore).
		Msg("challenge required, task deferred")

	if e.onChallenge != nil {
		e.onChallenge(*t, cause)
	}
	return nil
}

// failAttempt counts a logic failure against the task's budget. While
// attempts remain the task re-enqueues with exponential backoff; once the
// budget is spent it is archived as permanently Failed and surfaced.
func (e *Executor) failAttempt(ctx context.Context, t *domain.Task, cause error, reason string) error {
	t.AttemptCount++
	if cause != nil {
		t.LastError = cause.Error()
	}

	if err := Transition(ctx, e.clk, t, constants.TaskStatusFailed, reason); err != nil {
		return err
	}

	if !t.AttemptsExhausted() {
		delay := e.retryBackoff(t.AttemptCount)
		if err := Transition(ctx, e.clk, t, constants.TaskStatusPending, "re-enqueued for retry"); err != nil {
			return err
		}
		t.NotBefore = e.clk.Now().UTC().Add(delay)
		if err := e.store.Update(ctx, t); err != nil {
			return err
		}

		e.logger.Warn().
			Int64("task_id", t.ID).
			Int("attempt", t.AttemptCount).
			Int("max_attempts", t.MaxAttempts).
			Dur("retry_in", delay).
			Err(cause).
			Msg("task attempt failed, re-enqueued")
		return nil
	}

	if err := e.store.Update(ctx, t); err != nil {
		return err
	}
	if err := e.store.Archive(ctx, t); err != nil {
		return err
	}

	e.logger.Error().
		Int64("task_id", t.ID).
		Str("kind", t.Kind.String()).
		Int("attempts", t.AttemptCount).
		Str("last_error", t.LastError).
		Msg("task permanently failed")

	if e.onPermanentFailure != nil {
		e.onPermanentFailure(ctx, *t)
	}
	return nil
}

// pickEligible returns the pending task with the smallest not_before at or
// before now, breaking ties by higher priority, then lowest id.
func (e *Executor) pickEligible(ctx context.Context, now time.Time) (*domain.Task, error) {
	active, err := e.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var best *domain.Task
	for i := range active {
		t := &active[i]
		if t.Status != constants.TaskStatusPending || t.NotBefore.After(now) {
			continue
		}
		if best == nil || eligibleBefore(t, best) {
			best = t
		}
	}
	if best == nil {
		return nil, legionerrors.ErrNoEligibleTask
	}
	return best, nil
}

// eligibleBefore reports whether a should run before b.
func eligibleBefore(a, b *domain.Task) bool {
	if !a.NotBefore.Equal(b.NotBefore) {
		return a.NotBefore.Before(b.NotBefore)
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID < b.ID
}

// sleep idles until the nearest pending not_before or the poll interval,
// whichever is sooner.
func (e *Executor) sleep(ctx context.Context, now time.Time) error {
	wait := e.pollInterval
	if wake, ok := e.nextWake(ctx); ok {
		if d := wake.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timeAfter(wait):
		return nil
	}
}

// nextWake returns the earliest not_before among pending tasks.
func (e *Executor) nextWake(ctx context.Context) (time.Time, bool) {
	active, err := e.store.ListActive(ctx)
	if err != nil {
		return time.Time{}, false
	}

	var earliest time.Time
	found := false
	for i := range active {
		t := &active[i]
		if t.Status != constants.TaskStatusPending {
			continue
		}
		if !found || t.NotBefore.Before(earliest) {
			earliest = t.NotBefore
			found = true
		}
	}
	return earliest, found
}

// retryBackoff computes min(base << attempt, max) for re-enqueue delays.
func (e *Executor) retryBackoff(attempt int) time.Duration {
	if attempt > maxTaskBackoffShift {
		return e.backoffMax
	}
	d := e.backoffBase << uint(attempt)
	if d <= 0 || d > e.backoffMax {
		return e.backoffMax
	}
	return d
}

// knownKind reports whether the kind is one the executor accepts.
func knownKind(kind constants.TaskKind) bool {
	for _, k := range constants.KnownTaskKinds() {
		if k == kind {
			return true
		}
	}
	return false
}
