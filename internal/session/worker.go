// Package session assembles one automation worker per state partition: a
// browser session, a task executor over the partition's queue, a selector
// registry with healing, a connection guard and a farm manager, wired
// together and run as a single loop. A pool fans out over disjoint
// partitions when several accounts or villages are driven at once.
package session

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/legion/internal/browser"
	"github.com/mrz1836/legion/internal/clock"
	"github.com/mrz1836/legion/internal/config"
	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/ctxutil"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/farm"
	"github.com/mrz1836/legion/internal/guard"
	"github.com/mrz1836/legion/internal/heal"
	"github.com/mrz1836/legion/internal/infer"
	"github.com/mrz1836/legion/internal/selector"
	"github.com/mrz1836/legion/internal/store"
	"github.com/mrz1836/legion/internal/task"
)

// Options carries the optional collaborators a Worker accepts. Everything
// nil falls back to what the configuration provides; tests inject fakes.
type Options struct {
	// Dir overrides the session state directory.
	Dir string

	// Proposer overrides the inference client used for healing.
	Proposer infer.Proposer

	// Solver overrides the challenge solver.
	Solver browser.ChallengeSolver

	// Clock supplies time everywhere in the worker.
	Clock clock.Clock

	// OnAlert receives connection outage alerts.
	OnAlert guard.AlertFunc

	// OnChallenge receives challenge escalations after a task is deferred.
	OnChallenge task.ChallengeFunc
}

// Worker owns one partition end to end. Nothing in it is shared with other
// workers; concurrency across partitions needs no locking.
type Worker struct {
	name     string
	cfg      *config.Config
	sess     browser.Session
	exec     *task.Executor
	registry *selector.Registry
	finder   *heal.Finder
	guard    *guard.Guard
	farms    *farm.Manager
	solver   browser.ChallengeSolver
	clk      clock.Clock
	logger   zerolog.Logger
}

// NewWorker builds a fully wired worker for the named session partition.
// State files live under the partition directory; the browser session is
// owned by the worker from here on.
func NewWorker(ctx context.Context, name string, cfg *config.Config, sess browser.Session, opts Options, logger zerolog.Logger) (*Worker, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, legionerrors.ErrConfigNil
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}

	dir := opts.Dir
	if dir == "" {
		var err error
		dir, err = cfg.SessionDirFor(name)
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, store.DirPerm); err != nil {
		return nil, legionerrors.Wrapf(err, "failed to create session dir %s", dir)
	}

	wlog := logger.With().Str("session", name).Logger()

	registry := selector.New(
		store.NewFile(filepath.Join(dir, constants.SelectorsFileName)),
		selector.DefaultParams(), wlog)
	if err := registry.Load(ctx); err != nil {
		return nil, err
	}
	if err := seedDefaults(ctx, registry, opts.Clock.Now()); err != nil {
		return nil, err
	}

	proposer, solver := opts.Proposer, opts.Solver
	if proposer == nil && cfg.Healing.Enabled {
		client, err := infer.NewClient(infer.Options{
			APIKey:         os.Getenv(cfg.Healing.APIKeyEnvVar),
			Model:          cfg.Healing.Model,
			BaseURL:        cfg.Healing.BaseURL,
			RequestTimeout: cfg.Healing.RequestTimeout,
			MaxHTMLBytes:   cfg.Healing.MaxHTMLBytes,
		}, wlog)
		if err != nil {
			wlog.Warn().Err(err).Msg("selector healing disabled")
		} else {
			proposer = client
			if solver == nil {
				solver = client
			}
		}
	}

	healer := heal.NewHealer(registry, proposer, heal.Options{
		Cooldown:       cfg.Healing.Cooldown,
		RequestTimeout: cfg.Healing.RequestTimeout,
		Clock:          opts.Clock,
	}, wlog)
	finder := heal.NewFinder(registry, healer, opts.Clock, wlog)

	farms := farm.NewManager(
		store.NewFile(filepath.Join(dir, constants.FarmsFileName)),
		farm.Options{
			HomeX:           cfg.Server.HomeX,
			HomeY:           cfg.Server.HomeY,
			Tribe:           cfg.Server.Tribe,
			ServerSpeed:     cfg.Server.Speed,
			Cadence:         cfg.Raids.Cadence,
			SafetyMargin:    cfg.Raids.SafetyMargin,
			DispatchSpacing: cfg.Raids.DispatchSpacing,
			MaxAttempts:     cfg.Scheduler.DefaultMaxAttempts,
			Clock:           opts.Clock,
		}, wlog)
	if err := farms.Load(ctx); err != nil {
		return nil, err
	}

	w := &Worker{
		name:     name,
		cfg:      cfg,
		sess:     sess,
		registry: registry,
		finder:   finder,
		farms:    farms,
		solver:   solver,
		clk:      opts.Clock,
		logger:   wlog,
	}

	w.guard = guard.New(guard.Options{
		BackoffBase:    cfg.Connection.BackoffBase,
		BackoffMax:     cfg.Connection.BackoffMax,
		AlertThreshold: cfg.Connection.AlertThreshold,
		OnAlert:        opts.OnAlert,
		OnRecover:      w.login,
		Clock:          opts.Clock,
	}, wlog)

	w.exec = task.NewExecutor(task.NewStore(dir, wlog), task.Options{
		PollInterval:       cfg.Scheduler.PollInterval,
		NotBeforeTolerance: cfg.Scheduler.NotBeforeTolerance,
		TaskTimeout:        cfg.Scheduler.TaskTimeout,
		BackoffBase:        cfg.Scheduler.BackoffBase,
		BackoffMax:         cfg.Scheduler.BackoffMax,
		ChallengeDelay:     cfg.Scheduler.ChallengeDelay,
		Clock:              opts.Clock,
		Guard:              w.guard,
		OnChallenge:        opts.OnChallenge,
		OnPermanentFailure: w.onPermanentFailure,
		BeforeCycle:        w.tick,
	}, wlog)

	w.exec.Register(constants.TaskKindRaid, w.handleRaid)
	w.exec.Register(constants.TaskKindBuild, w.handleBuild)
	w.exec.Register(constants.TaskKindTrainTroops, w.handleTrainTroops)
	w.exec.Register(constants.TaskKindScan, w.handleScan)
	w.exec.Register(constants.TaskKindCustom, w.handleCustom)

	return w, nil
}

// Name returns the session partition name.
func (w *Worker) Name() string { return w.name }

// Executor exposes the worker's task executor for CLI wiring.
func (w *Worker) Executor() *task.Executor { return w.exec }

// Farms exposes the worker's farm manager for CLI wiring.
func (w *Worker) Farms() *farm.Manager { return w.farms }

// Registry exposes the worker's selector registry for CLI wiring.
func (w *Worker) Registry() *selector.Registry { return w.registry }

// Finder exposes the worker's element finder.
func (w *Worker) Finder() *heal.Finder { return w.finder }

// Guard exposes the worker's connection guard for status surfaces.
func (w *Worker) Guard() *guard.Guard { return w.guard }

// Session exposes the worker's browser session.
func (w *Worker) Session() browser.Session { return w.sess }

// Run recovers interrupted tasks, brings the session to a logged-in state
// and drives the executor loop until ctx is canceled or stop answers true.
// Login runs through the guard so a dead connection at startup is waited
// out, not fatal.
func (w *Worker) Run(ctx context.Context, stop task.StopFunc) error {
	if err := w.exec.Recover(ctx); err != nil {
		return err
	}
	if err := w.guard.Execute(ctx, w.login); err != nil {
		return err
	}
	w.logger.Info().Msg("worker running")
	return w.exec.RunLoop(ctx, stop)
}

// Close shuts the browser session down.
func (w *Worker) Close(ctx context.Context) error {
	return w.sess.Close(ctx)
}

// login brings the browser to an authenticated state. Also the guard's
// recovery hook: after an outage the session may have been logged out.
func (w *Worker) login(ctx context.Context) error {
	return browser.EnsureLoggedIn(ctx, w.sess, w.finder, w.solver,
		w.cfg.Server.BaseURL,
		browser.Credentials{
			Username: w.cfg.Account.Username,
			Password: w.cfg.Account.Password,
		}, w.logger)
}

// tick runs the farm scheduler pass at the top of each executor cycle.
func (w *Worker) tick(ctx context.Context, now time.Time) error {
	_, err := w.farms.Tick(ctx, w.exec, now)
	return err
}

// onPermanentFailure releases raid targets whose task exhausted its budget:
// the dispatch never happened, so the troops are home.
func (w *Worker) onPermanentFailure(ctx context.Context, t domain.Task) {
	if t.Kind != constants.TaskKindRaid {
		return
	}
	targetID, ok := t.PayloadInt64(farm.PayloadKeyTargetID)
	if !ok {
		return
	}
	if err := w.farms.Release(ctx, targetID, t.LastError); err != nil {
		w.logger.Warn().Err(err).Int64("target_id", targetID).Msg("failed to release raid target")
	}
}
