package cli

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrz1836/legion/internal/config"
	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/farm"
	"github.com/mrz1836/legion/internal/selector"
	"github.com/mrz1836/legion/internal/store"
	"github.com/mrz1836/legion/internal/task"
)

// sessionFlags holds the per-session targeting flags shared by the task,
// farm and selector command groups.
type sessionFlags struct {
	// Session names the state partition to operate on.
	Session string
	// Dir overrides the partition directory. Primarily for scripting and
	// tests.
	Dir string
}

// addSessionFlags registers the session targeting flags on a command group.
func addSessionFlags(cmd *cobra.Command, flags *sessionFlags) {
	cmd.PersistentFlags().StringVarP(&flags.Session, "session", "s", "default", "session partition to operate on")
	cmd.PersistentFlags().StringVar(&flags.Dir, "dir", "", "override the session state directory")
}

// loadConfig loads the effective configuration, falling back to defaults
// when no config file exists yet.
func loadConfig(ctx context.Context, logger zerolog.Logger) *config.Config {
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load config, using defaults")
		cfg = config.DefaultConfig()
	}
	return cfg
}

// resolveSessionDir resolves the state directory for the targeted session.
func resolveSessionDir(cfg *config.Config, flags *sessionFlags) (string, error) {
	if flags.Dir != "" {
		return flags.Dir, nil
	}
	return cfg.SessionDirFor(flags.Session)
}

// openTaskStore opens the task queue store for the targeted session.
func openTaskStore(cfg *config.Config, flags *sessionFlags, logger zerolog.Logger) (*task.Store, error) {
	dir, err := resolveSessionDir(cfg, flags)
	if err != nil {
		return nil, err
	}
	return task.NewStore(dir, logger), nil
}

// openFarms opens and loads the farm list for the targeted session.
func openFarms(ctx context.Context, cfg *config.Config, flags *sessionFlags, logger zerolog.Logger) (*farm.Manager, error) {
	dir, err := resolveSessionDir(cfg, flags)
	if err != nil {
		return nil, err
	}
	farms := farm.NewManager(
		store.NewFile(filepath.Join(dir, constants.FarmsFileName)),
		farmOptions(cfg), logger)
	if err = farms.Load(ctx); err != nil {
		return nil, err
	}
	return farms, nil
}

// openRegistry opens and loads the selector registry for the targeted session.
func openRegistry(ctx context.Context, cfg *config.Config, flags *sessionFlags, logger zerolog.Logger) (*selector.Registry, error) {
	dir, err := resolveSessionDir(cfg, flags)
	if err != nil {
		return nil, err
	}
	registry := selector.New(
		store.NewFile(filepath.Join(dir, constants.SelectorsFileName)),
		selector.DefaultParams(), logger)
	if err = registry.Load(ctx); err != nil {
		return nil, err
	}
	return registry, nil
}

// farmOptions maps configuration onto farm manager options.
func farmOptions(cfg *config.Config) farm.Options {
	return farm.Options{
		HomeX:           cfg.Server.HomeX,
		HomeY:           cfg.Server.HomeY,
		Tribe:           cfg.Server.Tribe,
		ServerSpeed:     cfg.Server.Speed,
		Cadence:         cfg.Raids.Cadence,
		SafetyMargin:    cfg.Raids.SafetyMargin,
		DispatchSpacing: cfg.Raids.DispatchSpacing,
		MaxAttempts:     cfg.Scheduler.DefaultMaxAttempts,
	}
}

// newEnqueueExecutor builds a handler-less executor for offline enqueue
// validation. The run loop never starts on it.
func newEnqueueExecutor(cfg *config.Config, s *task.Store, logger zerolog.Logger) *task.Executor {
	return task.NewExecutor(s, task.Options{
		NotBeforeTolerance: cfg.Scheduler.NotBeforeTolerance,
	}, logger)
}
