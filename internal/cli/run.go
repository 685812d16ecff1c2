package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrz1836/legion/internal/browser"
	"github.com/mrz1836/legion/internal/config"
	"github.com/mrz1836/legion/internal/ctxutil"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/guard"
	"github.com/mrz1836/legion/internal/session"
	"github.com/mrz1836/legion/internal/signal"
	"github.com/mrz1836/legion/internal/task"
	"github.com/mrz1836/legion/internal/tui"
)

// runFlags holds flags for the run command.
type runFlags struct {
	// Sessions selects the partitions to run. Empty means all configured.
	Sessions []string
}

// AddRunCommand adds the run command to the root command.
func AddRunCommand(root *cobra.Command) {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the automation workers",
		Long: `Start one worker per session partition and run until interrupted.

Each worker owns a browser, logs in, then loops: produce due raids,
execute the next eligible task, sleep until something becomes eligible.
Connection outages pause the loop and retry with backoff; Ctrl+C stops
cleanly at the next task boundary.

Examples:
  legion run                     # all configured sessions
  legion run --session default   # one session
  legion run -s main -s alt      # several`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd.Context(), cmd, flags, os.Stderr)
		},
	}
	cmd.Flags().StringArrayVarP(&flags.Sessions, "session", "s", nil, "session to run (repeatable; default: all configured)")
	root.AddCommand(cmd)
}

func runRun(ctx context.Context, _ *cobra.Command, flags *runFlags, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	logger := Logger()
	tui.CheckNoColor()
	styles := tui.NewOutputStyles()

	cfg := loadConfig(ctx, logger)
	names := flags.Sessions
	if len(names) == 0 {
		names = cfg.SessionNames()
	}

	h := signal.NewHandler(ctx)
	defer h.Stop()
	ctx = h.Context()

	// Operator-facing escalations go to stderr directly: they need eyes
	// even when logs are piped away.
	onAlert := func(state guard.State, cause error) {
		fmt.Fprintln(w, styles.Error.Render(fmt.Sprintf(
			"⚠ connection down: %d consecutive failures, retrying every %s (%v)",
			state.ConsecutiveFailures, state.CurrentBackoff, cause)))
	}
	onChallenge := func(t domain.Task, cause error) {
		fmt.Fprintln(w, styles.Warning.Render(fmt.Sprintf(
			"⚠ task %d (%s) hit a challenge and was deferred to %s; solve it in the browser or configure a solver",
			t.ID, t.Kind, t.NotBefore.Format("15:04:05"))))
	}

	workers := make([]*session.Worker, 0, len(names))
	for _, name := range names {
		worker, err := buildWorker(ctx, cfg, name, onAlert, onChallenge, logger)
		if err != nil {
			closeWorkers(ctx, workers, logger)
			return err
		}
		workers = append(workers, worker)
	}

	pool := session.NewPool(logger, workers...)
	logger.Info().Int("sessions", len(workers)).Msg("legion running, Ctrl+C to stop")

	if err := pool.Run(ctx, nil); err != nil {
		return err
	}
	fmt.Fprintln(w, styles.Success.Render("✓ stopped cleanly"))
	return nil
}

// buildWorker creates the browser session and worker for one partition.
func buildWorker(
	ctx context.Context,
	cfg *config.Config,
	name string,
	onAlert guard.AlertFunc,
	onChallenge task.ChallengeFunc,
	logger zerolog.Logger,
) (*session.Worker, error) {
	sess, err := browser.NewChrome(ctx, browser.Options{
		Headless:    cfg.Browser.Headless,
		UserDataDir: userDataDirFor(cfg, name),
		NavTimeout:  cfg.Browser.NavTimeout,
	}, logger)
	if err != nil {
		return nil, legionerrors.Wrapf(err, "failed to start browser for session %s", name)
	}

	worker, err := session.NewWorker(ctx, name, cfg, sess, session.Options{
		OnAlert:     onAlert,
		OnChallenge: onChallenge,
	}, logger)
	if err != nil {
		_ = sess.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return worker, nil
}

// userDataDirFor gives each session its own browser profile so cookies do
// not leak between accounts. Empty config means throwaway profiles.
func userDataDirFor(cfg *config.Config, name string) string {
	if cfg.Browser.UserDataDir == "" {
		return ""
	}
	return filepath.Join(cfg.Browser.UserDataDir, name)
}

// closeWorkers tears down already-built workers after a later one fails.
func closeWorkers(ctx context.Context, workers []*session.Worker, logger zerolog.Logger) {
	for _, w := range workers {
		if err := w.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Str("session", w.Name()).Msg("failed to close session")
		}
	}
}
