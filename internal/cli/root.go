package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrz1836/legion/internal/errors"
)

// BuildInfo holds version information injected at build time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// globalLogger is the logger configured by PersistentPreRunE, shared by all
// commands in the process.
var (
	globalLogger   zerolog.Logger //nolint:gochecknoglobals // Configured once per invocation
	globalLoggerMu sync.RWMutex   //nolint:gochecknoglobals // Protects globalLogger
)

// Logger returns the logger configured for this invocation.
func Logger() zerolog.Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

// setLogger stores the logger configured by PersistentPreRunE.
func setLogger(logger zerolog.Logger) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = logger
}

// newRootCmd creates the root legion command with global flags and all
// subcommands registered.
func newRootCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "legion",
		Short: "Browser automation for the patient empire builder",
		Long: `LEGION drives a browser-based strategy game through a headless browser:
it schedules durable tasks, raids farm targets on travel-time-aware
cycles, rides out connection outages, and heals its own UI selectors
when the page changes underneath it.

State lives under ~/.legion; each configured session owns a disjoint
partition and its own browser profile.

Common commands:
  legion init           Interactive configuration setup
  legion run            Start the automation workers
  legion task add       Enqueue a task
  legion farm add       Register a farm target
  legion status         Show queue, farm and connection state
  legion watch          Live dashboard`,
		Version:       formatVersion(info),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := BindGlobalFlags(v, cmd); err != nil {
				return fmt.Errorf("failed to bind global flags: %w", err)
			}
			if !IsValidOutputFormat(flags.Output) {
				return fmt.Errorf("%w: %q (valid: text, json)", errors.ErrInvalidOutputFormat, flags.Output)
			}
			setLogger(InitLogger(flags.Verbose, flags.Quiet))
			return nil
		},
	}

	AddGlobalFlags(cmd, flags)

	AddInitCommand(cmd)
	AddConfigCommand(cmd)
	AddRunCommand(cmd)
	AddTaskCommand(cmd)
	AddFarmCommand(cmd)
	AddSelectorCommand(cmd)
	AddStatusCommand(cmd)
	AddReportCommand(cmd)
	AddWatchCommand(cmd)
	AddVersionCommand(cmd, info)

	return cmd
}

// formatVersion formats the build info for --version output.
func formatVersion(info BuildInfo) string {
	version := info.Version
	if version == "" {
		version = "dev"
	}
	if info.Commit != "" && info.Date != "" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, info.Commit, info.Date)
	}
	return version
}

// Execute runs the root command and returns its exit code.
func Execute(ctx context.Context, info BuildInfo) int {
	flags := &GlobalFlags{}
	cmd := newRootCmd(flags, info)
	cmd.SetContext(ctx)

	defer CloseLogFile()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return ExitCodeForError(err)
	}
	return ExitSuccess
}
