package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/legion/internal/config"
	"github.com/mrz1836/legion/internal/ctxutil"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/tui"
)

// AddConfigCommand adds the config command group to the root command.
func AddConfigCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	root.AddCommand(cmd)
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Print the merged configuration after defaults, config files and
LEGION_* environment variables are applied. The account password is
always redacted.

Examples:
  legion config show
  legion config show --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd.Context(), cmd, os.Stdout)
		},
	}
}

func runConfigShow(ctx context.Context, cmd *cobra.Command, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	out := tui.NewOutput(w, cmd.Flag("output").Value.String())

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	redacted := *cfg
	if redacted.Account.Password != "" {
		redacted.Account.Password = "[REDACTED]"
	}

	if cmd.Flag("output").Value.String() == OutputJSON {
		return out.JSON(redacted)
	}

	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return legionerrors.Wrap(err, "failed to marshal config")
	}
	_, err = w.Write(data)
	return err
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration and state paths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigPath(cmd.Context(), cmd, os.Stdout)
		},
	}
}

func runConfigPath(ctx context.Context, cmd *cobra.Command, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	out := tui.NewOutput(w, cmd.Flag("output").Value.String())

	globalPath, err := config.GlobalConfigPath()
	if err != nil {
		return err
	}
	logsDir, err := config.LogsDir()
	if err != nil {
		return err
	}

	cfg := loadConfig(ctx, Logger())
	sessions := make(map[string]string, len(cfg.SessionNames()))
	for _, name := range cfg.SessionNames() {
		dir, derr := cfg.SessionDirFor(name)
		if derr != nil {
			return derr
		}
		sessions[name] = dir
	}

	if cmd.Flag("output").Value.String() == OutputJSON {
		return out.JSON(map[string]any{
			"global_config":  globalPath,
			"project_config": config.ProjectConfigPath(),
			"logs_dir":       logsDir,
			"sessions":       sessions,
		})
	}

	tui.CheckNoColor()
	styles := tui.NewOutputStyles()
	fmt.Fprintln(w, "global config:  "+globalPath)
	fmt.Fprintln(w, "project config: "+config.ProjectConfigPath())
	fmt.Fprintln(w, "logs:           "+logsDir)
	for _, name := range cfg.SessionNames() {
		fmt.Fprintln(w, styles.Dim.Render(fmt.Sprintf("session %-10s %s", name, sessions[name])))
	}
	return nil
}
