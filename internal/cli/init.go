package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/legion/internal/config"
	"github.com/mrz1836/legion/internal/constants"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/tui"
)

// initFlags holds flags specific to the init command.
type initFlags struct {
	// NoInteractive skips all prompts and writes defaults.
	NoInteractive bool
	// Force overwrites an existing config file without prompting.
	Force bool
}

// AddInitCommand adds the init command to the root command.
func AddInitCommand(root *cobra.Command) {
	flags := &initFlags{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the LEGION configuration",
		Long: `Set up LEGION with a guided wizard: game server URL, tribe and home
coordinates, account name, session partitions and selector healing.

The result is written to ~/.legion/config.yaml. Credentials are never
written; set LEGION_ACCOUNT_PASSWORD in the environment instead.

Use --no-interactive for scripted setups with defaults.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}
	cmd.Flags().BoolVar(&flags.NoInteractive, "no-interactive", false, "skip all prompts and use default values")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "overwrite an existing config file")
	root.AddCommand(cmd)
}

func runInit(ctx context.Context, w io.Writer, flags *initFlags) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	tui.CheckNoColor()
	styles := tui.NewOutputStyles()

	configPath, err := config.GlobalConfigPath()
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(configPath); statErr == nil && !flags.Force {
		if flags.NoInteractive {
			return legionerrors.Wrapf(legionerrors.ErrInvalidConfig,
				"config already exists at %s (use --force to overwrite)", configPath)
		}
		overwrite, promptErr := promptOverwrite(configPath)
		if promptErr != nil {
			return promptErr
		}
		if !overwrite {
			fmt.Fprintln(w, styles.Dim.Render("Keeping existing configuration."))
			return nil
		}
	}

	cfg := config.DefaultConfig()
	if !flags.NoInteractive {
		if err = runInitWizard(ctx, cfg); err != nil {
			return err
		}
	}

	if cfg.Healing.Enabled {
		if _, ok := os.LookupEnv(cfg.Healing.APIKeyEnvVar); !ok {
			fmt.Fprintln(w, styles.Warning.Render("⚠ "+cfg.Healing.APIKeyEnvVar+" is not set; selector healing will be skipped until it is"))
		}
	}

	if err = writeGlobalConfig(cfg, configPath); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, styles.Success.Render("✓ configuration saved"))
	fmt.Fprintln(w, styles.Dim.Render("  "+configPath))
	fmt.Fprintln(w)
	fmt.Fprintln(w, styles.Info.Render("Suggested next commands:"))
	fmt.Fprintln(w, styles.Dim.Render("  legion farm add <name> -x <x> -y <y>  - register a farm target"))
	fmt.Fprintln(w, styles.Dim.Render("  legion run                            - start the workers"))
	fmt.Fprintln(w, styles.Dim.Render("  legion status                         - inspect queue and farms"))
	return nil
}

// promptOverwrite asks before replacing an existing config file.
func promptOverwrite(configPath string) (bool, error) {
	var overwrite bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Configuration already exists").
				Description(configPath).
				Affirmative("Overwrite").
				Negative("Keep").
				Value(&overwrite),
		),
	).WithTheme(huh.ThemeCharm())
	if err := form.Run(); err != nil {
		return false, err
	}
	return overwrite, nil
}

// runInitWizard collects the core settings interactively, mutating cfg in
// place so unprompted sections keep their defaults.
func runInitWizard(ctx context.Context, cfg *config.Config) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	homeX := strconv.Itoa(cfg.Server.HomeX)
	homeY := strconv.Itoa(cfg.Server.HomeY)
	speed := strconv.FormatFloat(cfg.Server.Speed, 'f', -1, 64)
	sessions := strings.Join(cfg.SessionNames(), ",")

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Game server URL").
				Description("Root URL of the game world").
				Placeholder("https://ts1.example.com").
				Value(&cfg.Server.BaseURL).
				Validate(func(s string) error {
					if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
						return legionerrors.ErrInvalidConfig
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Tribe").
				Description("Selects the troop speed table for travel estimates").
				Options(
					huh.NewOption("Romans", constants.TribeRomans),
					huh.NewOption("Gauls", constants.TribeGauls),
					huh.NewOption("Teutons", constants.TribeTeutons),
				).
				Value(&cfg.Server.Tribe),
			huh.NewInput().
				Title("Home village X").
				Value(&homeX).
				Validate(validateCoordinate),
			huh.NewInput().
				Title("Home village Y").
				Value(&homeY).
				Validate(validateCoordinate),
			huh.NewInput().
				Title("Server speed").
				Description("World speed multiplier, usually 1, 2 or 3").
				Value(&speed).
				Validate(func(s string) error {
					v, err := strconv.ParseFloat(s, 64)
					if err != nil || v <= 0 {
						return legionerrors.ErrInvalidConfig
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Account username").
				Description("Password comes from LEGION_ACCOUNT_PASSWORD, never the config file").
				Value(&cfg.Account.Username),
			huh.NewInput().
				Title("Sessions").
				Description("Comma-separated partition names, one worker each").
				Value(&sessions),
			huh.NewConfirm().
				Title("Enable selector self-healing?").
				Description("Asks an inference service for replacement locators when a page changes").
				Affirmative("Yes").
				Negative("No").
				Value(&cfg.Healing.Enabled),
			huh.NewConfirm().
				Title("Run the browser headless?").
				Value(&cfg.Browser.Headless),
		),
	).WithTheme(huh.ThemeCharm())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Server.HomeX, _ = strconv.Atoi(homeX)
	cfg.Server.HomeY, _ = strconv.Atoi(homeY)
	cfg.Server.Speed, _ = strconv.ParseFloat(speed, 64)
	cfg.Sessions = parseSessionList(sessions)
	return nil
}

// validateCoordinate accepts signed integers within the game map bounds.
func validateCoordinate(s string) error {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < -400 || v > 400 {
		return legionerrors.ErrInvalidConfig
	}
	return nil
}

// parseSessionList turns "main, alt" into session entries. Empty input means
// the single default session.
func parseSessionList(s string) []config.SessionConfig {
	var out []config.SessionConfig
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, config.SessionConfig{Name: name})
	}
	if len(out) == 1 && out[0].Name == "default" {
		return nil
	}
	return out
}

// writeGlobalConfig marshals cfg and writes it to the global config path,
// backing up any existing file first.
func writeGlobalConfig(cfg *config.Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return legionerrors.Wrap(err, "failed to create config directory")
	}

	if _, err := os.Stat(configPath); err == nil {
		backupPath := configPath + ".backup"
		if copyErr := copyFile(configPath, backupPath); copyErr != nil {
			logger := Logger()
			logger.Warn().Err(copyErr).Str("backup_path", backupPath).Msg("failed to create config backup")
		}
	}

	// Never persist the password, even if one leaked into the loaded config.
	redacted := *cfg
	redacted.Account.Password = ""

	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return legionerrors.Wrap(err, "failed to marshal config")
	}

	header := fmt.Sprintf("# LEGION configuration\n# Generated by legion init on %s\n\n",
		time.Now().Format(time.RFC3339))
	if err = os.WriteFile(configPath, []byte(header+string(data)), 0o600); err != nil {
		return legionerrors.Wrap(err, "failed to write config file")
	}
	return nil
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src) //nolint:gosec // Source is config file
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}
