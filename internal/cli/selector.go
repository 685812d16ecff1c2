package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/legion/internal/browser"
	"github.com/mrz1836/legion/internal/ctxutil"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/heal"
	"github.com/mrz1836/legion/internal/infer"
	"github.com/mrz1836/legion/internal/tui"
)

// AddSelectorCommand adds the selector command group to the root command.
func AddSelectorCommand(root *cobra.Command) {
	session := &sessionFlags{}
	cmd := &cobra.Command{
		Use:   "selector",
		Short: "Inspect and heal the selector registry",
	}
	addSessionFlags(cmd, session)

	cmd.AddCommand(newSelectorListCmd(session))
	cmd.AddCommand(newSelectorHealCmd(session))
	root.AddCommand(cmd)
}

func newSelectorListCmd(session *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list [entry]",
		Short: "List selector entries and their ranked candidates",
		Long: `List the selector registry: every logical anchor with its ranked
candidate locators, confidence scores and demotion state.

Examples:
  legion selector list
  legion selector list login-user
  legion selector list --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runSelectorList(cmd.Context(), cmd, session, name, os.Stdout)
		},
	}
}

func runSelectorList(ctx context.Context, cmd *cobra.Command, session *sessionFlags, name string, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	logger := Logger()
	out := tui.NewOutput(w, cmd.Flag("output").Value.String())
	tui.CheckNoColor()

	cfg := loadConfig(ctx, logger)
	registry, err := openRegistry(ctx, cfg, session, logger)
	if err != nil {
		return err
	}

	var entries []domain.SelectorEntry
	if name != "" {
		entry, err := registry.Lookup(name)
		if err != nil {
			return err
		}
		entries = []domain.SelectorEntry{entry}
	} else {
		entries = registry.Entries()
	}

	if cmd.Flag("output").Value.String() == OutputJSON {
		return out.JSON(entries)
	}
	if len(entries) == 0 {
		out.Info("selector registry is empty; it is seeded on the first run")
		return nil
	}
	return tui.SelectorTable(entries).Render(w)
}

func newSelectorHealCmd(session *sessionFlags) *cobra.Command {
	var pageURL string
	cmd := &cobra.Command{
		Use:   "heal <entry>",
		Short: "Request replacement locators for an entry now",
		Long: `Open a browser, capture the page and ask the inference service for
replacement locators for the entry. Proposals are validated against the
live page before they enter the registry; the per-entry cooldown applies
to forced heals too.

Examples:
  legion selector heal rally-send
  legion selector heal login-user --url https://ts1.example.com/login.php`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelectorHeal(cmd.Context(), cmd, session, args[0], pageURL, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&pageURL, "url", "", "page to heal against (default: the configured base URL)")
	return cmd
}

func runSelectorHeal(ctx context.Context, cmd *cobra.Command, session *sessionFlags, entryName, pageURL string, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	logger := Logger()
	out := tui.NewOutput(w, cmd.Flag("output").Value.String())
	tui.CheckNoColor()

	cfg := loadConfig(ctx, logger)
	registry, err := openRegistry(ctx, cfg, session, logger)
	if err != nil {
		return err
	}
	entry, err := registry.Lookup(entryName)
	if err != nil {
		return err
	}

	if !cfg.Healing.Enabled {
		return legionerrors.Wrap(legionerrors.ErrHealingUnavailable, "healing is disabled in config")
	}
	proposer, err := infer.NewClient(infer.Options{
		APIKey:         os.Getenv(cfg.Healing.APIKeyEnvVar),
		Model:          cfg.Healing.Model,
		BaseURL:        cfg.Healing.BaseURL,
		RequestTimeout: cfg.Healing.RequestTimeout,
		MaxHTMLBytes:   cfg.Healing.MaxHTMLBytes,
	}, logger)
	if err != nil {
		return err
	}

	sess, err := browser.NewChrome(ctx, browser.Options{
		Headless:    cfg.Browser.Headless,
		UserDataDir: cfg.Browser.UserDataDir,
		NavTimeout:  cfg.Browser.NavTimeout,
	}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close(context.WithoutCancel(ctx)) }()

	if pageURL == "" {
		pageURL = cfg.Server.BaseURL
	}
	if err = sess.Navigate(ctx, pageURL); err != nil {
		return err
	}
	snapshot, err := sess.Snapshot(ctx)
	if err != nil {
		return err
	}

	// Every current candidate counts as failed so the service proposes
	// genuinely new locators.
	failed := make([]string, 0, len(entry.Candidates))
	for _, c := range entry.Candidates {
		failed = append(failed, c.Locator)
	}

	healer := heal.NewHealer(registry, proposer, heal.Options{
		Cooldown:       cfg.Healing.Cooldown,
		RequestTimeout: cfg.Healing.RequestTimeout,
	}, logger)

	accepted, err := healer.Heal(ctx, sess, entryName, snapshot, failed)
	if err != nil {
		switch {
		case stderrors.Is(err, legionerrors.ErrHealCooldown):
			out.Warning(fmt.Sprintf("entry %q healed recently; cooldown is %s", entryName, cfg.Healing.Cooldown))
		case stderrors.Is(err, legionerrors.ErrHealingUnavailable):
			out.Warning("inference service unavailable; registry left unchanged")
		}
		return err
	}

	if cmd.Flag("output").Value.String() == OutputJSON {
		return out.JSON(accepted)
	}
	out.Success(fmt.Sprintf("%d locator(s) accepted for %q", len(accepted), entryName))
	for _, c := range accepted {
		out.Info("  " + c.Locator)
	}
	return nil
}
