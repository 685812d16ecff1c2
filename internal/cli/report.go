package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mrz1836/legion/internal/config"
	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/ctxutil"
	"github.com/mrz1836/legion/internal/domain"
	"github.com/mrz1836/legion/internal/tui"
)

// reportData is the aggregate report, shared by markdown and JSON output.
type reportData struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Sessions    []sessionReport `json:"sessions"`
}

// sessionReport summarizes one session partition.
type sessionReport struct {
	Session         string              `json:"session"`
	TasksSucceeded  int                 `json:"tasks_succeeded"`
	TasksFailed     int                 `json:"tasks_failed"`
	TasksCancelled  int                 `json:"tasks_cancelled"`
	QueueDepth      int                 `json:"queue_depth"`
	RaidsSent       int                 `json:"raids_sent"`
	Targets         []domain.RaidTarget `json:"targets"`
	DemotedLocators int                 `json:"demoted_locators"`
	HealedLocators  int                 `json:"healed_locators"`
	Error           string              `json:"error,omitempty"`
}

// AddReportCommand adds the report command to the root command.
func AddReportCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render an activity report",
		Long: `Summarize what the workers have been doing: task outcomes, raids
sent per target and selector registry health, rendered as styled
markdown.

Examples:
  legion report
  legion report --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd.Context(), cmd, os.Stdout)
		},
	}
	root.AddCommand(cmd)
}

func runReport(ctx context.Context, cmd *cobra.Command, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	logger := Logger()
	out := tui.NewOutput(w, cmd.Flag("output").Value.String())
	tui.CheckNoColor()

	cfg := loadConfig(ctx, logger)
	report := reportData{GeneratedAt: time.Now().UTC()}
	for _, name := range cfg.SessionNames() {
		report.Sessions = append(report.Sessions, collectSessionReport(ctx, cfg, name, logger))
	}

	if cmd.Flag("output").Value.String() == OutputJSON {
		return out.JSON(report)
	}

	markdown := renderReportMarkdown(&report)
	if !tui.HasColorSupport() {
		_, err := fmt.Fprint(w, markdown)
		return err
	}

	rendered, err := glamour.Render(markdown, "auto")
	if err != nil {
		// Styled rendering is cosmetic; fall back to raw markdown.
		_, werr := fmt.Fprint(w, markdown)
		return werr
	}
	_, err = fmt.Fprint(w, rendered)
	return err
}

// collectSessionReport reads one session partition's archive, farms and
// selector registry.
func collectSessionReport(ctx context.Context, cfg *config.Config, name string, logger zerolog.Logger) sessionReport {
	r := sessionReport{Session: name}
	session := &sessionFlags{Session: name}

	s, err := openTaskStore(cfg, session, logger)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	if active, aerr := s.ListActive(ctx); aerr == nil {
		r.QueueDepth = len(active)
	}
	archived, err := s.ListArchived(ctx)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	for i := range archived {
		switch archived[i].Status {
		case constants.TaskStatusSucceeded:
			r.TasksSucceeded++
		case constants.TaskStatusFailed:
			r.TasksFailed++
		case constants.TaskStatusCancelled:
			r.TasksCancelled++
		}
	}

	farms, err := openFarms(ctx, cfg, session, logger)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Targets = farms.List()
	for i := range r.Targets {
		r.RaidsSent += r.Targets[i].RaidsSent
	}

	registry, err := openRegistry(ctx, cfg, session, logger)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	for _, entry := range registry.Entries() {
		for _, c := range entry.Candidates {
			if c.Demoted {
				r.DemotedLocators++
			}
			if c.Source == domain.CandidateSourceHealed {
				r.HealedLocators++
			}
		}
	}
	return r
}

// renderReportMarkdown builds the markdown body of the report. Counts go
// through a locale-aware printer so long-running accounts get readable
// raid totals.
func renderReportMarkdown(report *reportData) string {
	p := message.NewPrinter(language.English)
	var sb strings.Builder
	sb.WriteString("# LEGION activity report\n\n")
	sb.WriteString("Generated " + report.GeneratedAt.Format(time.RFC3339) + "\n\n")

	for i := range report.Sessions {
		r := &report.Sessions[i]
		sb.WriteString("## Session " + r.Session + "\n\n")
		if r.Error != "" {
			sb.WriteString("State unavailable: " + r.Error + "\n\n")
			continue
		}

		sb.WriteString(p.Sprintf("- Tasks: %d succeeded, %d failed, %d cancelled, %d queued\n",
			r.TasksSucceeded, r.TasksFailed, r.TasksCancelled, r.QueueDepth))
		sb.WriteString(p.Sprintf("- Raids sent: %d across %d targets\n", r.RaidsSent, len(r.Targets)))
		sb.WriteString(p.Sprintf("- Selectors: %d healed, %d demoted\n\n", r.HealedLocators, r.DemotedLocators))

		if len(r.Targets) > 0 {
			sb.WriteString("| Target | Coords | Raids | State | Last dispatch |\n")
			sb.WriteString("|--------|--------|-------|-------|---------------|\n")
			for j := range r.Targets {
				t := &r.Targets[j]
				last := "never"
				if !t.LastDispatchTime.IsZero() {
					last = t.LastDispatchTime.Format("2006-01-02 15:04")
				}
				sb.WriteString(fmt.Sprintf("| %s | (%d\\|%d) | %d | %s | %s |\n",
					t.Name, t.X, t.Y, t.RaidsSent, t.State, last))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
