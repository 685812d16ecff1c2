package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrz1836/legion/internal/config"
	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/ctxutil"
	"github.com/mrz1836/legion/internal/domain"
	"github.com/mrz1836/legion/internal/tui"
)

// sessionStatus is the per-session status report, shared by text and JSON
// output.
type sessionStatus struct {
	Session   string              `json:"session"`
	Queued    int                 `json:"queued"`
	Running   int                 `json:"running"`
	Targets   int                 `json:"targets"`
	InFlight  int                 `json:"raids_in_flight"`
	RaidsSent int                 `json:"raids_sent"`
	Tasks     []domain.Task       `json:"tasks"`
	Farms     []domain.RaidTarget `json:"farms"`
	Error     string              `json:"error,omitempty"`
}

// AddStatusCommand adds the status command to the root command.
func AddStatusCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue and farm status",
		Long: `Display the task queue and farm targets for every configured
session, reading the persisted state partitions. Works whether or not
workers are running.

Examples:
  legion status
  legion status --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, os.Stdout)
		},
	}
	root.AddCommand(cmd)
}

func runStatus(ctx context.Context, cmd *cobra.Command, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	logger := Logger()
	out := tui.NewOutput(w, cmd.Flag("output").Value.String())
	tui.CheckNoColor()

	cfg := loadConfig(ctx, logger)
	statuses := make([]sessionStatus, 0, len(cfg.SessionNames()))
	for _, name := range cfg.SessionNames() {
		statuses = append(statuses, collectSessionStatus(ctx, cfg, name, logger))
	}

	if cmd.Flag("output").Value.String() == OutputJSON {
		return out.JSON(statuses)
	}

	now := time.Now().UTC()
	styles := tui.NewOutputStyles()
	for i := range statuses {
		st := &statuses[i]
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, tui.StyleBold.Render("session "+st.Session))
		if st.Error != "" {
			fmt.Fprintln(w, styles.Error.Render("✗ "+st.Error))
			continue
		}
		if len(st.Tasks) == 0 {
			fmt.Fprintln(w, styles.Dim.Render("queue empty"))
		} else if err := tui.TaskTable(st.Tasks, now).Render(w); err != nil {
			return err
		}
		if len(st.Farms) > 0 {
			fmt.Fprintln(w)
			if err := tui.FarmTable(st.Farms, now).Render(w); err != nil {
				return err
			}
		}
		fmt.Fprintln(w, styles.Dim.Render(fmt.Sprintf(
			"%d queued, %d running, %d targets (%d in flight), %d raids sent",
			st.Queued, st.Running, st.Targets, st.InFlight, st.RaidsSent)))
	}
	return nil
}

// collectSessionStatus reads one session partition's state. Store errors are
// reported per session instead of aborting the whole status view.
func collectSessionStatus(ctx context.Context, cfg *config.Config, name string, logger zerolog.Logger) sessionStatus {
	st := sessionStatus{Session: name}
	session := &sessionFlags{Session: name}

	s, err := openTaskStore(cfg, session, logger)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	tasks, err := s.ListActive(ctx)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Tasks = tasks
	for i := range tasks {
		switch tasks[i].Status {
		case constants.TaskStatusPending:
			st.Queued++
		case constants.TaskStatusRunning:
			st.Running++
		}
	}

	farms, err := openFarms(ctx, cfg, session, logger)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	targets := farms.List()
	st.Farms = targets
	st.Targets = len(targets)
	for i := range targets {
		if targets[i].Outstanding() {
			st.InFlight++
		}
		st.RaidsSent += targets[i].RaidsSent
	}
	return st
}
