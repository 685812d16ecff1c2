package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/legion/internal/clock"
	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/ctxutil"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/tui"
)

// taskAddFlags holds flags for the task add command.
type taskAddFlags struct {
	Kind        string
	Payload     []string
	Priority    int
	NotBefore   string
	MaxAttempts int
}

// AddTaskCommand adds the task command group to the root command.
func AddTaskCommand(root *cobra.Command) {
	session := &sessionFlags{}
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the task queue",
	}
	addSessionFlags(cmd, session)

	cmd.AddCommand(newTaskAddCmd(session))
	cmd.AddCommand(newTaskListCmd(session))
	cmd.AddCommand(newTaskCancelCmd(session))
	root.AddCommand(cmd)
}

func newTaskAddCmd(session *sessionFlags) *cobra.Command {
	flags := &taskAddFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Enqueue a task",
		Long: `Enqueue a task for the session worker to execute.

The payload is kind-specific. Raid tasks need a target_id; build and
train_troops tasks need a path and an anchor; scan tasks need a path or
x/y coordinates; custom tasks need a url.

Examples:
  legion task add --kind raid --payload target_id=3
  legion task add --kind build --payload path=/build.php?id=26 --payload anchor=build-upgrade
  legion task add --kind scan --payload x=12 --payload y=-7 --not-before 30m
  legion task add --kind custom --payload url=https://example.com --priority 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTaskAdd(cmd.Context(), cmd, session, flags, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&flags.Kind, "kind", "k", "", "task kind (build|train_troops|raid|scan|custom)")
	cmd.Flags().StringArrayVarP(&flags.Payload, "payload", "p", nil, "payload field as key=value (repeatable)")
	cmd.Flags().IntVar(&flags.Priority, "priority", 0, "scheduling priority, higher runs first")
	cmd.Flags().StringVar(&flags.NotBefore, "not-before", "", "earliest run time (RFC 3339 or a delay like 30m)")
	cmd.Flags().IntVar(&flags.MaxAttempts, "max-attempts", constants.DefaultMaxAttempts, "retry budget for logic failures")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func runTaskAdd(ctx context.Context, cmd *cobra.Command, session *sessionFlags, flags *taskAddFlags, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	logger := Logger()
	out := tui.NewOutput(w, cmd.Flag("output").Value.String())
	tui.CheckNoColor()

	cfg := loadConfig(ctx, logger)
	s, err := openTaskStore(cfg, session, logger)
	if err != nil {
		return err
	}

	payload, err := parsePayload(flags.Payload)
	if err != nil {
		return err
	}
	notBefore, err := parseNotBefore(flags.NotBefore, time.Now().UTC())
	if err != nil {
		return err
	}

	t := &domain.Task{
		Kind:        constants.TaskKind(flags.Kind),
		Payload:     payload,
		NotBefore:   notBefore,
		Priority:    flags.Priority,
		MaxAttempts: flags.MaxAttempts,
	}

	exec := newEnqueueExecutor(cfg, s, logger)
	id, err := exec.Enqueue(ctx, t)
	if err != nil {
		return err
	}

	if cmd.Flag("output").Value.String() == OutputJSON {
		return out.JSON(map[string]any{"id": id, "kind": t.Kind, "not_before": t.NotBefore})
	}
	out.Success(fmt.Sprintf("task %d enqueued (%s, eligible %s)",
		id, t.Kind, tui.FormatEligibility(t.NotBefore, time.Now().UTC())))
	return nil
}

func newTaskListCmd(session *sessionFlags) *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued tasks",
		Long: `List the active task queue for a session, or the archive of
terminal tasks with --archived.

Examples:
  legion task list
  legion task list --archived
  legion task list --session alt --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTaskList(cmd.Context(), cmd, session, archived, os.Stdout)
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "list terminal tasks instead of the active queue")
	return cmd
}

func runTaskList(ctx context.Context, cmd *cobra.Command, session *sessionFlags, archived bool, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	logger := Logger()
	out := tui.NewOutput(w, cmd.Flag("output").Value.String())
	tui.CheckNoColor()

	cfg := loadConfig(ctx, logger)
	s, err := openTaskStore(cfg, session, logger)
	if err != nil {
		return err
	}

	var tasks []domain.Task
	if archived {
		tasks, err = s.ListArchived(ctx)
	} else {
		tasks, err = s.ListActive(ctx)
	}
	if err != nil {
		return err
	}

	if cmd.Flag("output").Value.String() == OutputJSON {
		return out.JSON(tasks)
	}
	if len(tasks) == 0 {
		out.Info("queue is empty")
		return nil
	}
	return tui.TaskTable(tasks, time.Now().UTC()).Render(w)
}

func newTaskCancelCmd(session *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending task",
		Long: `Cancel a pending task before it runs. Running and terminal tasks
cannot be cancelled.

Examples:
  legion task cancel 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskCancel(cmd.Context(), cmd, session, args[0], os.Stdout)
		},
	}
}

func runTaskCancel(ctx context.Context, cmd *cobra.Command, session *sessionFlags, rawID string, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return legionerrors.Wrapf(legionerrors.ErrInvalidTask, "invalid task id %q", rawID)
	}

	logger := Logger()
	out := tui.NewOutput(w, cmd.Flag("output").Value.String())
	tui.CheckNoColor()

	cfg := loadConfig(ctx, logger)
	s, err := openTaskStore(cfg, session, logger)
	if err != nil {
		return err
	}

	if err = s.Cancel(ctx, clock.RealClock{}, id); err != nil {
		return err
	}

	if cmd.Flag("output").Value.String() == OutputJSON {
		return out.JSON(map[string]any{"id": id, "status": constants.TaskStatusCancelled})
	}
	out.Success(fmt.Sprintf("task %d cancelled", id))
	return nil
}

// parsePayload converts repeated key=value flags into a task payload.
// Values that parse as integers are stored as numbers so handlers can read
// them with PayloadInt64.
func parsePayload(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	payload := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, legionerrors.Wrapf(legionerrors.ErrInvalidTask,
				"payload %q is not key=value", pair)
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			payload[key] = n
		} else {
			payload[key] = value
		}
	}
	return payload, nil
}

// parseNotBefore accepts an RFC 3339 timestamp or a relative delay ("30m",
// "2h"). Empty means eligible immediately.
func parseNotBefore(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return now.Add(d), nil
	}
	return time.Time{}, legionerrors.Wrapf(legionerrors.ErrInvalidTask,
		"not-before %q is neither RFC 3339 nor a duration", raw)
}
