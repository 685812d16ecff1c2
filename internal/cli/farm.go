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

	"github.com/mrz1836/legion/internal/ctxutil"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/tui"
)

// farmAddFlags holds flags for the farm add command.
type farmAddFlags struct {
	X      int
	Y      int
	Troops []string
}

// AddFarmCommand adds the farm command group to the root command.
func AddFarmCommand(root *cobra.Command) {
	session := &sessionFlags{}
	cmd := &cobra.Command{
		Use:   "farm",
		Short: "Manage farm raid targets",
	}
	addSessionFlags(cmd, session)

	cmd.AddCommand(newFarmAddCmd(session))
	cmd.AddCommand(newFarmListCmd(session))
	cmd.AddCommand(newFarmRemoveCmd(session))
	cmd.AddCommand(newFarmEnableCmd(session, true))
	cmd.AddCommand(newFarmEnableCmd(session, false))
	cmd.AddCommand(newFarmRaidCmd(session))
	cmd.AddCommand(newFarmTickCmd(session))
	root.AddCommand(cmd)
}

func newFarmAddCmd(session *sessionFlags) *cobra.Command {
	flags := &farmAddFlags{}
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a farm target",
		Long: `Register a farm target at the given coordinates. The one-way travel
time is computed from the distance, the tribe's slowest configured unit
and the server speed; raids re-dispatch only after twice that plus the
safety margin.

Examples:
  legion farm add oasis-ne -x 12 -y -7
  legion farm add crony -x 3 -y 4 --troops t1=10 --troops t3=2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFarmAdd(cmd.Context(), cmd, session, flags, args[0], os.Stdout)
		},
	}

	cmd.Flags().IntVarP(&flags.X, "x", "x", 0, "target x coordinate")
	cmd.Flags().IntVarP(&flags.Y, "y", "y", 0, "target y coordinate")
	cmd.Flags().StringArrayVar(&flags.Troops, "troops", nil, "troops per raid as slot=count (repeatable)")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y")

	return cmd
}

func runFarmAdd(ctx context.Context, cmd *cobra.Command, session *sessionFlags, flags *farmAddFlags, name string, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	logger := Logger()
	out := tui.NewOutput(w, cmd.Flag("output").Value.String())
	tui.CheckNoColor()

	cfg := loadConfig(ctx, logger)
	farms, err := openFarms(ctx, cfg, session, logger)
	if err != nil {
		return err
	}

	troops, err := parseTroops(flags.Troops)
	if err != nil {
		return err
	}
	if troops == nil {
		troops = cfg.Raids.DefaultTroops
	}

	target, err := farms.Add(ctx, name, flags.X, flags.Y, troops)
	if err != nil {
		return err
	}

	if cmd.Flag("output").Value.String() == OutputJSON {
		return out.JSON(target)
	}
	out.Success(fmt.Sprintf("target %d %q at (%d|%d) registered, travel time %s",
		target.ID, target.Name, target.X, target.Y,
		tui.FormatCompactDuration(target.TravelTime)))
	return nil
}

func newFarmListCmd(session *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List farm targets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFarmList(cmd.Context(), cmd, session, os.Stdout)
		},
	}
}

func runFarmList(ctx context.Context, cmd *cobra.Command, session *sessionFlags, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	logger := Logger()
	out := tui.NewOutput(w, cmd.Flag("output").Value.String())
	tui.CheckNoColor()

	cfg := loadConfig(ctx, logger)
	farms, err := openFarms(ctx, cfg, session, logger)
	if err != nil {
		return err
	}

	targets := farms.List()
	if cmd.Flag("output").Value.String() == OutputJSON {
		return out.JSON(targets)
	}
	if len(targets) == 0 {
		out.Info("no farm targets registered")
		return nil
	}
	return tui.FarmTable(targets, time.Now().UTC()).Render(w)
}

func newFarmRemoveCmd(session *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a farm target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFarmRemove(cmd.Context(), cmd, session, args[0], os.Stdout)
		},
	}
}

func runFarmRemove(ctx context.Context, cmd *cobra.Command, session *sessionFlags, rawID string, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	id, err := parseTargetID(rawID)
	if err != nil {
		return err
	}

	logger := Logger()
	out := tui.NewOutput(w, cmd.Flag("output").Value.String())
	tui.CheckNoColor()

	cfg := loadConfig(ctx, logger)
	farms, err := openFarms(ctx, cfg, session, logger)
	if err != nil {
		return err
	}

	if err = farms.Remove(ctx, id); err != nil {
		return err
	}
	out.Success(fmt.Sprintf("target %d removed", id))
	return nil
}

// newFarmEnableCmd builds both the enable and disable subcommands; they
// differ only in the flag they flip.
func newFarmEnableCmd(session *sessionFlags, enable bool) *cobra.Command {
	use, short := "enable <id>", "Enable a farm target for automatic raiding"
	if !enable {
		use, short = "disable <id>", "Disable a farm target without losing its history"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFarmEnable(cmd.Context(), cmd, session, args[0], enable, os.Stdout)
		},
	}
}

func runFarmEnable(ctx context.Context, cmd *cobra.Command, session *sessionFlags, rawID string, enable bool, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	id, err := parseTargetID(rawID)
	if err != nil {
		return err
	}

	logger := Logger()
	out := tui.NewOutput(w, cmd.Flag("output").Value.String())
	tui.CheckNoColor()

	cfg := loadConfig(ctx, logger)
	farms, err := openFarms(ctx, cfg, session, logger)
	if err != nil {
		return err
	}

	if err = farms.Enable(ctx, id, enable); err != nil {
		return err
	}
	verb := "enabled"
	if !enable {
		verb = "disabled"
	}
	out.Success(fmt.Sprintf("target %d %s", id, verb))
	return nil
}

func newFarmRaidCmd(session *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "raid <id>",
		Short: "Enqueue a raid against a target now",
		Long: `Enqueue a raid task against the target immediately, bypassing the
eligibility window. Fails if a raid is already outstanding for the
target.

Examples:
  legion farm raid 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFarmRaid(cmd.Context(), cmd, session, args[0], os.Stdout)
		},
	}
}

func runFarmRaid(ctx context.Context, cmd *cobra.Command, session *sessionFlags, rawID string, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	id, err := parseTargetID(rawID)
	if err != nil {
		return err
	}

	logger := Logger()
	out := tui.NewOutput(w, cmd.Flag("output").Value.String())
	tui.CheckNoColor()

	cfg := loadConfig(ctx, logger)
	farms, err := openFarms(ctx, cfg, session, logger)
	if err != nil {
		return err
	}
	s, err := openTaskStore(cfg, session, logger)
	if err != nil {
		return err
	}

	taskID, err := farms.Dispatch(ctx, newEnqueueExecutor(cfg, s, logger), id)
	if err != nil {
		return err
	}

	if cmd.Flag("output").Value.String() == OutputJSON {
		return out.JSON(map[string]any{"target_id": id, "task_id": taskID})
	}
	out.Success(fmt.Sprintf("raid task %d enqueued for target %d", taskID, id))
	return nil
}

func newFarmTickCmd(session *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler pass without the worker loop",
		Long: `Advance target states for elapsed travel time and enqueue raid tasks
for every target whose eligibility window has passed. Useful for cron
driven setups and for inspecting what the loop would do next.

Examples:
  legion farm tick
  legion farm tick --session alt`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFarmTick(cmd.Context(), cmd, session, os.Stdout)
		},
	}
}

func runFarmTick(ctx context.Context, cmd *cobra.Command, session *sessionFlags, w io.Writer) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	logger := Logger()
	out := tui.NewOutput(w, cmd.Flag("output").Value.String())
	tui.CheckNoColor()

	cfg := loadConfig(ctx, logger)
	farms, err := openFarms(ctx, cfg, session, logger)
	if err != nil {
		return err
	}
	s, err := openTaskStore(cfg, session, logger)
	if err != nil {
		return err
	}

	produced, err := farms.Tick(ctx, newEnqueueExecutor(cfg, s, logger), time.Now().UTC())
	if err != nil {
		return err
	}

	if cmd.Flag("output").Value.String() == OutputJSON {
		return out.JSON(map[string]any{"produced_task_ids": produced})
	}
	if len(produced) == 0 {
		out.Info("no targets eligible")
		return nil
	}
	out.Success(fmt.Sprintf("%d raid task(s) enqueued", len(produced)))
	return nil
}

// parseTargetID parses a farm target id argument.
func parseTargetID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, legionerrors.Wrapf(legionerrors.ErrTargetNotFound, "invalid target id %q", raw)
	}
	return id, nil
}

// parseTroops converts repeated slot=count flags into a troop map.
func parseTroops(pairs []string) (map[string]int, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	troops := make(map[string]int, len(pairs))
	for _, pair := range pairs {
		slot, value, found := strings.Cut(pair, "=")
		if !found || slot == "" {
			return nil, legionerrors.Wrapf(legionerrors.ErrEmptyValue,
				"troops %q is not slot=count", pair)
		}
		count, err := strconv.Atoi(value)
		if err != nil || count < 0 {
			return nil, legionerrors.Wrapf(legionerrors.ErrEmptyValue,
				"troops %q needs a non-negative count", pair)
		}
		troops[slot] = count
	}
	return troops, nil
}
