package cli

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrz1836/legion/internal/config"
	"github.com/mrz1836/legion/internal/ctxutil"
	"github.com/mrz1836/legion/internal/domain"
	"github.com/mrz1836/legion/internal/tui"
)

// AddWatchCommand adds the watch command to the root command.
func AddWatchCommand(root *cobra.Command) {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard over queue and farm state",
		Long: `Open a live read-only dashboard over every configured session's
queue and farm state, refreshing from the persisted partitions so it
tracks workers running in another process. Press q to quit.

Examples:
  legion watch
  legion watch --interval 5s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	root.AddCommand(cmd)
}

func runWatch(ctx context.Context, interval time.Duration) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	logger := Logger()
	cfg := loadConfig(ctx, logger)

	sources := make([]tui.SessionSource, 0, len(cfg.SessionNames()))
	for _, name := range cfg.SessionNames() {
		session := &sessionFlags{Session: name}
		s, err := openTaskStore(cfg, session, logger)
		if err != nil {
			return err
		}
		sources = append(sources, tui.SessionSource{
			Name:  name,
			Tasks: s,
			Farms: &farmLister{cfg: cfg, session: name, logger: logger},
		})
	}

	model := tui.NewWatchModel(ctx, tui.WatchConfig{Interval: interval}, sources...)
	return model.Run()
}

// farmLister re-reads the farm list on every refresh so the dashboard sees
// dispatches made by a worker in another process.
type farmLister struct {
	cfg     *config.Config
	session string
	logger  zerolog.Logger
}

// ListTargets implements tui.FarmLister.
func (f *farmLister) ListTargets(ctx context.Context) ([]domain.RaidTarget, error) {
	farms, err := openFarms(ctx, f.cfg, &sessionFlags{Session: f.session}, f.logger)
	if err != nil {
		return nil, err
	}
	return farms.List(), nil
}
