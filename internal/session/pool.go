package session

import (
	"context"
	stderrors "errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/legion/internal/task"
)

// Pool runs a fixed set of workers over disjoint state partitions. There is
// no cross-worker coordination and no ordering guarantee between partitions;
// the only shared thing is the parent context. The first fatal worker error
// cancels the group.
type Pool struct {
	workers []*Worker
	logger  zerolog.Logger
}

// NewPool creates a pool over the given workers.
func NewPool(logger zerolog.Logger, workers ...*Worker) *Pool {
	return &Pool{
		workers: workers,
		logger:  logger.With().Str("component", "pool").Logger(),
	}
}

// Workers returns the pool's workers for CLI wiring.
func (p *Pool) Workers() []*Worker { return p.workers }

// Run starts every worker and blocks until all stop. Browser sessions are
// closed as each worker exits.
func (p *Pool) Run(ctx context.Context, stop task.StopFunc) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, w := range p.workers {
		g.Go(func() error {
			defer func() {
				if cerr := w.Close(context.WithoutCancel(gctx)); cerr != nil {
					p.logger.Warn().Err(cerr).Str("session", w.Name()).Msg("failed to close browser session")
				}
			}()
			p.logger.Info().Str("session", w.Name()).Msg("worker starting")
			return w.Run(gctx, stop)
		})
	}

	err := g.Wait()
	if stderrors.Is(err, context.Canceled) {
		// Shutdown via signal is a clean exit, not a failure.
		return nil
	}
	return err
}
