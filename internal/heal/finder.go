package heal

import (
	"context"
	stderrors "errors"

	"github.com/rs/zerolog"

	"github.com/mrz1836/legion/internal/browser"
	"github.com/mrz1836/legion/internal/clock"
	"github.com/mrz1836/legion/internal/ctxutil"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/selector"
)

// Finder is the resolution routine every handler goes through to turn a
// logical anchor name into a live element. It walks the entry's active
// candidates best-first, feeds the outcome back into the registry and falls
// back to one heal attempt when everything failed.
type Finder struct {
	registry *selector.Registry
	healer   *Healer
	clk      clock.Clock
	logger   zerolog.Logger
}

// NewFinder creates a Finder. The healer may be built around a nil proposer;
// resolution then degrades without healing.
func NewFinder(registry *selector.Registry, healer *Healer, clk clock.Clock, logger zerolog.Logger) *Finder {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Finder{
		registry: registry,
		healer:   healer,
		clk:      clk,
		logger:   logger.With().Str("component", "finder").Logger(),
	}
}

// Find resolves the named entry to an element on the current page.
//
// Candidates are tried in confidence order. A resolution miss records a
// failure and moves on; a hit records a success and wins. Connection-class
// failures propagate immediately with no registry feedback, the guard owns
// those. When every candidate misses, the finder heals once and retries only
// the newly accepted candidates; if still unresolved the caller gets
// ErrElementResolutionFailure, a logic-class failure for the current attempt.
func (f *Finder) Find(ctx context.Context, sess browser.Session, name string) (browser.Element, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return browser.Element{}, err
	}

	active, err := f.registry.Active(name)
	if err != nil {
		return browser.Element{}, err
	}

	failed := make([]string, 0, len(active))
	for _, c := range active {
		el, rerr := f.try(ctx, sess, name, c.Locator)
		if rerr == nil {
			return el, nil
		}
		if !isResolutionMiss(rerr) {
			return browser.Element{}, rerr
		}
		failed = append(failed, c.Locator)
	}

	healed, herr := f.healOnce(ctx, sess, name, failed)
	if herr != nil {
		return browser.Element{}, herr
	}
	for _, c := range healed {
		el, rerr := f.try(ctx, sess, name, c.Locator)
		if rerr == nil {
			return el, nil
		}
		if !isResolutionMiss(rerr) {
			return browser.Element{}, rerr
		}
	}

	return browser.Element{}, legionerrors.Wrapf(legionerrors.ErrElementResolutionFailure, "entry %q", name)
}

// Probe reports whether any active candidate of the entry matches the
// current page. Unlike Find it records no registry feedback and never heals:
// absence is a normal answer for probe entries (challenge, logged-in), not a
// selector failure. Transport failures propagate.
func (f *Finder) Probe(ctx context.Context, sess browser.Session, name string) (bool, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return false, err
	}

	active, err := f.registry.Active(name)
	if err != nil {
		return false, err
	}

	for _, c := range active {
		n, cerr := sess.Count(ctx, c.Locator)
		if cerr != nil {
			return false, cerr
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// try resolves one candidate and records the outcome.
func (f *Finder) try(ctx context.Context, sess browser.Session, name, locator string) (browser.Element, error) {
	el, err := sess.Resolve(ctx, locator)
	if err == nil {
		if rerr := f.registry.RecordSuccess(ctx, name, locator, f.clk.Now()); rerr != nil {
			return browser.Element{}, rerr
		}
		return el, nil
	}
	if isResolutionMiss(err) {
		if rerr := f.registry.RecordFailure(ctx, name, locator); rerr != nil {
			return browser.Element{}, rerr
		}
	}
	return browser.Element{}, err
}

// healOnce runs the single heal attempt after candidate exhaustion. Heal
// failures degrade to ErrElementResolutionFailure; only transport failures
// and cancellation pass through.
func (f *Finder) healOnce(ctx context.Context, sess browser.Session, name string, failed []string) ([]domain.Candidate, error) {
	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	healed, err := f.healer.Heal(ctx, sess, name, snap, failed)
	if err != nil {
		if stderrors.Is(err, legionerrors.ErrConnectionFailure) || ctxutil.Canceled(ctx) != nil {
			return nil, err
		}
		f.logger.Warn().
			Err(err).
			Str("entry", name).
			Msg("healing did not produce a usable candidate")
		return nil, legionerrors.Wrapf(legionerrors.ErrElementResolutionFailure, "entry %q (healing: %s)", name, err)
	}
	return healed, nil
}

// isResolutionMiss reports whether the error is a per-candidate miss worth
// recording, as opposed to a transport failure or cancellation.
func isResolutionMiss(err error) bool {
	return stderrors.Is(err, legionerrors.ErrElementNotFound) ||
		stderrors.Is(err, legionerrors.ErrAmbiguousLocator)
}
