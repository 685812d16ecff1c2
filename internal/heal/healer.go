// Package heal restores broken selector entries at runtime. When every known
// locator for a logical anchor stops matching, the healer asks the inference
// service for replacements, validates each proposal against the live page and
// inserts the survivors into the registry below any candidate that has
// already proven itself. Healing is strictly best-effort: when it cannot
// help, the original resolution failure stands.
package heal

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/legion/internal/browser"
	"github.com/mrz1836/legion/internal/clock"
	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/ctxutil"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/infer"
	"github.com/mrz1836/legion/internal/selector"
)

// Options configures a Healer.
type Options struct {
	// Cooldown is the minimum gap between heal attempts for one entry.
	Cooldown time.Duration

	// RequestTimeout bounds one proposal round-trip end to end.
	RequestTimeout time.Duration

	// Clock supplies time; defaults to the real clock.
	Clock clock.Clock
}

// Healer turns inference proposals into validated registry candidates.
type Healer struct {
	registry *selector.Registry
	proposer infer.Proposer
	opts     Options
	logger   zerolog.Logger
}

// NewHealer creates a Healer. A nil proposer is allowed and makes every Heal
// call report ErrHealingUnavailable, so callers degrade uniformly.
func NewHealer(registry *selector.Registry, proposer infer.Proposer, opts Options, logger zerolog.Logger) *Healer {
	if opts.Cooldown <= 0 {
		opts.Cooldown = constants.DefaultHealCooldown
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = constants.DefaultInferTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Healer{
		registry: registry,
		proposer: proposer,
		opts:     opts,
		logger:   logger.With().Str("component", "healer").Logger(),
	}
}

// Heal requests replacement locators for the entry, validates them against
// the live page and inserts the accepted ones into the registry. Returns the
// accepted candidates.
//
// Rate limiting: one attempt per entry per cooldown window, successful or
// not, so an unavailable service is not hammered. Inside the window the call
// fails with ErrHealCooldown.
//
// Validation: a proposal is accepted only when it resolves to exactly one
// element on the current page and that element's tag is plausible for the
// entry's kind. Connection failures during validation propagate untouched.
func (h *Healer) Heal(ctx context.Context, sess browser.Session, entryName string, snapshot domain.Snapshot, failed []string) ([]domain.Candidate, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if h.proposer == nil {
		return nil, legionerrors.Wrap(legionerrors.ErrHealingUnavailable, "no proposer configured")
	}

	entry, err := h.registry.Lookup(entryName)
	if err != nil {
		return nil, err
	}

	now := h.opts.Clock.Now()
	if !entry.LastHealTime.IsZero() {
		if elapsed := now.Sub(entry.LastHealTime); elapsed < h.opts.Cooldown {
			return nil, legionerrors.Wrapf(legionerrors.ErrHealCooldown,
				"entry %q healed %s ago, cooldown %s", entryName, elapsed.Round(time.Second), h.opts.Cooldown)
		}
	}

	// The attempt is stamped before the outcome is known, so failed heals
	// also consume the window.
	if err = h.registry.RecordHeal(ctx, entryName, now); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, h.opts.RequestTimeout)
	defer cancel()

	proposals, err := h.proposer.ProposeSelectors(reqCtx, infer.Request{
		EntryName:      entryName,
		EntryKind:      entry.Kind,
		Snapshot:       snapshot,
		FailedLocators: failed,
	})
	if err != nil {
		return nil, legionerrors.Wrapf(err, "healing entry %q", entryName)
	}
	if len(proposals) == 0 {
		return nil, legionerrors.Wrapf(legionerrors.ErrNoProposals, "entry %q", entryName)
	}

	accepted := make([]string, 0, len(proposals))
	for _, p := range proposals {
		if entry.HasLocator(p.Locator) {
			continue
		}
		ok, verr := h.validate(ctx, sess, p.Locator, entry.Kind)
		if verr != nil {
			return nil, verr
		}
		if !ok {
			h.logger.Debug().
				Str("entry", entryName).
				Str("locator", p.Locator).
				Msg("proposal rejected by live validation")
			continue
		}
		accepted = append(accepted, p.Locator)
	}

	if len(accepted) == 0 {
		return nil, legionerrors.Wrapf(legionerrors.ErrNoProposals, "no proposal for entry %q survived validation", entryName)
	}

	candidates, err := h.registry.Insert(ctx, entryName, now, accepted...)
	if err != nil {
		return nil, err
	}

	h.logger.Info().
		Str("entry", entryName).
		Int("proposed", len(proposals)).
		Int("accepted", len(candidates)).
		Msg("selector entry healed")
	return candidates, nil
}

// validate checks a proposal against the live page. Resolution failures mean
// rejection; transport failures abort the heal.
func (h *Healer) validate(ctx context.Context, sess browser.Session, locator string, kind constants.ElementKind) (bool, error) {
	el, err := sess.Resolve(ctx, locator)
	if err != nil {
		if stderrors.Is(err, legionerrors.ErrElementNotFound) ||
			stderrors.Is(err, legionerrors.ErrAmbiguousLocator) {
			return false, nil
		}
		return false, err
	}
	return kindMatches(kind, el.Tag), nil
}

// kindMatches is the tag-level sanity check: an anchor expecting an input
// must not accept a div the model happened to find.
func kindMatches(kind constants.ElementKind, tag string) bool {
	if tag == "" {
		// Fake sessions without tag data cannot be checked.
		return true
	}
	switch kind {
	case constants.ElementKindInput:
		return tag == "input" || tag == "textarea" || tag == "select"
	case constants.ElementKindButton:
		return tag == "button" || tag == "input" || tag == "a"
	case constants.ElementKindLink:
		return tag == "a" || tag == "button"
	case constants.ElementKindField, constants.ElementKindAny:
		return true
	default:
		return true
	}
}
