// Package selector maintains the ranked locator registry for LEGION.
//
// Every interactive page element the automation touches is addressed through
// a named entry ("login-user", "rally-point-link") holding an ordered list of
// candidate locators. Resolution feedback moves confidence up and down, and
// repeated failure demotes a candidate out of the active ordering while
// keeping it for audit. The self-healer inserts validated replacement
// locators below any candidate that has actually worked before.
package selector

import (
	"context"
	"os"
	"sort"
	"time"

	stderrors "errors"

	"github.com/rs/zerolog"

	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/domain"
	"github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/store"
)

// minHealedConfidence is the floor for healed candidate confidence.
// Healed locators always enter ranked, never at zero.
const minHealedConfidence = 0.05

// Params holds the scoring tunables for the registry.
type Params struct {
	// PromoteDelta is added to confidence on success.
	PromoteDelta float64

	// FailurePenalty multiplies confidence on failure.
	FailurePenalty float64

	// DemoteThreshold is the consecutive-failure count that demotes a
	// candidate out of the active ordering.
	DemoteThreshold int

	// SeedConfidence is the confidence of the first seeded candidate; later
	// seeds step down from it.
	SeedConfidence float64

	// HealedStep is how far below the reference confidence healed
	// candidates are inserted.
	HealedStep float64
}

// DefaultParams returns the standard scoring parameters.
func DefaultParams() Params {
	return Params{
		PromoteDelta:    constants.DefaultPromoteDelta,
		FailurePenalty:  constants.DefaultFailurePenalty,
		DemoteThreshold: constants.DefaultDemoteThreshold,
		SeedConfidence:  constants.DefaultSeedConfidence,
		HealedStep:      constants.DefaultHealedConfidenceStep,
	}
}

// registryState is the persisted shape of selectors.json.
type registryState struct {
	SchemaVersion string                 `json:"schema_version"`
	Entries       []domain.SelectorEntry `json:"entries"`
}

// Registry holds the selector entries for one session. It is owned by a
// single worker and performs no internal locking; cross-process safety comes
// from the store's file lock. Every mutation persists before returning.
type Registry struct {
	file    *store.File
	params  Params
	logger  zerolog.Logger
	entries map[string]*domain.SelectorEntry
}

// New creates a Registry backed by the given state file.
func New(file *store.File, params Params, logger zerolog.Logger) *Registry {
	return &Registry{
		file:    file,
		params:  params,
		logger:  logger.With().Str("component", "selector").Logger(),
		entries: make(map[string]*domain.SelectorEntry),
	}
}

// Load reads the registry from disk. A missing file yields an empty
// registry; any other failure is returned.
func (r *Registry) Load(ctx context.Context) error {
	var state registryState
	err := r.file.Load(ctx, &state)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			r.entries = make(map[string]*domain.SelectorEntry)
			return nil
		}
		return err
	}

	r.entries = make(map[string]*domain.SelectorEntry, len(state.Entries))
	for i := range state.Entries {
		e := state.Entries[i]
		sortCandidates(e.Candidates)
		r.entries[e.Name] = &e
	}
	return nil
}

// Save persists the registry.
func (r *Registry) Save(ctx context.Context) error {
	state := registryState{
		SchemaVersion: constants.SelectorsSchemaVersion,
		Entries:       r.snapshotEntries(),
	}
	return r.file.Save(ctx, &state)
}

// Lookup returns a copy of the named entry.
func (r *Registry) Lookup(name string) (domain.SelectorEntry, error) {
	e, ok := r.entries[name]
	if !ok {
		return domain.SelectorEntry{}, errors.Wrapf(errors.ErrEntryNotFound, "entry %q", name)
	}
	return cloneEntry(e), nil
}

// Active returns the entry's non-demoted candidates in confidence order,
// best first.
func (r *Registry) Active(name string) ([]domain.Candidate, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrEntryNotFound, "entry %q", name)
	}

	active := make([]domain.Candidate, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		if !c.Demoted {
			active = append(active, c)
		}
	}
	return active, nil
}

// Entries returns copies of all entries sorted by name, for inspection.
func (r *Registry) Entries() []domain.SelectorEntry {
	return r.snapshotEntries()
}

// Seed creates the named entry if needed and adds any locators not already
// present, at descending confidences starting from the seed default.
// Seeding an existing entry never touches candidates it already has.
func (r *Registry) Seed(ctx context.Context, name string, kind constants.ElementKind, now time.Time, locators ...string) error {
	if name == "" {
		return errors.Wrap(errors.ErrEmptyValue, "entry name")
	}
	if len(locators) == 0 {
		return errors.Wrapf(errors.ErrEmptyValue, "locators for entry %q", name)
	}

	e, ok := r.entries[name]
	if !ok {
		e = &domain.SelectorEntry{Name: name, Kind: kind}
		r.entries[name] = e
	}

	added := 0
	for i, loc := range locators {
		if loc == "" || e.HasLocator(loc) {
			continue
		}
		conf := r.params.SeedConfidence - float64(i)*r.params.HealedStep
		if conf < minHealedConfidence {
			conf = minHealedConfidence
		}
		e.Candidates = append(e.Candidates, domain.Candidate{
			Locator:    loc,
			Confidence: conf,
			Source:     domain.CandidateSourceSeed,
			AddedAt:    now,
		})
		added++
	}

	if added == 0 {
		return nil
	}

	sortCandidates(e.Candidates)
	r.logger.Debug().Str("entry", name).Int("added", added).Msg("seeded selector candidates")
	return r.Save(ctx)
}

// RecordSuccess promotes the candidate that resolved: confidence bumps
// (capped at 1), the failure streak resets, and the last success time is
// recorded. A success also lifts a demotion, since the locator demonstrably
// works again.
func (r *Registry) RecordSuccess(ctx context.Context, name, locator string, now time.Time) error {
	e, c, err := r.candidate(name, locator)
	if err != nil {
		return err
	}

	c.Confidence += r.params.PromoteDelta
	if c.Confidence > 1 {
		c.Confidence = 1
	}
	c.ConsecutiveFailures = 0
	c.LastSuccessTime = now
	c.Demoted = false

	sortCandidates(e.Candidates)
	return r.Save(ctx)
}

// RecordFailure penalizes the candidate that failed to resolve: confidence
// shrinks by the penalty factor and the failure streak grows. Reaching the
// demotion threshold removes the candidate from the active ordering.
func (r *Registry) RecordFailure(ctx context.Context, name, locator string) error {
	e, c, err := r.candidate(name, locator)
	if err != nil {
		return err
	}

	c.Confidence *= r.params.FailurePenalty
	c.ConsecutiveFailures++
	if c.ConsecutiveFailures >= r.params.DemoteThreshold && !c.Demoted {
		c.Demoted = true
		r.logger.Info().
			Str("entry", name).
			Str("locator", locator).
			Int("consecutive_failures", c.ConsecutiveFailures).
			Msg("selector candidate demoted")
	}

	sortCandidates(e.Candidates)
	return r.Save(ctx)
}

// Insert adds healed locators to the entry below the confidence of any
// candidate that has previously succeeded, so proven locators stay ahead.
// Locators already present are skipped. Returns the candidates as inserted.
func (r *Registry) Insert(ctx context.Context, name string, now time.Time, locators ...string) ([]domain.Candidate, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrEntryNotFound, "entry %q", name)
	}

	base := r.healedBase(e)

	inserted := make([]domain.Candidate, 0, len(locators))
	for _, loc := range locators {
		if loc == "" || e.HasLocator(loc) {
			continue
		}
		base -= r.params.HealedStep
		if base < minHealedConfidence {
			base = minHealedConfidence
		}
		c := domain.Candidate{
			Locator:    loc,
			Confidence: base,
			Source:     domain.CandidateSourceHealed,
			AddedAt:    now,
		}
		e.Candidates = append(e.Candidates, c)
		inserted = append(inserted, c)
	}

	if len(inserted) == 0 {
		return nil, nil
	}

	sortCandidates(e.Candidates)
	r.logger.Info().
		Str("entry", name).
		Int("inserted", len(inserted)).
		Msg("healed selector candidates inserted")

	if err := r.Save(ctx); err != nil {
		return nil, err
	}
	return inserted, nil
}

// RecordHeal stamps the entry's heal time. Called when a healing attempt
// starts, whether or not it yields candidates, so a broken page cannot
// hammer the inference service.
func (r *Registry) RecordHeal(ctx context.Context, name string, now time.Time) error {
	e, ok := r.entries[name]
	if !ok {
		return errors.Wrapf(errors.ErrEntryNotFound, "entry %q", name)
	}
	e.LastHealTime = now
	return r.Save(ctx)
}

// healedBase returns the reference confidence for inserting healed
// candidates: the lowest confidence among active candidates that have
// actually succeeded, else the lowest active confidence, else the seed
// default for an entry with no active candidates.
func (r *Registry) healedBase(e *domain.SelectorEntry) float64 {
	provenLow := -1.0
	activeLow := -1.0
	for _, c := range e.Candidates {
		if c.Demoted {
			continue
		}
		if activeLow < 0 || c.Confidence < activeLow {
			activeLow = c.Confidence
		}
		if !c.LastSuccessTime.IsZero() && (provenLow < 0 || c.Confidence < provenLow) {
			provenLow = c.Confidence
		}
	}
	if provenLow >= 0 {
		return provenLow
	}
	if activeLow >= 0 {
		return activeLow
	}
	return r.params.SeedConfidence
}

// candidate finds a candidate by entry name and locator.
func (r *Registry) candidate(name, locator string) (*domain.SelectorEntry, *domain.Candidate, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, nil, errors.Wrapf(errors.ErrEntryNotFound, "entry %q", name)
	}
	for i := range e.Candidates {
		if e.Candidates[i].Locator == locator {
			return e, &e.Candidates[i], nil
		}
	}
	return nil, nil, errors.Wrapf(errors.ErrCandidateNotFound, "locator %q in entry %q", locator, name)
}

// snapshotEntries returns deep copies of all entries sorted by name.
func (r *Registry) snapshotEntries() []domain.SelectorEntry {
	out := make([]domain.SelectorEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cloneEntry deep-copies an entry so callers cannot alias registry state.
func cloneEntry(e *domain.SelectorEntry) domain.SelectorEntry {
	c := *e
	c.Candidates = make([]domain.Candidate, len(e.Candidates))
	copy(c.Candidates, e.Candidates)
	return c
}

// sortCandidates orders candidates active-first, then by descending
// confidence. The sort is stable so equal-confidence candidates keep their
// relative order.
func sortCandidates(cs []domain.Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Demoted != cs[j].Demoted {
			return !cs[i].Demoted
		}
		return cs[i].Confidence > cs[j].Confidence
	})
}
