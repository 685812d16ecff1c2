package selector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/domain"
	"github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/store"
)

// newTestRegistry returns a registry backed by a temp state file.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	file := store.NewFile(filepath.Join(t.TempDir(), constants.SelectorsFileName))
	return New(file, DefaultParams(), zerolog.Nop())
}

// seedEntry creates an entry with explicit candidate confidences for
// scoring tests.
func seedEntry(t *testing.T, r *Registry, name string, candidates ...domain.Candidate) {
	t.Helper()
	r.entries[name] = &domain.SelectorEntry{
		Name:       name,
		Kind:       constants.ElementKindAny,
		Candidates: candidates,
	}
}

func TestRegistry_LoadMissingFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Load(ctx))
	assert.Empty(t, r.Entries())
}

func TestRegistry_SeedAndLookup(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := r.Seed(ctx, "login-user", constants.ElementKindInput, now,
		"input[name='user']", "//input[@id='username']")
	require.NoError(t, err)

	entry, err := r.Lookup("login-user")
	require.NoError(t, err)
	assert.Equal(t, "login-user", entry.Name)
	assert.Equal(t, constants.ElementKindInput, entry.Kind)
	require.Len(t, entry.Candidates, 2)

	// First locator seeds highest, later ones step down
	assert.Equal(t, "input[name='user']", entry.Candidates[0].Locator)
	assert.InDelta(t, 0.9, entry.Candidates[0].Confidence, 0.001)
	assert.InDelta(t, 0.8, entry.Candidates[1].Confidence, 0.001)
	assert.Equal(t, domain.CandidateSourceSeed, entry.Candidates[0].Source)
}

func TestRegistry_SeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	now := time.Now().UTC()

	require.NoError(t, r.Seed(ctx, "anchor", constants.ElementKindLink, now, "a.anchor"))
	require.NoError(t, r.Seed(ctx, "anchor", constants.ElementKindLink, now, "a.anchor", "a#anchor"))

	entry, err := r.Lookup("anchor")
	require.NoError(t, err)
	assert.Len(t, entry.Candidates, 2, "re-seeding must not duplicate locators")
}

func TestRegistry_LookupUnknownEntry(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Lookup("nope")
	assert.ErrorIs(t, err, errors.ErrEntryNotFound)

	_, err = r.Active("nope")
	assert.ErrorIs(t, err, errors.ErrEntryNotFound)
}

func TestRegistry_FailureThenSuccessReranks(t *testing.T) {
	// Candidates [A:0.9, B:0.5]: A fails once, B succeeds.
	// Expected active order: [B:0.6, A:0.45].
	ctx := context.Background()
	r := newTestRegistry(t)
	now := time.Now().UTC()

	seedEntry(t, r, "nav-reports",
		domain.Candidate{Locator: "A", Confidence: 0.9, Source: domain.CandidateSourceSeed},
		domain.Candidate{Locator: "B", Confidence: 0.5, Source: domain.CandidateSourceSeed},
	)

	require.NoError(t, r.RecordFailure(ctx, "nav-reports", "A"))
	require.NoError(t, r.RecordSuccess(ctx, "nav-reports", "B", now))

	active, err := r.Active("nav-reports")
	require.NoError(t, err)
	require.Len(t, active, 2)

	assert.Equal(t, "B", active[0].Locator)
	assert.InDelta(t, 0.6, active[0].Confidence, 0.001)
	assert.Equal(t, "A", active[1].Locator)
	assert.InDelta(t, 0.45, active[1].Confidence, 0.001)
}

func TestRegistry_SuccessCapsConfidenceAtOne(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	now := time.Now().UTC()

	seedEntry(t, r, "e",
		domain.Candidate{Locator: "x", Confidence: 0.95},
	)

	require.NoError(t, r.RecordSuccess(ctx, "e", "x", now))

	active, err := r.Active("e")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, active[0].Confidence, 0.001)
	assert.Equal(t, now, active[0].LastSuccessTime)
}

func TestRegistry_SuccessResetsFailureStreak(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	now := time.Now().UTC()

	seedEntry(t, r, "e",
		domain.Candidate{Locator: "x", Confidence: 0.8, ConsecutiveFailures: 2},
	)

	require.NoError(t, r.RecordSuccess(ctx, "e", "x", now))

	entry, err := r.Lookup("e")
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Candidates[0].ConsecutiveFailures)
}

func TestRegistry_DemotionAtThreshold(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	seedEntry(t, r, "e",
		domain.Candidate{Locator: "x", Confidence: 0.9},
		domain.Candidate{Locator: "y", Confidence: 0.4},
	)

	for i := 0; i < constants.DefaultDemoteThreshold; i++ {
		require.NoError(t, r.RecordFailure(ctx, "e", "x"))
	}

	active, err := r.Active("e")
	require.NoError(t, err)
	require.Len(t, active, 1, "demoted candidate leaves the active ordering")
	assert.Equal(t, "y", active[0].Locator)

	// Demoted candidate is retained for audit
	entry, err := r.Lookup("e")
	require.NoError(t, err)
	require.Len(t, entry.Candidates, 2)
	last := entry.Candidates[len(entry.Candidates)-1]
	assert.Equal(t, "x", last.Locator)
	assert.True(t, last.Demoted)
	assert.Equal(t, constants.DefaultDemoteThreshold, last.ConsecutiveFailures)
}

func TestRegistry_SuccessLiftsDemotion(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	now := time.Now().UTC()

	seedEntry(t, r, "e",
		domain.Candidate{Locator: "x", Confidence: 0.1, ConsecutiveFailures: 3, Demoted: true},
	)

	require.NoError(t, r.RecordSuccess(ctx, "e", "x", now))

	active, err := r.Active("e")
	require.NoError(t, err)
	require.Len(t, active, 1, "a succeeding candidate rejoins the active ordering")
	assert.False(t, active[0].Demoted)
}

func TestRegistry_FeedbackOnUnknownLocator(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	now := time.Now().UTC()

	seedEntry(t, r, "e", domain.Candidate{Locator: "x", Confidence: 0.9})

	assert.ErrorIs(t, r.RecordSuccess(ctx, "e", "ghost", now), errors.ErrCandidateNotFound)
	assert.ErrorIs(t, r.RecordFailure(ctx, "e", "ghost"), errors.ErrCandidateNotFound)
}

func TestRegistry_ActiveOrderingNonIncreasing(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	now := time.Now().UTC()

	seedEntry(t, r, "e",
		domain.Candidate{Locator: "a", Confidence: 0.9},
		domain.Candidate{Locator: "b", Confidence: 0.7},
		domain.Candidate{Locator: "c", Confidence: 0.5},
	)

	// Shuffle confidences with mixed feedback
	require.NoError(t, r.RecordFailure(ctx, "e", "a"))
	require.NoError(t, r.RecordSuccess(ctx, "e", "c", now))
	require.NoError(t, r.RecordSuccess(ctx, "e", "c", now))
	require.NoError(t, r.RecordFailure(ctx, "e", "b"))

	active, err := r.Active("e")
	require.NoError(t, err)
	for i := 1; i < len(active); i++ {
		assert.GreaterOrEqual(t, active[i-1].Confidence, active[i].Confidence,
			"active ordering must be non-increasing by confidence")
	}
}

func TestRegistry_InsertBelowProvenCandidates(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	now := time.Now().UTC()

	seedEntry(t, r, "e",
		domain.Candidate{Locator: "proven", Confidence: 0.6, LastSuccessTime: now.Add(-time.Hour)},
		domain.Candidate{Locator: "untried", Confidence: 0.3},
	)

	inserted, err := r.Insert(ctx, "e", now, "healed-1")
	require.NoError(t, err)
	require.Len(t, inserted, 1)

	// Healed enters below the proven candidate's confidence
	assert.InDelta(t, 0.5, inserted[0].Confidence, 0.001)
	assert.Equal(t, domain.CandidateSourceHealed, inserted[0].Source)

	active, err := r.Active("e")
	require.NoError(t, err)
	assert.Equal(t, "proven", active[0].Locator, "proven locator stays ranked first")
}

func TestRegistry_InsertWithNoProvenCandidates(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	now := time.Now().UTC()

	seedEntry(t, r, "e",
		domain.Candidate{Locator: "untried", Confidence: 0.4},
	)

	inserted, err := r.Insert(ctx, "e", now, "healed-1", "healed-2")
	require.NoError(t, err)
	require.Len(t, inserted, 2)

	// Steps down from the lowest active confidence
	assert.InDelta(t, 0.3, inserted[0].Confidence, 0.001)
	assert.InDelta(t, 0.2, inserted[1].Confidence, 0.001)
}

func TestRegistry_InsertSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	now := time.Now().UTC()

	seedEntry(t, r, "e", domain.Candidate{Locator: "x", Confidence: 0.9})

	inserted, err := r.Insert(ctx, "e", now, "x")
	require.NoError(t, err)
	assert.Empty(t, inserted)
}

func TestRegistry_InsertUnknownEntry(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	_, err := r.Insert(ctx, "nope", time.Now().UTC(), "a")
	assert.ErrorIs(t, err, errors.ErrEntryNotFound)
}

func TestRegistry_RecordHeal(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedEntry(t, r, "e", domain.Candidate{Locator: "x", Confidence: 0.9})

	require.NoError(t, r.RecordHeal(ctx, "e", now))

	entry, err := r.Lookup("e")
	require.NoError(t, err)
	assert.Equal(t, now, entry.LastHealTime)
}

func TestRegistry_PersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	file := store.NewFile(filepath.Join(t.TempDir(), constants.SelectorsFileName))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r1 := New(file, DefaultParams(), zerolog.Nop())
	require.NoError(t, r1.Seed(ctx, "login-user", constants.ElementKindInput, now, "input#user"))
	require.NoError(t, r1.RecordSuccess(ctx, "login-user", "input#user", now))

	r2 := New(file, DefaultParams(), zerolog.Nop())
	require.NoError(t, r2.Load(ctx))

	entry, err := r2.Lookup("login-user")
	require.NoError(t, err)
	require.Len(t, entry.Candidates, 1)
	assert.InDelta(t, 1.0, entry.Candidates[0].Confidence, 0.001)
	assert.Equal(t, now, entry.Candidates[0].LastSuccessTime)
}

func TestRegistry_EntriesSortedByName(t *testing.T) {
	r := newTestRegistry(t)

	seedEntry(t, r, "zulu", domain.Candidate{Locator: "z", Confidence: 0.5})
	seedEntry(t, r, "alpha", domain.Candidate{Locator: "a", Confidence: 0.5})
	seedEntry(t, r, "mike", domain.Candidate{Locator: "m", Confidence: 0.5})

	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "alpha", entries[0].Name)
	assert.Equal(t, "mike", entries[1].Name)
	assert.Equal(t, "zulu", entries[2].Name)
}

func TestRegistry_LookupReturnsCopy(t *testing.T) {
	r := newTestRegistry(t)

	seedEntry(t, r, "e", domain.Candidate{Locator: "x", Confidence: 0.9})

	entry, err := r.Lookup("e")
	require.NoError(t, err)
	entry.Candidates[0].Confidence = 0.1

	again, err := r.Lookup("e")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, again.Candidates[0].Confidence, 0.001,
		"mutating a lookup result must not touch registry state")
}
