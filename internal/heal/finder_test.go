package heal

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/legion/internal/browser"
	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/selector"
)

// newTestFinder wires a finder with the given proposer behind the healer.
func newTestFinder(registry *selector.Registry, proposer *fakeProposer, clk *fixedClock) *Finder {
	healer := newTestHealer(registry, proposer, clk)
	return NewFinder(registry, healer, clk, zerolog.Nop())
}

func TestFinder_FirstCandidateWins(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	registry := newTestRegistry(t)
	require.NoError(t, registry.Seed(ctx, "login-user", constants.ElementKindInput, clk.now, "#user", "#user-alt"))

	sess := &fakeSession{resolves: map[string]resolveResult{
		"#user": found("#user", "input"),
	}}

	finder := newTestFinder(registry, &fakeProposer{}, clk)
	el, err := finder.Find(ctx, sess, "login-user")
	require.NoError(t, err)
	assert.Equal(t, "#user", el.Locator)
	assert.Equal(t, []string{"#user"}, sess.tried, "lower-ranked candidates must not be touched")

	active, err := registry.Active("login-user")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, active[0].Confidence, 0.001, "success promotes toward the cap")
}

func TestFinder_FallsThroughToLowerCandidate(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	registry := newTestRegistry(t)
	require.NoError(t, registry.Seed(ctx, "rally-link", constants.ElementKindLink, clk.now, "a.rally", "//a[@href='rally']"))

	sess := &fakeSession{resolves: map[string]resolveResult{
		"//a[@href='rally']": found("//a[@href='rally']", "a"),
	}}

	finder := newTestFinder(registry, &fakeProposer{}, clk)
	el, err := finder.Find(ctx, sess, "rally-link")
	require.NoError(t, err)
	assert.Equal(t, "//a[@href='rally']", el.Locator)

	entry, err := registry.Lookup("rally-link")
	require.NoError(t, err)
	for _, c := range entry.Candidates {
		if c.Locator == "a.rally" {
			assert.Equal(t, 1, c.ConsecutiveFailures, "miss must be recorded")
		}
	}
}

func TestFinder_ConnectionFailurePropagatesWithoutFeedback(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	registry := newTestRegistry(t)
	require.NoError(t, registry.Seed(ctx, "e", constants.ElementKindAny, clk.now, "#a", "#b"))

	sess := &fakeSession{resolves: map[string]resolveResult{
		"#a": {err: legionerrors.Wrap(legionerrors.ErrConnectionFailure, "websocket: close")},
	}}

	finder := newTestFinder(registry, &fakeProposer{}, clk)
	_, err := finder.Find(ctx, sess, "e")
	require.ErrorIs(t, err, legionerrors.ErrConnectionFailure)
	assert.Equal(t, []string{"#a"}, sess.tried, "walk must stop at the transport failure")

	entry, err := registry.Lookup("e")
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Candidates[0].ConsecutiveFailures, "transport failures are not candidate feedback")
}

func TestFinder_HealsOnExhaustionAndRetriesOnlyNewCandidates(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	registry := newTestRegistry(t)
	require.NoError(t, registry.Seed(ctx, "login-user", constants.ElementKindInput, clk.now, "#dead"))

	proposer := &fakeProposer{proposals: []domain.Proposal{
		{Locator: "input[name='user']"},
	}}
	sess := &fakeSession{
		resolves: map[string]resolveResult{
			"input[name='user']": found("input[name='user']", "input"),
		},
		snapshot: domain.Snapshot{URL: "https://game.test/login", HTML: "<html></html>"},
	}

	finder := newTestFinder(registry, proposer, clk)
	el, err := finder.Find(ctx, sess, "login-user")
	require.NoError(t, err)
	assert.Equal(t, "input[name='user']", el.Locator)

	// Walk order: dead candidate, heal validation, healed retry.
	assert.Equal(t, []string{"#dead", "input[name='user']", "input[name='user']"}, sess.tried)
	assert.Equal(t, []string{"#dead"}, proposer.lastReq.FailedLocators)

	// The healed candidate ranks below any previously proven confidence.
	entry, err := registry.Lookup("login-user")
	require.NoError(t, err)
	require.Len(t, entry.Candidates, 2)
	assert.True(t, entry.HasLocator("input[name='user']"))
}

func TestFinder_HealingUnavailableDegradesToResolutionFailure(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	registry := newTestRegistry(t)
	require.NoError(t, registry.Seed(ctx, "e", constants.ElementKindAny, clk.now, "#a"))

	proposer := &fakeProposer{err: legionerrors.ErrHealingUnavailable}
	finder := newTestFinder(registry, proposer, clk)

	_, err := finder.Find(ctx, &fakeSession{}, "e")
	require.ErrorIs(t, err, legionerrors.ErrElementResolutionFailure)
}

func TestFinder_HealedCandidateStillMissing(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	registry := newTestRegistry(t)
	require.NoError(t, registry.Seed(ctx, "e", constants.ElementKindAny, clk.now, "#a"))

	// The proposal validates against the page during healing but then
	// disappears before the retry. Scripted by failing the second resolve.
	proposer := &fakeProposer{proposals: []domain.Proposal{{Locator: "#b"}}}
	sess := &scriptedSession{
		fakeSession: fakeSession{resolves: map[string]resolveResult{
			"#b": found("#b", "div"),
		}},
		failAfter: 1,
	}

	finder := newTestFinder(registry, proposer, clk)
	_, err := finder.Find(ctx, sess, "e")
	require.ErrorIs(t, err, legionerrors.ErrElementResolutionFailure)
}

func TestFinder_ProbeAnswersPresenceWithoutFeedback(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	registry := newTestRegistry(t)
	require.NoError(t, registry.Seed(ctx, "challenge", constants.ElementKindAny, clk.now, "#captcha", ".challenge-box"))

	proposer := &fakeProposer{}
	finder := newTestFinder(registry, proposer, clk)

	// Absent anchor: false, no failure recorded, no heal triggered.
	present, err := finder.Probe(ctx, &fakeSession{}, "challenge")
	require.NoError(t, err)
	assert.False(t, present)
	assert.Equal(t, 0, proposer.calls)

	entry, err := registry.Lookup("challenge")
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Candidates[0].ConsecutiveFailures)

	// Present anchor: any matching active candidate answers true.
	sess := &fakeSession{resolves: map[string]resolveResult{
		".challenge-box": found(".challenge-box", "div"),
	}}
	present, err = finder.Probe(ctx, sess, "challenge")
	require.NoError(t, err)
	assert.True(t, present)
}

func TestFinder_UnknownEntry(t *testing.T) {
	clk := testClock()
	finder := newTestFinder(newTestRegistry(t), &fakeProposer{}, clk)

	_, err := finder.Find(context.Background(), &fakeSession{}, "nope")
	require.ErrorIs(t, err, legionerrors.ErrEntryNotFound)
}

func TestFinder_CanceledContext(t *testing.T) {
	clk := testClock()
	finder := newTestFinder(newTestRegistry(t), &fakeProposer{}, clk)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := finder.Find(ctx, &fakeSession{}, "e")
	require.ErrorIs(t, err, context.Canceled)
}

// scriptedSession resolves a locator successfully a limited number of times,
// then reports it missing.
type scriptedSession struct {
	fakeSession
	failAfter int
	hits      map[string]int
}

func (s *scriptedSession) Resolve(ctx context.Context, locator string) (browser.Element, error) {
	if s.hits == nil {
		s.hits = make(map[string]int)
	}
	el, err := s.fakeSession.Resolve(ctx, locator)
	if err != nil {
		return el, err
	}
	s.hits[locator]++
	if s.hits[locator] > s.failAfter {
		return browser.Element{}, legionerrors.Wrapf(legionerrors.ErrElementNotFound, "locator %q", locator)
	}
	return el, nil
}
