package heal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/legion/internal/browser"
	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/infer"
	"github.com/mrz1836/legion/internal/selector"
	"github.com/mrz1836/legion/internal/store"
)

// fixedClock returns a settable time.
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// resolveResult is one scripted Resolve outcome.
type resolveResult struct {
	el  browser.Element
	err error
}

// fakeSession scripts Resolve outcomes per locator and records the order
// locators were tried in.
type fakeSession struct {
	resolves map[string]resolveResult
	tried    []string
	snapshot domain.Snapshot
	snapErr  error
}

func (s *fakeSession) Navigate(_ context.Context, _ string) error { return nil }

func (s *fakeSession) Resolve(_ context.Context, locator string) (browser.Element, error) {
	s.tried = append(s.tried, locator)
	if r, ok := s.resolves[locator]; ok {
		return r.el, r.err
	}
	return browser.Element{}, legionerrors.Wrapf(legionerrors.ErrElementNotFound, "locator %q", locator)
}

func (s *fakeSession) Count(ctx context.Context, locator string) (int, error) {
	if _, err := s.Resolve(ctx, locator); err != nil {
		return 0, nil
	}
	return 1, nil
}

func (s *fakeSession) Perform(_ context.Context, _ browser.Action, _ browser.Element) error {
	return nil
}

func (s *fakeSession) ReadText(_ context.Context, _ browser.Element) (string, error) {
	return "", nil
}

func (s *fakeSession) Snapshot(_ context.Context) (domain.Snapshot, error) {
	if s.snapErr != nil {
		return domain.Snapshot{}, s.snapErr
	}
	return s.snapshot, nil
}

func (s *fakeSession) Screenshot(_ context.Context) ([]byte, error) { return nil, nil }

func (s *fakeSession) CurrentURL(_ context.Context) (string, error) { return "", nil }

func (s *fakeSession) Close(_ context.Context) error { return nil }

// fakeProposer scripts one proposal set and records requests.
type fakeProposer struct {
	proposals []domain.Proposal
	err       error
	calls     int
	lastReq   infer.Request
}

func (p *fakeProposer) ProposeSelectors(_ context.Context, req infer.Request) ([]domain.Proposal, error) {
	p.calls++
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return p.proposals, nil
}

// found returns a scripted successful resolution.
func found(locator, tag string) resolveResult {
	return resolveResult{el: browser.Element{Locator: locator, Tag: tag}}
}

// newTestRegistry returns a registry backed by a temp state file.
func newTestRegistry(t *testing.T) *selector.Registry {
	t.Helper()
	file := store.NewFile(filepath.Join(t.TempDir(), constants.SelectorsFileName))
	return selector.New(file, selector.DefaultParams(), zerolog.Nop())
}

// newTestHealer wires a healer around the registry and proposer with a short
// cooldown and a fixed clock.
func newTestHealer(registry *selector.Registry, proposer infer.Proposer, clk *fixedClock) *Healer {
	return NewHealer(registry, proposer, Options{
		Cooldown: constants.DefaultHealCooldown,
		Clock:    clk,
	}, zerolog.Nop())
}

func testClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)}
}

func TestHealer_AcceptsValidatedProposal(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	registry := newTestRegistry(t)
	require.NoError(t, registry.Seed(ctx, "login-user", constants.ElementKindInput, clk.now, "#old-user"))

	proposer := &fakeProposer{proposals: []domain.Proposal{
		{Locator: "input[name='user']", Explanation: "username field"},
	}}
	sess := &fakeSession{resolves: map[string]resolveResult{
		"input[name='user']": found("input[name='user']", "input"),
	}}

	healer := newTestHealer(registry, proposer, clk)
	accepted, err := healer.Heal(ctx, sess, "login-user", domain.Snapshot{URL: "https://game.test/login"}, []string{"#old-user"})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, "input[name='user']", accepted[0].Locator)
	assert.Equal(t, domain.CandidateSourceHealed, accepted[0].Source)

	entry, err := registry.Lookup("login-user")
	require.NoError(t, err)
	assert.True(t, entry.HasLocator("input[name='user']"))
	assert.Equal(t, clk.now, entry.LastHealTime)

	assert.Equal(t, "login-user", proposer.lastReq.EntryName)
	assert.Equal(t, constants.ElementKindInput, proposer.lastReq.EntryKind)
	assert.Equal(t, []string{"#old-user"}, proposer.lastReq.FailedLocators)
}

func TestHealer_CooldownEnforced(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	registry := newTestRegistry(t)
	require.NoError(t, registry.Seed(ctx, "e", constants.ElementKindAny, clk.now, "#a"))

	proposer := &fakeProposer{proposals: []domain.Proposal{{Locator: "#b"}}}
	sess := &fakeSession{resolves: map[string]resolveResult{"#b": found("#b", "div")}}
	healer := newTestHealer(registry, proposer, clk)

	_, err := healer.Heal(ctx, sess, "e", domain.Snapshot{}, nil)
	require.NoError(t, err)

	clk.advance(time.Minute)
	_, err = healer.Heal(ctx, sess, "e", domain.Snapshot{}, nil)
	require.ErrorIs(t, err, legionerrors.ErrHealCooldown)
	assert.Equal(t, 1, proposer.calls, "cooldown must prevent a second service call")

	clk.advance(constants.DefaultHealCooldown)
	proposer.proposals = []domain.Proposal{{Locator: "#c"}}
	sess.resolves["#c"] = found("#c", "div")
	_, err = healer.Heal(ctx, sess, "e", domain.Snapshot{}, nil)
	require.NoError(t, err, "heal must be allowed again after the window")
}

func TestHealer_FailedAttemptConsumesCooldown(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	registry := newTestRegistry(t)
	require.NoError(t, registry.Seed(ctx, "e", constants.ElementKindAny, clk.now, "#a"))

	proposer := &fakeProposer{err: legionerrors.ErrHealingUnavailable}
	healer := newTestHealer(registry, proposer, clk)

	_, err := healer.Heal(ctx, &fakeSession{}, "e", domain.Snapshot{}, nil)
	require.ErrorIs(t, err, legionerrors.ErrHealingUnavailable)

	clk.advance(time.Minute)
	_, err = healer.Heal(ctx, &fakeSession{}, "e", domain.Snapshot{}, nil)
	require.ErrorIs(t, err, legionerrors.ErrHealCooldown)
	assert.Equal(t, 1, proposer.calls)
}

func TestHealer_NilProposerReportsUnavailable(t *testing.T) {
	clk := testClock()
	registry := newTestRegistry(t)
	healer := newTestHealer(registry, nil, clk)

	_, err := healer.Heal(context.Background(), &fakeSession{}, "e", domain.Snapshot{}, nil)
	require.ErrorIs(t, err, legionerrors.ErrHealingUnavailable)
}

func TestHealer_RejectsUnvalidatedProposals(t *testing.T) {
	// Proposals that resolve to zero or many elements, or to the wrong tag,
	// must never reach the registry.
	ctx := context.Background()
	clk := testClock()
	registry := newTestRegistry(t)
	require.NoError(t, registry.Seed(ctx, "login-user", constants.ElementKindInput, clk.now, "#old"))

	proposer := &fakeProposer{proposals: []domain.Proposal{
		{Locator: "#missing"},
		{Locator: ".many"},
		{Locator: "div.wrong-kind"},
	}}
	sess := &fakeSession{resolves: map[string]resolveResult{
		".many":          {err: legionerrors.Wrap(legionerrors.ErrAmbiguousLocator, "2 matches")},
		"div.wrong-kind": found("div.wrong-kind", "div"),
	}}

	healer := newTestHealer(registry, proposer, clk)
	_, err := healer.Heal(ctx, sess, "login-user", domain.Snapshot{}, nil)
	require.ErrorIs(t, err, legionerrors.ErrNoProposals)

	entry, err := registry.Lookup("login-user")
	require.NoError(t, err)
	assert.Len(t, entry.Candidates, 1, "rejected proposals must not be stored")
}

func TestHealer_ConnectionFailureDuringValidationPropagates(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	registry := newTestRegistry(t)
	require.NoError(t, registry.Seed(ctx, "e", constants.ElementKindAny, clk.now, "#a"))

	proposer := &fakeProposer{proposals: []domain.Proposal{{Locator: "#b"}}}
	sess := &fakeSession{resolves: map[string]resolveResult{
		"#b": {err: legionerrors.Wrap(legionerrors.ErrConnectionFailure, "tab crashed")},
	}}

	healer := newTestHealer(registry, proposer, clk)
	_, err := healer.Heal(ctx, sess, "e", domain.Snapshot{}, nil)
	require.ErrorIs(t, err, legionerrors.ErrConnectionFailure)
}

func TestHealer_UnknownEntry(t *testing.T) {
	clk := testClock()
	healer := newTestHealer(newTestRegistry(t), &fakeProposer{}, clk)

	_, err := healer.Heal(context.Background(), &fakeSession{}, "nope", domain.Snapshot{}, nil)
	require.ErrorIs(t, err, legionerrors.ErrEntryNotFound)
}

func TestKindMatches(t *testing.T) {
	tests := []struct {
		kind constants.ElementKind
		tag  string
		want bool
	}{
		{constants.ElementKindInput, "input", true},
		{constants.ElementKindInput, "textarea", true},
		{constants.ElementKindInput, "div", false},
		{constants.ElementKindButton, "button", true},
		{constants.ElementKindButton, "a", true},
		{constants.ElementKindButton, "span", false},
		{constants.ElementKindLink, "a", true},
		{constants.ElementKindLink, "img", false},
		{constants.ElementKindField, "td", true},
		{constants.ElementKindAny, "marquee", true},
		{constants.ElementKindInput, "", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, kindMatches(tt.kind, tt.tag), "kind %s tag %q", tt.kind, tt.tag)
	}
}
