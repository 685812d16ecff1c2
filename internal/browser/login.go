package browser

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrz1836/legion/internal/ctxutil"
	legionerrors "github.com/mrz1836/legion/internal/errors"
)

// Logical anchor names the login and challenge flows resolve. The locators
// behind them live in the selector registry, seeded at worker start and
// healed at runtime.
const (
	// EntryLoginUser is the username input on the login page.
	EntryLoginUser = "login-user"

	// EntryLoginPass is the password input on the login page.
	EntryLoginPass = "login-pass"

	// EntryLoginSubmit is the login form submit control.
	EntryLoginSubmit = "login-submit"

	// EntryLoggedInProbe resolves only when a session is authenticated.
	EntryLoggedInProbe = "logged-in-probe"

	// EntryChallenge resolves only when a verification challenge is shown.
	EntryChallenge = "challenge"

	// EntryChallengeInput is the challenge answer input.
	EntryChallengeInput = "challenge-input"

	// EntryChallengeSubmit is the challenge form submit control.
	EntryChallengeSubmit = "challenge-submit"
)

// ElementFinder resolves a logical anchor name to a live element. Implemented
// by the healing finder; declared here so the login flow stays decoupled from
// the healing machinery. Probe answers presence without selector feedback,
// for anchors whose absence is the normal case.
type ElementFinder interface {
	Find(ctx context.Context, sess Session, name string) (Element, error)
	Probe(ctx context.Context, sess Session, name string) (bool, error)
}

// ChallengeSolver answers a visual challenge from a PNG screenshot.
// Structurally matched by the inference client; nil means no solver.
type ChallengeSolver interface {
	SolveChallenge(ctx context.Context, png []byte) (string, error)
}

// Credentials are the account login inputs.
type Credentials struct {
	Username string
	Password string
}

// EnsureLoggedIn brings the session to an authenticated state. It navigates
// to the base URL, short-circuits when the logged-in probe already resolves,
// otherwise fills and submits the login form through the finder so login
// selectors self-heal like any other anchor. A challenge shown after login
// surfaces as ErrChallengeRequired via the challenge flow.
func EnsureLoggedIn(ctx context.Context, sess Session, finder ElementFinder, solver ChallengeSolver, baseURL string, creds Credentials, logger zerolog.Logger) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if creds.Username == "" || creds.Password == "" {
		return legionerrors.Wrap(legionerrors.ErrInvalidConfig, "account credentials not configured")
	}

	if err := sess.Navigate(ctx, baseURL); err != nil {
		return err
	}

	loggedIn, err := probeResolves(ctx, sess, finder, EntryLoggedInProbe)
	if err != nil {
		return err
	}
	if loggedIn {
		return nil
	}

	logger.Info().Str("username", creds.Username).Msg("logging in")

	userEl, err := finder.Find(ctx, sess, EntryLoginUser)
	if err != nil {
		return legionerrors.Wrap(err, "login form")
	}
	if err = sess.Perform(ctx, Clear(), userEl); err != nil {
		return err
	}
	if err = sess.Perform(ctx, TypeText(creds.Username), userEl); err != nil {
		return err
	}

	passEl, err := finder.Find(ctx, sess, EntryLoginPass)
	if err != nil {
		return legionerrors.Wrap(err, "login form")
	}
	if err = sess.Perform(ctx, Clear(), passEl); err != nil {
		return err
	}
	if err = sess.Perform(ctx, TypeText(creds.Password), passEl); err != nil {
		return err
	}

	submitEl, err := finder.Find(ctx, sess, EntryLoginSubmit)
	if err != nil {
		return legionerrors.Wrap(err, "login form")
	}
	if err = sess.Perform(ctx, Click(), submitEl); err != nil {
		return err
	}

	if err = ResolveChallenge(ctx, sess, finder, solver, logger); err != nil {
		return err
	}

	loggedIn, err = probeResolves(ctx, sess, finder, EntryLoggedInProbe)
	if err != nil {
		return err
	}
	if !loggedIn {
		return legionerrors.Wrapf(legionerrors.ErrNotLoggedIn, "probe %q did not resolve after login", EntryLoggedInProbe)
	}

	logger.Info().Msg("login verified")
	return nil
}

// DetectChallenge reports whether the challenge anchor resolves on the
// current page. Absence is the normal case and records no selector feedback.
func DetectChallenge(ctx context.Context, sess Session, finder ElementFinder) (bool, error) {
	return probeResolves(ctx, sess, finder, EntryChallenge)
}

// ResolveChallenge runs the challenge flow when a challenge is on the
// current page: one solve attempt per occurrence when a solver is
// configured, escalation via ErrChallengeRequired otherwise or when the
// answer did not clear the page. A page without a challenge is a no-op.
func ResolveChallenge(ctx context.Context, sess Session, finder ElementFinder, solver ChallengeSolver, logger zerolog.Logger) error {
	present, err := DetectChallenge(ctx, sess, finder)
	if err != nil {
		return err
	}
	if !present {
		return nil
	}

	if solver == nil {
		return legionerrors.Wrap(legionerrors.ErrChallengeRequired, "no solver configured")
	}

	logger.Warn().Msg("challenge detected, attempting solve")

	png, err := sess.Screenshot(ctx)
	if err != nil {
		return err
	}
	answer, err := solver.SolveChallenge(ctx, png)
	if err != nil || strings.TrimSpace(answer) == "" {
		return legionerrors.Wrapf(legionerrors.ErrChallengeRequired, "solver failed: %v", err)
	}

	inputEl, err := finder.Find(ctx, sess, EntryChallengeInput)
	if err != nil {
		return legionerrors.Wrap(err, "challenge form")
	}
	if err = sess.Perform(ctx, Clear(), inputEl); err != nil {
		return err
	}
	if err = sess.Perform(ctx, TypeText(answer), inputEl); err != nil {
		return err
	}
	submitEl, err := finder.Find(ctx, sess, EntryChallengeSubmit)
	if err != nil {
		return legionerrors.Wrap(err, "challenge form")
	}
	if err = sess.Perform(ctx, Click(), submitEl); err != nil {
		return err
	}

	present, err = DetectChallenge(ctx, sess, finder)
	if err != nil {
		return err
	}
	if present {
		return legionerrors.Wrap(legionerrors.ErrChallengeUnsolved, "challenge still present after solve attempt")
	}

	logger.Info().Msg("challenge solved")
	return nil
}

// probeResolves distinguishes "anchor absent" from real failures: a missing
// entry or no match means absent, transport failures propagate.
func probeResolves(ctx context.Context, sess Session, finder ElementFinder, name string) (bool, error) {
	present, err := finder.Probe(ctx, sess, name)
	if err == nil {
		return present, nil
	}
	if stderrors.Is(err, legionerrors.ErrEntryNotFound) {
		return false, nil
	}
	return false, err
}
