// Package infer talks to the external inference service LEGION uses for
// selector self-healing and challenge solving. The service is purely
// advisory: it proposes locators and answers, and never mutates core state.
// When it is not configured the rest of the system degrades gracefully.
package infer

import (
	"context"

	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/domain"
)

// Request carries everything the service needs to propose replacement
// locators for a broken selector entry.
type Request struct {
	// EntryName is the logical anchor name ("login-button").
	EntryName string

	// EntryKind is the semantic element kind expected at the anchor.
	EntryKind constants.ElementKind

	// Snapshot is the captured page the proposals must work against.
	Snapshot domain.Snapshot

	// FailedLocators lists every candidate that already failed, so the
	// service does not propose them again.
	FailedLocators []string
}

// Proposer produces replacement locator proposals for a selector entry.
// Implementations must treat proposals as advisory; validation against the
// live page is the caller's job.
type Proposer interface {
	// ProposeSelectors returns zero or more locator proposals for the
	// broken entry. An unreachable service returns an error wrapping
	// ErrHealingUnavailable.
	ProposeSelectors(ctx context.Context, req Request) ([]domain.Proposal, error)
}

// ChallengeSolver answers a visual challenge from a page screenshot.
// Solving is best-effort; an empty answer or an error leaves the challenge
// escalation path in charge.
type ChallengeSolver interface {
	// SolveChallenge returns the text answer for the challenge shown in the
	// PNG screenshot.
	SolveChallenge(ctx context.Context, png []byte) (string, error)
}
