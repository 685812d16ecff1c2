// Package guard provides connection resilience for LEGION.
//
// The guard separates connection failures (the service is unreachable) from
// logic failures (the service answered, the action still failed). Connection
// failures are retried transparently with capped exponential backoff and
// never consume a task's attempt budget; everything else is the caller's
// problem. This file contains the error classification side.
package guard

import (
	"context"
	stderrors "errors"
	"strings"

	legionerrors "github.com/mrz1836/legion/internal/errors"
)

// PatternMatcher checks if a string contains any of a list of patterns.
// It performs case-insensitive matching on the lowercased input.
type PatternMatcher struct {
	patterns []string
}

// NewPatternMatcher creates a new PatternMatcher with the given patterns.
// All patterns should be lowercase for consistent matching.
func NewPatternMatcher(patterns ...string) *PatternMatcher {
	return &PatternMatcher{patterns: patterns}
}

// Matches returns true if the input string contains any of the patterns.
// The input is lowercased before matching.
func (m *PatternMatcher) Matches(s string) bool {
	lower := strings.ToLower(s)
	for _, pattern := range m.patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// connectionPatterns matches transport-level failures in raw error text.
// This matcher is the single place error strings are inspected; everywhere
// else classification travels by sentinel wrapping.
//
//nolint:gochecknoglobals // Package-level immutable pattern matcher for performance
var connectionPatterns = NewPatternMatcher(
	"timeout",
	"timed out",
	"could not resolve",
	"no such host",
	"name resolution",
	"dns error",
	"connection refused",
	"connection reset",
	"connection closed",
	"broken pipe",
	"no route to host",
	"network is unreachable",
	"network unreachable",
	"remote disconnect",
	"unexpected eof",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"websocket: close",
	"websocket: bad handshake",
)

// logicSentinels are errors that never classify as connection failures,
// regardless of their text: the service answered, so the transport worked.
// ErrBrowserClosed is also here because retrying cannot revive a closed
// session.
//
//nolint:gochecknoglobals // Immutable sentinel list
var logicSentinels = []error{
	legionerrors.ErrLogicFailure,
	legionerrors.ErrElementNotFound,
	legionerrors.ErrAmbiguousLocator,
	legionerrors.ErrElementResolutionFailure,
	legionerrors.ErrActionFailed,
	legionerrors.ErrNotLoggedIn,
	legionerrors.ErrChallengeRequired,
	legionerrors.ErrChallengeUnsolved,
	legionerrors.ErrBrowserClosed,
}

// Classifier decides whether an error is a connection failure.
type Classifier struct {
	connection *PatternMatcher
}

// NewClassifier creates a Classifier with the standard connection patterns.
func NewClassifier() *Classifier {
	return &Classifier{connection: connectionPatterns}
}

// IsConnectionFailure reports whether err is a transport-level failure that
// transparent retry can fix.
//
// Classification order:
//  1. nil is never a failure.
//  2. Errors wrapping ErrConnectionFailure classify without text inspection.
//  3. Logic and challenge sentinels never classify, whatever their text.
//  4. context.Canceled is a shutdown signal, not an outage.
//     context.DeadlineExceeded from a transport call is an outage.
//  5. Otherwise the raw text is matched against the connection patterns.
func (c *Classifier) IsConnectionFailure(err error) bool {
	if err == nil {
		return false
	}

	if stderrors.Is(err, legionerrors.ErrConnectionFailure) {
		return true
	}

	for _, sentinel := range logicSentinels {
		if stderrors.Is(err, sentinel) {
			return false
		}
	}

	if stderrors.Is(err, context.Canceled) {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return c.connection.Matches(err.Error())
}
