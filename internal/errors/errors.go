// Package errors provides centralized error handling for LEGION.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the application. All error types can be checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
// All errors use lowercase descriptions per Go conventions.
var (
	// ===================
	// Connection class
	// ===================

	// ErrConnectionFailure indicates a transport-level failure: the remote
	// service could not be reached or dropped the session. Connection
	// failures are retried transparently by the connectivity guard and
	// never consume a task's retry budget.
	ErrConnectionFailure = errors.New("connection failure")

	// ErrBrowserClosed indicates the browser session has been shut down and
	// can no longer execute actions.
	ErrBrowserClosed = errors.New("browser session closed")

	// ===================
	// Logic class
	// ===================

	// ErrLogicFailure indicates an action could not complete for reasons
	// other than connectivity: wrong page state, unexpected content,
	// unresolvable elements. Logic failures are retried against the task's
	// bounded attempt budget.
	ErrLogicFailure = errors.New("logic failure")

	// ErrElementNotFound indicates a locator resolved to zero elements on
	// the current page.
	ErrElementNotFound = errors.New("element not found")

	// ErrAmbiguousLocator indicates a locator resolved to more than one
	// element. Ambiguous locators are never trusted.
	ErrAmbiguousLocator = errors.New("locator matched multiple elements")

	// ErrElementResolutionFailure indicates every known candidate locator
	// for a logical UI anchor failed, including any healed ones. It is a
	// logic-class failure for the running attempt.
	ErrElementResolutionFailure = errors.New("element resolution failed")

	// ErrActionFailed indicates a browser action (click, type, submit) on a
	// resolved element did not take effect.
	ErrActionFailed = errors.New("browser action failed")

	// ErrNotLoggedIn indicates the session is not authenticated and the
	// login flow could not establish it.
	ErrNotLoggedIn = errors.New("session not logged in")

	// ===================
	// Challenge escalation
	// ===================

	// ErrChallengeRequired indicates the page presented a human-solvable
	// challenge. The current task is deferred, never retried rapidly, and
	// the condition is escalated to the operator.
	ErrChallengeRequired = errors.New("challenge required")

	// ErrChallengeUnsolved indicates the external vision service attempted
	// the challenge and the page still presents it.
	ErrChallengeUnsolved = errors.New("challenge unsolved")

	// ===================
	// Scheduling contract
	// ===================

	// ErrInvalidTask indicates a task failed enqueue validation: unknown
	// kind, attempt budget below one, or a not_before too far in the past.
	ErrInvalidTask = errors.New("invalid task")

	// ErrUnknownTaskKind indicates a task kind with no registered handler.
	ErrUnknownTaskKind = errors.New("unknown task kind")

	// ErrNoEligibleTask indicates no queued task is eligible to run right
	// now. Callers treat this as "nothing to do", not as a failure.
	ErrNoEligibleTask = errors.New("no eligible task")

	// ErrTaskNotFound indicates the referenced task id does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotCancellable indicates a cancellation was requested for a
	// task that already left the pending state.
	ErrTaskNotCancellable = errors.New("task not cancellable")

	// ErrInvalidTransition indicates a status change that the task state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ===================
	// Raid scheduling contract
	// ===================

	// ErrAlreadyOutstanding indicates a dispatch was attempted for a target
	// that already has an in-flight raid. Prevents double-sending troops.
	ErrAlreadyOutstanding = errors.New("raid already outstanding")

	// ErrTargetNotFound indicates the referenced farm target does not exist.
	ErrTargetNotFound = errors.New("farm target not found")

	// ErrTargetDisabled indicates a manual dispatch was attempted for a
	// disabled target.
	ErrTargetDisabled = errors.New("farm target disabled")

	// ErrNoTroopsConfigured indicates a target has no units assigned, so no
	// travel time or raid can be computed for it.
	ErrNoTroopsConfigured = errors.New("no troops configured for target")

	// ===================
	// Self-healing
	// ===================

	// ErrHealingUnavailable indicates the inference service is not
	// configured or unreachable. Callers degrade: the original resolution
	// failure stands and healing is skipped.
	ErrHealingUnavailable = errors.New("healing unavailable")

	// ErrHealCooldown indicates a healing attempt was suppressed because the
	// entry was healed too recently.
	ErrHealCooldown = errors.New("healing on cooldown")

	// ErrNoProposals indicates the inference service returned no usable
	// locator proposals, or none survived live validation.
	ErrNoProposals = errors.New("no validated proposals")

	// ErrEntryNotFound indicates the referenced selector entry does not exist.
	ErrEntryNotFound = errors.New("selector entry not found")

	// ErrCandidateNotFound indicates feedback referenced a locator that is
	// not a candidate of the entry.
	ErrCandidateNotFound = errors.New("selector candidate not found")

	// ErrInferResponse indicates the inference service replied with a body
	// that could not be parsed into selector proposals.
	ErrInferResponse = errors.New("unparseable inference response")

	// ErrInferRequest indicates the inference request itself was rejected
	// (authentication, malformed payload, quota).
	ErrInferRequest = errors.New("inference request failed")

	// ===================
	// Storage
	// ===================

	// ErrStoreCorrupt indicates a persisted state file exists but cannot be
	// decoded. The file is never overwritten silently.
	ErrStoreCorrupt = errors.New("state file corrupt")

	// ErrLockTimeout indicates the state directory lock could not be
	// acquired before the deadline. Usually a second process owns it.
	ErrLockTimeout = errors.New("state lock timeout")

	// ErrEmptyValue indicates a required argument was empty.
	ErrEmptyValue = errors.New("required value is empty")

	// ===================
	// Configuration & CLI
	// ===================

	// ErrInvalidConfig indicates the effective configuration failed
	// validation at startup.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConfigNil indicates a nil config was passed to validation.
	ErrConfigNil = errors.New("config is nil")

	// ErrInvalidOutputFormat indicates an unsupported --output value.
	ErrInvalidOutputFormat = errors.New("invalid output format")

	// ErrSessionNotFound indicates the named session partition is not
	// present in the configuration.
	ErrSessionNotFound = errors.New("session not found")
)
