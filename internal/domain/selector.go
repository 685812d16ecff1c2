package domain

import (
	"time"

	"github.com/mrz1836/legion/internal/constants"
)

// Candidate source values.
const (
	// CandidateSourceSeed marks a candidate provided by configuration.
	CandidateSourceSeed = "seed"

	// CandidateSourceHealed marks a candidate proposed by the inference
	// service and accepted after live validation.
	CandidateSourceHealed = "healed"
)

// SelectorEntry is a named logical UI anchor ("login-button",
// "rally-point-link") with a ranked list of candidate locators. Candidates
// are always ordered by descending confidence; demoted candidates sort after
// active ones and are excluded from resolution but retained for audit.
type SelectorEntry struct {
	// Name is the logical anchor name.
	Name string `json:"name"`

	// Kind is the semantic element kind used to sanity-check healed
	// proposals (input, button, link, field, any).
	Kind constants.ElementKind `json:"kind"`

	// Candidates is the ranked locator list, best first.
	Candidates []Candidate `json:"candidates"`

	// LastHealTime is when healing last ran for this entry. Enforces the
	// per-entry cooldown across restarts.
	LastHealTime time.Time `json:"last_heal_time,omitzero"`
}

// HasLocator reports whether the entry already carries the locator as a
// candidate, demoted or not.
func (e *SelectorEntry) HasLocator(locator string) bool {
	for _, c := range e.Candidates {
		if c.Locator == locator {
			return true
		}
	}
	return false
}

// Candidate is a single locator with its confidence score and feedback
// history.
type Candidate struct {
	// Locator is the selector string. A "//" or "xpath=" prefix selects the
	// XPath dialect; anything else is a CSS query.
	Locator string `json:"locator"`

	// Confidence is the current score in [0,1]. Success promotes, failure
	// penalizes.
	Confidence float64 `json:"confidence"`

	// LastSuccessTime is when the locator last resolved an element (zero if
	// never).
	LastSuccessTime time.Time `json:"last_success_time,omitzero"`

	// ConsecutiveFailures counts failures since the last success. Reaching
	// the demotion threshold removes the candidate from the active ordering.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// Demoted marks a candidate excluded from resolution. Kept for audit.
	Demoted bool `json:"demoted"`

	// Source records where the candidate came from (seed, healed).
	Source string `json:"source"`

	// AddedAt is when the candidate entered the registry.
	AddedAt time.Time `json:"added_at,omitzero"`
}

// Proposal is a locator suggested by the inference service. Proposals are
// advisory: they mutate nothing until live validation accepts them.
type Proposal struct {
	// Locator is the proposed selector string.
	Locator string `json:"locator"`

	// Explanation is the service's reasoning, kept for the audit log.
	Explanation string `json:"explanation,omitempty"`
}
