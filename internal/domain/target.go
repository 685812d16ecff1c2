package domain

import (
	"time"

	"github.com/mrz1836/legion/internal/constants"
)

// RaidTarget is a farmable destination with its own travel-time-gated
// eligibility window. Lifecycle transitions are driven only by the raid
// scheduler in response to confirmed dispatches and elapsed time.
type RaidTarget struct {
	// ID is the unique identifier, assigned by the farm list from a
	// monotonically increasing counter.
	ID int64 `json:"id"`

	// Name is the operator-facing label for the target.
	Name string `json:"name"`

	// X and Y are the map coordinates of the target.
	X int `json:"x"`
	Y int `json:"y"`

	// Troops maps unit slot (t1..t11) to the count sent per raid.
	Troops map[string]int `json:"troops"`

	// TravelTime is the one-way march duration, computed from distance and
	// the slowest unit's speed. The eligibility window is twice this plus
	// the safety margin.
	TravelTime time.Duration `json:"travel_time"`

	// State is the raid lifecycle state (idle, dispatched, in_transit,
	// awaiting_return).
	State constants.TargetState `json:"state"`

	// LastDispatchTime is when the most recent raid was confirmed sent.
	LastDispatchTime time.Time `json:"last_dispatch_time,omitzero"`

	// NextEligibleTime is when the target may be raided again:
	// last_dispatch_time + travel_time*2 + safety margin. Monotonically
	// non-decreasing while a raid is outstanding.
	NextEligibleTime time.Time `json:"next_eligible_time,omitzero"`

	// RaidsSent counts confirmed dispatches, for reporting.
	RaidsSent int `json:"raids_sent"`

	// Enabled gates the target in and out of automatic scheduling without
	// losing its history.
	Enabled bool `json:"enabled"`

	// LastError records why the most recent raid task failed, if it did.
	LastError string `json:"last_error,omitempty"`

	// Notes is free-form operator text.
	Notes string `json:"notes,omitempty"`
}

// Outstanding reports whether a raid is currently in flight for the target.
// A target with an outstanding raid must never be dispatched again.
func (t *RaidTarget) Outstanding() bool {
	return t.State != constants.TargetStateIdle
}
