// Package farm implements the raid scheduler for LEGION: a per-target state
// machine gating dispatches on troop travel time, and a tick that turns
// eligible targets into raid tasks for the executor. Timing lives here;
// execution reliability lives in the executor. The two meet only through
// produced tasks and their outcomes.
package farm

import (
	"math"
	"time"

	"github.com/mrz1836/legion/internal/constants"
	legionerrors "github.com/mrz1836/legion/internal/errors"
)

// TravelTime computes the one-way march duration from home to (x, y) for the
// given troop composition. A raid moves at the speed of its slowest unit, in
// fields per hour, scaled by the server speed. Units with a zero count do not
// slow the raid down.
func TravelTime(homeX, homeY, x, y int, troops map[string]int, tribe string, serverSpeed float64) (time.Duration, error) {
	slowest := slowestSpeed(troops, tribe)
	if slowest <= 0 {
		return 0, legionerrors.Wrap(legionerrors.ErrNoTroopsConfigured, "cannot compute travel time")
	}
	if serverSpeed <= 0 {
		serverSpeed = constants.DefaultServerSpeed
	}

	dx := float64(x - homeX)
	dy := float64(y - homeY)
	distance := math.Sqrt(dx*dx + dy*dy)

	hours := distance / (float64(slowest) * serverSpeed)
	return time.Duration(hours * float64(time.Hour)), nil
}

// slowestSpeed returns the fields-per-hour speed of the slowest unit present
// in the composition, or 0 when no unit has a positive count.
func slowestSpeed(troops map[string]int, tribe string) int {
	speeds := constants.SpeedsForTribe(tribe)
	slowest := 0
	for unit, count := range troops {
		if count <= 0 {
			continue
		}
		speed, ok := speeds[unit]
		if !ok || speed <= 0 {
			continue
		}
		if slowest == 0 || speed < slowest {
			slowest = speed
		}
	}
	return slowest
}
