package constants

// Tribe names accepted by configuration.
const (
	// TribeRomans is the Roman tribe.
	TribeRomans = "romans"

	// TribeGauls is the Gaul tribe.
	TribeGauls = "gauls"

	// TribeTeutons is the Teuton tribe.
	TribeTeutons = "teutons"
)

// TroopSpeeds maps tribe -> unit slot -> movement speed in fields per hour
// on a 1x-speed world. Unit slots t1..t10 follow the in-game ordering; t11
// is the settler slot. A raid travels at the speed of its slowest unit.
var TroopSpeeds = map[string]map[string]int{
	TribeRomans: {
		"t1": 6, "t2": 5, "t3": 7, "t4": 16, "t5": 14,
		"t6": 10, "t7": 4, "t8": 3, "t9": 4, "t10": 5, "t11": 35,
	},
	TribeGauls: {
		"t1": 7, "t2": 6, "t3": 17, "t4": 19, "t5": 16,
		"t6": 13, "t7": 4, "t8": 3, "t9": 5, "t10": 5, "t11": 35,
	},
	TribeTeutons: {
		"t1": 7, "t2": 7, "t3": 6, "t4": 9, "t5": 10,
		"t6": 9, "t7": 4, "t8": 3, "t9": 4, "t10": 5, "t11": 35,
	},
}

// SpeedsForTribe returns the speed table for the tribe, falling back to the
// Roman table when the tribe is unknown.
func SpeedsForTribe(tribe string) map[string]int {
	if speeds, ok := TroopSpeeds[tribe]; ok {
		return speeds
	}
	return TroopSpeeds[TribeRomans]
}
