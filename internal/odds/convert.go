package odds

import "math"

// AmericanToDecimal converts American odds to decimal odds.
// Example: +150 → 2.5, -200 → 1.5
// Zero and non-finite values have no decimal equivalent.
func AmericanToDecimal(american float64) (float64, bool) {
	if american == 0 || math.IsNaN(american) || math.IsInf(american, 0) {
		return 0, false
	}

	if american > 0 {
		// Underdog: win american per 100 staked
		return 1 + american/100, true
	}
	// Favorite: stake |american| to win 100
	return 1 + 100/math.Abs(american), true
}

// CostToWin1 returns the stake needed to receive $1 back at the given decimal odds.
func CostToWin1(decimal float64) (float64, bool) {
	if decimal <= 1 || math.IsNaN(decimal) || math.IsInf(decimal, 0) {
		return 0, false
	}
	return 1 / decimal, true
}

// AmericanToImplied converts American odds to implied probability (vig included)
// Example: -150 → 0.6 (60%), +150 → 0.4 (40%)
func AmericanToImplied(american float64) float64 {
	dec, ok := AmericanToDecimal(american)
	if !ok {
		return 0
	}
	cost, ok := CostToWin1(dec)
	if !ok {
		return 0
	}
	return cost
}
