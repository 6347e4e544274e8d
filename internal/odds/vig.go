package odds

import "math"

// DevigMethod selects how the bookmaker margin is removed.
type DevigMethod string

const (
	DevigProportional DevigMethod = "proportional"
	DevigPowerMethod  DevigMethod = "power"
)

// Devig removes the vig from a 2-way or 3-way market.
// costs are per-outcome cost-to-win-$1 values from the same market and book.
//
// Method: multiplicative (proportional)
// p_i = q_i / Σq
//
// Returns false when any cost is non-finite or not positive, or when the
// market does not have 2 or 3 outcomes.
func Devig(costs ...float64) ([]float64, bool) {
	if !validCosts(costs) {
		return nil, false
	}

	total := 0.0
	for _, q := range costs {
		total += q
	}
	if total <= 0 {
		return nil, false
	}

	probs := make([]float64, len(costs))
	for i, q := range costs {
		probs[i] = q / total
	}
	return probs, true
}

// DevigPower removes vig using the Power method.
// This accounts for the favorite-longshot bias: longshots are systematically overbet.
// Finds k such that Σ q_i^k = 1, then p_i = q_i^k.
// Costs of 1 or more cannot be deflated by a power and are rejected.
func DevigPower(costs ...float64) ([]float64, bool) {
	if !validCosts(costs) {
		return nil, false
	}
	for _, q := range costs {
		if q >= 1 {
			return nil, false
		}
	}

	// Edge case: already fair
	sum := 0.0
	for _, q := range costs {
		sum += q
	}
	if math.Abs(sum-1.0) < 1e-9 {
		return append([]float64(nil), costs...), true
	}

	k := findPowerExponent(costs)

	probs := make([]float64, len(costs))
	total := 0.0
	for i, q := range costs {
		probs[i] = math.Pow(q, k)
		total += probs[i]
	}
	// Bisection stops within tolerance; rescale so the outputs sum to exactly 1
	for i := range probs {
		probs[i] /= total
	}
	return probs, true
}

// DevigWith dispatches to the configured method.
func DevigWith(method DevigMethod, costs ...float64) ([]float64, bool) {
	if method == DevigPowerMethod {
		return DevigPower(costs...)
	}
	return Devig(costs...)
}

func validCosts(costs []float64) bool {
	if len(costs) < 2 || len(costs) > 3 {
		return false
	}
	for _, q := range costs {
		if q <= 0 || math.IsNaN(q) || math.IsInf(q, 0) {
			return false
		}
	}
	return true
}

// findPowerExponent finds k such that Σ p_i^k = 1 using bisection search
// For 0 < p < 1, higher k reduces p^k
// So for overround markets (sum > 1), k will be > 1 to reduce the sum
// For underround markets (sum < 1), k will be < 1 to increase the sum
func findPowerExponent(p []float64) float64 {
	const (
		tolerance = 1e-9
		maxIters  = 100
	)

	// Search in range [0.01, 10] - covers both overround and underround cases
	low, high := 0.01, 10.0

	for i := 0; i < maxIters; i++ {
		mid := (low + high) / 2
		currentSum := 0.0
		for _, q := range p {
			currentSum += math.Pow(q, mid)
		}

		if math.Abs(currentSum-1.0) < tolerance {
			return mid
		}

		if currentSum > 1 {
			low = mid
		} else {
			high = mid
		}
	}

	return (low + high) / 2
}
