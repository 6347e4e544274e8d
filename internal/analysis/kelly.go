package analysis

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// KellyFraction computes the full-Kelly bankroll fraction for a binary
// token bought at price x that pays $1 with probability p.
//
// With b = (1 - x) / x net odds, f* = (p*b - q) / b simplifies to
// (p - x) / (1 - x). Clamped to [0, 1]; 0 on invalid input.
func KellyFraction(p, x float64) float64 {
	if x <= 0 || x >= 1 || p <= 0 || p >= 1 || math.IsNaN(p) || math.IsNaN(x) {
		return 0
	}

	kelly := (p - x) / (1 - x)

	kelly = math.Max(0, kelly)
	kelly = math.Min(kelly, 1.0)

	return kelly
}

// SizerConfig holds bet sizing policy
type SizerConfig struct {
	Damping        float64 // Kelly multiplier (1.0 = full Kelly, 0.25 = quarter)
	MaxBetFraction float64 // Hard cap as a fraction of bankroll
	MinBetSize     float64 // Stakes below this many dollars are skipped
	TickDecimals   int32   // Price precision accepted by the venue
}

// DefaultSizerConfig returns sensible defaults
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		Damping:        1.0,
		MaxBetFraction: 0.10,
		MinBetSize:     1.0,
		TickDecimals:   4,
	}
}

// Sizing is the discrete order the sizer recommends.
// Size is zero when the bet should be skipped; Reason says why.
type Sizing struct {
	Fraction float64 // Full-Kelly fraction before damping and cap
	Stake    float64 // Dollars to risk
	Size     float64 // Whole tokens to buy
	Price    float64 // Limit price rounded to the tick
	Reason   string
}

// Skipped reports whether the sizer declined the bet.
func (s Sizing) Skipped() bool {
	return s.Size <= 0
}

// SizeBet converts a probability and ask into an order.
//
//	stake = bankroll * min(f* * damping, MaxBetFraction)
//	size  = floor(stake / price) + 1
//
// The extra token keeps the order cost at or above stake after flooring.
func SizeBet(p, x, bankroll float64, cfg SizerConfig) Sizing {
	if math.IsNaN(bankroll) || bankroll <= 0 {
		return Sizing{Reason: "bankroll unavailable"}
	}
	if x <= 0 || x >= 1 || math.IsNaN(x) {
		return Sizing{Reason: fmt.Sprintf("price %.4f outside (0,1)", x)}
	}
	if p <= 0 || p >= 1 || math.IsNaN(p) {
		return Sizing{Reason: fmt.Sprintf("probability %.4f outside (0,1)", p)}
	}

	f := KellyFraction(p, x)
	if f <= 0 {
		return Sizing{Reason: "no edge"}
	}

	if cfg.Damping <= 0 || math.IsNaN(cfg.Damping) {
		return Sizing{Fraction: f, Reason: fmt.Sprintf("damping %.2f not positive", cfg.Damping)}
	}
	frac := f * cfg.Damping
	if cfg.MaxBetFraction > 0 {
		frac = math.Min(frac, cfg.MaxBetFraction)
	}

	stake := bankroll * frac
	if stake < cfg.MinBetSize {
		return Sizing{Fraction: f, Stake: stake, Reason: fmt.Sprintf("stake $%.2f below minimum $%.2f", stake, cfg.MinBetSize)}
	}

	price := decimal.NewFromFloat(x).Round(cfg.TickDecimals)
	if !price.IsPositive() || price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Sizing{Fraction: f, Stake: stake, Reason: fmt.Sprintf("price %.4f rounds outside (0,1)", x)}
	}

	size := decimal.NewFromFloat(stake).Div(price).Floor().Add(decimal.NewFromInt(1))

	return Sizing{
		Fraction: f,
		Stake:    stake,
		Size:     size.InexactFloat64(),
		Price:    price.InexactFloat64(),
	}
}
