package analysis

import (
	"fmt"
	"math"
	"sort"

	"sports-value-bot/internal/odds"
)

// DetectorConfig holds value-bet thresholds
type DetectorConfig struct {
	MinTrueProb       float64 // Ignore outcomes the reference gives less than this
	MinExpectedPayout float64 // Expected payout per $1 must exceed this
	MaxExpectedPayout float64 // Anything above is treated as a data error (0 = no cap)
}

// DefaultDetectorConfig returns sensible defaults
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinTrueProb:       0.05,
		MinExpectedPayout: 1.02,
		MaxExpectedPayout: 0,
	}
}

// MarketDescriptor locates the counterparty market a bet belongs to.
type MarketDescriptor struct {
	EventSlug  string
	MarketSlug string
	Kind       odds.MarketKind
	Point      *float64
	Outcome    string
	NegRisk    bool
}

// Candidate is one matched outcome: a devigged reference probability and the
// counterparty ask for the same outcome.
type Candidate struct {
	OutcomeID string
	TokenID   string
	TrueProb  float64
	Ask       float64
	AskVolume float64
	Market    MarketDescriptor
}

// ValueBet is a candidate that passed every threshold.
type ValueBet struct {
	OutcomeID          string
	TokenID            string
	TrueProb           float64
	Ask                float64
	ExpectedPayoutPer1 float64
	Market             MarketDescriptor
}

// Edge is the probability margin over the price paid.
func (v ValueBet) Edge() float64 {
	return v.TrueProb - v.Ask
}

// Evaluation is the detector's verdict on one candidate.
type Evaluation struct {
	Candidate          Candidate
	ExpectedPayoutPer1 float64
	Passed             bool
	Reason             string // empty when Passed
}

// ExpectedPayoutPer1 returns what $1 spent at ask returns on average:
// trueProb * (1 / ask). Returns 0 for an unusable ask.
func ExpectedPayoutPer1(trueProb, ask float64) float64 {
	if ask <= 0 || ask >= 1 || math.IsNaN(trueProb) {
		return 0
	}
	return trueProb * (1 / ask)
}

// Evaluate applies the thresholds to one candidate.
func Evaluate(c Candidate, cfg DetectorConfig) Evaluation {
	ev := Evaluation{Candidate: c}

	if c.Ask <= 0 || c.Ask >= 1 || math.IsNaN(c.Ask) {
		ev.Reason = fmt.Sprintf("ask %.4f outside (0,1)", c.Ask)
		return ev
	}
	if math.IsNaN(c.TrueProb) || math.IsInf(c.TrueProb, 0) || c.TrueProb <= 0 || c.TrueProb >= 1 {
		ev.Reason = fmt.Sprintf("true prob %.4f outside (0,1)", c.TrueProb)
		return ev
	}
	if c.TrueProb < cfg.MinTrueProb {
		ev.Reason = fmt.Sprintf("true prob %.4f below floor %.4f", c.TrueProb, cfg.MinTrueProb)
		return ev
	}

	ev.ExpectedPayoutPer1 = ExpectedPayoutPer1(c.TrueProb, c.Ask)
	if ev.ExpectedPayoutPer1 <= cfg.MinExpectedPayout {
		ev.Reason = fmt.Sprintf("expected payout %.4f not above %.4f", ev.ExpectedPayoutPer1, cfg.MinExpectedPayout)
		return ev
	}
	if cfg.MaxExpectedPayout > 0 && ev.ExpectedPayoutPer1 > cfg.MaxExpectedPayout {
		ev.Reason = fmt.Sprintf("expected payout %.4f above cap %.4f", ev.ExpectedPayoutPer1, cfg.MaxExpectedPayout)
		return ev
	}

	ev.Passed = true
	return ev
}

// EvaluateAll returns every verdict. Passing candidates come first, by
// descending expected payout; rejected ones keep their input order.
func EvaluateAll(candidates []Candidate, cfg DetectorConfig) []Evaluation {
	evals := make([]Evaluation, len(candidates))
	for i, c := range candidates {
		evals[i] = Evaluate(c, cfg)
	}
	sort.SliceStable(evals, func(i, j int) bool {
		if evals[i].Passed != evals[j].Passed {
			return evals[i].Passed
		}
		if !evals[i].Passed {
			return false
		}
		return evals[i].ExpectedPayoutPer1 > evals[j].ExpectedPayoutPer1
	})
	return evals
}

// FindValueBet returns the passing candidate with the highest expected
// payout. Ties go to the earlier candidate.
func FindValueBet(candidates []Candidate, cfg DetectorConfig) (ValueBet, bool) {
	best := -1
	bestEP := 0.0
	for i, c := range candidates {
		ev := Evaluate(c, cfg)
		if !ev.Passed {
			continue
		}
		if best < 0 || ev.ExpectedPayoutPer1 > bestEP {
			best = i
			bestEP = ev.ExpectedPayoutPer1
		}
	}
	if best < 0 {
		return ValueBet{}, false
	}

	c := candidates[best]
	return ValueBet{
		OutcomeID:          c.OutcomeID,
		TokenID:            c.TokenID,
		TrueProb:           c.TrueProb,
		Ask:                c.Ask,
		ExpectedPayoutPer1: bestEP,
		Market:             c.Market,
	}, true
}
