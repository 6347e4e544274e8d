package match

import (
	"math"

	"sports-value-bot/internal/odds"
	"sports-value-bot/internal/polymarket"
)

// MatchedOutcome pairs one counterparty outcome with the reference quote for
// the same participant and line. RefIndex indexes Reference.Quotes so callers
// can read the devigged probability.
type MatchedOutcome struct {
	RefIndex     int
	Reference    odds.OddsQuote
	Counterparty polymarket.Quote
}

// MatchedMarket is one reference market and the counterparty outcomes that
// line up with it.
type MatchedMarket struct {
	Kind         odds.MarketKind
	Point        float64
	Reference    odds.Market
	Counterparty []polymarket.Quote
	Pairs        []MatchedOutcome
}

// PairMoneyline pairs counterparty outcomes by participant name. Each label
// takes the reference outcome it matches by the strongest rule; a "Draw"
// label pairs with the reference draw outcome.
func PairMoneyline(ref odds.Market, cp []polymarket.Quote) (MatchedMarket, bool) {
	if ref.Kind != odds.MarketMoneyline {
		return MatchedMarket{}, false
	}
	mm := MatchedMarket{Kind: ref.Kind, Reference: ref, Counterparty: cp}
	used := make(map[int]bool)

	for _, q := range cp {
		label := OutcomeLabel(q.OutcomeLabel)
		var idx int
		if isDraw(label) {
			idx = drawIndex(ref.Quotes)
		} else {
			idx = bestOutcome(label, ref.Quotes, func(rq odds.OddsQuote) bool {
				return rq.Outcome != odds.SelectionDraw
			})
		}
		if idx < 0 || used[idx] {
			continue
		}
		used[idx] = true
		mm.Pairs = append(mm.Pairs, MatchedOutcome{RefIndex: idx, Reference: ref.Quotes[idx], Counterparty: q})
	}
	return mm, len(mm.Pairs) > 0
}

// PairSpread pairs counterparty spread outcomes. team and line come from the
// counterparty question ("Spread: Thunder (-7.5)"): team takes line and the
// other outcome takes the opposite line. The outcome that is team is the
// label matching it by the strongest rule, so derby names stay apart.
func PairSpread(ref odds.Market, team string, line float64, cp []polymarket.Quote) (MatchedMarket, bool) {
	if ref.Kind != odds.MarketSpread || !PointsMatch(ref.Line, math.Abs(line)) {
		return MatchedMarket{}, false
	}
	mm := MatchedMarket{Kind: ref.Kind, Point: math.Abs(line), Reference: ref, Counterparty: cp}
	used := make(map[int]bool)

	labels := make([]string, len(cp))
	for i, q := range cp {
		labels[i] = OutcomeLabel(q.OutcomeLabel)
	}
	teamIdx := bestName(team, labels)
	if teamIdx < 0 {
		return MatchedMarket{}, false
	}

	for i, q := range cp {
		point := AwayPoint(line)
		if i == teamIdx {
			point = line
		}
		idx := bestOutcome(labels[i], ref.Quotes, func(odds.OddsQuote) bool { return true })
		if idx < 0 || used[idx] || !PointsMatch(ref.Quotes[idx].PointValue(), point) {
			continue
		}
		used[idx] = true
		mm.Pairs = append(mm.Pairs, MatchedOutcome{RefIndex: idx, Reference: ref.Quotes[idx], Counterparty: q})
	}
	return mm, len(mm.Pairs) > 0
}

// PairTotal pairs Over/Under outcomes for a total at line.
func PairTotal(ref odds.Market, line float64, cp []polymarket.Quote) (MatchedMarket, bool) {
	if ref.Kind != odds.MarketTotal || !PointsMatch(ref.Line, line) {
		return MatchedMarket{}, false
	}
	mm := MatchedMarket{Kind: ref.Kind, Point: line, Reference: ref, Counterparty: cp}
	used := make(map[int]bool)

	for _, q := range cp {
		side, ok := TotalSide(q.OutcomeLabel)
		if !ok {
			continue
		}
		for i, rq := range ref.Quotes {
			if used[i] || rq.Outcome != side {
				continue
			}
			used[i] = true
			mm.Pairs = append(mm.Pairs, MatchedOutcome{RefIndex: i, Reference: rq, Counterparty: q})
			break
		}
	}
	return mm, len(mm.Pairs) > 0
}

// bestOutcome returns the index of the reference quote whose participant
// matches label by the strongest rule, among quotes accepted by keep. Two
// quotes tied at the strongest rule, as in a derby matched only on a city
// name, give -1.
func bestOutcome(label string, quotes []odds.OddsQuote, keep func(odds.OddsQuote) bool) int {
	names := make([]string, len(quotes))
	for i, rq := range quotes {
		if keep(rq) {
			names[i] = rq.Outcome
		}
	}
	return bestName(label, names)
}

// bestName returns the index of the name matching target by the lowest
// numbered rule, or -1 when nothing matches or the best rule is shared.
// Empty names never match.
func bestName(target string, names []string) int {
	best, bestRule, tied := -1, RuleNone, false
	for i, n := range names {
		rule, ok := MatchRule(n, target)
		if !ok {
			continue
		}
		switch {
		case best < 0 || rule < bestRule:
			best, bestRule, tied = i, rule, false
		case rule == bestRule:
			tied = true
		}
	}
	if tied {
		return -1
	}
	return best
}

func drawIndex(quotes []odds.OddsQuote) int {
	for i, rq := range quotes {
		if rq.Outcome == odds.SelectionDraw {
			return i
		}
	}
	return -1
}

func isDraw(label string) bool {
	switch Normalize(label) {
	case "draw", "tie", "x":
		return true
	}
	return false
}
