package odds

import (
	"math"
	"strings"
)

// Market is one book's complete set of outcomes for a single line.
type Market struct {
	ProviderID string
	Kind       MarketKind
	Line       float64 // |point| for spreads, point for totals, 0 for moneyline
	Quotes     []OddsQuote
}

// TrueProbability is the vig-free probability of one outcome.
type TrueProbability struct {
	OutcomeID   string
	Outcome     string
	Point       *float64
	Probability float64
}

// Costs returns the cost-to-win-$1 values in quote order.
func (m Market) Costs() []float64 {
	costs := make([]float64, len(m.Quotes))
	for i, q := range m.Quotes {
		costs[i] = q.CostToWin1
	}
	return costs
}

// TrueProbabilities devigs the market. Returns false when the quotes
// cannot form a valid 2-way or 3-way market.
func (m Market) TrueProbabilities(method DevigMethod) ([]TrueProbability, bool) {
	probs, ok := DevigWith(method, m.Costs()...)
	if !ok {
		return nil, false
	}

	out := make([]TrueProbability, len(m.Quotes))
	for i, q := range m.Quotes {
		out[i] = TrueProbability{
			OutcomeID:   q.OutcomeID(),
			Outcome:     q.Outcome,
			Point:       q.Point,
			Probability: probs[i],
		}
	}
	return out, true
}

type marketKey struct {
	provider string
	kind     MarketKind
	line     int64 // hundredths
}

// GroupMarkets assembles normalized quotes into complete per-book markets.
// Moneylines need 2 or 3 outcomes, spreads need both sides of one line with
// opposite-signed points, totals need Over and Under at the same point.
// Incomplete groups are dropped. Order follows first appearance.
func GroupMarkets(quotes []OddsQuote) []Market {
	groups := make(map[marketKey]*Market)
	var order []marketKey

	for _, q := range quotes {
		key := marketKey{provider: q.ProviderID, kind: q.Kind}
		line := 0.0
		switch q.Kind {
		case MarketSpread:
			line = math.Abs(q.PointValue())
		case MarketTotal:
			line = q.PointValue()
		}
		key.line = int64(math.Round(line * 100))

		g, ok := groups[key]
		if !ok {
			g = &Market{ProviderID: q.ProviderID, Kind: q.Kind, Line: line}
			groups[key] = g
			order = append(order, key)
		}
		g.Quotes = append(g.Quotes, q)
	}

	markets := make([]Market, 0, len(order))
	for _, key := range order {
		m := *groups[key]
		if completeMarket(m) {
			markets = append(markets, m)
		}
	}
	return markets
}

func completeMarket(m Market) bool {
	switch m.Kind {
	case MarketMoneyline:
		if len(m.Quotes) < 2 || len(m.Quotes) > 3 {
			return false
		}
		return distinctOutcomes(m.Quotes)
	case MarketSpread:
		if len(m.Quotes) != 2 || !distinctOutcomes(m.Quotes) {
			return false
		}
		a, b := m.Quotes[0].PointValue(), m.Quotes[1].PointValue()
		return math.Abs(a+b) <= 0.01
	case MarketTotal:
		if len(m.Quotes) != 2 {
			return false
		}
		a, b := m.Quotes[0].Outcome, m.Quotes[1].Outcome
		return (a == SelectionOver && b == SelectionUnder) || (a == SelectionUnder && b == SelectionOver)
	}
	return false
}

func distinctOutcomes(quotes []OddsQuote) bool {
	seen := make(map[string]bool, len(quotes))
	for _, q := range quotes {
		k := strings.ToLower(q.Outcome)
		if seen[k] {
			return false
		}
		seen[k] = true
	}
	return true
}

// ConsensusMarkets groups quotes from any number of books and, where several
// books quote the same line, replaces them with one weighted market.
// explicit holds configured per-book weights; see BuildWeights.
func ConsensusMarkets(quotes []OddsQuote, explicit map[string]float64) []Market {
	type lineKey struct {
		kind MarketKind
		line int64
	}

	byLine := make(map[lineKey][]Market)
	var order []lineKey
	for _, m := range GroupMarkets(quotes) {
		k := lineKey{kind: m.Kind, line: int64(math.Round(m.Line * 100))}
		if _, ok := byLine[k]; !ok {
			order = append(order, k)
		}
		byLine[k] = append(byLine[k], m)
	}

	out := make([]Market, 0, len(order))
	for _, k := range order {
		books := byLine[k]
		if len(books) == 1 {
			out = append(out, books[0])
			continue
		}
		if m, ok := Consensus(books, explicit); ok {
			out = append(out, m)
		}
	}
	return out
}
