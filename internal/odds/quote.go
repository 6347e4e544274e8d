package odds

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// MarketKind represents the type of betting market
type MarketKind string

const (
	MarketMoneyline MarketKind = "moneyline"
	MarketSpread    MarketKind = "spread"
	MarketTotal     MarketKind = "total"
)

// Selection names used for totals and three-way moneylines.
const (
	SelectionOver  = "Over"
	SelectionUnder = "Under"
	SelectionDraw  = "Draw"
)

// OddsQuote is one side of one market from one provider.
// CostToWin1 is always > 0. Point is nil for moneylines.
type OddsQuote struct {
	ProviderID string
	Outcome    string // participant name, Over/Under, or Draw
	Kind       MarketKind
	Point      *float64
	CostToWin1 float64
}

// DecimalOdds returns the decimal odds behind the quote.
func (q OddsQuote) DecimalOdds() float64 {
	return 1 / q.CostToWin1
}

// PointValue returns the line, or 0 for moneylines.
func (q OddsQuote) PointValue() float64 {
	if q.Point == nil {
		return 0
	}
	return *q.Point
}

// OutcomeID identifies the outcome independent of the provider,
// e.g. "spread:Miami Heat:-4.5" or "total:Over:212.5".
func (q OddsQuote) OutcomeID() string {
	if q.Point == nil {
		return fmt.Sprintf("%s:%s", q.Kind, q.Outcome)
	}
	return fmt.Sprintf("%s:%s:%g", q.Kind, q.Outcome, *q.Point)
}

// OddsRow is the typed sportsbook row view: full game, main lines only.
type OddsRow struct {
	Kind        MarketKind
	Selection   string
	Point       *float64
	DecimalOdds float64
}

// RowsFromQuotes projects quotes onto the sportsbook row view.
func RowsFromQuotes(quotes []OddsQuote) []OddsRow {
	rows := make([]OddsRow, 0, len(quotes))
	for _, q := range quotes {
		rows = append(rows, OddsRow{
			Kind:        q.Kind,
			Selection:   q.Outcome,
			Point:       q.Point,
			DecimalOdds: q.DecimalOdds(),
		})
	}
	return rows
}

// NormalizeOptions controls which rows survive normalization.
// The zero value keeps only full-game (period 0), non-alternate lines.
type NormalizeOptions struct {
	Periods             []int
	IncludeAlternates   bool
	HalfPointTotalsOnly bool
}

func (o NormalizeOptions) allowsPeriod(period int) bool {
	if len(o.Periods) == 0 {
		return period == 0
	}
	for _, p := range o.Periods {
		if p == period {
			return true
		}
	}
	return false
}

type quoteKey struct {
	kind      MarketKind
	selection string
	hasPoint  bool
	point     int64 // hundredths
}

// NormalizeRows converts a raw straight-markets payload into OddsQuotes.
//
// raw is the decoded JSON tree: a list of markets, each with type, period,
// isAlternate and a prices list of {designation, price (American), points}.
// Rows with missing or malformed fields are skipped; the batch never fails.
// Rows resolving to the same (kind, selection, point) keep the first seen,
// with main markets (isAlternate null, then false) ordered ahead of alternates.
func NormalizeRows(raw any, away, home, provider string, opts NormalizeOptions) []OddsQuote {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}

	away = strings.Join(strings.Fields(away), " ")
	home = strings.Join(strings.Fields(home), " ")
	if away == "" || home == "" {
		return nil
	}

	markets := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			markets = append(markets, m)
		}
	}
	sort.SliceStable(markets, func(i, j int) bool {
		return alternateRank(markets[i]) < alternateRank(markets[j])
	})

	seen := make(map[quoteKey]bool)
	var quotes []OddsQuote

	for _, m := range markets {
		period := 0
		if v, present := m["period"]; present && v != nil {
			p, ok := toFloat(v)
			if !ok {
				continue
			}
			period = int(p)
		}
		if !opts.allowsPeriod(period) {
			continue
		}

		if alternateRank(m) == 2 && !opts.IncludeAlternates {
			continue
		}

		kind, ok := parseKind(m["type"])
		if !ok {
			continue
		}

		prices, ok := m["prices"].([]any)
		if !ok {
			continue
		}

		for _, item := range prices {
			p, ok := item.(map[string]any)
			if !ok {
				continue
			}

			selection, ok := selectionFor(kind, p["designation"], away, home)
			if !ok {
				continue
			}

			american, ok := toFloat(p["price"])
			if !ok {
				continue
			}
			dec, ok := AmericanToDecimal(american)
			if !ok {
				continue
			}
			cost, ok := CostToWin1(dec)
			if !ok {
				continue
			}

			key := quoteKey{kind: kind, selection: selection}
			var point *float64
			if kind != MarketMoneyline {
				pt, ok := toFloat(p["points"])
				if !ok {
					continue
				}
				if kind == MarketTotal && opts.HalfPointTotalsOnly && !IsHalfPoint(pt) {
					continue
				}
				point = &pt
				key.hasPoint = true
				key.point = int64(math.Round(pt * 100))
			}

			if seen[key] {
				continue
			}
			seen[key] = true

			quotes = append(quotes, OddsQuote{
				ProviderID: provider,
				Outcome:    selection,
				Kind:       kind,
				Point:      point,
				CostToWin1: cost,
			})
		}
	}

	return quotes
}

// IsHalfPoint reports whether a line ends in .5 (no push possible).
func IsHalfPoint(pt float64) bool {
	frac := math.Abs(pt - math.Trunc(pt))
	return math.Abs(frac-0.5) < 1e-9
}

// alternateRank orders isAlternate null (0) < false (1) < true (2).
func alternateRank(m map[string]any) int {
	v, present := m["isAlternate"]
	if !present || v == nil {
		return 0
	}
	if b, ok := v.(bool); ok && b {
		return 2
	}
	return 1
}

func parseKind(v any) (MarketKind, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "moneyline":
		return MarketMoneyline, true
	case "spread", "spreads":
		return MarketSpread, true
	case "total", "totals":
		return MarketTotal, true
	}
	return "", false
}

func selectionFor(kind MarketKind, v any, away, home string) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	designation := strings.ToLower(strings.TrimSpace(s))

	switch kind {
	case MarketMoneyline:
		switch designation {
		case "home":
			return home, true
		case "away":
			return away, true
		case "draw":
			return SelectionDraw, true
		}
	case MarketSpread:
		switch designation {
		case "home":
			return home, true
		case "away":
			return away, true
		}
	case MarketTotal:
		switch designation {
		case "over":
			return SelectionOver, true
		case "under":
			return SelectionUnder, true
		}
	}
	return "", false
}

// toFloat reads a JSON number that may arrive as float64, json.Number or string.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
