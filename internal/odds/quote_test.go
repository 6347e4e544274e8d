package odds

import (
	"encoding/json"
	"math"
	"testing"
)

const samplePayload = `[
  {"type": "moneyline", "period": 0, "isAlternate": false, "prices": [
    {"designation": "home", "price": -150},
    {"designation": "away", "price": 130}
  ]},
  {"type": "moneyline", "period": 1, "prices": [
    {"designation": "home", "price": -140},
    {"designation": "away", "price": 120}
  ]},
  {"type": "spread", "period": 0, "isAlternate": true, "prices": [
    {"designation": "home", "price": -200, "points": -4.5},
    {"designation": "away", "price": 170, "points": 4.5}
  ]},
  {"type": "spread", "period": 0, "prices": [
    {"designation": "home", "price": -110, "points": -4.5},
    {"designation": "away", "price": -110, "points": 4.5}
  ]},
  {"type": "total", "period": 0, "prices": [
    {"designation": "over", "price": -105, "points": 221.5},
    {"designation": "under", "price": -115, "points": 221.5}
  ]},
  {"type": "total", "period": 0, "prices": [
    {"designation": "over", "price": "abc", "points": 222.5},
    {"designation": "under", "points": 222.5},
    {"designation": "over", "price": -110}
  ]},
  {"type": "team_total", "period": 0, "prices": [
    {"designation": "over", "price": -110, "points": 110.5}
  ]},
  "not a market"
]`

func decode(t *testing.T, s string) any {
	t.Helper()
	var raw any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	return raw
}

func findQuote(quotes []OddsQuote, kind MarketKind, outcome string) (OddsQuote, bool) {
	for _, q := range quotes {
		if q.Kind == kind && q.Outcome == outcome {
			return q, true
		}
	}
	return OddsQuote{}, false
}

func TestNormalizeRowsDefaults(t *testing.T) {
	quotes := NormalizeRows(decode(t, samplePayload), "Boston Celtics", "Miami Heat", "pinnacle", NormalizeOptions{})

	// moneyline x2, main spread x2, one complete total x2
	if len(quotes) != 6 {
		t.Fatalf("got %d quotes, want 6: %+v", len(quotes), quotes)
	}

	home, ok := findQuote(quotes, MarketMoneyline, "Miami Heat")
	if !ok {
		t.Fatal("missing home moneyline")
	}
	if math.Abs(home.CostToWin1-0.6) > 0.0001 {
		t.Errorf("home moneyline cost = %v, want 0.6 (period 0 line)", home.CostToWin1)
	}
	if home.ProviderID != "pinnacle" {
		t.Errorf("ProviderID = %q, want pinnacle", home.ProviderID)
	}

	spread, ok := findQuote(quotes, MarketSpread, "Miami Heat")
	if !ok {
		t.Fatal("missing home spread")
	}
	if spread.PointValue() != -4.5 {
		t.Errorf("home spread point = %v, want -4.5", spread.PointValue())
	}
	// -110 main line, not the -200 alternate
	if math.Abs(spread.CostToWin1-0.5238) > 0.001 {
		t.Errorf("home spread cost = %v, want main-line 0.5238", spread.CostToWin1)
	}

	over, ok := findQuote(quotes, MarketTotal, SelectionOver)
	if !ok {
		t.Fatal("missing over")
	}
	if over.PointValue() != 221.5 {
		t.Errorf("over point = %v, want 221.5", over.PointValue())
	}
}

func TestNormalizeRowsAlternatesAndPeriods(t *testing.T) {
	opts := NormalizeOptions{IncludeAlternates: true, Periods: []int{0, 1}}
	quotes := NormalizeRows(decode(t, samplePayload), "Boston Celtics", "Miami Heat", "pinnacle", opts)

	// The alternate spread at -4.5 shares a key with the main -4.5 line:
	// the main line sorts first and wins.
	spread, _ := findQuote(quotes, MarketSpread, "Miami Heat")
	if math.Abs(spread.CostToWin1-0.5238) > 0.001 {
		t.Errorf("dedup kept cost %v, want main-line 0.5238", spread.CostToWin1)
	}

	// Period 0 and period 1 moneylines share a key; only one of each side survives.
	count := 0
	for _, q := range quotes {
		if q.Kind == MarketMoneyline {
			count++
		}
	}
	if count != 2 {
		t.Errorf("got %d moneyline quotes, want 2 after dedup", count)
	}
}

func TestNormalizeRowsDedupFirstSeen(t *testing.T) {
	payload := `[
	  {"type": "moneyline", "prices": [
	    {"designation": "home", "price": -120},
	    {"designation": "home", "price": -300}
	  ]}
	]`
	quotes := NormalizeRows(decode(t, payload), "A", "B", "book", NormalizeOptions{})
	if len(quotes) != 1 {
		t.Fatalf("got %d quotes, want 1", len(quotes))
	}
	if math.Abs(quotes[0].CostToWin1-0.5455) > 0.001 {
		t.Errorf("cost = %v, want first-seen 0.5455", quotes[0].CostToWin1)
	}
}

func TestNormalizeRowsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		away string
		home string
	}{
		{"nil payload", nil, "A", "B"},
		{"object instead of list", map[string]any{"type": "moneyline"}, "A", "B"},
		{"missing team names", decode(t, samplePayload), "", "B"},
		{"zero price", decode(t, `[{"type":"moneyline","prices":[{"designation":"home","price":0}]}]`), "A", "B"},
		{"bad period", decode(t, `[{"type":"moneyline","period":"x","prices":[{"designation":"home","price":100}]}]`), "A", "B"},
		{"prices not a list", decode(t, `[{"type":"moneyline","prices":{"designation":"home"}}]`), "A", "B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if quotes := NormalizeRows(tt.raw, tt.away, tt.home, "book", NormalizeOptions{}); len(quotes) != 0 {
				t.Errorf("got %d quotes, want none", len(quotes))
			}
		})
	}
}

func TestNormalizeRowsHalfPointTotals(t *testing.T) {
	payload := `[
	  {"type": "total", "prices": [
	    {"designation": "over", "price": -110, "points": 6},
	    {"designation": "under", "price": -110, "points": 6}
	  ]},
	  {"type": "totals", "prices": [
	    {"designation": "over", "price": -110, "points": 6.5},
	    {"designation": "under", "price": -110, "points": 6.5}
	  ]}
	]`
	quotes := NormalizeRows(decode(t, payload), "A", "B", "book", NormalizeOptions{HalfPointTotalsOnly: true})
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(quotes))
	}
	for _, q := range quotes {
		if q.PointValue() != 6.5 {
			t.Errorf("kept point %v, want only 6.5", q.PointValue())
		}
	}
}

func TestNormalizeRowsDraw(t *testing.T) {
	payload := `[{"type": "moneyline", "prices": [
	  {"designation": "home", "price": 150},
	  {"designation": "away", "price": 180},
	  {"designation": "draw", "price": 230}
	]}]`
	quotes := NormalizeRows(decode(t, payload), "Brighton", "Arsenal", "book", NormalizeOptions{})
	if len(quotes) != 3 {
		t.Fatalf("got %d quotes, want 3", len(quotes))
	}
	if _, ok := findQuote(quotes, MarketMoneyline, SelectionDraw); !ok {
		t.Error("missing draw outcome")
	}
}

func TestOutcomeID(t *testing.T) {
	pt := -4.5
	tests := []struct {
		q    OddsQuote
		want string
	}{
		{OddsQuote{Kind: MarketMoneyline, Outcome: "Miami Heat"}, "moneyline:Miami Heat"},
		{OddsQuote{Kind: MarketSpread, Outcome: "Miami Heat", Point: &pt}, "spread:Miami Heat:-4.5"},
	}
	for _, tt := range tests {
		if got := tt.q.OutcomeID(); got != tt.want {
			t.Errorf("OutcomeID() = %q, want %q", got, tt.want)
		}
	}
}

func TestRowsFromQuotes(t *testing.T) {
	rows := RowsFromQuotes([]OddsQuote{{Kind: MarketMoneyline, Outcome: "A", CostToWin1: 0.5}})
	if len(rows) != 1 || math.Abs(rows[0].DecimalOdds-2.0) > 1e-9 {
		t.Errorf("RowsFromQuotes = %+v, want one row at decimal 2.0", rows)
	}
}

func TestIsHalfPoint(t *testing.T) {
	tests := []struct {
		pt   float64
		want bool
	}{
		{212.5, true},
		{-4.5, true},
		{6, false},
		{5.25, false},
	}
	for _, tt := range tests {
		if got := IsHalfPoint(tt.pt); got != tt.want {
			t.Errorf("IsHalfPoint(%v) = %v, want %v", tt.pt, got, tt.want)
		}
	}
}
