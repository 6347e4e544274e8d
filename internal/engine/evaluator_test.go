package engine

import (
	"encoding/json"
	"testing"
	"time"

	"sports-value-bot/internal/alerts"
	"sports-value-bot/internal/analysis"
	"sports-value-bot/internal/api"
	"sports-value-bot/internal/config"
	"sports-value-bot/internal/polymarket"
	"sports-value-bot/internal/tradeset"
)

const straightMarkets = `[
  {"type": "moneyline", "period": 0, "prices": [
    {"designation": "home", "price": -150},
    {"designation": "away", "price": 130}
  ]},
  {"type": "spread", "period": 0, "prices": [
    {"designation": "home", "price": -110, "points": -4.5},
    {"designation": "away", "price": -110, "points": 4.5}
  ]},
  {"type": "total", "period": 0, "prices": [
    {"designation": "over", "price": -105, "points": 221.5},
    {"designation": "under", "price": -115, "points": 221.5}
  ]},
  {"type": "moneyline", "period": 1, "prices": [
    {"designation": "home", "price": -300},
    {"designation": "away", "price": 250}
  ]}
]`

const eventSlug = "nba-chi-det-2026-01-13"

func decodeRows(t *testing.T) any {
	t.Helper()
	var raw any
	if err := json.Unmarshal([]byte(straightMarkets), &raw); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	return raw
}

func testGame() api.Game {
	return api.Game{
		ID:        1001,
		League:    "NBA",
		AwayTeam:  "Chicago Bulls",
		HomeTeam:  "Detroit Pistons",
		StartTime: time.Now().Add(24 * time.Hour),
	}
}

// Bulls moneyline at 0.38 against a ~0.420 true probability and Over 221.5
// at 0.40 against ~0.489 are value; everything else is priced fairly.
func testMarkets() *fakeMarkets {
	return &fakeMarkets{
		events: map[string]polymarket.Event{
			"Chicago Bulls|Detroit Pistons": {Slug: eventSlug, Title: "Bulls vs. Pistons"},
		},
		slugs: polymarket.MarketSlugs{
			Moneyline: eventSlug,
			Spreads:   []string{eventSlug + "-spread-home-4pt5", eventSlug + "-spread-away-7pt5"},
			Totals:    []string{eventSlug + "-total-221pt5"},
		},
		quotes: map[string][]polymarket.Quote{
			eventSlug: {
				{MarketSlug: eventSlug, TokenID: "ml-bulls", OutcomeLabel: "Bulls", BestAsk: 0.38, AskVolume: 500, NegRisk: true},
				{MarketSlug: eventSlug, TokenID: "ml-pistons", OutcomeLabel: "Pistons", BestAsk: 0.60, AskVolume: 500, NegRisk: true},
			},
			eventSlug + "-spread-home-4pt5": {
				{Question: "Spread: Pistons (-4.5)", TokenID: "sp-pistons", OutcomeLabel: "Pistons", BestAsk: 0.52},
				{Question: "Spread: Pistons (-4.5)", TokenID: "sp-bulls", OutcomeLabel: "Bulls", BestAsk: 0.50},
			},
			eventSlug + "-total-221pt5": {
				{TokenID: "tot-over", OutcomeLabel: "Over", BestAsk: 0.40},
				{TokenID: "tot-under", OutcomeLabel: "Under", BestAsk: 0.62},
			},
		},
	}
}

func testEvaluator(t *testing.T, markets *fakeMarkets, exec *fakeExecutor, log *fakeLog, autoExecute bool) *Evaluator {
	t.Helper()
	cfg := config.Defaults()
	cfg.AutoExecute = autoExecute
	book := &fakeSportsbook{rows: decodeRows(t)}
	coord := NewCoordinator(tradeset.NewMemory(), exec, &fakeRedeemer{}, log, "run-1")
	return NewEvaluator(book, markets, coord, alerts.NewNotifier(time.Minute), log, EvaluatorConfigFrom(cfg, "run-1"))
}

func testTask(markets *fakeMarkets) GameTask {
	return GameTask{Game: testGame(), Event: markets.events["Chicago Bulls|Detroit Pistons"], Slugs: markets.slugs}
}

func TestEvaluateGameExecutesValueBets(t *testing.T) {
	markets := testMarkets()
	exec := &fakeExecutor{}
	log := &fakeLog{}
	e := testEvaluator(t, markets, exec, log, true)

	res, err := e.EvaluateGame(t.Context(), testTask(markets), 1000)
	if err != nil {
		t.Fatalf("EvaluateGame: %v", err)
	}
	if res.ValueBets != 2 || res.Attempts != 2 {
		t.Errorf("result = %+v, want 2 value bets and 2 attempts", res)
	}

	orders := exec.Orders()
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(orders))
	}
	byToken := make(map[string]polymarket.Order)
	for _, o := range orders {
		byToken[o.TokenID] = o
	}

	bulls, ok := byToken["ml-bulls"]
	if !ok {
		t.Fatalf("no order for the Bulls moneyline: %+v", orders)
	}
	// f* = (0.4202 - 0.38) / 0.62 = 0.0648 → $64.79 stake → floor(170.5) + 1
	if bulls.Size != 171 || bulls.Price != 0.38 || !bulls.NegRisk {
		t.Errorf("Bulls order = %+v, want 171 @ 0.38 neg-risk", bulls)
	}
	if _, ok := byToken["tot-over"]; !ok {
		t.Errorf("no order for Over 221.5: %+v", orders)
	}

	for _, slug := range markets.Quoted() {
		if slug == eventSlug+"-spread-away-7pt5" {
			t.Error("spread without a reference line should not be quoted")
		}
	}

	// Same markets on the next poll are already traded
	res, err = e.EvaluateGame(t.Context(), testTask(markets), 1000)
	if err != nil {
		t.Fatalf("second EvaluateGame: %v", err)
	}
	if res.Attempts != 0 || len(exec.Orders()) != 2 {
		t.Errorf("second pass attempts = %d, orders = %d, want 0 and 2", res.Attempts, len(exec.Orders()))
	}
}

func TestEvaluateGameSkipsTradedMarkets(t *testing.T) {
	markets := testMarkets()
	exec := &fakeExecutor{}
	set := &countingSet{Memory: tradeset.NewMemory()}
	for _, slug := range []string{eventSlug, eventSlug + "-total-221pt5"} {
		if _, err := set.Memory.TryAdd(t.Context(), MarketKey{EventSlug: eventSlug, MarketSlug: slug}.String()); err != nil {
			t.Fatal(err)
		}
	}
	coord := NewCoordinator(set, exec, nil, nil, "run-1")
	cfg := config.Defaults()
	cfg.AutoExecute = true
	e := NewEvaluator(&fakeSportsbook{rows: decodeRows(t)}, markets, coord, alerts.NewNotifier(time.Minute), nil, EvaluatorConfigFrom(cfg, "run-1"))

	res, err := e.EvaluateGame(t.Context(), testTask(markets), 1000)
	if err != nil {
		t.Fatalf("EvaluateGame: %v", err)
	}
	if res.Attempts != 0 || len(exec.Orders()) != 0 {
		t.Errorf("attempts = %d, orders = %d, want none", res.Attempts, len(exec.Orders()))
	}
	if n := set.Adds(); n != 0 {
		t.Errorf("claimed %d keys for markets already traded", n)
	}
}

func TestEvaluateGameAlertOnly(t *testing.T) {
	markets := testMarkets()
	exec := &fakeExecutor{}
	log := &fakeLog{}
	e := testEvaluator(t, markets, exec, log, false)

	res, err := e.EvaluateGame(t.Context(), testTask(markets), 1000)
	if err != nil {
		t.Fatalf("EvaluateGame: %v", err)
	}
	if res.ValueBets != 2 || res.Attempts != 0 {
		t.Errorf("result = %+v, want 2 value bets and no attempts", res)
	}
	if len(exec.Orders()) != 0 {
		t.Error("alert-only mode should not execute")
	}

	rows := log.Attempts()
	if len(rows) != 2 {
		t.Fatalf("got %d log rows, want 2", len(rows))
	}
	for _, r := range rows {
		if r.Executed || r.State != string(StatePending) {
			t.Errorf("row = %+v, want unexecuted PENDING", r)
		}
	}

	// Cooldown suppresses repeat rows
	if _, err := e.EvaluateGame(t.Context(), testTask(markets), 1000); err != nil {
		t.Fatal(err)
	}
	if n := len(log.Attempts()); n != 2 {
		t.Errorf("got %d rows after repeat, want 2", n)
	}
}

func TestEvaluateGameSmallBankrollSkips(t *testing.T) {
	markets := testMarkets()
	exec := &fakeExecutor{}
	log := &fakeLog{}
	e := testEvaluator(t, markets, exec, log, true)

	// 6.5% of $10 is below the $1 minimum for the moneyline
	res, err := e.EvaluateGame(t.Context(), testTask(markets), 10)
	if err != nil {
		t.Fatalf("EvaluateGame: %v", err)
	}
	if res.ValueBets != 2 {
		t.Errorf("ValueBets = %d, want 2", res.ValueBets)
	}
	for _, o := range exec.Orders() {
		if o.TokenID == "ml-bulls" {
			t.Errorf("undersized moneyline bet was executed: %+v", o)
		}
	}
}

func TestEvaluateGameWrongTeams(t *testing.T) {
	markets := testMarkets()
	markets.quotes[eventSlug] = []polymarket.Quote{
		{TokenID: "a", OutcomeLabel: "Lakers", BestAsk: 0.10},
		{TokenID: "b", OutcomeLabel: "Clippers", BestAsk: 0.10},
	}
	delete(markets.quotes, eventSlug+"-total-221pt5")
	exec := &fakeExecutor{}
	e := testEvaluator(t, markets, exec, &fakeLog{}, true)

	res, err := e.EvaluateGame(t.Context(), testTask(markets), 1000)
	if err != nil {
		t.Fatalf("EvaluateGame: %v", err)
	}
	if res.ValueBets != 0 || len(exec.Orders()) != 0 {
		t.Errorf("result = %+v, orders = %v, want nothing", res, exec.Orders())
	}
}

func TestEvaluateGameReferenceError(t *testing.T) {
	markets := testMarkets()
	cfg := config.Defaults()
	book := &fakeSportsbook{err: &api.StatusError{Code: 503}}
	coord := NewCoordinator(tradeset.NewMemory(), &fakeExecutor{}, nil, nil, "")
	e := NewEvaluator(book, markets, coord, alerts.NewNotifier(time.Minute), nil, EvaluatorConfigFrom(cfg, ""))

	if _, err := e.EvaluateGame(t.Context(), testTask(markets), 1000); err == nil {
		t.Fatal("expected error when reference markets fail")
	}
}

func TestPairMarketsNeedsReference(t *testing.T) {
	markets := testMarkets()
	e := testEvaluator(t, markets, &fakeExecutor{}, &fakeLog{}, false)

	if got := e.pairMarkets(t.Context(), testTask(markets), nil); len(got) != 0 {
		t.Errorf("paired %d markets without reference odds", len(got))
	}
	if q := markets.Quoted(); len(q) != 0 {
		t.Errorf("quoted %v without reference odds", q)
	}
}

func TestCandidatesCarryMarket(t *testing.T) {
	markets := testMarkets()
	e := testEvaluator(t, markets, &fakeExecutor{}, &fakeLog{}, false)

	bet, ok := analysis.FindValueBet([]analysis.Candidate{
		{TokenID: "x", TrueProb: 0.5, Ask: 0.4, Market: analysis.MarketDescriptor{EventSlug: "e", MarketSlug: "m", Outcome: "o"}},
	}, e.cfg.Detector)
	if !ok || KeyFor(bet).String() != "e|m" || bet.Market.Outcome != "o" {
		t.Errorf("FindValueBet = (%+v, %v)", bet, ok)
	}
}
