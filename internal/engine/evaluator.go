package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sports-value-bot/internal/alerts"
	"sports-value-bot/internal/analysis"
	"sports-value-bot/internal/api"
	"sports-value-bot/internal/match"
	"sports-value-bot/internal/odds"
	"sports-value-bot/internal/polymarket"
	"sports-value-bot/internal/positions"
)

// Sportsbook is the reference odds source.
type Sportsbook interface {
	ListGames(ctx context.Context, date time.Time) ([]api.Game, error)
	GetMarketRows(ctx context.Context, gameID int64) (any, error)
}

// Markets is the counterparty lookup side.
type Markets interface {
	FindEventNear(ctx context.Context, teamA, teamB string, date time.Time) (polymarket.Event, bool, error)
	ListMarketSlugs(ctx context.Context, ev polymarket.Event) (polymarket.MarketSlugs, error)
	GetQuote(ctx context.Context, ev polymarket.Event, slug string) ([]polymarket.Quote, error)
}

// GameTask is one sportsbook game resolved to its counterparty event.
type GameTask struct {
	Game  api.Game
	Event polymarket.Event
	Slugs polymarket.MarketSlugs
}

// EvaluatorConfig holds the per-game pipeline settings.
type EvaluatorConfig struct {
	Provider    string
	Weights     map[string]float64
	Devig       odds.DevigMethod
	Normalize   odds.NormalizeOptions
	Detector    analysis.DetectorConfig
	Sizer       analysis.SizerConfig
	AutoExecute bool
	RunID       string
}

// GameResult counts what one game produced.
type GameResult struct {
	ValueBets int
	Attempts  int
}

// Evaluator runs reference markets for one game against the counterparty
// book and hands value bets to the coordinator.
type Evaluator struct {
	markets  Markets
	book     Sportsbook
	coord    *Coordinator
	notifier *alerts.Notifier
	log      AttemptLog
	cfg      EvaluatorConfig
}

// NewEvaluator creates an evaluator. log may be nil.
func NewEvaluator(book Sportsbook, markets Markets, coord *Coordinator, notifier *alerts.Notifier, log AttemptLog, cfg EvaluatorConfig) *Evaluator {
	if cfg.Provider == "" {
		cfg.Provider = api.DefaultProviderID
	}
	if cfg.Devig == "" {
		cfg.Devig = odds.DevigProportional
	}
	return &Evaluator{
		markets:  markets,
		book:     book,
		coord:    coord,
		notifier: notifier,
		log:      log,
		cfg:      cfg,
	}
}

// pairedMarket is a matched market and the counterparty slug it came from.
type pairedMarket struct {
	slug string
	mm   match.MatchedMarket
}

// EvaluateGame runs one pass over a game. bankroll is the cycle's snapshot.
func (e *Evaluator) EvaluateGame(ctx context.Context, task GameTask, bankroll float64) (GameResult, error) {
	var res GameResult
	g := task.Game

	raw, err := e.book.GetMarketRows(ctx, g.ID)
	if err != nil {
		return res, fmt.Errorf("reference markets for %s @ %s: %w", g.AwayTeam, g.HomeTeam, err)
	}

	quotes := odds.NormalizeRows(raw, g.AwayTeam, g.HomeTeam, e.cfg.Provider, e.cfg.Normalize)
	refMarkets := odds.ConsensusMarkets(quotes, e.cfg.Weights)
	if len(refMarkets) == 0 {
		slog.Debug("No complete reference markets", "game", g.ID, "away", g.AwayTeam, "home", g.HomeTeam)
		return res, nil
	}

	for _, pm := range e.pairMarkets(ctx, task, refMarkets) {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		candidates := e.candidates(task.Event.Slug, pm)
		if len(candidates) == 0 {
			continue
		}

		for _, ev := range analysis.EvaluateAll(candidates, e.cfg.Detector) {
			slog.Debug("Candidate",
				"market", pm.slug,
				"outcome", ev.Candidate.Market.Outcome,
				"prob", ev.Candidate.TrueProb,
				"ask", ev.Candidate.Ask,
				"payout", ev.ExpectedPayoutPer1,
				"passed", ev.Passed,
				"reason", ev.Reason,
			)
		}

		bet, ok := analysis.FindValueBet(candidates, e.cfg.Detector)
		if !ok {
			continue
		}
		res.ValueBets++

		if e.handleBet(ctx, bet, bankroll) {
			res.Attempts++
		}
	}
	return res, nil
}

// handleBet sizes and routes one value bet. Returns true when an order was sent.
func (e *Evaluator) handleBet(ctx context.Context, bet analysis.ValueBet, bankroll float64) bool {
	key := KeyFor(bet)
	if e.cfg.AutoExecute && e.coord.Traded(ctx, key) {
		slog.Debug("Already traded", "key", key.String())
		return false
	}
	sizing := analysis.SizeBet(bet.TrueProb, bet.Ask, bankroll, e.cfg.Sizer)

	if sizing.Skipped() {
		slog.Debug("Sizer skipped bet", "key", key.String(), "reason", sizing.Reason)
		if e.notifier.AlertValueBet(bet, sizing) {
			e.logDetection(ctx, bet, sizing, sizing.Reason)
		}
		return false
	}

	if !e.cfg.AutoExecute {
		if e.notifier.AlertValueBet(bet, sizing) {
			e.logDetection(ctx, bet, sizing, "")
		}
		return false
	}

	e.notifier.AlertValueBet(bet, sizing)
	out := e.coord.Submit(ctx, key, bet, sizing)
	if out.Duplicate {
		slog.Debug("Already traded", "key", key.String())
		return false
	}
	return out.State != StatePending
}

// logDetection appends a value bet that was not sent to the executor.
func (e *Evaluator) logDetection(ctx context.Context, bet analysis.ValueBet, sizing analysis.Sizing, reason string) {
	if e.log == nil {
		return
	}
	_, err := e.log.LogAttempt(ctx, positions.Attempt{
		RunID:              e.cfg.RunID,
		EventSlug:          bet.Market.EventSlug,
		MarketSlug:         bet.Market.MarketSlug,
		Outcome:            bet.Market.Outcome,
		TokenID:            bet.TokenID,
		TrueProb:           bet.TrueProb,
		Price:              bet.Ask,
		ExpectedPayoutPer1: bet.ExpectedPayoutPer1,
		RequestedSize:      sizing.Size,
		State:              string(StatePending),
		Error:              reason,
	})
	if err != nil {
		slog.Error("Logging value bet failed", "market", bet.Market.MarketSlug, "err", err)
	}
}

// pairMarkets fetches counterparty quotes for every slug that has a
// reference market on the same line and pairs the outcomes.
func (e *Evaluator) pairMarkets(ctx context.Context, task GameTask, refMarkets []odds.Market) []pairedMarket {
	g := task.Game
	var out []pairedMarket

	if slug := task.Slugs.Moneyline; slug != "" {
		if ref, ok := findReference(refMarkets, odds.MarketMoneyline, 0); ok {
			if cp, ok := e.quote(ctx, task.Event, slug); ok && sameGame(g, cp) {
				if mm, ok := match.PairMoneyline(ref, cp); ok {
					out = append(out, pairedMarket{slug: slug, mm: mm})
				}
			}
		}
	}

	for _, slug := range task.Slugs.Spreads {
		_, line, ok := polymarket.LineFromSlug(slug)
		if !ok {
			continue
		}
		ref, ok := findReference(refMarkets, odds.MarketSpread, line)
		if !ok {
			continue
		}
		cp, ok := e.quote(ctx, task.Event, slug)
		if !ok || len(cp) == 0 {
			continue
		}
		team, qline, ok := match.ParseSpreadQuestion(cp[0].Question)
		if !ok {
			slog.Debug("Unparseable spread question", "market", slug, "question", cp[0].Question)
			continue
		}
		if mm, ok := match.PairSpread(ref, team, qline, cp); ok {
			out = append(out, pairedMarket{slug: slug, mm: mm})
		}
	}

	for _, slug := range task.Slugs.Totals {
		_, line, ok := polymarket.LineFromSlug(slug)
		if !ok {
			continue
		}
		ref, ok := findReference(refMarkets, odds.MarketTotal, line)
		if !ok {
			continue
		}
		cp, ok := e.quote(ctx, task.Event, slug)
		if !ok {
			continue
		}
		if mm, ok := match.PairTotal(ref, line, cp); ok {
			out = append(out, pairedMarket{slug: slug, mm: mm})
		}
	}

	return out
}

func (e *Evaluator) quote(ctx context.Context, ev polymarket.Event, slug string) ([]polymarket.Quote, bool) {
	cp, err := e.markets.GetQuote(ctx, ev, slug)
	if err != nil {
		slog.Warn("Counterparty quote failed", "market", slug, "err", err)
		return nil, false
	}
	return cp, true
}

// candidates joins devigged reference probabilities to counterparty asks.
func (e *Evaluator) candidates(eventSlug string, pm pairedMarket) []analysis.Candidate {
	probs, ok := pm.mm.Reference.TrueProbabilities(e.cfg.Devig)
	if !ok {
		slog.Debug("Devig failed", "market", pm.slug)
		return nil
	}

	out := make([]analysis.Candidate, 0, len(pm.mm.Pairs))
	for _, p := range pm.mm.Pairs {
		if p.RefIndex < 0 || p.RefIndex >= len(probs) {
			continue
		}
		cp := p.Counterparty
		out = append(out, analysis.Candidate{
			OutcomeID: probs[p.RefIndex].OutcomeID,
			TokenID:   cp.TokenID,
			TrueProb:  probs[p.RefIndex].Probability,
			Ask:       cp.BestAsk,
			AskVolume: cp.AskVolume,
			Market: analysis.MarketDescriptor{
				EventSlug:  eventSlug,
				MarketSlug: pm.slug,
				Kind:       pm.mm.Kind,
				Point:      p.Reference.Point,
				Outcome:    match.OutcomeLabel(cp.OutcomeLabel),
				NegRisk:    cp.NegRisk,
			},
		})
	}
	return out
}

// findReference returns the reference market of kind on line.
func findReference(markets []odds.Market, kind odds.MarketKind, line float64) (odds.Market, bool) {
	for _, m := range markets {
		if m.Kind == kind && match.PointsMatch(m.Line, line) {
			return m, true
		}
	}
	return odds.Market{}, false
}

// sameGame checks a two-outcome moneyline names both teams of the game.
// Three-way markets are left to the per-outcome pairing.
func sameGame(g api.Game, cp []polymarket.Quote) bool {
	if len(cp) != 2 {
		return len(cp) > 0
	}
	ok, _ := match.MatchGame(g.AwayTeam, g.HomeTeam, match.OutcomeLabel(cp[0].OutcomeLabel), match.OutcomeLabel(cp[1].OutcomeLabel))
	if !ok {
		slog.Debug("Moneyline teams do not match game", "away", g.AwayTeam, "home", g.HomeTeam,
			"a", cp[0].OutcomeLabel, "b", cp[1].OutcomeLabel)
	}
	return ok
}
