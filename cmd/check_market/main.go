// Command check_market prints the reference consensus and Polymarket quotes
// for one upcoming game, e.g.
//
//	check_market "Chicago Bulls" "Detroit Pistons"
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"sports-value-bot/internal/api"
	"sports-value-bot/internal/config"
	"sports-value-bot/internal/match"
	"sports-value-bot/internal/odds"
	"sports-value-bot/internal/polymarket"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Println("usage: check_market <away team> <home team>")
		os.Exit(2)
	}
	away, home := os.Args[1], os.Args[2]

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	loc := cfg.Location()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	book := api.NewSportsbookClient(cfg.SportsbookBaseURL, cfg.SportsbookSportIDs, loc)
	pm := polymarket.NewClient(polymarket.ClientConfig{
		GammaBaseURL:  cfg.GammaBaseURL,
		ClobBaseURL:   cfg.ClobBaseURL,
		SportPrefixes: cfg.SportPrefixes,
		Location:      loc,
	})

	game, ok := findGame(ctx, book, away, home, time.Now().In(loc))
	if !ok {
		fmt.Printf("No reference game for %s @ %s today or tomorrow\n", away, home)
		os.Exit(1)
	}
	fmt.Printf("=== %s @ %s (%s, id %d) ===\n", game.AwayTeam, game.HomeTeam, game.StartTime.In(loc).Format(time.RFC1123), game.ID)

	raw, err := book.GetMarketRows(ctx, game.ID)
	if err != nil {
		fmt.Printf("Error fetching reference markets: %v\n", err)
		os.Exit(1)
	}
	quotes := odds.NormalizeRows(raw, game.AwayTeam, game.HomeTeam, api.DefaultProviderID, odds.NormalizeOptions{Periods: []int{0}, HalfPointTotalsOnly: true})
	markets := odds.ConsensusMarkets(quotes, odds.DefaultWeights(cfg.ReferenceBook, cfg.ReferenceWeight))

	fmt.Println("\nREFERENCE (devigged)")
	for _, m := range markets {
		probs, ok := m.TrueProbabilities(odds.DevigMethod(cfg.DevigMethod))
		if !ok {
			continue
		}
		parts := make([]string, 0, len(probs))
		for _, p := range probs {
			label := p.Outcome
			if p.Point != nil && m.Kind == odds.MarketSpread {
				label = fmt.Sprintf("%s %+g", p.Outcome, *p.Point)
			}
			parts = append(parts, fmt.Sprintf("%s %.3f", label, p.Probability))
		}
		fmt.Printf("  %-10s %-8s %s\n", m.Kind, pointLabel(m), strings.Join(parts, " | "))
	}

	ev, ok, err := pm.FindEventNear(ctx, game.AwayTeam, game.HomeTeam, game.StartTime)
	if err != nil || !ok {
		fmt.Printf("\nNo Polymarket event (err: %v)\n", err)
		return
	}
	slugs, err := pm.ListMarketSlugs(ctx, ev)
	if err != nil {
		fmt.Printf("Error listing markets: %v\n", err)
		return
	}
	fmt.Printf("\nPOLYMARKET %s (%s)\n", ev.Slug, ev.Title)

	all := append([]string{slugs.Moneyline}, slugs.Spreads...)
	all = append(all, slugs.Totals...)
	for _, slug := range all {
		if slug == "" {
			continue
		}
		qs, err := pm.GetQuote(ctx, ev, slug)
		if err != nil {
			fmt.Printf("  %s: %v\n", slug, err)
			continue
		}
		fmt.Printf("  %s\n", slug)
		for _, q := range qs {
			fmt.Printf("    %-12s bid %.3f (%.0f)  ask %.3f (%.0f)  token %s\n",
				match.OutcomeLabel(q.OutcomeLabel), q.BestBid, q.BidVolume, q.BestAsk, q.AskVolume, q.TokenID)
		}
	}
}

func findGame(ctx context.Context, book *api.SportsbookClient, away, home string, today time.Time) (api.Game, bool) {
	for _, day := range []time.Time{today, today.AddDate(0, 0, 1)} {
		games, err := book.ListGames(ctx, day)
		if err != nil {
			fmt.Printf("Error listing %s: %v\n", day.Format("2006-01-02"), err)
			continue
		}
		for _, g := range games {
			if ok, _ := match.MatchGame(g.AwayTeam, g.HomeTeam, away, home); ok {
				return g, true
			}
		}
	}
	return api.Game{}, false
}

func pointLabel(m odds.Market) string {
	if m.Kind == odds.MarketMoneyline {
		return ""
	}
	return fmt.Sprintf("%g", m.Line)
}
