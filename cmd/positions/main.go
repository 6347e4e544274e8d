// Command positions prints the attempt log, open positions and the
// redemption queue from the bot's database, and records manual redemption
// bookkeeping:
//
//	positions                  today's attempts, all positions, pending redemptions
//	positions <event slug>     positions for one event
//	positions sold <id> <n>    record n shares sold for redemption id
//	positions expire <id>      abandon redemption id
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sports-value-bot/internal/config"
	"sports-value-bot/internal/positions"
)

const recentAttempts = 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	db, err := positions.NewDB(cfg.DBPath)
	if err != nil {
		fmt.Printf("Error opening %s: %v\n", cfg.DBPath, err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	q := positions.NewQueue(db)
	args := os.Args[1:]

	switch {
	case len(args) == 3 && args[0] == "sold":
		id, err1 := strconv.ParseInt(args[1], 10, 64)
		shares, err2 := strconv.ParseFloat(args[2], 64)
		if err1 != nil || err2 != nil || shares <= 0 {
			usage()
		}
		if err := q.RecordSale(ctx, id, shares); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Recorded %.2f shares sold for redemption %d\n", shares, id)
	case len(args) == 2 && args[0] == "expire":
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			usage()
		}
		if err := q.Expire(ctx, id); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Redemption %d expired\n", id)
	case len(args) == 1:
		list, err := db.GetPositionsByEvent(ctx, args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		printPositions("POSITIONS FOR "+args[0], list)
	case len(args) == 0:
		report(ctx, db, q, cfg.Location())
	default:
		usage()
	}
}

func usage() {
	fmt.Println("usage: positions [event slug | sold <id> <shares> | expire <id>]")
	os.Exit(2)
}

func report(ctx context.Context, db *positions.DB, q *positions.Queue, loc *time.Location) {
	now := time.Now().In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	banner(fmt.Sprintf("MARKETS SENT TO THE EXECUTOR SINCE %s", midnight.Format("2006-01-02 15:04 MST")))
	markets, err := db.AttemptedMarkets(ctx, midnight)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	for _, m := range markets {
		fmt.Printf("  %s | %s | %s\n", m[0], m[1], m[2])
	}
	if len(markets) == 0 {
		fmt.Println("  (none)")
	}

	banner(fmt.Sprintf("LAST %d LOG ROWS", recentAttempts))
	attempts, err := db.ListAttempts(ctx, recentAttempts)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	for _, a := range attempts {
		line := fmt.Sprintf("  %s %-16s %s / %s  p=%.3f ask=%.4f payout=%.3f size=%.0f filled=%.2f",
			a.CreatedAt.In(loc).Format("15:04:05"), a.State, a.MarketSlug, a.Outcome,
			a.TrueProb, a.Price, a.ExpectedPayoutPer1, a.RequestedSize, a.FilledSize)
		if a.DryRun {
			line += " [dry run]"
		}
		if a.Error != "" {
			line += " error=" + a.Error
		}
		fmt.Println(line)
	}
	if len(attempts) == 0 {
		fmt.Println("  (none)")
	}

	all, err := db.GetAllPositions(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	printPositions("POSITIONS", all)

	banner("PENDING REDEMPTIONS")
	pending, err := q.Pending(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	for _, r := range pending {
		line := fmt.Sprintf("  #%d token %s: %.2f of %.2f shares left, %.2f unfilled at entry",
			r.ID, shortToken(r.TokenID), r.Remaining, r.Shares, r.Unfilled)
		if pos, err := db.GetPosition(ctx, r.PositionID); err == nil && pos != nil {
			line += fmt.Sprintf(" (%s / %s @ %.4f)", pos.MarketSlug, pos.Outcome, pos.Price)
		}
		fmt.Println(line)
	}
	if len(pending) == 0 {
		fmt.Println("  (none)")
	}
}

func printPositions(title string, list []positions.Position) {
	banner(title)
	for _, p := range list {
		flag := ""
		if p.NeedsRedemption() {
			flag = " partial"
		}
		fmt.Printf("  #%d %s / %s: %.2f/%.2f @ %.4f order %s%s\n",
			p.ID, p.MarketSlug, p.Outcome, p.FilledSize, p.RequestedSize, p.Price, p.OrderID, flag)
	}
	if len(list) == 0 {
		fmt.Println("  (none)")
	}
}

func banner(title string) {
	fmt.Println()
	fmt.Println(title)
	fmt.Println(strings.Repeat("-", 70))
}

func shortToken(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:6] + "…" + id[len(id)-4:]
}
