package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sports-value-bot/internal/alerts"
	"sports-value-bot/internal/analysis"
	"sports-value-bot/internal/api"
	"sports-value-bot/internal/config"
	"sports-value-bot/internal/odds"
)

// ErrBankrollBelowMinimum stops the run when the balance falls under
// MIN_OPERATING_BANKROLL.
var ErrBankrollBelowMinimum = errors.New("engine: bankroll below operating minimum")

// Bankroll reports the tradeable balance in dollars.
type Bankroll interface {
	GetBalance(ctx context.Context) (float64, error)
}

// Deps are the engine's collaborators. Log and Bankroll may be nil; a nil
// Bankroll requires BankrollOverride.
type Deps struct {
	Sportsbook  Sportsbook
	Markets     Markets
	Bankroll    Bankroll
	Coordinator *Coordinator
	Notifier    *alerts.Notifier
	Log         AttemptLog
	RunID       string
}

// Engine is the main orchestrator: it refreshes the game list, evaluates
// every game on each poll and routes value bets to the coordinator.
type Engine struct {
	book     Sportsbook
	markets  Markets
	bankroll Bankroll
	eval     *Evaluator
	notifier *alerts.Notifier
	cfg      config.Config
	loc      *time.Location
	now      func() time.Time
}

// EvaluatorConfigFrom maps configuration onto the per-game pipeline.
func EvaluatorConfigFrom(cfg config.Config, runID string) EvaluatorConfig {
	return EvaluatorConfig{
		Weights: odds.DefaultWeights(cfg.ReferenceBook, cfg.ReferenceWeight),
		Devig:   odds.DevigMethod(cfg.DevigMethod),
		Normalize: odds.NormalizeOptions{
			Periods:             []int{0},
			HalfPointTotalsOnly: true,
		},
		Detector: analysis.DetectorConfig{
			MinTrueProb:       cfg.MinTrueProb,
			MinExpectedPayout: cfg.MinExpectedPayout,
			MaxExpectedPayout: cfg.MaxExpectedPayout,
		},
		Sizer: analysis.SizerConfig{
			Damping:        cfg.KellyDamping,
			MaxBetFraction: cfg.MaxBetFraction,
			MinBetSize:     cfg.MinBetSize,
			TickDecimals:   analysis.DefaultSizerConfig().TickDecimals,
		},
		AutoExecute: cfg.AutoExecute,
		RunID:       runID,
	}
}

// New creates an Engine with all dependencies.
func New(cfg config.Config, d Deps) (*Engine, error) {
	if d.Sportsbook == nil || d.Markets == nil || d.Coordinator == nil {
		return nil, fmt.Errorf("engine: sportsbook, markets and coordinator are required")
	}
	if d.Bankroll == nil && cfg.BankrollOverride <= 0 {
		return nil, fmt.Errorf("engine: no bankroll source; set BANKROLL_OVERRIDE or provide credentials")
	}
	if d.Notifier == nil {
		d.Notifier = alerts.NewNotifier(cfg.AlertCooldown)
	}

	return &Engine{
		book:     d.Sportsbook,
		markets:  d.Markets,
		bankroll: d.Bankroll,
		eval:     NewEvaluator(d.Sportsbook, d.Markets, d.Coordinator, d.Notifier, d.Log, EvaluatorConfigFrom(cfg, d.RunID)),
		notifier: d.Notifier,
		cfg:      cfg,
		loc:      cfg.Location(),
		now:      time.Now,
	}, nil
}

// Run refreshes games every RefreshInterval and evaluates them every
// PollInterval until ctx is cancelled. Only the bankroll kill-switch
// ends the run with an error.
func (e *Engine) Run(ctx context.Context) error {
	refreshTicker := time.NewTicker(e.cfg.RefreshInterval)
	defer refreshTicker.Stop()

	pollTicker := time.NewTicker(e.cfg.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(config.DefaultCleanupInterval)
	defer cleanupTicker.Stop()

	slog.Info("Starting polling loop", "refresh", e.cfg.RefreshInterval, "poll", e.cfg.PollInterval)

	tasks := e.refreshOrKeep(ctx, nil)
	if err := e.cycle(ctx, tasks); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Bot stopped gracefully")
			return nil

		case <-cleanupTicker.C:
			e.notifier.CleanupOldAlerts()

		case <-refreshTicker.C:
			tasks = e.refreshOrKeep(ctx, tasks)

		case <-pollTicker.C:
			if err := e.cycle(ctx, tasks); err != nil {
				return err
			}
		}
	}
}

// cycle runs Cycle and swallows everything but the kill-switch.
func (e *Engine) cycle(ctx context.Context, tasks []GameTask) error {
	err := e.Cycle(ctx, tasks)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrBankrollBelowMinimum):
		slog.Error("Stopping: bankroll below minimum", "minimum", e.cfg.MinOperatingBankroll, "err", err)
		return err
	case ctx.Err() != nil:
		return nil
	}
	e.notifier.LogError("scan", err)
	return nil
}

func (e *Engine) refreshOrKeep(ctx context.Context, prev []GameTask) []GameTask {
	tasks, err := e.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.notifier.LogError("refreshing games", err)
		}
		return prev
	}
	return tasks
}

// Refresh lists reference games for today and tomorrow and resolves each
// to a counterparty event and its market slugs. Games without an event
// are dropped.
func (e *Engine) Refresh(ctx context.Context) ([]GameTask, error) {
	today := e.now().In(e.loc)

	var (
		games   []api.Game
		lastErr error
		failed  int
	)
	days := []time.Time{today, today.AddDate(0, 0, 1)}
	for _, day := range days {
		list, err := e.book.ListGames(ctx, day)
		if err != nil {
			slog.Warn("Listing games failed", "date", day.Format("2006-01-02"), "err", err)
			lastErr = err
			failed++
			continue
		}
		for _, g := range list {
			if g.StartsWithin(e.cfg.PreGameSkipWindow) {
				continue
			}
			games = append(games, g)
		}
	}
	if failed == len(days) {
		return nil, fmt.Errorf("listing games: %w", lastErr)
	}

	// Each goroutine writes only its own index
	tasks := make([]GameTask, len(games))
	found := make([]bool, len(games))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(e.limit())
	for i, g := range games {
		grp.Go(func() error {
			ev, ok, err := e.markets.FindEventNear(gctx, g.AwayTeam, g.HomeTeam, g.StartTime)
			if err != nil {
				slog.Warn("Event lookup failed", "away", g.AwayTeam, "home", g.HomeTeam, "err", err)
				return nil
			}
			if !ok {
				slog.Debug("No counterparty event", "away", g.AwayTeam, "home", g.HomeTeam)
				return nil
			}
			slugs, err := e.markets.ListMarketSlugs(gctx, ev)
			if err != nil {
				slog.Warn("Listing market slugs failed", "event", ev.Slug, "err", err)
				return nil
			}

			tasks[i] = GameTask{Game: g, Event: ev, Slugs: slugs}
			found[i] = true
			return nil
		})
	}
	_ = grp.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]GameTask, 0, len(tasks))
	for i, t := range tasks {
		if found[i] {
			out = append(out, t)
		}
	}
	slog.Info("Refreshed games", "reference", len(games), "matched", len(out))
	return out, nil
}

// Cycle reads the bankroll once and evaluates every task concurrently.
// A failing game is logged and never cancels the others.
func (e *Engine) Cycle(ctx context.Context, tasks []GameTask) error {
	start := e.now()

	bankroll, err := e.readBankroll(ctx)
	if err != nil {
		return err
	}
	if bankroll < e.cfg.MinOperatingBankroll {
		return fmt.Errorf("%w: have $%.2f, need $%.2f", ErrBankrollBelowMinimum, bankroll, e.cfg.MinOperatingBankroll)
	}

	var (
		mu      sync.Mutex
		total   GameResult
		scanned int
	)
	grp := new(errgroup.Group)
	grp.SetLimit(e.limit())
	for _, task := range tasks {
		if task.Game.StartsWithin(e.cfg.PreGameSkipWindow) {
			continue
		}
		grp.Go(func() error {
			res, err := e.eval.EvaluateGame(ctx, task, bankroll)
			mu.Lock()
			defer mu.Unlock()
			scanned++
			total.ValueBets += res.ValueBets
			total.Attempts += res.Attempts
			if err != nil && ctx.Err() == nil {
				slog.Warn("Game evaluation failed", "event", task.Event.Slug, "err", err)
			}
			return nil
		})
	}
	_ = grp.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	e.notifier.LogScan(scanned, total.ValueBets, total.Attempts, e.now().Sub(start))
	return nil
}

func (e *Engine) limit() int {
	if e.cfg.MaxConcurrentGames < 1 {
		return 1
	}
	return e.cfg.MaxConcurrentGames
}

func (e *Engine) readBankroll(ctx context.Context) (float64, error) {
	if e.cfg.BankrollOverride > 0 {
		return e.cfg.BankrollOverride, nil
	}
	bal, err := e.bankroll.GetBalance(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading bankroll: %w", err)
	}
	return bal, nil
}
