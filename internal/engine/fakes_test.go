package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"sports-value-bot/internal/api"
	"sports-value-bot/internal/polymarket"
	"sports-value-bot/internal/positions"
	"sports-value-bot/internal/tradeset"
)

type fakeExecutor struct {
	mu     sync.Mutex
	orders []polymarket.Order
	fill   func(o polymarket.Order) (polymarket.Fill, error)
}

func (f *fakeExecutor) Execute(_ context.Context, o polymarket.Order) (polymarket.Fill, error) {
	f.mu.Lock()
	f.orders = append(f.orders, o)
	f.mu.Unlock()
	if f.fill == nil {
		return polymarket.Fill{OrderID: "0x1", Status: "matched", FilledSize: o.Size}, nil
	}
	return f.fill(o)
}

func (f *fakeExecutor) Orders() []polymarket.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]polymarket.Order(nil), f.orders...)
}

type fakeLog struct {
	mu        sync.Mutex
	attempts  []positions.Attempt
	positions []positions.Position
	err       error
}

func (f *fakeLog) LogAttempt(_ context.Context, a positions.Attempt) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.attempts = append(f.attempts, a)
	return int64(len(f.attempts)), nil
}

func (f *fakeLog) AddPosition(_ context.Context, pos positions.Position) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.positions = append(f.positions, pos)
	return int64(len(f.positions)), nil
}

func (f *fakeLog) Attempts() []positions.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]positions.Attempt(nil), f.attempts...)
}

type fakeRedeemer struct {
	mu    sync.Mutex
	queue []positions.Position
}

func (f *fakeRedeemer) Redeem(_ context.Context, pos positions.Position) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, pos)
	return int64(len(f.queue)), nil
}

// failingSet fails every call, like an unreachable Redis.
type failingSet struct{}

func (failingSet) TryAdd(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingSet) Contains(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

// countingSet counts inserts on top of an in-memory set.
type countingSet struct {
	*tradeset.Memory
	mu   sync.Mutex
	adds int
}

func (s *countingSet) TryAdd(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	s.adds++
	s.mu.Unlock()
	return s.Memory.TryAdd(ctx, key)
}

func (s *countingSet) Adds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adds
}

type fakeSportsbook struct {
	byDay map[string][]api.Game
	rows  any
	err   error
}

func (f *fakeSportsbook) ListGames(_ context.Context, date time.Time) ([]api.Game, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byDay[date.UTC().Format("2006-01-02")], nil
}

func (f *fakeSportsbook) GetMarketRows(context.Context, int64) (any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

type fakeMarkets struct {
	mu     sync.Mutex
	events map[string]polymarket.Event // keyed by "away|home"
	slugs  polymarket.MarketSlugs
	quotes map[string][]polymarket.Quote
	quoted []string
}

func (f *fakeMarkets) FindEventNear(_ context.Context, teamA, teamB string, _ time.Time) (polymarket.Event, bool, error) {
	ev, ok := f.events[teamA+"|"+teamB]
	return ev, ok, nil
}

func (f *fakeMarkets) ListMarketSlugs(context.Context, polymarket.Event) (polymarket.MarketSlugs, error) {
	return f.slugs, nil
}

func (f *fakeMarkets) GetQuote(_ context.Context, _ polymarket.Event, slug string) ([]polymarket.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoted = append(f.quoted, slug)
	q, ok := f.quotes[slug]
	if !ok {
		return nil, polymarket.ErrEventNotFound
	}
	return q, nil
}

func (f *fakeMarkets) Quoted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.quoted...)
}

type fixedBankroll struct {
	balance float64
	err     error
}

func (b fixedBankroll) GetBalance(context.Context) (float64, error) {
	return b.balance, b.err
}
