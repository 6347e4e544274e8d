package engine

import (
	"context"
	"log/slog"

	"sports-value-bot/internal/analysis"
	"sports-value-bot/internal/polymarket"
	"sports-value-bot/internal/positions"
)

// TradeState is the lifecycle of one market key within a run
type TradeState string

const (
	StatePending         TradeState = "PENDING"
	StateAttempted       TradeState = "ATTEMPTED"
	StateFilled          TradeState = "FILLED"
	StatePartiallyFilled TradeState = "PARTIALLY_FILLED"
	StateFailed          TradeState = "FAILED"
)

// fillTolerance absorbs float noise when comparing fills to the request.
const fillTolerance = 1e-9

// TradedMarketsSet records keys already attempted. TryAdd must be an atomic
// insert-if-absent; entries are never removed during a run.
type TradedMarketsSet interface {
	TryAdd(ctx context.Context, key string) (bool, error)
	Contains(ctx context.Context, key string) (bool, error)
}

// Executor places one order and reports its fill.
type Executor interface {
	Execute(ctx context.Context, o polymarket.Order) (polymarket.Fill, error)
}

// Redeemer takes over positions whose order filled only in part.
type Redeemer interface {
	Redeem(ctx context.Context, pos positions.Position) (int64, error)
}

// AttemptLog is the append-only value-bet and position store.
type AttemptLog interface {
	LogAttempt(ctx context.Context, a positions.Attempt) (int64, error)
	AddPosition(ctx context.Context, pos positions.Position) (int64, error)
}

// Outcome is the result of one Submit.
type Outcome struct {
	Key       MarketKey
	State     TradeState
	Duplicate bool // key was already traded this run
	Fill      polymarket.Fill
	Err       error
}

// Coordinator turns sized value bets into at most one order per market key.
type Coordinator struct {
	traded   TradedMarketsSet
	exec     Executor
	redeemer Redeemer
	log      AttemptLog
	runID    string
}

// NewCoordinator wires the coordinator. redeemer and log may be nil.
func NewCoordinator(traded TradedMarketsSet, exec Executor, redeemer Redeemer, log AttemptLog, runID string) *Coordinator {
	return &Coordinator{
		traded:   traded,
		exec:     exec,
		redeemer: redeemer,
		log:      log,
		runID:    runID,
	}
}

// Traded reports whether key was already claimed this run. A lookup error
// reports false; Submit stays the authority.
func (c *Coordinator) Traded(ctx context.Context, key MarketKey) bool {
	ok, err := c.traded.Contains(ctx, key.String())
	if err != nil {
		slog.Warn("Traded set lookup failed", "key", key.String(), "err", err)
		return false
	}
	return ok
}

// Submit claims key and, if this call won it, sends a fill-or-kill BUY for
// the sized bet. The key stays claimed whatever the order's result.
func (c *Coordinator) Submit(ctx context.Context, key MarketKey, bet analysis.ValueBet, sizing analysis.Sizing) Outcome {
	out := Outcome{Key: key, State: StatePending}

	added, err := c.traded.TryAdd(ctx, key.String())
	if err != nil {
		// Unknown whether another replica holds the key; do not risk a second order
		slog.Error("Traded set unavailable", "key", key.String(), "err", err)
		out.Err = err
		return out
	}
	if !added {
		out.Duplicate = true
		return out
	}

	row := positions.Attempt{
		RunID:              c.runID,
		EventSlug:          key.EventSlug,
		MarketSlug:         key.MarketSlug,
		Outcome:            bet.Market.Outcome,
		TokenID:            bet.TokenID,
		TrueProb:           bet.TrueProb,
		Price:              sizing.Price,
		ExpectedPayoutPer1: bet.ExpectedPayoutPer1,
		RequestedSize:      sizing.Size,
		Executed:           true,
		State:              string(StateAttempted),
	}
	c.append(ctx, row)
	out.State = StateAttempted

	fill, err := c.exec.Execute(ctx, polymarket.Order{
		TokenID: bet.TokenID,
		Side:    polymarket.SideBuy,
		Price:   sizing.Price,
		Size:    sizing.Size,
		Type:    polymarket.OrderTypeFOK,
		NegRisk: bet.Market.NegRisk,
	})
	out.Fill = fill

	switch {
	case err != nil:
		out.State = StateFailed
		out.Err = err
		row.Error = err.Error()
	case fill.FilledSize >= sizing.Size-fillTolerance:
		out.State = StateFilled
	case fill.FilledSize > 0:
		out.State = StatePartiallyFilled
	default:
		out.State = StateFailed
		row.Error = "not filled"
	}

	row.State = string(out.State)
	row.FilledSize = fill.FilledSize
	row.OrderID = fill.OrderID
	row.DryRun = fill.DryRun
	c.append(ctx, row)

	switch out.State {
	case StateFailed:
		slog.Error("Order failed", "key", key.String(), "size", sizing.Size, "price", sizing.Price, "reason", row.Error)
	default:
		slog.Info("Order filled",
			"key", key.String(),
			"state", out.State,
			"filled", fill.FilledSize,
			"requested", sizing.Size,
			"price", sizing.Price,
			"orderID", fill.OrderID,
			"dryRun", fill.DryRun,
		)
	}

	if fill.FilledSize > 0 && !fill.DryRun {
		c.recordPosition(ctx, key, bet, sizing, fill)
	}
	return out
}

func (c *Coordinator) append(ctx context.Context, row positions.Attempt) {
	if c.log == nil {
		return
	}
	if _, err := c.log.LogAttempt(ctx, row); err != nil {
		slog.Error("Logging attempt failed", "key", row.EventSlug+"|"+row.MarketSlug, "outcome", row.Outcome, "state", row.State, "err", err)
	}
}

func (c *Coordinator) recordPosition(ctx context.Context, key MarketKey, bet analysis.ValueBet, sizing analysis.Sizing, fill polymarket.Fill) {
	pos := positions.Position{
		EventSlug:     key.EventSlug,
		MarketSlug:    key.MarketSlug,
		Outcome:       bet.Market.Outcome,
		TokenID:       bet.TokenID,
		Price:         sizing.Price,
		RequestedSize: sizing.Size,
		FilledSize:    fill.FilledSize,
		OrderID:       fill.OrderID,
	}

	if c.log != nil {
		id, err := c.log.AddPosition(ctx, pos)
		if err != nil {
			slog.Error("Saving position failed", "key", key.String(), "err", err)
		} else {
			pos.ID = id
		}
	}

	if pos.NeedsRedemption() && c.redeemer != nil {
		if _, err := c.redeemer.Redeem(ctx, pos); err != nil {
			slog.Error("Queueing redemption failed", "key", key.String(), "filled", pos.FilledSize, "err", err)
			return
		}
		slog.Info("Queued for redemption", "key", key.String(), "filled", pos.FilledSize, "requested", pos.RequestedSize)
	}
}
