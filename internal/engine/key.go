package engine

import (
	"sports-value-bot/internal/analysis"
)

// MarketKey identifies one counterparty market. At most one order is sent
// per key per run, whichever outcome of the market is the value bet.
type MarketKey struct {
	EventSlug  string
	MarketSlug string
}

// String returns the set member form, "event|market".
func (k MarketKey) String() string {
	return k.EventSlug + "|" + k.MarketSlug
}

// KeyFor maps a value bet to its market key.
func KeyFor(bet analysis.ValueBet) MarketKey {
	return MarketKey{
		EventSlug:  bet.Market.EventSlug,
		MarketSlug: bet.Market.MarketSlug,
	}
}
