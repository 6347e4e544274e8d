package alerts

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sports-value-bot/internal/analysis"
)

// Notifier handles alert notifications
type Notifier struct {
	mu         sync.Mutex
	lastAlerts map[string]time.Time // Dedupe alerts
	cooldown   time.Duration        // Minimum time between same alerts
	now        func() time.Time
}

// NewNotifier creates a new notifier
func NewNotifier(cooldown time.Duration) *Notifier {
	return &Notifier{
		lastAlerts: make(map[string]time.Time),
		cooldown:   cooldown,
		now:        time.Now,
	}
}

// checkCooldown records key and reports whether an alert for it was sent
// within the cooldown.
func (n *Notifier) checkCooldown(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if last, ok := n.lastAlerts[key]; ok && now.Sub(last) < n.cooldown {
		return true
	}
	n.lastAlerts[key] = now
	return false
}

// AlertKey identifies a value bet for deduplication
func AlertKey(bet analysis.ValueBet) string {
	return fmt.Sprintf("%s|%s|%s", bet.Market.EventSlug, bet.Market.MarketSlug, bet.Market.Outcome)
}

// Describe formats the market side of a bet, e.g. "Thunder spread -7.5".
func Describe(m analysis.MarketDescriptor) string {
	if m.Point == nil {
		return fmt.Sprintf("%s %s", m.Outcome, m.Kind)
	}
	return fmt.Sprintf("%s %s %g", m.Outcome, m.Kind, *m.Point)
}

// AlertValueBet logs a value bet once per cooldown. Returns false when
// the alert was suppressed.
func (n *Notifier) AlertValueBet(bet analysis.ValueBet, sizing analysis.Sizing) bool {
	if n.checkCooldown(AlertKey(bet)) {
		return false
	}

	slog.Info(fmt.Sprintf("+EV %s (%s)", strings.ToUpper(Describe(bet.Market)), bet.Market.EventSlug),
		"prob", fmt.Sprintf("%.1f%%", bet.TrueProb*100),
		"ask", fmt.Sprintf("$%.3f", bet.Ask),
		"payout", fmt.Sprintf("%.3f", bet.ExpectedPayoutPer1),
		"edge", fmt.Sprintf("%.1f%%", bet.Edge()*100),
		"kelly", fmt.Sprintf("%.1f%%", sizing.Fraction*100),
		"size", sizing.Size,
	)
	return true
}

// LogScan logs a scan completion
func (n *Notifier) LogScan(gamesScanned, valueBets, attempts int, elapsed time.Duration) {
	slog.Info("Scan complete",
		"games", gamesScanned,
		"valueBets", valueBets,
		"attempts", attempts,
		"elapsed", elapsed.Round(time.Millisecond),
	)
}

// LogError logs an error
func (n *Notifier) LogError(context string, err error) {
	slog.Error("Error", "context", context, "err", err)
}

// LogStartup logs bot startup
func (n *Notifier) LogStartup(config string) {
	slog.Info("Bot started", "config", config)
}

// CleanupOldAlerts removes stale alert records
func (n *Notifier) CleanupOldAlerts() {
	n.mu.Lock()
	defer n.mu.Unlock()
	cutoff := n.now().Add(-1 * time.Hour)
	for key, t := range n.lastAlerts {
		if t.Before(cutoff) {
			delete(n.lastAlerts, key)
		}
	}
}
