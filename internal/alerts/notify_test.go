package alerts

import (
	"testing"
	"time"

	"sports-value-bot/internal/analysis"
	"sports-value-bot/internal/odds"
)

func TestCheckCooldownSuppresses(t *testing.T) {
	n := NewNotifier(1 * time.Second)

	// First call should not suppress
	if n.checkCooldown("test-key") {
		t.Error("first call should not be suppressed")
	}

	// Immediate second call should suppress
	if !n.checkCooldown("test-key") {
		t.Error("second call within cooldown should be suppressed")
	}
}

func TestCheckCooldownExpires(t *testing.T) {
	n := NewNotifier(10 * time.Second)
	now := time.Date(2026, 1, 13, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	if n.checkCooldown("test-key") {
		t.Error("first call should not be suppressed")
	}

	now = now.Add(11 * time.Second)

	if n.checkCooldown("test-key") {
		t.Error("call after cooldown should not be suppressed")
	}
}

func TestCheckCooldownDifferentKeys(t *testing.T) {
	n := NewNotifier(1 * time.Second)

	if n.checkCooldown("key-a") {
		t.Error("first call for key-a should not be suppressed")
	}

	// Different key should not be suppressed
	if n.checkCooldown("key-b") {
		t.Error("first call for key-b should not be suppressed")
	}

	// Same key should be suppressed
	if !n.checkCooldown("key-a") {
		t.Error("second call for key-a should be suppressed")
	}
}

func TestAlertValueBetCooldown(t *testing.T) {
	n := NewNotifier(1 * time.Second)

	pt := -7.5
	bet := analysis.ValueBet{
		OutcomeID:          "spread:Oklahoma City Thunder:-7.5",
		TokenID:            "111",
		TrueProb:           0.55,
		Ask:                0.50,
		ExpectedPayoutPer1: 1.10,
		Market: analysis.MarketDescriptor{
			EventSlug:  "nba-okc-sas-2026-01-13",
			MarketSlug: "nba-okc-sas-2026-01-13-spread-home-7pt5",
			Kind:       odds.MarketSpread,
			Point:      &pt,
			Outcome:    "Thunder",
		},
	}
	sizing := analysis.Sizing{Fraction: 0.1, Stake: 10, Size: 21, Price: 0.5}

	if !n.AlertValueBet(bet, sizing) {
		t.Error("first alert should be sent")
	}
	if n.AlertValueBet(bet, sizing) {
		t.Error("second alert within cooldown should be suppressed")
	}

	other := bet
	other.Market.Outcome = "Spurs"
	if !n.AlertValueBet(other, sizing) {
		t.Error("other outcome should not share the cooldown")
	}
}

func TestDescribe(t *testing.T) {
	pt := 212.5
	tests := []struct {
		m    analysis.MarketDescriptor
		want string
	}{
		{analysis.MarketDescriptor{Kind: odds.MarketMoneyline, Outcome: "Bulls"}, "Bulls moneyline"},
		{analysis.MarketDescriptor{Kind: odds.MarketTotal, Outcome: "Over", Point: &pt}, "Over total 212.5"},
	}
	for _, tt := range tests {
		if got := Describe(tt.m); got != tt.want {
			t.Errorf("Describe = %q, want %q", got, tt.want)
		}
	}
}

func TestCleanupOldAlerts(t *testing.T) {
	n := NewNotifier(1 * time.Hour)

	// Manually insert an old alert
	n.mu.Lock()
	n.lastAlerts["old-key"] = time.Now().Add(-2 * time.Hour)
	n.lastAlerts["fresh-key"] = time.Now()
	n.mu.Unlock()

	n.CleanupOldAlerts()

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.lastAlerts["old-key"]; ok {
		t.Error("old alert should have been cleaned up")
	}
	if _, ok := n.lastAlerts["fresh-key"]; !ok {
		t.Error("fresh alert should not have been cleaned up")
	}
}
