package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"sports-value-bot/internal/alerts"
	"sports-value-bot/internal/api"
	"sports-value-bot/internal/config"
	"sports-value-bot/internal/engine"
	"sports-value-bot/internal/polymarket"
	"sports-value-bot/internal/positions"
	"sports-value-bot/internal/tradeset"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal("Loading config", err)
	}
	setupLogging(cfg)
	if err := config.Validate(cfg); err != nil {
		fatal("Invalid config", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := positions.NewDB(cfg.DBPath)
	if err != nil {
		fatal("Opening database", err)
	}
	defer db.Close()

	traded, closeTraded, err := openTradedSet(ctx, cfg)
	if err != nil {
		fatal("Opening traded set", err)
	}
	defer closeTraded()

	exec, err := newExecutor(cfg)
	if err != nil {
		fatal("Creating executor", err)
	}

	// Balance needs live credentials; otherwise BANKROLL_OVERRIDE is required
	var bankroll engine.Bankroll
	if !exec.DryRun() {
		bankroll = exec
	}

	loc := cfg.Location()
	runID := uuid.NewString()
	notifier := alerts.NewNotifier(cfg.AlertCooldown)
	coord := engine.NewCoordinator(traded, exec, positions.NewQueue(db), db, runID)

	eng, err := engine.New(cfg, engine.Deps{
		Sportsbook: api.NewSportsbookClient(cfg.SportsbookBaseURL, cfg.SportsbookSportIDs, loc),
		Markets: polymarket.NewClient(polymarket.ClientConfig{
			GammaBaseURL:  cfg.GammaBaseURL,
			ClobBaseURL:   cfg.ClobBaseURL,
			SportPrefixes: cfg.SportPrefixes,
			Location:      loc,
		}),
		Bankroll:    bankroll,
		Coordinator: coord,
		Notifier:    notifier,
		Log:         db,
		RunID:       runID,
	})
	if err != nil {
		fatal("Creating engine", err)
	}

	notifier.LogStartup(startupSummary(cfg, exec.DryRun(), runID))

	go startHealthServer(ctx, cfg.Port)

	if err := eng.Run(ctx); err != nil {
		if errors.Is(err, engine.ErrBankrollBelowMinimum) {
			slog.Error("Kill switch tripped, exiting", "err", err)
		} else {
			slog.Error("Engine stopped", "err", err)
		}
		db.Close()
		closeTraded()
		os.Exit(1)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}

func setupLogging(cfg config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// openTradedSet uses Redis when REDIS_ADDR is set so replicas share one set;
// otherwise it lives in memory for this run only. The Redis set is scoped to
// the start date and expires after REDIS_TTL, so the next day starts empty.
func openTradedSet(ctx context.Context, cfg config.Config) (engine.TradedMarketsSet, func(), error) {
	if cfg.RedisAddr == "" {
		slog.Warn("REDIS_ADDR not set, traded markets are kept in memory")
		return tradeset.NewMemory(), func() {}, nil
	}

	key := tradeset.ScopedKey(cfg.RedisKey, time.Now().In(cfg.Location()))
	set, err := tradeset.NewRedis(ctx, tradeset.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Key:      key,
		TTL:      cfg.RedisTTL,
	})
	if err != nil {
		return nil, nil, err
	}
	if n, err := set.Len(ctx); err == nil {
		slog.Info("Connected to Redis", "addr", cfg.RedisAddr, "key", key, "traded", n)
	}
	return set, func() { _ = set.Close() }, nil
}

// newExecutor trades live only with AUTO_EXECUTE and a full credential set.
// Anything less logs orders as dry runs.
func newExecutor(cfg config.Config) (*polymarket.ClobExecutor, error) {
	creds := polymarket.Credentials{
		APIKey:     cfg.PolyAPIKey,
		Secret:     cfg.PolyAPISecret,
		Passphrase: cfg.PolyAPIPassphrase,
	}

	var signer *polymarket.Signer
	if cfg.PolyPrivateKey != "" {
		s, err := polymarket.NewSigner(cfg.PolyPrivateKey, cfg.ChainID)
		if err != nil {
			return nil, err
		}
		signer = s
		slog.Info("Loaded signing key", "address", signer.Address())
	}

	dryRun := !cfg.AutoExecute || signer == nil || !creds.Valid()
	if cfg.AutoExecute && dryRun {
		slog.Warn("AUTO_EXECUTE set without full Polymarket credentials, running dry")
	}

	return polymarket.NewClobExecutor(polymarket.ExecutorConfig{
		ClobBaseURL:   cfg.ClobBaseURL,
		Signer:        signer,
		Credentials:   creds,
		Funder:        cfg.PolyFunder,
		SignatureType: cfg.PolySignatureType,
		DryRun:        dryRun,
	})
}

func startupSummary(cfg config.Config, dryRun bool, runID string) string {
	mode := "ALERT ONLY"
	switch {
	case cfg.AutoExecute && dryRun:
		mode = "DRY RUN"
	case cfg.AutoExecute:
		mode = "LIVE"
	}

	bankroll := "from balance"
	if cfg.BankrollOverride > 0 {
		bankroll = fmt.Sprintf("$%.2f override", cfg.BankrollOverride)
	}

	return fmt.Sprintf(
		"mode=%s run=%s min_prob=%.2f payout=%.2f..%s kelly=%.2f max_bet=%.0f%% min_bet=$%.2f floor=$%.2f devig=%s reference=%s@%.2f bankroll=%s poll=%s refresh=%s",
		mode, runID,
		cfg.MinTrueProb, cfg.MinExpectedPayout, config.FormatCap(cfg.MaxExpectedPayout),
		cfg.KellyDamping, cfg.MaxBetFraction*100, cfg.MinBetSize, cfg.MinOperatingBankroll,
		cfg.DevigMethod, cfg.ReferenceBook, cfg.ReferenceWeight,
		bankroll, cfg.PollInterval, cfg.RefreshInterval,
	)
}

func startHealthServer(ctx context.Context, port string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Sports Value Bot - Running"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Health server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Health server error", "err", err)
	}
}
