package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Defaults for configuration values.
const (
	DefaultMinTrueProb          = 0.05
	DefaultMinExpectedPayout    = 1.02
	DefaultMaxExpectedPayout    = 0 // 0 = no cap
	DefaultKellyDamping         = 1.0
	DefaultMaxBetFraction       = 0.10
	DefaultMinBetSize           = 1.0
	DefaultMinOperatingBankroll = 5.0
	DefaultDevigMethod          = "proportional"
	DefaultReferenceBook        = "pinnacle"
	DefaultReferenceWeight      = 0.50

	DefaultRefreshInterval    = 30 * time.Minute
	DefaultPollInterval       = 60 * time.Second
	DefaultMaxConcurrentGames = 4
	DefaultPreGameSkipWindow  = 1 * time.Minute
	DefaultAlertCooldown      = 5 * time.Minute
	DefaultCleanupInterval    = 10 * time.Minute

	DefaultDBPath   = "/data/value_bets.db"
	DefaultRedisKey = "sports-value-bot:traded"
	DefaultRedisTTL = 36 * time.Hour
	DefaultPort     = "8080"
	DefaultChainID  = 137

	DefaultSportsbookBaseURL = "https://guest.api.arcadia.pinnacle.com/0.1"
	DefaultGammaBaseURL      = "https://gamma-api.polymarket.com"
	DefaultClobBaseURL       = "https://clob.polymarket.com"
)

// Default sport filters: Arcadia sport ids and counterparty slug prefixes.
var (
	DefaultSportsbookSportIDs = []int{4}
	DefaultSportPrefixes      = []string{"nba-", "cbb-", "nhl-", "epl-"}
)

// Config holds all application configuration.
// Field tags name the keys in the optional TOML file.
type Config struct {
	// Value-bet detection and sizing
	MinTrueProb          float64 `toml:"min_true_prob"`
	MinExpectedPayout    float64 `toml:"min_expected_payout"`
	MaxExpectedPayout    float64 `toml:"max_expected_payout"`
	KellyDamping         float64 `toml:"kelly_damping"`
	MaxBetFraction       float64 `toml:"max_bet_fraction"`
	MinBetSize           float64 `toml:"min_bet_size"`
	MinOperatingBankroll float64 `toml:"min_operating_bankroll"`
	DevigMethod          string  `toml:"devig_method"`
	ReferenceBook        string  `toml:"reference_book"`
	ReferenceWeight      float64 `toml:"reference_weight"`

	// Scheduling
	RefreshInterval    time.Duration `toml:"refresh_interval"`
	PollInterval       time.Duration `toml:"poll_interval"`
	MaxConcurrentGames int           `toml:"max_concurrent_games"`
	PreGameSkipWindow  time.Duration `toml:"pre_game_skip_window"`
	AlertCooldown      time.Duration `toml:"alert_cooldown"`
	Timezone           string        `toml:"timezone"` // calendar-day boundary; empty = local

	// Storage
	DBPath        string        `toml:"db_path"`
	RedisAddr     string        `toml:"redis_addr"` // empty = in-memory traded set
	RedisPassword string        `toml:"redis_password"`
	RedisKey      string        `toml:"redis_key"` // suffixed with the start date
	RedisTTL      time.Duration `toml:"redis_ttl"`

	// Endpoints
	SportsbookBaseURL  string   `toml:"sportsbook_base_url"`
	SportsbookSportIDs []int    `toml:"sportsbook_sport_ids"`
	GammaBaseURL       string   `toml:"gamma_base_url"`
	ClobBaseURL        string   `toml:"clob_base_url"`
	SportPrefixes      []string `toml:"sport_prefixes"`

	// Credentials (env only in practice)
	PolyPrivateKey    string `toml:"poly_private_key"`
	PolyAPIKey        string `toml:"poly_api_key"`
	PolyAPISecret     string `toml:"poly_api_secret"`
	PolyAPIPassphrase string `toml:"poly_api_passphrase"`
	PolyFunder        string `toml:"poly_funder"`
	PolySignatureType int    `toml:"poly_signature_type"`
	ChainID           int64  `toml:"chain_id"`

	// Operation
	AutoExecute      bool    `toml:"auto_execute"`
	BankrollOverride float64 `toml:"bankroll_override"` // > 0 skips the balance call
	Port             string  `toml:"port"`
	LogLevel         string  `toml:"log_level"`
	LogFormat        string  `toml:"log_format"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		MinTrueProb:          DefaultMinTrueProb,
		MinExpectedPayout:    DefaultMinExpectedPayout,
		MaxExpectedPayout:    DefaultMaxExpectedPayout,
		KellyDamping:         DefaultKellyDamping,
		MaxBetFraction:       DefaultMaxBetFraction,
		MinBetSize:           DefaultMinBetSize,
		MinOperatingBankroll: DefaultMinOperatingBankroll,
		DevigMethod:          DefaultDevigMethod,
		ReferenceBook:        DefaultReferenceBook,
		ReferenceWeight:      DefaultReferenceWeight,

		RefreshInterval:    DefaultRefreshInterval,
		PollInterval:       DefaultPollInterval,
		MaxConcurrentGames: DefaultMaxConcurrentGames,
		PreGameSkipWindow:  DefaultPreGameSkipWindow,
		AlertCooldown:      DefaultAlertCooldown,

		DBPath:   DefaultDBPath,
		RedisKey: DefaultRedisKey,
		RedisTTL: DefaultRedisTTL,

		SportsbookBaseURL:  DefaultSportsbookBaseURL,
		SportsbookSportIDs: append([]int(nil), DefaultSportsbookSportIDs...),
		GammaBaseURL:       DefaultGammaBaseURL,
		ClobBaseURL:        DefaultClobBaseURL,
		SportPrefixes:      append([]string(nil), DefaultSportPrefixes...),

		ChainID: DefaultChainID,

		AutoExecute: false,
		Port:        DefaultPort,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load builds the configuration: defaults, then the TOML file named by
// CONFIG_FILE (if any), then environment variables (and .env if present).
func Load() (Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setFloat(&cfg.MinTrueProb, "MIN_TRUE_PROB")
	setFloat(&cfg.MinExpectedPayout, "MIN_EXPECTED_PAYOUT")
	setFloat(&cfg.MaxExpectedPayout, "MAX_EXPECTED_PAYOUT")
	setFloat(&cfg.KellyDamping, "KELLY_DAMPING")
	setFloat(&cfg.MaxBetFraction, "MAX_BET_FRACTION")
	setFloat(&cfg.MinBetSize, "MIN_BET_SIZE")
	setFloat(&cfg.MinOperatingBankroll, "MIN_OPERATING_BANKROLL")
	setStr(&cfg.DevigMethod, "DEVIG_METHOD")
	setStr(&cfg.ReferenceBook, "REFERENCE_BOOK")
	setFloat(&cfg.ReferenceWeight, "REFERENCE_WEIGHT")

	setDuration(&cfg.RefreshInterval, "REFRESH_INTERVAL")
	setDuration(&cfg.PollInterval, "POLL_INTERVAL")
	setInt(&cfg.MaxConcurrentGames, "MAX_CONCURRENT_GAMES")
	setDuration(&cfg.PreGameSkipWindow, "PRE_GAME_SKIP_WINDOW")
	setDuration(&cfg.AlertCooldown, "ALERT_COOLDOWN")
	setStr(&cfg.Timezone, "TIMEZONE")

	setStr(&cfg.DBPath, "DB_PATH")
	setStr(&cfg.RedisAddr, "REDIS_ADDR")
	setStr(&cfg.RedisPassword, "REDIS_PASSWORD")
	setStr(&cfg.RedisKey, "REDIS_KEY")
	setDuration(&cfg.RedisTTL, "REDIS_TTL")

	setStr(&cfg.SportsbookBaseURL, "SPORTSBOOK_BASE_URL")
	if v := os.Getenv("SPORTSBOOK_SPORT_IDS"); v != "" {
		var ids []int
		for _, s := range splitList(v) {
			if n, err := strconv.Atoi(s); err == nil {
				ids = append(ids, n)
			}
		}
		if len(ids) > 0 {
			cfg.SportsbookSportIDs = ids
		}
	}
	setStr(&cfg.GammaBaseURL, "GAMMA_BASE_URL")
	setStr(&cfg.ClobBaseURL, "CLOB_BASE_URL")
	if v, ok := os.LookupEnv("SPORT_PREFIXES"); ok {
		cfg.SportPrefixes = splitList(v)
	}

	setStr(&cfg.PolyPrivateKey, "POLY_PRIVATE_KEY")
	setStr(&cfg.PolyAPIKey, "POLY_API_KEY")
	setStr(&cfg.PolyAPISecret, "POLY_API_SECRET")
	setStr(&cfg.PolyAPIPassphrase, "POLY_API_PASSPHRASE")
	setStr(&cfg.PolyFunder, "POLY_FUNDER")
	setInt(&cfg.PolySignatureType, "POLY_SIGNATURE_TYPE")
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ChainID = n
		}
	}

	if v := os.Getenv("AUTO_EXECUTE"); v != "" {
		cfg.AutoExecute = v == "true"
	}
	setFloat(&cfg.BankrollOverride, "BANKROLL_OVERRIDE")
	setStr(&cfg.Port, "PORT")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setStr(&cfg.LogFormat, "LOG_FORMAT")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// setDuration accepts Go durations ("90s") or bare seconds ("90").
func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that configuration values are within acceptable ranges.
func Validate(cfg Config) error {
	if cfg.MinTrueProb < 0 || cfg.MinTrueProb >= 1 {
		return fmt.Errorf("MIN_TRUE_PROB must be between 0 and 1, got %f", cfg.MinTrueProb)
	}
	if cfg.MinExpectedPayout < 1 {
		return fmt.Errorf("MIN_EXPECTED_PAYOUT must be at least 1, got %f", cfg.MinExpectedPayout)
	}
	if cfg.MaxExpectedPayout != 0 && cfg.MaxExpectedPayout <= cfg.MinExpectedPayout {
		return fmt.Errorf("MAX_EXPECTED_PAYOUT must be 0 or above MIN_EXPECTED_PAYOUT, got %f", cfg.MaxExpectedPayout)
	}
	if cfg.KellyDamping <= 0 || cfg.KellyDamping > 1 {
		return fmt.Errorf("KELLY_DAMPING must be between 0 and 1, got %f", cfg.KellyDamping)
	}
	if cfg.MaxBetFraction <= 0 || cfg.MaxBetFraction > 1 {
		return fmt.Errorf("MAX_BET_FRACTION must be between 0 and 1, got %f", cfg.MaxBetFraction)
	}
	if cfg.MinBetSize < 0 {
		return fmt.Errorf("MIN_BET_SIZE must be non-negative, got %f", cfg.MinBetSize)
	}
	if cfg.MinOperatingBankroll < 0 {
		return fmt.Errorf("MIN_OPERATING_BANKROLL must be non-negative, got %f", cfg.MinOperatingBankroll)
	}
	if cfg.DevigMethod != "proportional" && cfg.DevigMethod != "power" {
		return fmt.Errorf("DEVIG_METHOD must be proportional or power, got %q", cfg.DevigMethod)
	}
	if cfg.ReferenceWeight <= 0 || cfg.ReferenceWeight > 1 {
		return fmt.Errorf("REFERENCE_WEIGHT must be between 0 and 1, got %f", cfg.ReferenceWeight)
	}
	if cfg.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 1s, got %v", cfg.PollInterval)
	}
	if cfg.RefreshInterval < cfg.PollInterval {
		return fmt.Errorf("REFRESH_INTERVAL must be at least POLL_INTERVAL, got %v", cfg.RefreshInterval)
	}
	if cfg.MaxConcurrentGames < 1 {
		return fmt.Errorf("MAX_CONCURRENT_GAMES must be at least 1, got %d", cfg.MaxConcurrentGames)
	}
	if cfg.RedisTTL < 0 {
		return fmt.Errorf("REDIS_TTL must be non-negative, got %v", cfg.RedisTTL)
	}
	if cfg.BankrollOverride < 0 {
		return fmt.Errorf("BANKROLL_OVERRIDE must be non-negative, got %f", cfg.BankrollOverride)
	}
	if len(cfg.SportsbookSportIDs) == 0 {
		return fmt.Errorf("SPORTSBOOK_SPORT_IDS must list at least one sport")
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return fmt.Errorf("TIMEZONE %q: %w", cfg.Timezone, err)
		}
	}
	if cfg.AutoExecute && cfg.PolyPrivateKey == "" {
		return fmt.Errorf("AUTO_EXECUTE requires POLY_PRIVATE_KEY")
	}
	return nil
}

// Location returns the configured calendar timezone.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// FormatCap returns a human-readable string for the expected-payout cap.
func FormatCap(maxEP float64) string {
	if maxEP <= 0 {
		return "no cap"
	}
	return fmt.Sprintf("%.2f", maxEP)
}
