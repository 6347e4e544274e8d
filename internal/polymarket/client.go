// Package polymarket reads Gamma events, CLOB order books and places signed
// CLOB orders.
package polymarket

import (
	"errors"
	"strings"
	"time"

	"sports-value-bot/internal/api"
)

const (
	DefaultGammaBaseURL = "https://gamma-api.polymarket.com"
	DefaultClobBaseURL  = "https://clob.polymarket.com"

	// GameBetsTagID is the Gamma tag carrying individual game events.
	GameBetsTagID = "100639"

	requestsPerMinute = 300
	requestTimeout    = 15 * time.Second

	eventsPageSize = 100
	eventsMaxPages = 25
)

var (
	ErrEventNotFound = errors.New("polymarket: event not found")
	ErrOrderRejected = errors.New("polymarket: order rejected")
)

// Client reads public Gamma and CLOB endpoints
type Client struct {
	gammaURL string
	clobURL  string
	client   *api.RateLimitedClient
	prefixes []string
	loc      *time.Location
}

// ClientConfig configures a Client. Empty fields take defaults.
type ClientConfig struct {
	GammaBaseURL  string
	ClobBaseURL   string
	SportPrefixes []string       // event slug prefixes to accept, e.g. "nba-"; empty accepts all
	Location      *time.Location // calendar-day boundary for date matching
	HTTP          *api.RateLimitedClient
}

// NewClient creates a new Polymarket read client
func NewClient(cfg ClientConfig) *Client {
	if cfg.GammaBaseURL == "" {
		cfg.GammaBaseURL = DefaultGammaBaseURL
	}
	if cfg.ClobBaseURL == "" {
		cfg.ClobBaseURL = DefaultClobBaseURL
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.HTTP == nil {
		cfg.HTTP = api.NewRateLimitedClient(requestsPerMinute, requestTimeout, api.DefaultRetryPolicy())
	}

	prefixes := make([]string, 0, len(cfg.SportPrefixes))
	for _, p := range cfg.SportPrefixes {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			prefixes = append(prefixes, p)
		}
	}

	return &Client{
		gammaURL: strings.TrimRight(cfg.GammaBaseURL, "/"),
		clobURL:  strings.TrimRight(cfg.ClobBaseURL, "/"),
		client:   cfg.HTTP,
		prefixes: prefixes,
		loc:      cfg.Location,
	}
}

// SportAllowed reports whether an event slug passes the sport whitelist.
func (c *Client) SportAllowed(slug string) bool {
	if len(c.prefixes) == 0 {
		return true
	}
	slug = strings.ToLower(slug)
	for _, p := range c.prefixes {
		if strings.HasPrefix(slug, p) {
			return true
		}
	}
	return false
}

func jsonHeaders() map[string]string {
	return map[string]string{"Accept": "application/json"}
}
