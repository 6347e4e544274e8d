package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	DefaultSportsbookBaseURL = "https://guest.api.arcadia.pinnacle.com/0.1"
	DefaultProviderID        = "pinnacle"

	requestsPerMinute = 120
	requestTimeout    = 20 * time.Second
)

// Arcadia sport IDs
const (
	SportBasketball = 4
	SportHockey     = 19
	SportSoccer     = 29
)

// Game is one matchup from the sportsbook feed
type Game struct {
	ID        int64
	League    string
	AwayTeam  string
	HomeTeam  string
	StartTime time.Time
}

// StartsWithin checks if the game starts within the given duration
// Returns true if game is about to start (within duration) or has already started
func (g *Game) StartsWithin(d time.Duration) bool {
	if g.StartTime.IsZero() {
		return false // Can't determine, assume safe
	}
	return time.Until(g.StartTime) <= d
}

// matchup is the subset of an Arcadia matchups entry we read
type matchup struct {
	ID           int64           `json:"id"`
	StartTime    string          `json:"startTime"`
	Special      json.RawMessage `json:"special"`
	Parent       json.RawMessage `json:"parent"`
	ParentID     *int64          `json:"parentId"`
	League       json.RawMessage `json:"league"`
	Participants []participant   `json:"participants"`
}

type participant struct {
	Alignment   string `json:"alignment"`
	Name        string `json:"name"`
	FullName    string `json:"fullName"`
	DisplayName string `json:"displayName"`
	LongName    string `json:"longName"`
}

func (p participant) bestName() string {
	for _, n := range []string{p.FullName, p.DisplayName, p.LongName, p.Name} {
		if n = strings.Join(strings.Fields(n), " "); n != "" {
			return n
		}
	}
	return ""
}

// SportsbookClient reads the Arcadia guest API
type SportsbookClient struct {
	baseURL  string
	sportIDs []int
	client   *RateLimitedClient
	loc      *time.Location
}

// NewSportsbookClient creates a new API client. loc decides which calendar
// day a start time belongs to; nil means time.Local.
func NewSportsbookClient(baseURL string, sportIDs []int, loc *time.Location) *SportsbookClient {
	if baseURL == "" {
		baseURL = DefaultSportsbookBaseURL
	}
	if len(sportIDs) == 0 {
		sportIDs = []int{SportBasketball}
	}
	if loc == nil {
		loc = time.Local
	}
	return &SportsbookClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		sportIDs: sportIDs,
		client:   NewRateLimitedClient(requestsPerMinute, requestTimeout, DefaultRetryPolicy()),
		loc:      loc,
	}
}

func (c *SportsbookClient) headers() map[string]string {
	return map[string]string{
		"Accept":     "application/json",
		"User-Agent": "sports-value-bot/1.0",
	}
}

// ListGames returns matchups starting on date's local calendar day, sorted
// by league (NBA, then NCAA, then alphabetical) and start time.
func (c *SportsbookClient) ListGames(ctx context.Context, date time.Time) ([]Game, error) {
	day := date.In(c.loc).Format("2006-01-02")

	var games []Game
	for _, sport := range c.sportIDs {
		url := fmt.Sprintf("%s/sports/%d/matchups?withSpecials=false&brandId=0", c.baseURL, sport)
		body, err := c.client.Get(ctx, url, c.headers())
		if err != nil {
			return nil, fmt.Errorf("fetching matchups for sport %d: %w", sport, err)
		}

		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("parsing matchups for sport %d: %w", sport, err)
		}

		for _, raw := range items {
			var m matchup
			if err := json.Unmarshal(raw, &m); err != nil {
				continue
			}
			g, ok := gameFromMatchup(m)
			if !ok || g.StartTime.In(c.loc).Format("2006-01-02") != day {
				continue
			}
			games = append(games, g)
		}
	}

	sort.SliceStable(games, func(i, j int) bool {
		ri, rj := leagueRank(games[i].League), leagueRank(games[j].League)
		if ri != rj {
			return ri < rj
		}
		if li, lj := strings.ToLower(games[i].League), strings.ToLower(games[j].League); li != lj {
			return li < lj
		}
		if !games[i].StartTime.Equal(games[j].StartTime) {
			return games[i].StartTime.Before(games[j].StartTime)
		}
		return games[i].ID < games[j].ID
	})
	return games, nil
}

func gameFromMatchup(m matchup) (Game, bool) {
	if m.ID == 0 || isPresent(m.Special) || isPresent(m.Parent) || m.ParentID != nil {
		return Game{}, false
	}
	start, err := time.Parse(time.RFC3339, m.StartTime)
	if err != nil {
		return Game{}, false
	}

	g := Game{ID: m.ID, StartTime: start, League: leagueName(m.League)}
	for _, p := range m.Participants {
		name := p.bestName()
		switch strings.ToLower(strings.TrimSpace(p.Alignment)) {
		case "home":
			if g.HomeTeam == "" {
				g.HomeTeam = name
			}
		case "away":
			if g.AwayTeam == "" {
				g.AwayTeam = name
			}
		}
	}
	if g.HomeTeam == "" || g.AwayTeam == "" {
		return Game{}, false
	}
	return g, true
}

func isPresent(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null"
}

// leagueName reads league as either {"name": ...} or a bare string.
func leagueName(raw json.RawMessage) string {
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Name != "" {
		return strings.TrimSpace(obj.Name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}

func leagueRank(league string) int {
	u := strings.ToUpper(league)
	switch {
	case u == "NBA":
		return 0
	case u == "NCAA" || strings.HasPrefix(u, "NCAA "):
		return 1
	}
	return 2
}

// GetMarketRows returns the decoded straight-markets payload for a matchup.
// The tree is left untyped; odds.NormalizeRows projects it.
func (c *SportsbookClient) GetMarketRows(ctx context.Context, gameID int64) (any, error) {
	url := fmt.Sprintf("%s/matchups/%d/markets/related/straight", c.baseURL, gameID)
	body, err := c.client.Get(ctx, url, c.headers())
	if err != nil {
		return nil, fmt.Errorf("fetching markets for matchup %d: %w", gameID, err)
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing markets for matchup %d: %w", gameID, err)
	}
	return raw, nil
}
