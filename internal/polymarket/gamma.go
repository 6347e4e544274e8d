package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"sports-value-bot/internal/api"
)

// FindEvent pages Gamma /events for a game between teamA and teamB starting
// on date's local calendar day. Active events are searched first, then
// inactive ones (future games often stay inactive until close to tip-off).
func (c *Client) FindEvent(ctx context.Context, teamA, teamB string, date time.Time) (Event, bool, error) {
	return c.findEvent(ctx, teamA, teamB, []string{c.day(date)})
}

// FindEventNear is FindEvent with a one-day tolerance: an event on the game
// date wins, then the day before, then the day after. Sportsbook and
// Gamma disagree on the date for late games.
func (c *Client) FindEventNear(ctx context.Context, teamA, teamB string, date time.Time) (Event, bool, error) {
	return c.findEvent(ctx, teamA, teamB, []string{
		c.day(date),
		c.day(date.AddDate(0, 0, -1)),
		c.day(date.AddDate(0, 0, 1)),
	})
}

func (c *Client) day(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

func (c *Client) findEvent(ctx context.Context, teamA, teamB string, days []string) (Event, bool, error) {
	tokensA, tokensB := TeamTokens(teamA), TeamTokens(teamB)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return Event{}, false, nil
	}

	rank := make(map[string]int, len(days))
	for i, d := range days {
		if _, ok := rank[d]; !ok {
			rank[d] = i
		}
	}

	var best Event
	bestRank := len(days)

	for _, active := range []bool{true, false} {
		for page := 0; page < eventsMaxPages; page++ {
			events, err := c.eventsPage(ctx, active, page*eventsPageSize)
			if err != nil {
				return Event{}, false, err
			}
			if len(events) == 0 {
				break
			}

			for _, ev := range events {
				if ev.Slug == "" || !c.SportAllowed(ev.Slug) {
					continue
				}
				title := normalize(ev.Title)
				if !containsAny(title, tokensA) || !containsAny(title, tokensB) {
					continue
				}

				r := 0
				if start, ok := ev.StartTime(); ok {
					var found bool
					r, found = rank[c.day(start)]
					if !found {
						continue
					}
				}
				if r == 0 {
					return ev, true, nil
				}
				if r < bestRank {
					best, bestRank = ev, r
				}
			}
		}
	}

	if bestRank < len(days) {
		return best, true, nil
	}
	return Event{}, false, nil
}

func (c *Client) eventsPage(ctx context.Context, active bool, offset int) ([]Event, error) {
	q := url.Values{}
	q.Set("active", strconv.FormatBool(active))
	q.Set("closed", "false")
	q.Set("limit", strconv.Itoa(eventsPageSize))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("order", "startTime")
	q.Set("ascending", "false")
	q.Set("tag_id", GameBetsTagID)

	body, err := c.client.Get(ctx, c.gammaURL+"/events?"+q.Encode(), jsonHeaders())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: fetching events: %w", err)
	}

	var events []Event
	if err := json.Unmarshal(body, &events); err == nil {
		return events, nil
	}
	var wrapped struct {
		Data []Event `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: parsing events: %w", err)
	}
	return wrapped.Data, nil
}

// GetEvent fetches one event with its markets.
func (c *Client) GetEvent(ctx context.Context, slug string) (Event, error) {
	body, err := c.client.Get(ctx, c.gammaURL+"/events/slug/"+url.PathEscape(slug), jsonHeaders())
	if err != nil {
		var se *api.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, slug)
		}
		return Event{}, fmt.Errorf("polymarket/gamma: fetching event %s: %w", slug, err)
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("polymarket/gamma: parsing event %s: %w", slug, err)
	}
	if ev.Slug == "" {
		return Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, slug)
	}
	return ev, nil
}

// ListMarketSlugs returns the full-game market slugs of an event, fetching
// the event's markets when ev has none.
func (c *Client) ListMarketSlugs(ctx context.Context, ev Event) (MarketSlugs, error) {
	if len(ev.Markets) == 0 {
		full, err := c.GetEvent(ctx, ev.Slug)
		if err != nil {
			return MarketSlugs{}, err
		}
		ev = full
	}
	return MarketSlugsFromEvent(ev), nil
}

// MarketSlugsFromEvent classifies an event's markets. The moneyline market
// shares the event slug. First-half markets are excluded.
func MarketSlugsFromEvent(ev Event) MarketSlugs {
	var out MarketSlugs
	seen := make(map[string]bool)

	for _, m := range ev.Markets {
		slug := strings.TrimSpace(m.Slug)
		if slug == "" || seen[slug] || m.Closed || IsFirstHalf(m) {
			continue
		}

		switch {
		case slug == ev.Slug || strings.EqualFold(m.MarketType, "moneyline"):
			if out.Moneyline == "" {
				out.Moneyline = slug
			}
		case isSpreadMarket(m):
			out.Spreads = append(out.Spreads, slug)
		case isTotalMarket(m):
			out.Totals = append(out.Totals, slug)
		default:
			continue
		}
		seen[slug] = true
	}
	return out
}

// IsFirstHalf reports whether a market settles on the first half only.
func IsFirstHalf(m Market) bool {
	q := strings.ToLower(strings.TrimSpace(m.Question))
	smt := strings.ToLower(m.MarketType)
	slug := strings.ToLower(m.Slug)

	return strings.HasPrefix(q, "1h ") ||
		strings.Contains(q, "1h spread") ||
		strings.Contains(q, "1h o/u") ||
		strings.Contains(q, "1h total") ||
		strings.Contains(q, "first half") ||
		strings.Contains(smt, "first_half") ||
		strings.Contains(smt, "first half") ||
		strings.Contains(slug, "-1h-") ||
		strings.HasPrefix(slug, "1h-")
}

func isSpreadMarket(m Market) bool {
	return strings.Contains(strings.ToLower(m.Question), "spread") ||
		strings.Contains(strings.ToLower(m.MarketType), "spread") ||
		strings.Contains(strings.ToLower(m.Slug), "-spread-")
}

func isTotalMarket(m Market) bool {
	q := strings.ToLower(m.Question)
	return strings.Contains(q, "o/u") ||
		strings.Contains(q, "total") ||
		strings.Contains(strings.ToLower(m.MarketType), "total") ||
		strings.Contains(strings.ToLower(m.Slug), "-total-")
}

var (
	spreadSlugRe = regexp.MustCompile(`(?i)spread-(away|home)-(\d+)(?:pt(\d+))?`)
	totalSlugRe  = regexp.MustCompile(`(?i)total-(\d+)(?:pt(\d+))?`)
)

// LineFromSlug reads the line encoded in a market slug.
//
//	"...-spread-away-4pt5" → ("away", 4.5)
//	"...-total-212pt5"     → ("", 212.5)
//
// Spread lines are always positive; side names the team receiving the points
// in the slug's convention.
func LineFromSlug(slug string) (string, float64, bool) {
	if m := spreadSlugRe.FindStringSubmatch(slug); m != nil {
		line, ok := slugNumber(m[2], m[3])
		return strings.ToLower(m[1]), line, ok
	}
	if m := totalSlugRe.FindStringSubmatch(slug); m != nil {
		line, ok := slugNumber(m[1], m[2])
		return "", line, ok
	}
	return "", 0, false
}

func slugNumber(whole, frac string) (float64, bool) {
	s := whole
	if frac != "" {
		s += "." + frac
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// TeamTokens returns the words of a team name worth looking for in an event
// title: the nickname (last word) and every word longer than 3 letters.
func TeamTokens(team string) []string {
	words := strings.Fields(normalize(team))
	if len(words) == 0 {
		return nil
	}

	out := []string{words[len(words)-1]}
	for _, w := range words {
		if len(w) <= 3 {
			continue
		}
		dup := false
		for _, o := range out {
			if o == w {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, w)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
