package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// GetOrderBook fetches the CLOB book for one outcome token.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (BookResponse, error) {
	body, err := c.client.Get(ctx, c.clobURL+"/book?token_id="+url.QueryEscape(tokenID), jsonHeaders())
	if err != nil {
		return BookResponse{}, fmt.Errorf("polymarket/clob: fetching book %s: %w", tokenID, err)
	}

	var book BookResponse
	if err := json.Unmarshal(body, &book); err != nil {
		return BookResponse{}, fmt.Errorf("polymarket/clob: parsing book %s: %w", tokenID, err)
	}
	return book, nil
}

// TopOfBook reduces a book to best bid (max), best ask (min) and the total
// size resting on each side. Unparseable levels are ignored.
func TopOfBook(book BookResponse) (bestBid, bestAsk, bidVol, askVol float64) {
	for _, lvl := range book.Bids {
		p, s, ok := parseLevel(lvl)
		if !ok {
			continue
		}
		if p > bestBid {
			bestBid = p
		}
		bidVol += s
	}
	for _, lvl := range book.Asks {
		p, s, ok := parseLevel(lvl)
		if !ok {
			continue
		}
		if bestAsk == 0 || p < bestAsk {
			bestAsk = p
		}
		askVol += s
	}
	return bestBid, bestAsk, bidVol, askVol
}

func parseLevel(lvl BookLevel) (price, size float64, ok bool) {
	p, err := strconv.ParseFloat(strings.TrimSpace(lvl.Price), 64)
	if err != nil || p <= 0 {
		return 0, 0, false
	}
	s, err := strconv.ParseFloat(strings.TrimSpace(lvl.Size), 64)
	if err != nil || s < 0 {
		return 0, 0, false
	}
	return p, s, true
}

// FindMarket returns the event market with the given slug.
func FindMarket(ev Event, slug string) (Market, bool) {
	for _, m := range ev.Markets {
		if m.Slug == slug {
			return m, true
		}
	}
	return Market{}, false
}

// GetQuote returns one Quote per outcome token of a market. Token ids and
// outcome labels are paired by position.
func (c *Client) GetQuote(ctx context.Context, ev Event, slug string) ([]Quote, error) {
	m, ok := FindMarket(ev, slug)
	if !ok {
		full, err := c.GetEvent(ctx, ev.Slug)
		if err != nil {
			return nil, err
		}
		if m, ok = FindMarket(full, slug); !ok {
			return nil, fmt.Errorf("polymarket/clob: market %s not in event %s", slug, ev.Slug)
		}
	}

	if len(m.ClobTokenIDs) == 0 || len(m.ClobTokenIDs) != len(m.Outcomes) {
		return nil, fmt.Errorf("polymarket/clob: market %s has %d tokens for %d outcomes",
			slug, len(m.ClobTokenIDs), len(m.Outcomes))
	}

	quotes := make([]Quote, 0, len(m.ClobTokenIDs))
	for i, tokenID := range m.ClobTokenIDs {
		book, err := c.GetOrderBook(ctx, tokenID)
		if err != nil {
			return nil, err
		}
		bid, ask, bidVol, askVol := TopOfBook(book)
		quotes = append(quotes, Quote{
			MarketSlug:   slug,
			Question:     m.Question,
			TokenID:      tokenID,
			OutcomeLabel: m.Outcomes[i],
			BestBid:      bid,
			BestAsk:      ask,
			BidVolume:    bidVol,
			AskVolume:    askVol,
			NegRisk:      m.NegRisk,
		})
	}
	return quotes, nil
}
