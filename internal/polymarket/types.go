package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Gamma

// Event from GET /events and /events/slug/{slug}
type Event struct {
	ID        string   `json:"id"`
	Slug      string   `json:"slug"`
	Title     string   `json:"title"`
	GameStart string   `json:"startTime"`
	StartDate string   `json:"startDate"`
	Active    bool     `json:"active"`
	Closed    bool     `json:"closed"`
	Markets   []Market `json:"markets"`
}

// StartTime parses startTime, falling back to startDate.
func (e Event) StartTime() (time.Time, bool) {
	for _, raw := range []string{e.GameStart, e.StartDate} {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05Z07", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Market is one binary market inside an event.
// Gamma encodes clobTokenIds and outcomes as JSON strings holding arrays.
type Market struct {
	ID           string     `json:"id"`
	Slug         string     `json:"slug"`
	Question     string     `json:"question"`
	Active       bool       `json:"active"`
	Closed       bool       `json:"closed"`
	MarketType   string     `json:"sportsMarketType"`
	ClobTokenIDs StringList `json:"clobTokenIds"`
	Outcomes     StringList `json:"outcomes"`
	NegRisk      bool       `json:"negRisk"`
}

// StringList decodes either a JSON array of strings or a string that
// itself contains a JSON array ("[\"a\",\"b\"]").
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}

	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return err
	}
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		*s = nil
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &list); err != nil {
		return err
	}
	*s = list
	return nil
}

// MarketSlugs are the tradeable market slugs of one event.
type MarketSlugs struct {
	Moneyline string
	Spreads   []string
	Totals    []string
}

// CLOB

// BookLevel is one price level. The CLOB sends both fields as strings.
type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookResponse from GET /book?token_id=
type BookResponse struct {
	Market  string      `json:"market"`
	AssetID string      `json:"asset_id"`
	Bids    []BookLevel `json:"bids"`
	Asks    []BookLevel `json:"asks"`
}

// Quote is the top of book for one outcome token.
// BestBid/BestAsk are 0 when that side of the book is empty.
type Quote struct {
	MarketSlug   string
	Question     string
	TokenID      string
	OutcomeLabel string
	BestBid      float64
	BestAsk      float64
	BidVolume    float64
	AskVolume    float64
	NegRisk      bool
}

// HasAsk reports whether the quote can be bought.
func (q Quote) HasAsk() bool {
	return q.BestAsk > 0 && q.BestAsk < 1
}

// Orders

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the CLOB time-in-force.
type OrderType string

const (
	OrderTypeFOK OrderType = "FOK" // fill entire order or nothing
	OrderTypeFAK OrderType = "FAK" // take available, cancel rest
	OrderTypeGTC OrderType = "GTC"
)

// Order is what the engine asks the executor to place.
// Price is per token in (0,1); Size is a token count.
type Order struct {
	TokenID string
	Side    Side
	Price   float64
	Size    float64
	Type    OrderType
	NegRisk bool // routes the signature to the neg-risk exchange
}

// Fill is the executor's report on one order.
type Fill struct {
	OrderID    string
	Status     string
	FilledSize float64
	DryRun     bool
}

// SignedOrder is the EIP-712 order body posted to /order.
type SignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// PostOrderRequest for POST /order
type PostOrderRequest struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType OrderType   `json:"orderType"`
}

// PostOrderResponse from POST /order. Field names vary across API versions.
type PostOrderResponse struct {
	Success        bool    `json:"success"`
	ErrorMsg       string  `json:"errorMsg"`
	OrderID        string  `json:"orderID"`
	Status         string  `json:"status"`
	MatchedAmount  *Amount `json:"matchedAmount"`
	MatchedAmount2 *Amount `json:"matched_amount"`
	FilledAmount   *Amount `json:"filledAmount"`
}

// FilledSize returns the first fill amount the response carries.
func (r PostOrderResponse) FilledSize() (float64, bool) {
	for _, a := range []*Amount{r.MatchedAmount, r.MatchedAmount2, r.FilledAmount} {
		if a != nil {
			return float64(*a), true
		}
	}
	return 0, false
}

// Amount is a number that may be sent as a JSON number or numeric string.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("polymarket: bad amount %q: %w", s, err)
	}
	*a = Amount(f)
	return nil
}
