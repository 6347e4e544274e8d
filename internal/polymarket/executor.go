package polymarket

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sports-value-bot/internal/api"
)

const (
	// USDC and outcome tokens both use 6 decimals on chain.
	baseUnitDecimals = 6

	// CLOB precision for a 0.01 tick market.
	sizeDecimals   = 2
	amountDecimals = 4
)

// ExecutorConfig configures a ClobExecutor.
type ExecutorConfig struct {
	ClobBaseURL   string
	Signer        *Signer // required unless DryRun
	Credentials   Credentials
	Funder        string // proxy wallet holding funds; empty trades from the signer address
	SignatureType int
	DryRun        bool
	HTTP          *api.RateLimitedClient
}

// ClobExecutor places signed orders on the CLOB.
type ClobExecutor struct {
	baseURL string
	signer  *Signer
	creds   Credentials
	funder  string
	sigType int
	dryRun  bool
	client  *api.RateLimitedClient
	now     func() time.Time
}

// NewClobExecutor validates cfg and builds an executor.
func NewClobExecutor(cfg ExecutorConfig) (*ClobExecutor, error) {
	if !cfg.DryRun {
		if cfg.Signer == nil {
			return nil, errors.New("polymarket/executor: signer required for live trading")
		}
		if !cfg.Credentials.Valid() {
			return nil, errors.New("polymarket/executor: API key, secret and passphrase required for live trading")
		}
	}
	if cfg.ClobBaseURL == "" {
		cfg.ClobBaseURL = DefaultClobBaseURL
	}
	if cfg.HTTP == nil {
		cfg.HTTP = api.NewRateLimitedClient(requestsPerMinute, requestTimeout, api.DefaultRetryPolicy())
	}

	funder := cfg.Funder
	if funder == "" && cfg.Signer != nil {
		funder = cfg.Signer.Address()
	}

	return &ClobExecutor{
		baseURL: strings.TrimRight(cfg.ClobBaseURL, "/"),
		signer:  cfg.Signer,
		creds:   cfg.Credentials,
		funder:  funder,
		sigType: cfg.SignatureType,
		dryRun:  cfg.DryRun,
		client:  cfg.HTTP,
		now:     time.Now,
	}, nil
}

// DryRun reports whether orders are logged instead of posted.
func (e *ClobExecutor) DryRun() bool {
	return e.dryRun
}

// Execute signs and posts one order. An order the exchange refuses returns
// an error wrapping ErrOrderRejected. A FOK that did not fill returns a Fill
// with FilledSize 0 and no error.
func (e *ClobExecutor) Execute(ctx context.Context, o Order) (Fill, error) {
	if o.TokenID == "" {
		return Fill{}, fmt.Errorf("%w: empty token id", ErrOrderRejected)
	}
	if o.Price <= 0 || o.Price >= 1 {
		return Fill{}, fmt.Errorf("%w: price %.4f outside (0,1)", ErrOrderRejected, o.Price)
	}
	if o.Size <= 0 {
		return Fill{}, fmt.Errorf("%w: size %.2f", ErrOrderRejected, o.Size)
	}
	if o.Type == "" {
		o.Type = OrderTypeFOK
	}
	if o.Side == "" {
		o.Side = SideBuy
	}

	clientID := uuid.New()

	if e.dryRun {
		slog.Info("Dry run order",
			"token", o.TokenID,
			"side", o.Side,
			"price", o.Price,
			"size", o.Size,
			"type", o.Type,
			"client_id", clientID.String(),
		)
		return Fill{
			OrderID:    "dry-run-" + clientID.String(),
			Status:     "dry_run",
			FilledSize: o.Size,
			DryRun:     true,
		}, nil
	}

	signed, err := e.buildOrder(o, clientID)
	if err != nil {
		return Fill{}, err
	}
	if err := e.signer.SignOrder(&signed, o.NegRisk); err != nil {
		return Fill{}, err
	}

	body, err := json.Marshal(PostOrderRequest{
		Order:     signed,
		Owner:     e.creds.APIKey,
		OrderType: o.Type,
	})
	if err != nil {
		return Fill{}, fmt.Errorf("polymarket/executor: encoding order: %w", err)
	}

	headers := e.creds.L2Headers(e.signer.Address(), http.MethodPost, "/order", string(body), e.now())
	headers["Content-Type"] = "application/json"

	respBody, err := e.client.Send(ctx, http.MethodPost, e.baseURL+"/order", body, headers)
	if err != nil {
		var se *api.StatusError
		if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
			return Fill{}, fmt.Errorf("%w: HTTP %d: %s", ErrOrderRejected, se.Code, se.Body)
		}
		return Fill{}, fmt.Errorf("polymarket/executor: posting order: %w", err)
	}

	var resp PostOrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return Fill{}, fmt.Errorf("polymarket/executor: parsing order response: %w", err)
	}
	if !resp.Success && resp.ErrorMsg != "" {
		return Fill{}, fmt.Errorf("%w: %s", ErrOrderRejected, resp.ErrorMsg)
	}

	return Fill{
		OrderID:    resp.OrderID,
		Status:     resp.Status,
		FilledSize: filledSize(resp, o.Size),
	}, nil
}

// filledSize prefers an explicit matched amount; "matched" with no amount
// means the whole order filled.
func filledSize(resp PostOrderResponse, requested float64) float64 {
	if n, ok := resp.FilledSize(); ok {
		return min(n, requested)
	}
	if strings.EqualFold(resp.Status, "matched") {
		return requested
	}
	return 0
}

func (e *ClobExecutor) buildOrder(o Order, clientID uuid.UUID) (SignedOrder, error) {
	price := decimal.NewFromFloat(o.Price)
	size := decimal.NewFromFloat(o.Size).RoundDown(sizeDecimals)
	if !size.IsPositive() {
		return SignedOrder{}, fmt.Errorf("%w: size %.4f rounds to zero", ErrOrderRejected, o.Size)
	}
	notional := size.Mul(price).RoundDown(amountDecimals)

	// BUY pays USDC for tokens; SELL pays tokens for USDC.
	maker, taker := notional, size
	if o.Side == SideSell {
		maker, taker = size, notional
	}

	return SignedOrder{
		Salt:          int64(binary.BigEndian.Uint64(clientID[:8]) >> 11),
		Maker:         e.funder,
		Signer:        e.signer.Address(),
		Taker:         zeroAddress,
		TokenID:       o.TokenID,
		MakerAmount:   toBaseUnits(maker),
		TakerAmount:   toBaseUnits(taker),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          string(o.Side),
		SignatureType: e.sigType,
	}, nil
}

func toBaseUnits(d decimal.Decimal) string {
	return d.Shift(baseUnitDecimals).Truncate(0).String()
}

// GetBalance returns the collateral balance in USDC.
func (e *ClobExecutor) GetBalance(ctx context.Context) (float64, error) {
	if e.signer == nil || !e.creds.Valid() {
		return 0, errors.New("polymarket/executor: balance requires credentials")
	}

	const path = "/balance-allowance"
	url := e.baseURL + path + "?asset_type=COLLATERAL&signature_type=" + strconv.Itoa(e.sigType)
	headers := e.creds.L2Headers(e.signer.Address(), http.MethodGet, path, "", e.now())

	body, err := e.client.Get(ctx, url, headers)
	if err != nil {
		return 0, fmt.Errorf("polymarket/executor: fetching balance: %w", err)
	}

	var resp struct {
		Balance *Amount `json:"balance"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("polymarket/executor: parsing balance: %w", err)
	}
	if resp.Balance == nil {
		return 0, fmt.Errorf("polymarket/executor: balance missing in %s", string(body))
	}

	return decimal.NewFromFloat(float64(*resp.Balance)).Shift(-baseUnitDecimals).InexactFloat64(), nil
}
