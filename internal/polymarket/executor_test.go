package polymarket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"sports-value-bot/internal/api"
)

const (
	testKey     = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

func testCreds() Credentials {
	return Credentials{
		APIKey:     "key-1",
		Secret:     base64.URLEncoding.EncodeToString([]byte("supersecret")),
		Passphrase: "pass",
	}
}

func TestSignerAddress(t *testing.T) {
	s, err := NewSigner(testKey, 0)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if s.Address() != testAddress {
		t.Errorf("Address = %s, want %s", s.Address(), testAddress)
	}
	if _, err := NewSigner("not-a-key", 137); err == nil {
		t.Error("expected error for bad key")
	}
}

func TestSignOrderRecoversSigner(t *testing.T) {
	s, err := NewSigner(testKey, PolygonChainID)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	o := SignedOrder{
		Salt:        12345,
		Maker:       s.Address(),
		Signer:      s.Address(),
		Taker:       zeroAddress,
		TokenID:     "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		MakerAmount: "10350000",
		TakerAmount: "23000000",
		Expiration:  "0",
		Nonce:       "0",
		FeeRateBps:  "0",
		Side:        "BUY",
	}

	for _, negRisk := range []bool{false, true} {
		signed := o
		if err := s.SignOrder(&signed, negRisk); err != nil {
			t.Fatalf("SignOrder: %v", err)
		}

		sig, err := hex.DecodeString(strings.TrimPrefix(signed.Signature, "0x"))
		if err != nil || len(sig) != 65 {
			t.Fatalf("signature %q is not 65 hex bytes", signed.Signature)
		}
		if sig[64] != 27 && sig[64] != 28 {
			t.Errorf("v = %d, want 27 or 28", sig[64])
		}

		contract := CTFExchangeAddress
		if negRisk {
			contract = NegRiskExchangeAddress
		}
		structHash, err := orderStructHash(o)
		if err != nil {
			t.Fatalf("orderStructHash: %v", err)
		}
		digest := ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSeparator(PolygonChainID, contract), structHash))

		sig[64] -= 27
		pub, err := ethcrypto.SigToPub(digest, sig)
		if err != nil {
			t.Fatalf("SigToPub: %v", err)
		}
		if got := ethcrypto.PubkeyToAddress(*pub).Hex(); got != testAddress {
			t.Errorf("recovered %s, want %s (negRisk=%v)", got, testAddress, negRisk)
		}
	}
}

func TestSignOrderRejectsBadFields(t *testing.T) {
	s, _ := NewSigner(testKey, PolygonChainID)
	o := SignedOrder{TokenID: "abc", MakerAmount: "1", TakerAmount: "1", Expiration: "0", Nonce: "0", FeeRateBps: "0", Side: "BUY"}
	if err := s.SignOrder(&o, false); err == nil {
		t.Error("expected error for non-numeric token id")
	}
	o.TokenID = "1"
	o.Side = "HOLD"
	if err := s.SignOrder(&o, false); err == nil {
		t.Error("expected error for unknown side")
	}
}

func TestL2Headers(t *testing.T) {
	creds := testCreds()
	now := time.Unix(1700000000, 0)

	h := creds.L2Headers(testAddress, "POST", "/order", `{"a":1}`, now)
	if h["POLY_TIMESTAMP"] != "1700000000" || h["POLY_API_KEY"] != "key-1" ||
		h["POLY_PASSPHRASE"] != "pass" || h["POLY_ADDRESS"] != testAddress {
		t.Errorf("headers = %v", h)
	}

	mac := hmac.New(sha256.New, []byte("supersecret"))
	mac.Write([]byte(`1700000000POST/order{"a":1}`))
	want := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	if h["POLY_SIGNATURE"] != want {
		t.Errorf("signature = %s, want %s", h["POLY_SIGNATURE"], want)
	}

	other := creds.L2Headers(testAddress, "POST", "/order", `{"a":2}`, now)
	if other["POLY_SIGNATURE"] == h["POLY_SIGNATURE"] {
		t.Error("signature should depend on the body")
	}
}

func liveExecutor(t *testing.T, h http.HandlerFunc) *ClobExecutor {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	s, err := NewSigner(testKey, PolygonChainID)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	e, err := NewClobExecutor(ExecutorConfig{
		ClobBaseURL: srv.URL,
		Signer:      s,
		Credentials: testCreds(),
		HTTP:        api.NewRateLimitedClient(6000, 5*time.Second, api.RetryPolicy{MaxAttempts: 1}),
	})
	if err != nil {
		t.Fatalf("NewClobExecutor: %v", err)
	}
	return e
}

func TestExecutePostsSignedFOK(t *testing.T) {
	var got PostOrderRequest
	e := liveExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/order" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("POLY_API_KEY") != "key-1" || r.Header.Get("POLY_SIGNATURE") == "" {
			t.Errorf("missing L2 headers: %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad body: %v", err)
		}
		_, _ = w.Write([]byte(`{"success":true,"orderID":"0xabc","status":"matched"}`))
	})

	fill, err := e.Execute(t.Context(), Order{TokenID: "111", Side: SideBuy, Price: 0.45, Size: 23, Type: OrderTypeFOK})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fill.FilledSize != 23 || fill.OrderID != "0xabc" || fill.DryRun {
		t.Errorf("fill = %+v, want full fill of 23", fill)
	}

	if got.OrderType != OrderTypeFOK || got.Owner != "key-1" {
		t.Errorf("request = %+v", got)
	}
	o := got.Order
	if o.MakerAmount != "10350000" || o.TakerAmount != "23000000" {
		t.Errorf("amounts = maker %s taker %s, want 10350000/23000000", o.MakerAmount, o.TakerAmount)
	}
	if o.Side != "BUY" || o.TokenID != "111" || o.Maker != testAddress || o.Taker != zeroAddress {
		t.Errorf("order = %+v", o)
	}
	if !strings.HasPrefix(o.Signature, "0x") || len(o.Signature) != 132 {
		t.Errorf("signature = %q", o.Signature)
	}
	if o.Salt <= 0 {
		t.Errorf("salt = %d, want positive", o.Salt)
	}
}

func TestExecuteResponses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		filled    float64
		rejected  bool
		transient bool
	}{
		{"matched amount string", 200, `{"success":true,"status":"live","matchedAmount":"10"}`, 10, false, false},
		{"snake case amount", 200, `{"success":true,"matched_amount":7.5}`, 7.5, false, false},
		{"filled amount", 200, `{"success":true,"filledAmount":"23"}`, 23, false, false},
		{"not filled", 200, `{"success":true,"status":"unmatched"}`, 0, false, false},
		{"rejected", 200, `{"success":false,"errorMsg":"not enough balance / allowance"}`, 0, true, false},
		{"bad request", 400, `{"error":"invalid order"}`, 0, true, false},
		{"server error", 500, `oops`, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := liveExecutor(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			fill, err := e.Execute(t.Context(), Order{TokenID: "111", Price: 0.45, Size: 23})
			if tt.rejected {
				if !errors.Is(err, ErrOrderRejected) {
					t.Fatalf("err = %v, want ErrOrderRejected", err)
				}
				return
			}
			if tt.transient {
				if err == nil || errors.Is(err, ErrOrderRejected) {
					t.Fatalf("err = %v, want a non-rejection error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if math.Abs(fill.FilledSize-tt.filled) > 1e-9 {
				t.Errorf("FilledSize = %v, want %v", fill.FilledSize, tt.filled)
			}
		})
	}
}

func TestExecuteDryRun(t *testing.T) {
	e, err := NewClobExecutor(ExecutorConfig{DryRun: true})
	if err != nil {
		t.Fatalf("NewClobExecutor: %v", err)
	}

	fill, err := e.Execute(t.Context(), Order{TokenID: "111", Price: 0.45, Size: 23})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !fill.DryRun || fill.FilledSize != 23 || !strings.HasPrefix(fill.OrderID, "dry-run-") {
		t.Errorf("fill = %+v", fill)
	}
}

func TestExecuteValidatesOrder(t *testing.T) {
	e, _ := NewClobExecutor(ExecutorConfig{DryRun: true})
	for _, o := range []Order{
		{Price: 0.45, Size: 1},
		{TokenID: "1", Price: 1.2, Size: 1},
		{TokenID: "1", Price: 0.45, Size: 0},
	} {
		if _, err := e.Execute(t.Context(), o); !errors.Is(err, ErrOrderRejected) {
			t.Errorf("Execute(%+v) err = %v, want ErrOrderRejected", o, err)
		}
	}
}

func TestNewClobExecutorRequiresCredentials(t *testing.T) {
	if _, err := NewClobExecutor(ExecutorConfig{}); err == nil {
		t.Error("live executor without signer should fail")
	}
	s, _ := NewSigner(testKey, PolygonChainID)
	if _, err := NewClobExecutor(ExecutorConfig{Signer: s}); err == nil {
		t.Error("live executor without API credentials should fail")
	}
}

func TestGetBalance(t *testing.T) {
	e := liveExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/balance-allowance" || r.URL.Query().Get("asset_type") != "COLLATERAL" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`{"balance":"125500000","allowance":"0"}`))
	})

	bal, err := e.GetBalance(t.Context())
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if math.Abs(bal-125.5) > 1e-9 {
		t.Errorf("balance = %v, want 125.5", bal)
	}
}
