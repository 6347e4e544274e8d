package polymarket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Credentials are the CLOB L2 API credentials. Secret is base64.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// Valid reports whether every field is set.
func (c Credentials) Valid() bool {
	return c.APIKey != "" && c.Secret != "" && c.Passphrase != ""
}

// L2Headers signs one request: base64(HMAC-SHA256(secret, ts+method+path+body)).
func (c Credentials) L2Headers(address, method, path, body string, now time.Time) map[string]string {
	ts := strconv.FormatInt(now.Unix(), 10)

	secret, err := base64.URLEncoding.DecodeString(c.Secret)
	if err != nil {
		secret, err = base64.StdEncoding.DecodeString(c.Secret)
		if err != nil {
			secret = []byte(c.Secret)
		}
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + method + path + body))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    c.APIKey,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": c.Passphrase,
		"POLY_SIGNATURE":  sig,
	}
}
