package venue

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// Signer handles venue API authentication signatures
type Signer struct {
	accessKey string
	secretKey string
}

// NewSigner creates a new Signer instance
func NewSigner(accessKey, secretKey string) *Signer {
	return &Signer{
		accessKey: accessKey,
		secretKey: secretKey,
	}
}

// GenerateHeaders creates the auth headers for a request.
// method: GET, POST, etc.
// path: /api/v1/trade/place-order (no host)
// query: param=1&test=2 (empty if none)
// body: json string (empty if none)
//
// String to sign: timestamp + method + path[?query] + body,
// HMAC-SHA256 over the secret, base64 encoded.
func (s *Signer) GenerateHeaders(method, path, query, body string) map[string]string {
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())

	fullPath := path
	if query != "" {
		fullPath = path + "?" + query
	}

	payload := timestamp + method + fullPath + body
	sign := computeHmacSha256(payload, s.secretKey)

	return map[string]string{
		"ACCESS-KEY":       s.accessKey,
		"ACCESS-SIGN":      sign,
		"ACCESS-TIMESTAMP": timestamp,
		"Content-Type":     "application/json",
	}
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
