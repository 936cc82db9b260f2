package venue

import (
	"testing"
)

func TestSigner_GenerateHeaders(t *testing.T) {
	signer := NewSigner("key", "secret")

	headers := signer.GenerateHeaders("POST", "/api/v1/trade/place-order", "", "{\"symbol\":\"ATOM_USDT\"}")

	if headers["ACCESS-KEY"] != "key" {
		t.Errorf("Expected ACCESS-KEY to be 'key', got %s", headers["ACCESS-KEY"])
	}
	if headers["ACCESS-SIGN"] == "" {
		t.Error("ACCESS-SIGN should not be empty")
	}
	if len(headers["ACCESS-TIMESTAMP"]) != 13 { // Milliseconds
		t.Errorf("Expected timestamp len 13, got %s", headers["ACCESS-TIMESTAMP"])
	}
	if headers["Content-Type"] != "application/json" {
		t.Errorf("Expected JSON content type, got %s", headers["Content-Type"])
	}
}

func TestSigner_QueryInPayload(t *testing.T) {
	// The query string is part of the signed payload.
	without := computeHmacSha256("1600000000000GET/api/v1/market/depth", "secret")
	with := computeHmacSha256("1600000000000GET/api/v1/market/depth?symbol=ATOM_USDT", "secret")

	if without == with {
		t.Error("signature must change when a query string is present")
	}
}

func TestComputeHmacSha256(t *testing.T) {
	// Standard HMAC-SHA256 Test Vector
	key := "key"
	data := "The quick brown fox jumps over the lazy dog"
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	// Hex: f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8
	// Base64: 97yD9DBThCSxMpjmqm+xQ+9NWaFJRhdZl0edvC0aPNg=

	expected := "97yD9DBThCSxMpjmqm+xQ+9NWaFJRhdZl0edvC0aPNg="
	result := computeHmacSha256(data, key)

	if result != expected {
		t.Errorf("HMAC Mismatch. Expected %s, got %s", expected, result)
	}
}
