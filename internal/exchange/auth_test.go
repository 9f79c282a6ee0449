package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"
)

type decodedPayload struct {
	AccessKey    string `json:"access_key"`
	Nonce        string `json:"nonce"`
	QueryHash    string `json:"query_hash"`
	QueryHashAlg string `json:"query_hash_alg"`
}

func decodeToken(t *testing.T, token string) (parts []string, payload decodedPayload) {
	t.Helper()

	parts = strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 token parts, got %d", len(parts))
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return parts, payload
}

// ============================================================
// authToken
// ============================================================

func TestAuthToken_WithoutQuery(t *testing.T) {
	token, err := authToken("access", "secret", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parts, payload := decodeToken(t, token)

	if parts[0] != jwtHeader {
		t.Errorf("unexpected header segment: %s", parts[0])
	}
	if payload.AccessKey != "access" {
		t.Errorf("expected access_key 'access', got %s", payload.AccessKey)
	}
	if payload.Nonce == "" {
		t.Error("expected non-empty nonce")
	}
	if payload.QueryHash != "" || payload.QueryHashAlg != "" {
		t.Error("expected no query hash for empty query")
	}
}

func TestAuthToken_QueryHash(t *testing.T) {
	query := url.Values{}
	query.Set("market", "KRW-BTC")
	query.Set("side", "bid")
	encoded := query.Encode()

	token, err := authToken("access", "secret", encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, payload := decodeToken(t, token)

	sum := sha512.Sum512([]byte(encoded))
	expected := hex.EncodeToString(sum[:])

	if payload.QueryHash != expected {
		t.Errorf("query hash mismatch:\n got %s\nwant %s", payload.QueryHash, expected)
	}
	if payload.QueryHashAlg != "SHA512" {
		t.Errorf("expected query_hash_alg SHA512, got %s", payload.QueryHashAlg)
	}
}

func TestAuthToken_SignatureVerifies(t *testing.T) {
	const secret = "secret-key"

	token, err := authToken("access", secret, "uuid=abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parts, _ := decodeToken(t, token)

	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(parts[0] + "." + parts[1]))
	expected := base64.RawURLEncoding.EncodeToString(h.Sum(nil))

	if parts[2] != expected {
		t.Errorf("signature mismatch:\n got %s\nwant %s", parts[2], expected)
	}
}

func TestAuthToken_NonceUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		token, err := authToken("access", "secret", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, payload := decodeToken(t, token)
		if seen[payload.Nonce] {
			t.Fatalf("nonce %s repeated", payload.Nonce)
		}
		seen[payload.Nonce] = true
	}
}

func TestJWTHeaderConstant(t *testing.T) {
	raw, err := base64.RawURLEncoding.DecodeString(jwtHeader)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}

	var header struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}

	if header.Alg != "HS256" || header.Typ != "JWT" {
		t.Errorf("unexpected header: alg=%s typ=%s", header.Alg, header.Typ)
	}
}
