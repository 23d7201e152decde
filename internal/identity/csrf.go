package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// newCSRFToken derives a token bound to the same subject and jti as the
// access token it is paired with, so a CSRF token minted for one session
// can never be replayed alongside another session's access token.
func newCSRFToken(username, jti string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("identity: generate csrf nonce: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(jti))
	mac.Write([]byte(username))
	mac.Write(nonce)
	sum := mac.Sum(nil)

	return base64.RawURLEncoding.EncodeToString(append(nonce, sum...)), nil
}

// VerifyCSRFToken reports whether csrfToken was minted alongside a token
// with the given username and jti.
func VerifyCSRFToken(csrfToken, username, jti string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(csrfToken)
	if err != nil || len(raw) <= 16 {
		return false
	}
	nonce, sum := raw[:16], raw[16:]

	mac := hmac.New(sha256.New, []byte(jti))
	mac.Write([]byte(username))
	mac.Write(nonce)
	expected := mac.Sum(nil)

	return hmac.Equal(sum, expected)
}
