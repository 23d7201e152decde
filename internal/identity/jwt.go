package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers every token verification failure (bad signature,
// expired, revoked, algorithm mismatch) so callers can respond uniformly
// without leaking which check tripped.
var ErrInvalidToken = errors.New("identity: invalid token")

// Claims is the access token's claim set: standard registered claims plus
// the capability flags copied from the user's role at mint time.
type Claims struct {
	jwt.RegisteredClaims
	Accesses map[string]bool `json:"accesses"`
}

// MintResult is returned by Mint: the signed access token and its paired
// CSRF token, which shares the same subject and jti.
type MintResult struct {
	AccessToken string
	CSRFToken   string
	JTI         string
	ExpiresAt   time.Time
}

// Minter mints and verifies access tokens. Signing is always HS256 (the
// gateway mints its own tokens); verification additionally accepts RS256
// tokens issued by an upstream IdP when EnableJWKS has been called, per
// spec.md §4.4's "two algorithms... configurable by key".
type Minter struct {
	secretKey string
	keys      map[string]string
	issuer    string
	ttl       time.Duration
	jwks      *jwksCache
}

// NewMinter builds a Minter from the gateway's identity configuration. When
// multiple keys are configured (JWTKeys, kid -> secret), the first key by
// iteration becomes the signing key and verification accepts any of them by
// "kid" header, matching a rotating-secret deployment; with none configured
// JWTSecretKey alone is used.
func NewMinter(secretKey string, keys map[string]string, issuer string, ttl time.Duration) *Minter {
	return &Minter{secretKey: secretKey, keys: keys, issuer: issuer, ttl: ttl}
}

// EnableJWKS turns on RS256 verification against an upstream IdP's JWKS
// endpoint (JWKS_URL / JWKS_CACHE_TTL), in addition to the gateway's own
// HS256-signed tokens. A zero url is a no-op, so callers can invoke this
// unconditionally with the loaded config.
func (m *Minter) EnableJWKS(url string, cacheTTL time.Duration) {
	if url == "" {
		return
	}
	m.jwks = newJWKSCache(url, cacheTTL)
}

func (m *Minter) signingKeyID() (kid, secret string) {
	for k, v := range m.keys {
		return k, v
	}
	return "", m.secretKey
}

// Mint issues a new access token for username, embedding accesses as the
// capability map and returning a CSRF token with the same subject and jti.
func (m *Minter) Mint(username string, accesses map[string]bool) (*MintResult, error) {
	kid, secret := m.signingKeyID()
	if secret == "" {
		return nil, fmt.Errorf("identity: no signing key configured")
	}

	now := time.Now()
	expiresAt := now.Add(m.ttl)
	jti := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
		Accesses: accesses,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	csrf, err := newCSRFToken(username, jti)
	if err != nil {
		return nil, err
	}

	return &MintResult{AccessToken: signed, CSRFToken: csrf, JTI: jti, ExpiresAt: expiresAt}, nil
}

// Verify parses and validates tokenStr, pinning the signing method to the
// explicit allow-list {HS256, RS256} and rejecting "none" or an algorithm
// switch. HS256 tokens are verified against the gateway's own secret(s);
// RS256 tokens (from an upstream IdP) are verified against the cached JWKS
// key matching the token's "kid", when EnableJWKS has configured one. revoked
// is consulted for both the token's jti and its subject; a revoked token is
// treated identically to an invalid signature.
func (m *Minter) Verify(tokenStr string, revoked func(username, jti string) bool) (*Claims, error) {
	claims := &Claims{}

	var parserOpts []jwt.ParserOption
	parserOpts = append(parserOpts, jwt.WithValidMethods([]string{"HS256", "RS256"}))
	if m.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			kid, _ := t.Header["kid"].(string)
			if kid != "" {
				if secret, ok := m.keys[kid]; ok {
					return []byte(secret), nil
				}
				return nil, fmt.Errorf("unknown key id: %s", kid)
			}
			return []byte(m.secretKey), nil
		case *jwt.SigningMethodRSA:
			if m.jwks == nil {
				return nil, fmt.Errorf("identity: RS256 token received but no JWKS source is configured")
			}
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, fmt.Errorf("identity: RS256 token is missing a kid header")
			}
			return m.jwks.publicKey(kid)
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
	}, parserOpts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if revoked != nil && revoked(claims.Subject, claims.ID) {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
