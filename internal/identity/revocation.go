package identity

import (
	"context"
	"time"

	"github.com/cedros-gateway/gateway/internal/cache"
)

const (
	revocationNamespaceJTI  = "revoked_jti"
	revocationNamespaceUser = "revoked_user"
)

// RevocationIndex tracks revoked token IDs and revoked users on top of the
// Policy Cache, so a single distributed cache (Redis) shares revocation
// state across gateway replicas when configured, or an in-process map when
// running standalone.
type RevocationIndex struct {
	cache cache.Cache
}

// NewRevocationIndex builds a RevocationIndex over c.
func NewRevocationIndex(c cache.Cache) *RevocationIndex {
	return &RevocationIndex{cache: c}
}

// RevokeJTI marks a single token ID as revoked for the remainder of its
// natural lifetime (ttl should be the token's remaining time-to-live).
func (r *RevocationIndex) RevokeJTI(ctx context.Context, jti string, ttl time.Duration) error {
	return r.cache.Set(ctx, revocationNamespaceJTI, jti, []byte{1}, ttl)
}

// RevokeUser marks every token issued to username as revoked, regardless of
// jti, until the entry expires (ttl should be at least the access token TTL
// so no token minted before the revocation can outlive it).
func (r *RevocationIndex) RevokeUser(ctx context.Context, username string, ttl time.Duration) error {
	return r.cache.Set(ctx, revocationNamespaceUser, username, []byte{1}, ttl)
}

// IsRevoked reports whether either the token's jti or its subject has been
// revoked. Cache errors are treated as "not revoked" so a transient cache
// outage fails open on verification rather than locking every session out;
// the Minter's signature/expiry checks still gate access independently.
func (r *RevocationIndex) IsRevoked(ctx context.Context, username, jti string) bool {
	if _, ok, _ := r.cache.Get(ctx, revocationNamespaceJTI, jti); ok {
		return true
	}
	if _, ok, _ := r.cache.Get(ctx, revocationNamespaceUser, username); ok {
		return true
	}
	return false
}
