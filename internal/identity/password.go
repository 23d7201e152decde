// Package identity implements Identity & Session (C4): JWT mint/verify with
// an embedded capability map, Argon2id password hashing, TOTP-based MFA, CSRF
// pairing, and a jti/user revocation index, grounded throughout on
// uncord-chat-uncord-server's internal/auth package.
package identity

import (
	"fmt"

	"github.com/alexedwards/argon2id"

	"github.com/cedros-gateway/gateway/internal/config"
)

// HashPassword hashes password with the gateway's configured Argon2id
// parameters.
func HashPassword(password string, cfg config.IdentityConfig) (string, error) {
	params := &argon2id.Params{
		Memory:      cfg.ArgonMemory,
		Iterations:  cfg.ArgonIterations,
		Parallelism: cfg.ArgonParallelism,
		SaltLength:  cfg.ArgonSaltLength,
		KeyLength:   cfg.ArgonKeyLength,
	}
	hash, err := argon2id.CreateHash(password, params)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// VerifyPassword reports whether password matches hash. A login failure
// here must never distinguish "wrong password" from "unknown username" to
// the caller; that distinction is collapsed one level up in the login
// operation, which always returns the same error regardless of which check
// failed.
func VerifyPassword(password, hash string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("verify password: %w", err)
	}
	return match, nil
}
