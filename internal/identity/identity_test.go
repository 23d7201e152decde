package identity

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/cedros-gateway/gateway/internal/cache"
)

func TestHashAndVerifyPassword(t *testing.T) {
	cfg := testIdentityConfig()

	hash, err := HashPassword("correct horse battery staple", cfg)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	ok, err := VerifyPassword("correct horse battery staple", hash)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Fatal("expected password to verify")
	}

	ok, err = VerifyPassword("wrong password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password to fail verification")
	}
}

func TestMinter_MintAndVerifyRoundtrip(t *testing.T) {
	m := NewMinter("top-secret-signing-key", nil, "cedros-gateway", time.Hour)

	result, err := m.Mint("alice", map[string]bool{"billing": true})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if result.AccessToken == "" || result.CSRFToken == "" || result.JTI == "" {
		t.Fatal("expected non-empty mint result fields")
	}

	claims, err := m.Verify(result.AccessToken, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("subject = %q, want alice", claims.Subject)
	}
	if !claims.Accesses["billing"] {
		t.Fatal("expected billing access to be true")
	}

	if !VerifyCSRFToken(result.CSRFToken, "alice", result.JTI) {
		t.Fatal("expected CSRF token to verify against its own mint")
	}
	if VerifyCSRFToken(result.CSRFToken, "bob", result.JTI) {
		t.Fatal("expected CSRF token to fail for a different subject")
	}
}

func TestMinter_Verify_RejectsTamperedToken(t *testing.T) {
	m := NewMinter("top-secret-signing-key", nil, "cedros-gateway", time.Hour)
	result, err := m.Mint("alice", nil)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	tampered := result.AccessToken[:len(result.AccessToken)-1] + "x"
	if _, err := m.Verify(tampered, nil); err != ErrInvalidToken {
		t.Fatalf("Verify(tampered) = %v, want ErrInvalidToken", err)
	}
}

func TestMinter_Verify_HonorsRevocationCallback(t *testing.T) {
	m := NewMinter("top-secret-signing-key", nil, "cedros-gateway", time.Hour)
	result, err := m.Mint("alice", nil)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	revoked := func(username, jti string) bool { return jti == result.JTI }
	if _, err := m.Verify(result.AccessToken, revoked); err != ErrInvalidToken {
		t.Fatalf("Verify with revoked jti = %v, want ErrInvalidToken", err)
	}
}

func TestMinter_MultiKeyRotation(t *testing.T) {
	keys := map[string]string{"key-2024": "rotated-signing-key"}
	m := NewMinter("", keys, "cedros-gateway", time.Hour)

	result, err := m.Mint("alice", nil)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	claims, err := m.Verify(result.AccessToken, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("subject = %q, want alice", claims.Subject)
	}
}

func TestRevocationIndex_RevokeJTIAndUser(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	idx := NewRevocationIndex(c)
	ctx := context.Background()

	if idx.IsRevoked(ctx, "alice", "jti-1") {
		t.Fatal("expected unrevoked token to report false")
	}

	if err := idx.RevokeJTI(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("RevokeJTI: %v", err)
	}
	if !idx.IsRevoked(ctx, "alice", "jti-1") {
		t.Fatal("expected revoked jti to report true")
	}
	if idx.IsRevoked(ctx, "alice", "jti-2") {
		t.Fatal("expected a different jti to remain unrevoked")
	}

	if err := idx.RevokeUser(ctx, "bob", time.Minute); err != nil {
		t.Fatalf("RevokeUser: %v", err)
	}
	if !idx.IsRevoked(ctx, "bob", "any-jti") {
		t.Fatal("expected every token for a revoked user to report true")
	}
}

func TestSetupMFA_GeneratesValidatableSecret(t *testing.T) {
	setup, err := SetupMFA("cedros-gateway", "alice")
	if err != nil {
		t.Fatalf("SetupMFA: %v", err)
	}
	if setup.Secret == "" || setup.URI == "" || len(setup.QRCodePNG) == 0 {
		t.Fatal("expected non-empty secret, URI, and QR code")
	}

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if !VerifyMFACode(code, setup.Secret) {
		t.Fatal("expected freshly generated TOTP code to verify")
	}
	if VerifyMFACode("000000", setup.Secret) {
		t.Fatal("expected an arbitrary code to fail verification with overwhelming probability")
	}
}

func TestEncryptDecryptMFASecretRoundtrip(t *testing.T) {
	key := "a3f1c9d7e5b4a2f6c8d0e1b3a5f7c9d1e3b5a7f9c1d3e5b7a9f1c3d5e7b9a1f3"
	secret := "JBSWY3DPEHPK3PXP"

	sealed, err := EncryptMFASecret(secret, key)
	if err != nil {
		t.Fatalf("EncryptMFASecret: %v", err)
	}
	if sealed == secret {
		t.Fatal("expected ciphertext to differ from plaintext")
	}

	opened, err := DecryptMFASecret(sealed, key)
	if err != nil {
		t.Fatalf("DecryptMFASecret: %v", err)
	}
	if opened != secret {
		t.Fatalf("opened = %q, want %q", opened, secret)
	}
}

func TestEncryptMFASecret_RejectsShortKey(t *testing.T) {
	if _, err := EncryptMFASecret("secret", "abcd"); err == nil {
		t.Fatal("expected short key to be rejected")
	}
}
