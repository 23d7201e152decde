package identity

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image/png"

	"github.com/pquerna/otp/totp"
)

// ErrInvalidMFACode is returned when a TOTP code fails validation.
var ErrInvalidMFACode = errors.New("identity: invalid MFA code")

// MFASetup holds the provisioning data returned by SetupMFA: the raw secret
// (short-lived, cached under mfa_setup_cache by the caller), the otpauth URI
// for manual entry, and a PNG-encoded QR code for scanning.
type MFASetup struct {
	Secret    string
	URI       string
	QRCodePNG []byte
}

// SetupMFA generates a new TOTP key for accountName under issuer and renders
// its QR code. The secret is not yet persisted; the caller must hold it
// (encrypted) in the short-TTL mfa_setup_cache until a first code checked
// with VerifyMFACode confirms it.
func SetupMFA(issuer, accountName string) (*MFASetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: issuer, AccountName: accountName})
	if err != nil {
		return nil, fmt.Errorf("generate TOTP key: %w", err)
	}

	img, err := key.Image(256, 256)
	if err != nil {
		return nil, fmt.Errorf("render TOTP QR code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode TOTP QR code: %w", err)
	}

	return &MFASetup{Secret: key.Secret(), URI: key.URL(), QRCodePNG: buf.Bytes()}, nil
}

// VerifyMFACode validates code against secret using the standard 30-second
// step with the library's default +/-1 step drift tolerance.
func VerifyMFACode(code, secret string) bool {
	return totp.Validate(code, secret)
}

const minMFAKeyLength = 32

// EncryptMFASecret seals secret with AES-256-GCM under hexKey (64 hex
// characters / 32 bytes), grounded on the same DMP1-adjacent AES-GCM shape
// used by the document store's snapshot cipher.
func EncryptMFASecret(secret, hexKey string) (string, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) < minMFAKeyLength {
		return "", fmt.Errorf("identity: MFA encryption key must be at least %d bytes of hex", minMFAKeyLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(secret), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptMFASecret reverses EncryptMFASecret.
func DecryptMFASecret(encoded, hexKey string) (string, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) < minMFAKeyLength {
		return "", fmt.Errorf("identity: MFA encryption key must be at least %d bytes of hex", minMFAKeyLength)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
