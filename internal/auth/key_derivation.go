package auth

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// DerivedKeyLength is the length of derived keys in bytes (32 bytes = 256 bits for HMAC-SHA256)
	DerivedKeyLength = 32

	// Key derivation purpose strings for HKDF
	purposeAPIJWT         = "trackline-api-jwt-v1"
	purposeWebhookSigning = "trackline-webhook-signing-v1"
)

// ErrInvalidMasterSecret is returned when the master secret is invalid
var ErrInvalidMasterSecret = errors.New("master secret cannot be empty")

// DeriveKey derives a cryptographic key from a master secret using
// HKDF-SHA256 (RFC 5869). Keys derived with different purpose strings are
// cryptographically independent, so compromise of the webhook signing key
// does not compromise the API token key or the master secret.
func DeriveKey(masterSecret []byte, purpose string) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, ErrInvalidMasterSecret
	}

	reader := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose))

	derived := make([]byte, DerivedKeyLength)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, err
	}

	return derived, nil
}

// DeriveAPIJWTKey derives the key used to verify API bearer tokens.
func DeriveAPIJWTKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeAPIJWT)
}

// DeriveWebhookSigningKey derives the key used to HMAC-sign outgoing
// webhook event deliveries.
func DeriveWebhookSigningKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeWebhookSigning)
}
