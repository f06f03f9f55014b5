package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned for any failed API key authentication. The
// cause is deliberately not distinguished to the caller.
var ErrUnauthorized = errors.New("unauthorized")

// KeyInfo holds the identity data for a validated API key.
type KeyInfo struct {
	ID      string
	UserID  string
	KeyHash string
	Name    string
}

// KeyRepository provides lookup of API keys by their HMAC-SHA256 hash.
type KeyRepository interface {
	FindByHash(ctx context.Context, hash string) (*KeyInfo, error)
}

// Authenticator validates raw API keys against peppered HMAC-SHA256 hashes.
type Authenticator struct {
	keys   KeyRepository
	pepper []byte
}

// NewAuthenticator returns an Authenticator using the given repository and
// HMAC pepper.
func NewAuthenticator(keys KeyRepository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// HashKey computes the peppered HMAC-SHA256 hex digest of a raw key.
func HashKey(pepper []byte, rawKey string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(rawKey))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate resolves a raw API key to the owning user id. The stored hash
// is compared in constant time to guard against timing side-channels even
// though the lookup already succeeded.
func (a *Authenticator) Authenticate(ctx context.Context, rawKey string) (string, error) {
	hash := HashKey(a.pepper, rawKey)

	info, err := a.keys.FindByHash(ctx, hash)
	if err != nil {
		return "", ErrUnauthorized
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return "", ErrUnauthorized
	}
	computed, err := hex.DecodeString(hash)
	if err != nil {
		return "", ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return "", ErrUnauthorized
	}

	return info.UserID, nil
}
