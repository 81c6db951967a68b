package tokenstore

import (
	"context"
	"errors"
	"time"
)

// Lifetime is the ceiling after which a stored refresh token is no longer
// trusted (91.3 days).
const Lifetime = 7_889_400_000 * time.Millisecond

// ErrNotFound is returned by Read when no refresh token has been stored yet.
var ErrNotFound = errors.New("refresh token not found")

// RefreshToken is the durable credential record.
type RefreshToken struct {
	Value    string    `json:"token"`
	IssuedAt time.Time `json:"date"`
}

// Expired reports whether the token has reached Lifetime at the given instant.
func (t RefreshToken) Expired(now time.Time) bool {
	return now.Sub(t.IssuedAt) >= Lifetime
}

// ExpiresAt returns the instant the token reaches Lifetime.
func (t RefreshToken) ExpiresAt() time.Time {
	return t.IssuedAt.Add(Lifetime)
}

// TokenStore reads and writes the single refresh token record.
type TokenStore interface {
	// Read returns the stored token. Returns ErrNotFound if nothing was stored.
	Read(ctx context.Context) (RefreshToken, error)

	// Write replaces the stored token, creating the record if absent.
	Write(ctx context.Context, token RefreshToken) error
}
