package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/exiloncms/exiloncms/internal/cache"
)

const revokedPrefix = "auth:revoked:"

// Revocations remembers logged-out token ids until the tokens expire.
type Revocations struct {
	store cache.Store
	now   func() time.Time
}

// NewRevocations builds a revocation list on top of the shared cache store.
func NewRevocations(store cache.Store) *Revocations {
	return &Revocations{store: store, now: time.Now}
}

// Revoke blocks the token described by claims for the rest of its lifetime.
func (r *Revocations) Revoke(ctx context.Context, claims *Claims) error {
	if r == nil || r.store == nil || claims == nil || claims.ID == "" {
		return nil
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if remaining := claims.ExpiresAt.Time.Sub(r.now()); remaining > 0 {
			ttl = remaining
		}
	}
	if err := r.store.Set(ctx, revokedPrefix+claims.ID, []byte("1"), ttl); err != nil {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID was revoked.
func (r *Revocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if r == nil || r.store == nil || tokenID == "" {
		return false, nil
	}
	_, ok, err := r.store.Get(ctx, revokedPrefix+tokenID)
	if err != nil {
		return false, fmt.Errorf("auth: check revocation: %w", err)
	}
	return ok, nil
}
