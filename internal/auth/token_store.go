package auth

import (
	"context"
	"time"

	"storefront/internal/cache"
)

const revokedTokenKeyPrefix = "revoked:access_token:"

// TokenDenyList records access tokens revoked before their expiry.
type TokenDenyList interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) bool
}

// TokenStore keeps revoked token ids in Redis until the token would have expired anyway.
type TokenStore struct {
	cache *cache.Client
}

// Ensure TokenStore implements TokenDenyList
var _ TokenDenyList = (*TokenStore)(nil)

// NewTokenStore creates a new token store. A nil cache disables revocation.
func NewTokenStore(cache *cache.Client) *TokenStore {
	return &TokenStore{cache: cache}
}

// Revoke adds a token id to the deny-list for ttl.
func (s *TokenStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.cache.Set(ctx, revokedTokenKeyPrefix+tokenID, []byte("1"), ttl)
}

// IsRevoked checks the deny-list. Redis failures read as not revoked.
func (s *TokenStore) IsRevoked(ctx context.Context, tokenID string) bool {
	if tokenID == "" {
		return false
	}
	return s.cache.Exists(ctx, revokedTokenKeyPrefix+tokenID)
}
