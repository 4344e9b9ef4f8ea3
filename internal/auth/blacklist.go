package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "auth:blacklist:"

// Revoker records revoked token ids until the tokens would have expired.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Blacklist is a Redis-backed Revoker. Entries expire with the token they revoke.
type Blacklist struct {
	rdb redis.Cmdable
}

// NewBlacklist creates a token blacklist on rdb.
func NewBlacklist(rdb redis.Cmdable) *Blacklist {
	return &Blacklist{rdb: rdb}
}

// Revoke blacklists tokenID until expiresAt. Already expired tokens are ignored.
func (b *Blacklist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return b.rdb.Set(ctx, blacklistPrefix+tokenID, "1", ttl).Err()
}

// IsRevoked reports whether tokenID was blacklisted.
func (b *Blacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := b.rdb.Get(ctx, blacklistPrefix+tokenID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
