package denylist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "qb:denylist:"

// Redis shares the denylist across server instances. Keys expire with the token.
type Redis struct {
	client redis.Cmdable
	prefix string
}

// NewRedis wraps an existing client; the caller owns its lifecycle.
func NewRedis(client redis.Cmdable, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// Dial connects to addr and verifies it with PING.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("denylist: redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("denylist: redis ping: %w", err)
	}
	return client, nil
}

func (r *Redis) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return ErrEmptyID
	}
	if ttl <= 0 {
		return nil
	}
	// SetNX keeps the first expiry; the token cannot outlive it anyway.
	return r.client.SetNX(ctx, r.prefix+tokenID, 1, ttl).Err()
}

func (r *Redis) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("denylist: exists: %w", err)
	}
	return n > 0, nil
}
