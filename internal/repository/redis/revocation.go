// Package redis stores revoked tokens in Redis with native key expiry.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/medrecord-api/internal/repository"
	"github.com/jwalitptl/medrecord-api/pkg/circuitbreaker"
)

const keyPrefix = "medrec:revoked:"

type Config struct {
	URL          string
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
}

// NewClient parses the URL, applies pool settings and pings the server.
func NewClient(ctx context.Context, config Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pooling
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

type revocationRepository struct {
	client redis.Cmdable
	cb     *circuitbreaker.CircuitBreaker
	now    func() time.Time
}

func NewRevocationRepository(client redis.Cmdable) repository.RevocationRepository {
	return &revocationRepository{
		client: client,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-revocations",
			MaxFailures: 5,
			Timeout:     5 * time.Second,
		}),
		now: time.Now,
	}
}

// Revoke stores the digest until the token's own expiry. Already expired
// tokens are rejected by signature checks, so nothing is written for them.
func (r *revocationRepository) Revoke(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	if !expiresAt.After(r.now()) {
		return nil
	}
	return r.cb.Execute(func() error {
		if err := r.client.SetArgs(ctx, keyPrefix+tokenHash, 1, redis.SetArgs{ExpireAt: expiresAt}).Err(); err != nil {
			return fmt.Errorf("failed to revoke token: %w", err)
		}
		return nil
	})
}

// IsRevoked fails closed: a Redis error is returned, never read as "not revoked".
func (r *revocationRepository) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	var n int64
	err := r.cb.Execute(func() error {
		var err error
		n, err = r.client.Exists(ctx, keyPrefix+tokenHash).Result()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}

// PurgeExpired is a no-op: Redis expires keys on its own.
func (r *revocationRepository) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
