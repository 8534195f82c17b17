package auth

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/medrecord-api/internal/repository"
	"github.com/jwalitptl/medrecord-api/pkg/metrics"
)

// CacheConfig bounds the revocation cache.
type CacheConfig struct {
	// Capacity caps the number of cached answers, revoked or not.
	// Zero means unbounded.
	Capacity    int
	NegativeTTL time.Duration

	// CleanupInterval is how often expired entries are evicted.
	CleanupInterval time.Duration
}

// CachedRevocations fronts a revocation store with a process-local cache.
// A revoked entry is kept until the token would have expired anyway. A
// "not revoked" answer is kept for NegativeTTL only, which bounds how long a
// logout on another instance can go unnoticed here.
type CachedRevocations struct {
	store   repository.RevocationRepository
	cache   *cache.Cache
	cfg     CacheConfig
	metrics *metrics.Metrics
	now     func() time.Time
}

var _ repository.RevocationRepository = (*CachedRevocations)(nil)

func NewCachedRevocations(store repository.RevocationRepository, cfg CacheConfig, m *metrics.Metrics) *CachedRevocations {
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = 5 * time.Second
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	return &CachedRevocations{
		store:   store,
		cache:   cache.New(cfg.NegativeTTL, cfg.CleanupInterval),
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
	}
}

func (c *CachedRevocations) Revoke(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	if err := c.store.Revoke(ctx, tokenHash, expiresAt); err != nil {
		return err
	}
	if ttl := expiresAt.Sub(c.now()); ttl > 0 && c.admits(tokenHash) {
		c.cache.Set(tokenHash, true, ttl)
	} else {
		c.cache.Delete(tokenHash)
	}
	return nil
}

func (c *CachedRevocations) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	if v, ok := c.cache.Get(tokenHash); ok {
		revoked := v.(bool)
		c.metrics.RevocationLookups.WithLabelValues("cache", result(revoked)).Inc()
		return revoked, nil
	}

	revoked, err := c.store.IsRevoked(ctx, tokenHash)
	if err != nil {
		c.metrics.RevocationLookups.WithLabelValues("store", "error").Inc()
		return false, err
	}
	c.metrics.RevocationLookups.WithLabelValues("store", result(revoked)).Inc()

	// token expiry is unknown here, so revoked answers also use the default TTL
	if c.admits(tokenHash) {
		c.cache.Set(tokenHash, revoked, cache.DefaultExpiration)
	}
	return revoked, nil
}

// admits reports whether key may be stored without exceeding Capacity.
// Replacing an existing key never grows the cache.
func (c *CachedRevocations) admits(key string) bool {
	if c.cfg.Capacity <= 0 {
		return true
	}
	if _, ok := c.cache.Get(key); ok {
		return true
	}
	return c.cache.ItemCount() < c.cfg.Capacity
}

// PurgeExpired delegates to the store. The cache expires entries by itself.
func (c *CachedRevocations) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return c.store.PurgeExpired(ctx, now)
}

func result(revoked bool) string {
	if revoked {
		return "revoked"
	}
	return "clear"
}
