package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vetclinic/backend/internal/domain/billing"
	"go.uber.org/zap"
)

// CachedCatalogLookup is a read-through Redis cache in front of a
// billing.CatalogLookup. Redis failures fall back to the wrapped lookup;
// only the wrapped lookup can report the catalog as unavailable.
type CachedCatalogLookup struct {
	next   billing.CatalogLookup
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedCatalogLookup wraps next with a cache holding records for ttl
func NewCachedCatalogLookup(next billing.CatalogLookup, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedCatalogLookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCatalogLookup{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func catalogCacheKey(kind string, id uuid.UUID) string {
	return fmt.Sprintf("catalog:%s:%s", kind, id.String())
}

// GetService returns the service from cache or the wrapped lookup
func (c *CachedCatalogLookup) GetService(ctx context.Context, id uuid.UUID) (*billing.CatalogRecord, error) {
	return c.get(ctx, "service", id, c.next.GetService)
}

// GetProduct returns the product from cache or the wrapped lookup
func (c *CachedCatalogLookup) GetProduct(ctx context.Context, id uuid.UUID) (*billing.CatalogRecord, error) {
	return c.get(ctx, "product", id, c.next.GetProduct)
}

func (c *CachedCatalogLookup) get(
	ctx context.Context,
	kind string,
	id uuid.UUID,
	load func(context.Context, uuid.UUID) (*billing.CatalogRecord, error),
) (*billing.CatalogRecord, error) {
	key := catalogCacheKey(kind, id)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var record billing.CatalogRecord
		if jsonErr := json.Unmarshal(data, &record); jsonErr == nil {
			return &record, nil
		}
		c.logger.Warn("Discarding unreadable catalog cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
	}

	record, err := load(ctx, id)
	if err != nil || record == nil {
		return record, err
	}

	if data, err := json.Marshal(record); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return record, nil
}

// Invalidate drops a cached record
func (c *CachedCatalogLookup) Invalidate(ctx context.Context, kind string, id uuid.UUID) error {
	return c.client.Del(ctx, catalogCacheKey(kind, id)).Err()
}

var _ billing.CatalogLookup = (*CachedCatalogLookup)(nil)
