// util/cache_service.go

package util

import (
	"context"
	"time"

	"github.com/dev-mohitbeniwal/archive-gateway/archive"
	"github.com/dev-mohitbeniwal/archive-gateway/db"
)

// CacheService exposes the Redis backed caches to the rest of the gateway.
type CacheService struct{}

var _ archive.NameCache = (*CacheService)(nil)

func NewCacheService() *CacheService {
	return &CacheService{}
}

func (c *CacheService) GetArchiveName(ctx context.Context, name string) (string, bool, error) {
	return db.GetCachedArchiveName(ctx, name)
}

func (c *CacheService) SetArchiveName(ctx context.Context, name, key string, ttl time.Duration) error {
	return db.CacheArchiveName(ctx, name, key, ttl)
}

