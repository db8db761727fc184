package entityrepo

import (
	"context"

	"go.uber.org/zap"

	"github.com/goliatone/go-repository-entity/cache"
	"github.com/goliatone/go-repository-entity/events"
)

// CacheInvalidator drops the cache entries of an entity namespace whenever
// an event about that namespace is handled. Subscribe it to a Dispatcher to
// keep repository caches consistent with mutations.
type CacheInvalidator struct {
	cache  cache.CacheService
	logger *zap.Logger
}

var _ events.Handler = (*CacheInvalidator)(nil)

func NewCacheInvalidator(svc cache.CacheService, logger *zap.Logger) *CacheInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheInvalidator{cache: svc, logger: logger.Named("invalidator")}
}

// Handle deletes every key under the event's entity namespace.
func (i *CacheInvalidator) Handle(ctx context.Context, evt events.Event) error {
	if i.cache == nil || evt.EntityType == "" {
		return nil
	}

	prefix := cache.Prefix(evt.EntityType)
	if err := i.cache.DeleteByPrefix(ctx, prefix); err != nil {
		i.logger.Warn("cache invalidation failed",
			zap.String("prefix", prefix),
			zap.String("kind", string(evt.Kind)),
			zap.Error(err),
		)
		return err
	}
	return nil
}
