package entityrepo

import (
	"go.uber.org/zap"

	"github.com/goliatone/go-repository-entity/cache"
	"github.com/goliatone/go-repository-entity/entity"
	"github.com/goliatone/go-repository-entity/events"
)

type config struct {
	cache         cache.CacheService
	serializer    cache.KeySerializer
	publisher     events.Publisher
	logger        *zap.Logger
	namespace     string
	deletedColumn string
}

func defaultConfig() config {
	return config{
		logger:        zap.NewNop(),
		deletedColumn: entity.DeletedColumn,
	}
}

// Option configures a Repository.
type Option func(*config)

// WithCache enables read-through caching. A nil serializer falls back to
// cache.NewDefaultKeySerializer.
func WithCache(svc cache.CacheService, serializer cache.KeySerializer) Option {
	return func(c *config) {
		c.cache = svc
		c.serializer = serializer
	}
}

// WithPublisher sets where mutation events go.
func WithPublisher(p events.Publisher) Option {
	return func(c *config) {
		c.publisher = p
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNamespace overrides the namespace derived from the entity type name.
func WithNamespace(namespace string) Option {
	return func(c *config) {
		if namespace != "" {
			c.namespace = namespace
		}
	}
}

// WithDeletedColumn names the column backing the soft delete flag.
func WithDeletedColumn(column string) Option {
	return func(c *config) {
		if column != "" {
			c.deletedColumn = column
		}
	}
}

type queryOptions struct {
	includeDeleted bool
}

// QueryOption adjusts a single listing call.
type QueryOption func(*queryOptions)

// IncludeDeleted returns soft deleted rows too.
func IncludeDeleted() QueryOption {
	return func(o *queryOptions) {
		o.includeDeleted = true
	}
}

func applyQueryOptions(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
