// Package di wires the database, cache, event and metrics components that
// entity repositories are built from.
package di

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hashicorp/go-multierror"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	"github.com/goliatone/go-repository-entity/cache"
	"github.com/goliatone/go-repository-entity/entity"
	"github.com/goliatone/go-repository-entity/entityrepo"
	"github.com/goliatone/go-repository-entity/events"
	"github.com/goliatone/go-repository-entity/events/redispub"
	"github.com/goliatone/go-repository-entity/pkg/config"
	"github.com/goliatone/go-repository-entity/pkg/metrics"
	"github.com/goliatone/go-repository-entity/table"
)

// Container owns the singletons repositories share: one database handle,
// one cache with its key serializer and one event pipeline. Cache entries
// are invalidated by namespace whenever a repository publishes an event.
type Container struct {
	config     config.Config
	logger     *zap.Logger
	registerer prometheus.Registerer

	db         *bun.DB
	ownsDB     bool
	cache      cache.CacheService
	serializer cache.KeySerializer
	dispatcher *events.Dispatcher
	publisher  events.Publisher
	metrics    *metrics.Metrics
	redis      redis.UniversalClient
	ownsRedis  bool
	remote     *redispub.Publisher
}

// Option customizes a Container.
type Option func(*Container)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegisterer registers metrics with reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Container) {
		c.registerer = reg
	}
}

// WithDB uses db instead of opening one from the database config. The
// container does not close it.
func WithDB(db *bun.DB) Option {
	return func(c *Container) {
		c.db = db
	}
}

// WithRedisClient publishes events through client instead of one dialed
// from the events config. The container does not close it.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(c *Container) {
		c.redis = client
	}
}

// NewContainer validates cfg and builds every component it describes.
func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("di: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("di: invalid config: %w", err)
	}

	c := &Container{
		config:     *cfg,
		logger:     zap.NewNop(),
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.init(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDefaults builds a container over an in-memory SQLite
// database with default settings.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(config.Default(), opts...)
}

func (c *Container) init() error {
	if c.config.Metrics.Enabled {
		m, err := metrics.New(c.registerer)
		if err != nil {
			return fmt.Errorf("di: metrics: %w", err)
		}
		c.metrics = m
	}

	if c.db == nil {
		db, err := OpenDB(c.config.Database, c.logger)
		if err != nil {
			return err
		}
		c.db = db
		c.ownsDB = true
	}

	svc, err := cache.NewCacheService(c.config.Cache)
	if err != nil {
		return fmt.Errorf("di: cache: %w", err)
	}
	if c.metrics != nil {
		svc = c.metrics.Cache(svc)
	}
	c.cache = svc
	c.serializer = c.config.Cache.NewKeySerializer()

	c.dispatcher = events.NewDispatcher(c.logger)
	c.dispatcher.Subscribe(events.AllEntities, entityrepo.NewCacheInvalidator(c.cache, c.logger))

	var publisher events.Publisher = c.dispatcher
	if c.redis == nil && c.config.Events.RedisURL != "" {
		opts, err := redis.ParseURL(c.config.Events.RedisURL)
		if err != nil {
			return fmt.Errorf("di: redis url: %w", err)
		}
		c.redis = redis.NewClient(opts)
		c.ownsRedis = true
	}
	if c.redis != nil {
		c.remote = redispub.New(c.redis,
			redispub.WithPrefix(c.config.Events.ChannelPrefix),
			redispub.WithLogger(c.logger),
		)
		publisher = events.Multi{c.dispatcher, c.remote}
	}
	if c.metrics != nil {
		publisher = c.metrics.Publisher(publisher)
	}
	c.publisher = publisher

	return nil
}

// OpenDB opens the configured database and attaches the zap query logger.
func OpenDB(cfg config.DatabaseConfig, logger *zap.Logger) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch cfg.Driver {
	case config.DriverSQLite:
		if sqldb, err = sql.Open("sqlite3", cfg.DSN); err != nil {
			return nil, fmt.Errorf("di: open sqlite: %w", err)
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case config.DriverPostgres:
		if sqldb, err = sql.Open("postgres", cfg.DSN); err != nil {
			return nil, fmt.Errorf("di: open postgres: %w", err)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("di: unsupported database driver %q", cfg.Driver)
	}

	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.AddQueryHook(table.NewQueryLogger(logger, cfg.SlowQuery))

	return db, nil
}

func (c *Container) DB() *bun.DB {
	return c.db
}

// CacheService returns the shared cache, instrumented when metrics are on.
func (c *Container) CacheService() cache.CacheService {
	return c.cache
}

func (c *Container) KeySerializer() cache.KeySerializer {
	return c.serializer
}

// Dispatcher returns the in-process event dispatcher. Subscribe handlers to
// it to react to mutations made through the container's repositories.
func (c *Container) Dispatcher() *events.Dispatcher {
	return c.dispatcher
}

// Publisher returns what repositories publish to: the dispatcher, fanned out
// to Redis when configured.
func (c *Container) Publisher() events.Publisher {
	return c.publisher
}

// Metrics returns nil when metrics are disabled.
func (c *Container) Metrics() *metrics.Metrics {
	return c.metrics
}

func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns a copy of the configuration the container was built from.
func (c *Container) Config() config.Config {
	return c.config
}

// CreateTables creates the tables of models unless they exist.
func (c *Container) CreateTables(ctx context.Context, models ...any) error {
	return table.CreateTables(ctx, c.db, models...)
}

// ListenRemote drops local cache entries for events published by other
// processes until ctx is done. Without Redis it returns immediately.
func (c *Container) ListenRemote(ctx context.Context) error {
	if c.remote == nil {
		return nil
	}
	return c.remote.Listen(ctx, entityrepo.NewCacheInvalidator(c.cache, c.logger))
}

// Close releases the Redis client and the database the container opened.
func (c *Container) Close() error {
	var result *multierror.Error
	if c.redis != nil && c.ownsRedis {
		if err := c.redis.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if c.db != nil && c.ownsDB {
		if err := c.db.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// NewRepository builds a repository for T sharing the container's cache and
// event pipeline. opts are applied after the container defaults.
//
// Since Go methods cannot have type parameters, this is a package-level function.
func NewRepository[T entity.Entity](c *Container, opts ...entityrepo.Option) *entityrepo.Repository[T] {
	base := []entityrepo.Option{
		entityrepo.WithCache(c.cache, c.serializer),
		entityrepo.WithPublisher(c.publisher),
		entityrepo.WithLogger(c.logger),
	}
	return entityrepo.New(table.Bun[T](c.db), append(base, opts...)...)
}
