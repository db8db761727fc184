package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-repository-entity/internal/cacheinfra"
)

// DefaultMaxKeyLength keeps serialized keys readable in logs and metrics.
const DefaultMaxKeyLength = 250

// Config is the cache section of the application config. The field set
// mirrors the sturdyc adapter plus the key length cap of the serializer.
type Config struct {
	Capacity             int                 `json:"capacity" mapstructure:"capacity"`
	NumShards            int                 `json:"num_shards" mapstructure:"num_shards"`
	TTL                  time.Duration       `json:"ttl" mapstructure:"ttl"`
	EvictionPercentage   int                 `json:"eviction_percentage" mapstructure:"eviction_percentage"`
	EarlyRefresh         *EarlyRefreshConfig `json:"early_refresh" mapstructure:"early_refresh"`
	MissingRecordStorage bool                `json:"missing_record_storage" mapstructure:"missing_record_storage"`
	EvictionInterval     time.Duration       `json:"eviction_interval" mapstructure:"eviction_interval"`
	MaxKeyLength         int                 `json:"max_key_length" mapstructure:"max_key_length"`
}

// EarlyRefreshConfig enables background refreshes of entries close to
// expiry. Leave it nil for entity listings: refreshes run detached from the
// request that populated the entry.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration `json:"min_async_refresh_time" mapstructure:"min_async_refresh_time"`
	MaxAsyncRefreshTime time.Duration `json:"max_async_refresh_time" mapstructure:"max_async_refresh_time"`
	SyncRefreshTime     time.Duration `json:"sync_refresh_time" mapstructure:"sync_refresh_time"`
	RetryBaseDelay      time.Duration `json:"retry_base_delay" mapstructure:"retry_base_delay"`
}

func DefaultConfig() Config {
	d := cacheinfra.DefaultConfig()
	return Config{
		Capacity:             d.Capacity,
		NumShards:            d.NumShards,
		TTL:                  d.TTL,
		EvictionPercentage:   d.EvictionPercentage,
		MissingRecordStorage: d.MissingRecordStorage,
		EvictionInterval:     d.EvictionInterval,
		MaxKeyLength:         DefaultMaxKeyLength,
	}
}

// Validate checks the adapter settings and the key length cap. A zero
// MaxKeyLength disables digesting.
func (c Config) Validate() error {
	if err := c.adapter().Validate(); err != nil {
		return err
	}
	return validation.Validate(c.MaxKeyLength, validation.Min(0))
}

// NewCacheService constructs the sturdyc backed cache service.
func NewCacheService(cfg Config) (CacheService, error) {
	return cacheinfra.NewSturdycService(cfg.adapter())
}

// NewKeySerializer builds the default serializer honoring MaxKeyLength.
func (c Config) NewKeySerializer() KeySerializer {
	return NewDefaultKeySerializer(WithMaxKeyLength(c.MaxKeyLength))
}

func (c Config) adapter() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:             c.Capacity,
		NumShards:            c.NumShards,
		TTL:                  c.TTL,
		EvictionPercentage:   c.EvictionPercentage,
		EarlyRefresh:         (*cacheinfra.EarlyRefreshConfig)(c.EarlyRefresh),
		MissingRecordStorage: c.MissingRecordStorage,
		EvictionInterval:     c.EvictionInterval,
	}
}
