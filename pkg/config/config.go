// Package config loads the settings of the entity repository stack from an
// optional file and ENTITYREPO_ prefixed environment variables.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"

	"github.com/goliatone/go-repository-entity/cache"
)

// EnvPrefix prefixes every environment override, ENTITYREPO_DATABASE_DSN
// for database.dsn.
const EnvPrefix = "ENTITYREPO"

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Env      string         `mapstructure:"env" json:"env"`
	LogLevel string         `mapstructure:"log_level" json:"log_level"`
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Cache    cache.Config   `mapstructure:"cache" json:"cache"`
	Events   EventsConfig   `mapstructure:"events" json:"events"`
	Metrics  MetricsConfig  `mapstructure:"metrics" json:"metrics"`
}

type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver" json:"driver"`
	DSN          string        `mapstructure:"dsn" json:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns" json:"max_open_conns"`
	SlowQuery    time.Duration `mapstructure:"slow_query" json:"slow_query"`
}

type EventsConfig struct {
	// RedisURL enables cross process event delivery when set.
	RedisURL      string `mapstructure:"redis_url" json:"redis_url"`
	ChannelPrefix string `mapstructure:"channel_prefix" json:"channel_prefix"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

var redisURL = regexp.MustCompile(`^rediss?://`)

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "file::memory:")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.slow_query", 200*time.Millisecond)

	c := cache.DefaultConfig()
	v.SetDefault("cache.capacity", c.Capacity)
	v.SetDefault("cache.num_shards", c.NumShards)
	v.SetDefault("cache.ttl", c.TTL)
	v.SetDefault("cache.eviction_percentage", c.EvictionPercentage)
	v.SetDefault("cache.missing_record_storage", c.MissingRecordStorage)
	v.SetDefault("cache.eviction_interval", c.EvictionInterval)
	v.SetDefault("cache.max_key_length", c.MaxKeyLength)

	v.SetDefault("events.redis_url", "")
	v.SetDefault("events.channel_prefix", "entities")

	v.SetDefault("metrics.enabled", true)
}

// Default returns the configuration Load produces without file or
// environment overrides.
func Default() *Config {
	cfg, err := decode(viper.New())
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads path, when not empty, applies environment overrides on top and
// validates the result. The file format follows the file extension.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Env, validation.Required, validation.In("dev", "test", "prod")),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Database),
		validation.Field(&c.Cache),
		validation.Field(&c.Events),
	)
}

func (d DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&d.DSN, validation.Required),
		validation.Field(&d.MaxOpenConns, validation.Min(0)),
		validation.Field(&d.SlowQuery, validation.Min(time.Duration(0))),
	)
}

func (e EventsConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.RedisURL, validation.Match(redisURL).Error("must be a redis:// or rediss:// URL")),
		validation.Field(&e.ChannelPrefix, validation.Required),
	)
}
