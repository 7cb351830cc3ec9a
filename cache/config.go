package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-persistence-bun/internal/cacheinfra"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EarlyRefresh       *EarlyRefreshConfig

	// MissingRecordStorage remembers keys that returned no result so
	// repeated lookups for absent records skip the store.
	MissingRecordStorage bool
	EvictionInterval     time.Duration

	// SnapshotTTL is the shorter lifetime applied to all-translations
	// snapshot entries; any locale's edit invalidates those, so they are
	// more volatile than single-locale or bare-entity entries. Zero
	// derives half the main TTL.
	SnapshotTTL time.Duration
}

// EarlyRefreshConfig mirrors the underlying sturdyc early refresh options.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Duration(1))),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.SnapshotTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
}

// NewCacheService constructs the default cache service implementation using
// the provided configuration.
func NewCacheService(cfg Config) (CacheService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cacheinfra.NewSturdycService(cfg.toInternal())
}

// NewSnapshotCacheService constructs the short-TTL tier used for
// all-translations snapshot entries. The snapshot lifetime comes from
// SnapshotTTL, with the backend deriving half of TTL when unset.
func NewSnapshotCacheService(cfg Config) (CacheService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cacheinfra.NewSnapshotSturdycService(cfg.toInternal())
}

func (c Config) toInternal() cacheinfra.Config {
	var early *cacheinfra.EarlyRefreshConfig
	if c.EarlyRefresh != nil {
		early = &cacheinfra.EarlyRefreshConfig{
			MinAsyncRefreshTime: c.EarlyRefresh.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: c.EarlyRefresh.MaxAsyncRefreshTime,
			SyncRefreshTime:     c.EarlyRefresh.SyncRefreshTime,
			RetryBaseDelay:      c.EarlyRefresh.RetryBaseDelay,
		}
	}

	return cacheinfra.Config{
		Capacity:             c.Capacity,
		NumShards:            c.NumShards,
		TTL:                  c.TTL,
		EvictionPercentage:   c.EvictionPercentage,
		EarlyRefresh:         early,
		MissingRecordStorage: c.MissingRecordStorage,
		EvictionInterval:     c.EvictionInterval,
		SnapshotTTL:          c.SnapshotTTL,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	var early *EarlyRefreshConfig
	if cfg.EarlyRefresh != nil {
		early = &EarlyRefreshConfig{
			MinAsyncRefreshTime: cfg.EarlyRefresh.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: cfg.EarlyRefresh.MaxAsyncRefreshTime,
			SyncRefreshTime:     cfg.EarlyRefresh.SyncRefreshTime,
			RetryBaseDelay:      cfg.EarlyRefresh.RetryBaseDelay,
		}
	}

	return Config{
		Capacity:             cfg.Capacity,
		NumShards:            cfg.NumShards,
		TTL:                  cfg.TTL,
		EvictionPercentage:   cfg.EvictionPercentage,
		EarlyRefresh:         early,
		MissingRecordStorage: cfg.MissingRecordStorage,
		EvictionInterval:     cfg.EvictionInterval,
		SnapshotTTL:          cfg.SnapshotTTL,
	}
}
