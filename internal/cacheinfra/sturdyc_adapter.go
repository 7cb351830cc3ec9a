package cacheinfra

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// Config holds the settings for the in-process sturdyc cache backend. One
// Config describes both tiers the repository decorator uses: the entries
// store built by NewSturdycService and the shorter-lived snapshot store
// built by NewSnapshotSturdycService. sturdyc's TTL is per client, so the
// tiers are separate clients over the same settings.
type Config struct {
	// Capacity is the maximum number of entries per tier. Must be > 0.
	Capacity int

	// NumShards controls concurrent access. Must be > 0.
	NumShards int

	// TTL is the lifetime of entries-tier values. Must be > 0.
	TTL time.Duration

	// EvictionPercentage is the share of entries evicted when a tier hits
	// capacity. Must be between 1 and 100.
	EvictionPercentage int

	// EarlyRefresh enables stampede-protective refreshes before expiry.
	// Nil disables it.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage remembers keys that resolved to no record, so
	// repeated lookups for absent rows skip the loader.
	MissingRecordStorage bool

	// EvictionInterval is how often expired entries are collected. Zero
	// uses the sturdyc default.
	EvictionInterval time.Duration

	// SnapshotTTL is the lifetime of snapshot-tier values. Snapshots hold
	// whole translation sets, which any locale's write stales, so they
	// expire faster than single entries. Zero derives half of TTL.
	SnapshotTTL time.Duration
}

// EarlyRefreshConfig mirrors sturdyc's early-refresh window.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns settings suitable for a read-heavy repository.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
		EarlyRefresh: &EarlyRefreshConfig{
			MinAsyncRefreshTime: 10 * time.Second,
			MaxAsyncRefreshTime: 20 * time.Second,
			SyncRefreshTime:     30 * time.Second,
			RetryBaseDelay:      100 * time.Millisecond,
		},
		MissingRecordStorage: true,
	}
}

// snapshotTTL resolves the snapshot-tier lifetime.
func (c Config) snapshotTTL() time.Duration {
	if c.SnapshotTTL > 0 {
		return c.SnapshotTTL
	}
	return c.TTL / 2
}

// ToSturdycOptions maps the optional settings to sturdyc options. Capacity,
// NumShards, TTL, and EvictionPercentage go to the constructor instead.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}
	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate checks the configuration, reporting the first offending field.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	if c.SnapshotTTL < 0 {
		return &ConfigError{Field: "SnapshotTTL", Message: "must be non-negative"}
	}
	if c.EarlyRefresh != nil {
		if c.EarlyRefresh.MinAsyncRefreshTime < 0 {
			return &ConfigError{Field: "EarlyRefresh.MinAsyncRefreshTime", Message: "must be non-negative"}
		}
		if c.EarlyRefresh.MaxAsyncRefreshTime < 0 {
			return &ConfigError{Field: "EarlyRefresh.MaxAsyncRefreshTime", Message: "must be non-negative"}
		}
		if c.EarlyRefresh.SyncRefreshTime < 0 {
			return &ConfigError{Field: "EarlyRefresh.SyncRefreshTime", Message: "must be non-negative"}
		}
		if c.EarlyRefresh.RetryBaseDelay < 0 {
			return &ConfigError{Field: "EarlyRefresh.RetryBaseDelay", Message: "must be non-negative"}
		}
	}
	return nil
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// sturdycService adapts a sturdyc client to the read-through cache contract.
type sturdycService struct {
	client *sturdyc.Client[any]
}

// NewSturdycService builds the entries-tier service.
func NewSturdycService(cfg Config) (*sturdycService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newService(cfg, cfg.TTL), nil
}

// NewSnapshotSturdycService builds the snapshot-tier service: same settings,
// shorter lifetime.
func NewSnapshotSturdycService(cfg Config) (*sturdycService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newService(cfg, cfg.snapshotTTL()), nil
}

func newService(cfg Config, ttl time.Duration) *sturdycService {
	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		ttl,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)
	return &sturdycService{client: client}
}

// checkFetch verifies fetchFn has the shape func(context.Context) (T, error)
// before any reflective call. Shared with the redis adapter.
func checkFetch(fetchFn any) error {
	if fetchFn == nil {
		return &ConfigError{Field: "fetchFn", Message: "cannot be nil"}
	}

	fnType := reflect.TypeOf(fetchFn)
	if fnType.Kind() != reflect.Func {
		return &ConfigError{Field: "fetchFn", Message: "must be a function"}
	}
	if fnType.NumIn() != 1 || fnType.NumOut() != 2 {
		return &ConfigError{Field: "fetchFn", Message: "must have signature func(context.Context) (T, error)"}
	}
	if !fnType.In(0).Implements(reflect.TypeOf((*context.Context)(nil)).Elem()) {
		return &ConfigError{Field: "fetchFn", Message: "first parameter must be context.Context"}
	}
	if !fnType.Out(1).Implements(reflect.TypeOf((*error)(nil)).Elem()) {
		return &ConfigError{Field: "fetchFn", Message: "second return value must be error"}
	}
	return nil
}

// invokeFetch calls a checked fetch function, erasing its return type to any.
func invokeFetch(ctx context.Context, fetchFn any) (any, error) {
	if fn, ok := fetchFn.(func(context.Context) (any, error)); ok {
		return fn(ctx)
	}

	results := reflect.ValueOf(fetchFn).Call([]reflect.Value{reflect.ValueOf(ctx)})

	var result any
	if v := results[0]; v.IsValid() && v.CanInterface() {
		result = v.Interface()
	}
	var err error
	if v := results[1]; v.IsValid() && !v.IsNil() {
		err = v.Interface().(error)
	}
	return result, err
}

// GetOrFetch serves the key from the tier or falls through to fetchFn,
// storing whatever it returned.
func (s *sturdycService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	if err := checkFetch(fetchFn); err != nil {
		return nil, err
	}
	return s.client.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return invokeFetch(ctx, fetchFn)
	})
}

// Delete removes one key so the next read refetches.
func (s *sturdycService) Delete(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix removes every key under the prefix. Key layouts put the
// entity kind and id first precisely so related entries share one.
func (s *sturdycService) DeleteByPrefix(ctx context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// InvalidateKeys removes an explicit key set in one call.
func (s *sturdycService) InvalidateKeys(ctx context.Context, keys []string) error {
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}
