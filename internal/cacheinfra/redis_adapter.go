package cacheinfra

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisConfig holds the connection and lifetime settings for the redis
// cache backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// TTL applies to every entry written by this service.
	TTL time.Duration

	// DialTimeout bounds connection establishment. Zero uses the client
	// default.
	DialTimeout time.Duration
}

// Validate checks the redis configuration.
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return &ConfigError{Field: "Addr", Message: "is required"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	return nil
}

// redisService implements cache.CacheService over a shared redis instance,
// with msgpack-encoded values. Unlike the in-process sturdyc backend it
// survives restarts and is shared across processes, so entries must decode
// back into the fetch function's concrete return type.
//
// Backend failures degrade to the loader: a failed GET falls through to the
// fetch function and a failed SET only loses the caching benefit, never the
// result. Delete failures are returned so invalidation gaps stay visible.
type redisService struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisService creates a redis-backed cache service.
func NewRedisService(cfg RedisConfig) (*redisService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	return &redisService{
		client: client,
		ttl:    cfg.TTL,
		logger: slog.Default().With("component", "cache.redis"),
	}, nil
}

// GetOrFetch implements cache.CacheService.GetOrFetch. The cached bytes are
// decoded into a fresh value of the fetch function's return type so the
// generic wrapper's type assertion holds for values that crossed the wire.
func (s *redisService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	if err := checkFetch(fetchFn); err != nil {
		return nil, err
	}

	outType := reflect.TypeOf(fetchFn).Out(0)

	data, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		dest := reflect.New(outType)
		if derr := msgpack.Unmarshal(data, dest.Interface()); derr == nil {
			return dest.Elem().Interface(), nil
		}
		// Undecodable entry: drop it and refetch.
		s.client.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("redis get failed, serving from loader", "key", key, "error", err)
	}

	result, err := invokeFetch(ctx, fetchFn)
	if err != nil {
		return nil, err
	}

	if encoded, merr := msgpack.Marshal(result); merr == nil {
		if serr := s.client.Set(ctx, key, encoded, s.ttl).Err(); serr != nil {
			s.logger.Warn("redis set failed", "key", key, "error", serr)
		}
	}
	return result, nil
}

// Delete implements cache.CacheService.Delete.
func (s *redisService) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Close releases the underlying client.
func (s *redisService) Close() error {
	return s.client.Close()
}
