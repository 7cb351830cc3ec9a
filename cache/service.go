package cache

import (
	"context"
	"errors"
)

// ErrInvalidResultType reports a cached value that does not match the type
// the caller asked for, usually a sign two call sites share a key.
var ErrInvalidResultType = errors.New("cache: result type does not match requested type")

// KeySerializer builds a cache key from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// FetchFn is the function signature CacheService expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService exposes the read-through caching operations we need when decorating repositories.
// It is exported so that other packages can reuse the default serializer or provide alternate cache backends.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error)
	Delete(ctx context.Context, key string) error
}

// GetOrFetch is a type-safe wrapper function that provides generic support
// for CacheService. A nil result maps to T's zero value; a result of the
// wrong type surfaces ErrInvalidResultType instead of panicking.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T]) (T, error) {
	var zero T
	result, err := service.GetOrFetch(ctx, key, fetchFn)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, ErrInvalidResultType
	}
	return typed, nil
}
