// Package cache provides caching interfaces and key serialization for repository caching.
//
// # Overview
//
// This package exports two main interfaces and their default implementations:
//
//   - CacheService: A generic caching interface for read-through operations
//   - KeySerializer: Builds stable cache keys from method names and arguments
//
// The cache package is designed to work with repository decorators that need to cache
// read operations while maintaining type safety through generics.
//
// Two factory functions cover the decorator's tiers: NewCacheService builds
// the main entries store, NewSnapshotCacheService builds the shorter-lived
// store for all-translations snapshots (SnapshotTTL, defaulting to half the
// main TTL).
//
// # Basic Usage
//
// The simplest way to use the cache package is with the default key serializer:
//
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("artist::q::FindMany", "en", 10)
//
// For repository caching, you would typically use this with a CacheService implementation:
//
//	service, err := cache.NewCacheService(cache.DefaultConfig())
//	...
//	artist, err := cache.GetOrFetch(ctx, service, key, func(ctx context.Context) (*Artist, error) {
//		return repo.FindByID(ctx, id)
//	})
//
// GetOrFetch never panics on a mismatched cached value: a nil result maps to
// the zero value and a wrong type surfaces ErrInvalidResultType.
//
// # Key Serialization Strategy
//
// The default key serializer uses reflection to handle various Go types:
//
//   - Function pointers: Uses %p formatting for stability within a process
//   - Basic types: Direct string representation
//   - Slices/arrays: Recursive serialization of elements
//   - Maps: Sorted key-value pairs for deterministic output
//   - Structs: Exported fields with name:value pairs
//   - Complex types: JSON fallback with error handling
//
// Keys longer than MaxKeyLength (deep filter trees, large IN lists) are
// compacted to the method name plus an xxhash digest of the full serialized
// form, so backends with key-size limits accept them and the digest stays
// deterministic across runs.
//
// # Important Warnings for Function Arguments
//
// When function values end up in key arguments, be aware of these limitations:
//
//   - Function pointers are stable only within a single process lifetime
//   - Closures with different captured variables will have different pointers
//   - Anonymous functions created at different call sites will have different pointers
//   - For distributed caching, use a custom KeySerializer with stable names instead
//
// # Custom Key Serializers
//
// You can implement your own KeySerializer for specialized key generation:
//
//	type CustomKeySerializer struct {
//		prefix string
//	}
//
//	func (s *CustomKeySerializer) SerializeKey(method string, args ...any) string {
//		// Custom logic here
//		return s.prefix + ":" + method + ":" + /* serialize args */
//	}
//
// This is useful when you need:
//   - Different key formats for different cache backends
//   - Stable keys across process restarts
//   - Application-specific key structures or namespacing
//
// # Error Handling
//
// The package prioritizes stability over perfection. When JSON marshaling fails,
// the key serializer falls back to type information and memory addresses rather
// than panicking. This ensures cache operations continue even with problematic data types.
//
// # See Also
//
// For complete usage examples with repository decorators, see the repositorycache package.
// For the specific key generation implementation details, see key_serializer.go.
package cache
