package repositorycache

import (
	"reflect"

	"github.com/goliatone/go-persistence-bun/cache"
	"github.com/google/uuid"
)

// KeyScheme lays out the cache key namespace for one entity kind. Every key
// a decorator produces starts with the snake_cased entity type name, and
// entity-scoped keys additionally start with the entity ID, so invalidation
// after a write reduces to two prefix sweeps: the entity's own keys and the
// kind's query keys.
//
// Layout:
//
//	<kind>::<id>::<locale>...   resolved-locale entity reads
//	<kind>::<id>::all           full translation snapshot reads
//	<kind>::<id>::tr::<locale>  single translation rows
//	<kind>::q::<method>...      query-shaped reads (lists, counts, pages)
type KeyScheme struct {
	kind       string
	serializer cache.KeySerializer
}

func newKeyScheme[T any](serializer cache.KeySerializer) KeyScheme {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return KeyScheme{
		kind:       toSnake(t.Name()),
		serializer: serializer,
	}
}

// Kind returns the snake_cased entity namespace (e.g. "release_artist").
func (k KeyScheme) Kind() string {
	return k.kind
}

// EntityPrefix is the common prefix of every key scoped to one entity.
func (k KeyScheme) EntityPrefix(id uuid.UUID) string {
	return k.kind + cache.KeySeparator + id.String()
}

// Entity builds the key for a resolved-locale entity read. Extra arguments
// (query options) extend the key so differently shaped reads never collide.
// The locale belongs to the serializer's method prefix, not the args: long
// keys compact to prefix + digest, and locale-scoped sweeps match on
// "<kind>::<id>::<locale>", so the locale must survive compaction.
func (k KeyScheme) Entity(id uuid.UUID, locale string, args ...any) string {
	return k.serializer.SerializeKey(k.EntityPrefix(id)+cache.KeySeparator+locale, args...)
}

// Snapshot builds the key for an entity read carrying all translations.
func (k KeyScheme) Snapshot(id uuid.UUID) string {
	return k.EntityPrefix(id) + cache.KeySeparator + "all"
}

// TranslationSet builds the key for the entity's full translation row set.
func (k KeyScheme) TranslationSet(id uuid.UUID) string {
	return k.Snapshot(id) + cache.KeySeparator + "tr"
}

// Translation builds the key for a single translation row lookup.
func (k KeyScheme) Translation(id uuid.UUID, locale string) string {
	return k.translationPrefix(id) + locale
}

// TranslationFallback builds the key for a fallback-resolved translation
// lookup. It is distinct from Translation because the cached value may hold
// the default locale's row.
func (k KeyScheme) TranslationFallback(id uuid.UUID, locale string) string {
	return k.translationPrefix(id) + "fb" + cache.KeySeparator + locale
}

func (k KeyScheme) translationPrefix(id uuid.UUID) string {
	return k.EntityPrefix(id) + cache.KeySeparator + "tr" + cache.KeySeparator
}

// Query builds the key for a query-shaped read (FindOne, FindMany,
// Paginate, Exists, Count).
func (k KeyScheme) Query(method string, args ...any) string {
	return k.serializer.SerializeKey(k.QueryPrefix()+method, args...)
}

// QueryPrefix is the common prefix of every query-shaped key.
func (k KeyScheme) QueryPrefix() string {
	return k.kind + cache.KeySeparator + "q" + cache.KeySeparator
}
