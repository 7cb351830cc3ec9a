package repositorycache

import (
	"context"
	"strings"

	"github.com/goliatone/go-persistence-bun/cache"
	"github.com/goliatone/go-persistence-bun/query"
	"github.com/goliatone/go-persistence-bun/repository"
	"github.com/goliatone/go-persistence-bun/translatable"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// cache tiers: entries hold single-entity and query results, snapshots hold
// all-translations composites on a shorter lifetime.
const (
	tierEntries = iota
	tierSnapshots
)

type trackedKey struct {
	tier int
	tags []string
}

// Options configures a cached repository decorator.
type Options[T, TR any] struct {
	// Entries is the main cache tier. Required.
	Entries cache.CacheService

	// Snapshots holds all-translations composites. Defaults to Entries.
	Snapshots cache.CacheService

	// Serializer builds cache keys. Defaults to the reflection serializer.
	Serializer cache.KeySerializer

	// EntityID extracts the identity of a record, used to target
	// invalidation after writes that only return the record. Required.
	EntityID func(T) uuid.UUID

	// TranslationLocale extracts the locale of a translation row, used to
	// scope invalidation after translation writes. Required.
	TranslationLocale func(TR) string

	// DefaultLocale, when set, lets translation writes on other locales keep
	// the rest of the entity's cached reads. Writes touching the default
	// locale always sweep the whole entity because fallback-resolved entries
	// for every locale may embed the default row.
	DefaultLocale string
}

func (o Options[T, TR]) validate() error {
	if o.Entries == nil {
		return &configError{"Entries cache service is required"}
	}
	if o.EntityID == nil {
		return &configError{"EntityID extractor is required"}
	}
	if o.TranslationLocale == nil {
		return &configError{"TranslationLocale extractor is required"}
	}
	return nil
}

type configError struct{ msg string }

func (e *configError) Error() string { return "repositorycache: " + e.msg }

// Interface assertion to ensure CachedRepository implements the translatable contract.
var _ translatable.Contract[any, any] = (*CachedRepository[any, any])(nil)

// pageResult wraps a page so list reads cache data and totals as one unit.
type pageResult[T any] struct {
	Page repository.Page[T] `json:"page"`
}

// CachedRepository decorates a translatable repository with read-through
// caching. Reads register their keys; writes delegate to the base and then
// sweep the registered keys their outcome can have staled.
type CachedRepository[T, TR any] struct {
	base      translatable.Contract[T, TR]
	entries   cache.CacheService
	snapshots cache.CacheService
	keys      KeyScheme
	registry  *xsync.MapOf[string, trackedKey]

	entityID      func(T) uuid.UUID
	localeOf      func(TR) string
	defaultLocale string
}

// New wraps the base repository with caching.
func New[T, TR any](base translatable.Contract[T, TR], opts Options[T, TR]) (*CachedRepository[T, TR], error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Snapshots == nil {
		opts.Snapshots = opts.Entries
	}
	if opts.Serializer == nil {
		opts.Serializer = cache.NewDefaultKeySerializer()
	}

	return &CachedRepository[T, TR]{
		base:          base,
		entries:       opts.Entries,
		snapshots:     opts.Snapshots,
		keys:          newKeyScheme[T](opts.Serializer),
		registry:      xsync.NewMapOf[string, trackedKey](),
		entityID:      opts.EntityID,
		localeOf:      opts.TranslationLocale,
		defaultLocale: opts.DefaultLocale,
	}, nil
}

// Keys exposes the decorator's key scheme, mainly for diagnostics.
func (c *CachedRepository[T, TR]) Keys() KeyScheme {
	return c.keys
}

// CurrentLocale resolves the ambient locale from the base repository.
func (c *CachedRepository[T, TR]) CurrentLocale(ctx context.Context) string {
	return c.base.CurrentLocale(ctx)
}

// FindByID retrieves a record by ID with its resolved translation, with caching.
func (c *CachedRepository[T, TR]) FindByID(ctx context.Context, id uuid.UUID, opts ...*repository.QueryOptions) (T, error) {
	opt := firstOption(opts)
	if opt != nil && opt.IncludeAllTranslations {
		return c.FindByIDWithTranslations(ctx, id)
	}
	key := c.keys.Entity(id, c.resolveLocale(ctx, opt), optionArgs(opt)...)
	c.trackKey(ctx, key, tierEntries)
	return cache.GetOrFetch(ctx, c.entries, key, func(ctx context.Context) (T, error) {
		return c.base.FindByID(ctx, id, opts...)
	})
}

// FindByIDWithTranslation retrieves a record resolved for an explicit locale, with caching.
func (c *CachedRepository[T, TR]) FindByIDWithTranslation(ctx context.Context, id uuid.UUID, locale string) (T, error) {
	key := c.keys.Entity(id, locale)
	c.trackKey(ctx, key, tierEntries)
	return cache.GetOrFetch(ctx, c.entries, key, func(ctx context.Context) (T, error) {
		return c.base.FindByIDWithTranslation(ctx, id, locale)
	})
}

// FindByIDWithTranslations retrieves a record with its full translation set.
// Snapshots stale on any locale's write, so they live in the short-TTL tier.
func (c *CachedRepository[T, TR]) FindByIDWithTranslations(ctx context.Context, id uuid.UUID) (T, error) {
	key := c.keys.Snapshot(id)
	c.trackKey(ctx, key, tierSnapshots)
	return cache.GetOrFetch(ctx, c.snapshots, key, func(ctx context.Context) (T, error) {
		return c.base.FindByIDWithTranslations(ctx, id)
	})
}

// FindOne retrieves the first matching record, with caching.
func (c *CachedRepository[T, TR]) FindOne(ctx context.Context, opts ...*repository.QueryOptions) (T, error) {
	opt := firstOption(opts)
	key := c.keys.Query("FindOne", append([]any{c.resolveLocale(ctx, opt)}, optionArgs(opt)...)...)
	c.trackKey(ctx, key, tierEntries)
	return cache.GetOrFetch(ctx, c.entries, key, func(ctx context.Context) (T, error) {
		return c.base.FindOne(ctx, opts...)
	})
}

// FindMany retrieves all matching records, with caching.
func (c *CachedRepository[T, TR]) FindMany(ctx context.Context, opts ...*repository.QueryOptions) ([]T, error) {
	opt := firstOption(opts)
	key := c.keys.Query("FindMany", append([]any{c.resolveLocale(ctx, opt)}, optionArgs(opt)...)...)
	c.trackKey(ctx, key, tierEntries)
	return cache.GetOrFetch(ctx, c.entries, key, func(ctx context.Context) ([]T, error) {
		return c.base.FindMany(ctx, opts...)
	})
}

// Paginate retrieves one page of records, caching data and totals as a unit.
func (c *CachedRepository[T, TR]) Paginate(ctx context.Context, req repository.PageRequest, opts ...*repository.QueryOptions) (repository.Page[T], error) {
	opt := firstOption(opts)
	key := c.keys.Query("Paginate", append([]any{req, c.resolveLocale(ctx, opt)}, optionArgs(opt)...)...)
	c.trackKey(ctx, key, tierEntries)
	res, err := cache.GetOrFetch(ctx, c.entries, key, func(ctx context.Context) (pageResult[T], error) {
		page, err := c.base.Paginate(ctx, req, opts...)
		return pageResult[T]{Page: page}, err
	})
	if err != nil {
		return repository.Page[T]{}, err
	}
	return res.Page, nil
}

// Exists reports whether any record matches the filter, with caching.
func (c *CachedRepository[T, TR]) Exists(ctx context.Context, filter query.Filter) (bool, error) {
	key := c.keys.Query("Exists", filter)
	c.trackKey(ctx, key, tierEntries)
	return cache.GetOrFetch(ctx, c.entries, key, func(ctx context.Context) (bool, error) {
		return c.base.Exists(ctx, filter)
	})
}

// Count returns the number of matching records, with caching.
func (c *CachedRepository[T, TR]) Count(ctx context.Context, filter query.Filter) (int, error) {
	key := c.keys.Query("Count", filter)
	c.trackKey(ctx, key, tierEntries)
	return cache.GetOrFetch(ctx, c.entries, key, func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, filter)
	})
}

// LoadTranslation fetches a single translation row, with caching.
func (c *CachedRepository[T, TR]) LoadTranslation(ctx context.Context, entityID uuid.UUID, locale string) (TR, error) {
	key := c.keys.Translation(entityID, locale)
	c.trackKey(ctx, key, tierEntries)
	return cache.GetOrFetch(ctx, c.entries, key, func(ctx context.Context) (TR, error) {
		return c.base.LoadTranslation(ctx, entityID, locale)
	})
}

// LoadTranslationWithFallback fetches the locale's row falling back to the
// default locale, with caching. The cached value may be the default row, so
// default-locale writes sweep the whole entity.
func (c *CachedRepository[T, TR]) LoadTranslationWithFallback(ctx context.Context, entityID uuid.UUID, locale string) (TR, error) {
	key := c.keys.TranslationFallback(entityID, locale)
	c.trackKey(ctx, key, tierEntries)
	return cache.GetOrFetch(ctx, c.entries, key, func(ctx context.Context) (TR, error) {
		return c.base.LoadTranslationWithFallback(ctx, entityID, locale)
	})
}

// LoadTranslations fetches the entity's full translation row set, cached in
// the snapshot tier.
func (c *CachedRepository[T, TR]) LoadTranslations(ctx context.Context, entityID uuid.UUID) ([]TR, error) {
	key := c.keys.TranslationSet(entityID)
	c.trackKey(ctx, key, tierSnapshots)
	return cache.GetOrFetch(ctx, c.snapshots, key, func(ctx context.Context) ([]TR, error) {
		return c.base.LoadTranslations(ctx, entityID)
	})
}

// Create persists a new record. Writes pass through and stale query caches.
func (c *CachedRepository[T, TR]) Create(ctx context.Context, record T) (T, error) {
	result, err := c.base.Create(ctx, record)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

// CreateMany persists a batch of records.
func (c *CachedRepository[T, TR]) CreateMany(ctx context.Context, records []T) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

// Save inserts or updates a record.
func (c *CachedRepository[T, TR]) Save(ctx context.Context, record T) (T, error) {
	result, err := c.base.Save(ctx, record)
	if err == nil {
		c.invalidateEntity(ctx, c.entityID(result))
	}
	return result, err
}

// Update applies a partial column update by ID.
func (c *CachedRepository[T, TR]) Update(ctx context.Context, id uuid.UUID, data map[string]any) (T, error) {
	result, err := c.base.Update(ctx, id, data)
	if err == nil {
		c.invalidateEntity(ctx, id)
	}
	return result, err
}

// UpdateEntity writes a full record.
func (c *CachedRepository[T, TR]) UpdateEntity(ctx context.Context, record T) (T, error) {
	result, err := c.base.UpdateEntity(ctx, record)
	if err == nil {
		c.invalidateEntity(ctx, c.entityID(result))
	}
	return result, err
}

// UpdateMany applies a partial update to every record matching the filter.
// Affected IDs are unknown, so every key for this kind is swept.
func (c *CachedRepository[T, TR]) UpdateMany(ctx context.Context, filter query.Filter, data map[string]any) (int64, error) {
	affected, err := c.base.UpdateMany(ctx, filter, data)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return affected, err
}

// Delete removes a record and its translations.
func (c *CachedRepository[T, TR]) Delete(ctx context.Context, id uuid.UUID) error {
	err := c.base.Delete(ctx, id)
	if err == nil {
		c.invalidateEntity(ctx, id)
	}
	return err
}

// DeleteMany removes every record matching the filter.
func (c *CachedRepository[T, TR]) DeleteMany(ctx context.Context, filter query.Filter) (int64, error) {
	affected, err := c.base.DeleteMany(ctx, filter)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return affected, err
}

// SaveTranslations inserts translation rows for the entity.
func (c *CachedRepository[T, TR]) SaveTranslations(ctx context.Context, entityID uuid.UUID, translations []TR) error {
	err := c.base.SaveTranslations(ctx, entityID, translations)
	if err == nil {
		c.invalidateTranslationWrite(ctx, entityID, translations)
	}
	return err
}

// UpdateTranslations replaces the entity's translation set.
func (c *CachedRepository[T, TR]) UpdateTranslations(ctx context.Context, entityID uuid.UUID, translations []TR) error {
	err := c.base.UpdateTranslations(ctx, entityID, translations)
	if err == nil {
		// Wholesale replacement can drop locales not present in the new
		// set, so the whole entity sweeps.
		c.invalidateEntity(ctx, entityID)
	}
	return err
}

// UpsertTranslations inserts or updates translation rows by locale.
func (c *CachedRepository[T, TR]) UpsertTranslations(ctx context.Context, entityID uuid.UUID, translations []TR) error {
	err := c.base.UpsertTranslations(ctx, entityID, translations)
	if err == nil {
		c.invalidateTranslationWrite(ctx, entityID, translations)
	}
	return err
}

// DeleteTranslation removes one locale's translation row.
func (c *CachedRepository[T, TR]) DeleteTranslation(ctx context.Context, entityID uuid.UUID, locale string) error {
	err := c.base.DeleteTranslation(ctx, entityID, locale)
	if err == nil {
		c.invalidateLocaleWrite(ctx, entityID, locale)
	}
	return err
}

// CreateWithTranslations persists the entity and its translations together.
func (c *CachedRepository[T, TR]) CreateWithTranslations(ctx context.Context, record T, translations []TR) (T, error) {
	result, err := c.base.CreateWithTranslations(ctx, record, translations)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

// UpdateWithTranslations writes the entity and upserts its translations together.
func (c *CachedRepository[T, TR]) UpdateWithTranslations(ctx context.Context, record T, translations []TR) (T, error) {
	result, err := c.base.UpdateWithTranslations(ctx, record, translations)
	if err == nil {
		c.invalidateEntity(ctx, c.entityID(result))
	}
	return result, err
}

// resolveLocale mirrors the base repository's resolution order so cache keys
// line up with what the base would fetch: explicit option, then context,
// then default.
func (c *CachedRepository[T, TR]) resolveLocale(ctx context.Context, opt *repository.QueryOptions) string {
	if opt != nil && opt.Locale != "" {
		return opt.Locale
	}
	return c.base.CurrentLocale(ctx)
}

// trackKey registers a cache key in the key registry for later invalidation.
func (c *CachedRepository[T, TR]) trackKey(ctx context.Context, key string, tier int) {
	c.registry.Store(key, trackedKey{tier: tier, tags: cacheTagsFromContext(ctx)})
}

func (c *CachedRepository[T, TR]) serviceFor(tier int) cache.CacheService {
	if tier == tierSnapshots {
		return c.snapshots
	}
	return c.entries
}

// invalidatePrefix removes every registered key starting with the prefix.
func (c *CachedRepository[T, TR]) invalidatePrefix(ctx context.Context, prefix string) {
	c.sweep(ctx, func(key string, _ trackedKey) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// invalidateEntity removes every key the entity's state can have staled:
// its own reads plus all query-shaped reads for the kind.
func (c *CachedRepository[T, TR]) invalidateEntity(ctx context.Context, id uuid.UUID) {
	c.invalidatePrefix(ctx, c.keys.EntityPrefix(id))
	c.invalidateQueries(ctx)
}

// invalidateQueries removes every query-shaped key for the kind.
func (c *CachedRepository[T, TR]) invalidateQueries(ctx context.Context) {
	c.invalidatePrefix(ctx, c.keys.QueryPrefix())
}

// invalidateAll removes every registered key for the kind.
func (c *CachedRepository[T, TR]) invalidateAll(ctx context.Context) {
	c.sweep(ctx, func(string, trackedKey) bool { return true })
}

// invalidateTranslationWrite scopes invalidation to the written locales when
// the default locale is configured and untouched; otherwise the whole entity
// sweeps, since fallback-resolved entries for any locale may embed the
// default row.
func (c *CachedRepository[T, TR]) invalidateTranslationWrite(ctx context.Context, entityID uuid.UUID, translations []TR) {
	if c.defaultLocale == "" {
		c.invalidateEntity(ctx, entityID)
		return
	}
	for _, tr := range translations {
		locale := c.localeOf(tr)
		if locale == "" || locale == c.defaultLocale {
			c.invalidateEntity(ctx, entityID)
			return
		}
	}
	for _, tr := range translations {
		c.invalidateLocaleScoped(ctx, entityID, c.localeOf(tr))
	}
	c.finishLocaleWrite(ctx, entityID)
}

// invalidateLocaleWrite handles a single-locale write such as a translation delete.
func (c *CachedRepository[T, TR]) invalidateLocaleWrite(ctx context.Context, entityID uuid.UUID, locale string) {
	if c.defaultLocale == "" || locale == "" || locale == c.defaultLocale {
		c.invalidateEntity(ctx, entityID)
		return
	}
	c.invalidateLocaleScoped(ctx, entityID, locale)
	c.finishLocaleWrite(ctx, entityID)
}

func (c *CachedRepository[T, TR]) invalidateLocaleScoped(ctx context.Context, entityID uuid.UUID, locale string) {
	c.invalidatePrefix(ctx, c.keys.Entity(entityID, locale))
	if err := c.entries.Delete(ctx, c.keys.Translation(entityID, locale)); err == nil {
		c.registry.Delete(c.keys.Translation(entityID, locale))
	}
	if err := c.entries.Delete(ctx, c.keys.TranslationFallback(entityID, locale)); err == nil {
		c.registry.Delete(c.keys.TranslationFallback(entityID, locale))
	}
}

// finishLocaleWrite clears what every translation write stales regardless of
// locale: snapshots, translation sets, and query results.
func (c *CachedRepository[T, TR]) finishLocaleWrite(ctx context.Context, entityID uuid.UUID) {
	c.invalidatePrefix(ctx, c.keys.Snapshot(entityID))
	c.invalidateQueries(ctx)
}

// InvalidateTags removes every key registered under any of the given tags.
// Tags attach at read time via WithCacheTags.
func (c *CachedRepository[T, TR]) InvalidateTags(ctx context.Context, tags ...string) {
	if len(tags) == 0 {
		return
	}
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[t] = struct{}{}
	}
	c.sweep(ctx, func(_ string, entry trackedKey) bool {
		for _, t := range entry.tags {
			if _, ok := want[t]; ok {
				return true
			}
		}
		return false
	})
}

func (c *CachedRepository[T, TR]) sweep(ctx context.Context, match func(string, trackedKey) bool) {
	var stale []string
	tiers := make(map[string]int)
	c.registry.Range(func(key string, entry trackedKey) bool {
		if match(key, entry) {
			stale = append(stale, key)
			tiers[key] = entry.tier
		}
		return true
	})
	for _, key := range stale {
		// A failed backend delete keeps the key registered so a later
		// sweep retries it.
		if err := c.serviceFor(tiers[key]).Delete(ctx, key); err != nil {
			continue
		}
		c.registry.Delete(key)
	}
}

func firstOption(opts []*repository.QueryOptions) *repository.QueryOptions {
	for _, o := range opts {
		if o != nil {
			return o
		}
	}
	return nil
}

// optionArgs flattens the key-relevant parts of QueryOptions. Locale is
// resolved separately so context-bound and explicit locales share keys.
func optionArgs(opt *repository.QueryOptions) []any {
	if opt == nil {
		return nil
	}
	var args []any
	if opt.Filter != nil {
		args = append(args, opt.Filter)
	}
	if len(opt.Sort) > 0 {
		args = append(args, opt.Sort)
	}
	if opt.Limit > 0 || opt.Offset > 0 {
		args = append(args, opt.Limit, opt.Offset)
	}
	if len(opt.With) > 0 {
		args = append(args, opt.With)
	}
	return args
}
