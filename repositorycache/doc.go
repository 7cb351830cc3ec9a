// Package repositorycache provides a cached decorator for translatable
// repositories.
//
// # Overview
//
// CachedRepository wraps a translatable repository contract and intercepts
// read operations with read-through caching while delegating writes to the
// base repository. After a successful write it sweeps the cached keys that
// write can have staled, using the key layout described in KeyScheme.
//
// # Key layout
//
// Every key starts with the snake_cased entity type name, and entity-scoped
// keys continue with the entity ID:
//
//	artist::<id>::<locale>      resolved-locale entity reads
//	artist::<id>::all           full translation snapshot reads
//	artist::<id>::tr::<locale>  single translation rows
//	artist::q::FindMany::...    query-shaped reads
//
// This makes invalidation a matter of prefix sweeps over a registry of the
// keys each decorator has issued: an entity write sweeps "artist::<id>" and
// "artist::q::", a bulk write with unknown targets sweeps everything.
//
// # Cache tiers
//
// Two cache services back a decorator. The entries tier holds single-entity
// and query results on the standard lifetime. The snapshots tier holds
// all-translations composites, which any locale's edit stales, on a shorter
// lifetime. Pass the same service for both to collapse the tiers.
//
// # Locale-scoped invalidation
//
// When Options.DefaultLocale is set, translation writes that do not touch
// the default locale only sweep the written locales' keys plus snapshots
// and query results. Default-locale writes always sweep the whole entity,
// because fallback-resolved entries for any locale may embed the default
// locale's row.
//
// # Basic usage
//
//	base, err := translatable.New(db, cfg)
//	entries, err := cache.NewCacheService(cacheCfg)
//	snapshots, err := cache.NewSnapshotCacheService(cacheCfg)
//
//	cached, err := repositorycache.New(base, repositorycache.Options[*Artist, *ArtistTranslation]{
//		Entries:           entries,
//		Snapshots:         snapshots,
//		EntityID:          func(a *Artist) uuid.UUID { return a.ID },
//		TranslationLocale: func(t *ArtistTranslation) string { return t.Locale },
//		DefaultLocale:     "en",
//	})
//
//	// Use exactly like the base repository.
//	artist, err := cached.FindByID(ctx, id)
//
// # Error handling
//
// Errors from the base repository propagate unchanged, and a write that
// fails leaves the cache untouched. A cache backend delete that fails keeps
// the key registered so a later sweep retries it.
package repositorycache
