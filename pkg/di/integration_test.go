package di

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-persistence-bun/pkg/testsupport"
	"github.com/goliatone/go-persistence-bun/repository"
	"github.com/goliatone/go-persistence-bun/repositorycache"
	"github.com/goliatone/go-persistence-bun/translatable"
)

type catalogFixture struct {
	container *Container
	albums    *repository.BaseRepository[*testsupport.Album]
	base      *translatable.Repository[*testsupport.Artist, *testsupport.ArtistTranslation]
	cached    *repositorycache.CachedRepository[*testsupport.Artist, *testsupport.ArtistTranslation]
}

// newCatalogFixture wires the full stack through the container: an
// in-memory sqlite database, a translatable artist repository, a plain
// album repository, and the cached decorator on top.
func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()

	config := Config{
		Cache: Cache{
			Capacity:           100,
			NumShards:          4,
			TTL:                time.Minute,
			EvictionPercentage: 10,
		},
		Database: Database{Driver: DriverSQLite, DSN: ":memory:"},
	}

	container, err := NewContainer(config)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	t.Cleanup(func() { container.Close() })

	if err := testsupport.ApplySchema(container.DB()); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	artistCfg, err := testsupport.TranslatableArtistConfig()
	if err != nil {
		t.Fatalf("TranslatableArtistConfig() failed: %v", err)
	}
	base, err := NewTranslatableRepository(container, artistCfg)
	if err != nil {
		t.Fatalf("NewTranslatableRepository() failed: %v", err)
	}

	albumCfg, err := testsupport.AlbumConfig()
	if err != nil {
		t.Fatalf("AlbumConfig() failed: %v", err)
	}
	albums, err := NewRepository(container, albumCfg)
	if err != nil {
		t.Fatalf("NewRepository() failed: %v", err)
	}

	cached, err := NewCachedRepository(container, base, repositorycache.Options[*testsupport.Artist, *testsupport.ArtistTranslation]{
		EntityID:          func(a *testsupport.Artist) uuid.UUID { return a.ID },
		TranslationLocale: func(tr *testsupport.ArtistTranslation) string { return tr.Locale },
		DefaultLocale:     "en",
	})
	if err != nil {
		t.Fatalf("NewCachedRepository() failed: %v", err)
	}

	return &catalogFixture{container: container, albums: albums, base: base, cached: cached}
}

func TestEndToEndCachedCatalogFlow(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()

	artist, err := f.cached.CreateWithTranslations(ctx,
		&testsupport.Artist{Name: "Ana Tijoux", Country: "CL", Rating: 5},
		[]*testsupport.ArtistTranslation{
			{Locale: "en", Name: "Ana Tijoux", Bio: "Chilean rapper"},
			{Locale: "es", Name: "Ana Tijoux", Bio: "Rapera chilena"},
		})
	if err != nil {
		t.Fatalf("CreateWithTranslations failed: %v", err)
	}
	if artist.ID == uuid.Nil {
		t.Fatal("CreateWithTranslations should assign an ID")
	}

	for _, album := range []*testsupport.Album{
		{ArtistID: artist.ID, Title: "Vengo", Year: 2014},
		{ArtistID: artist.ID, Title: "1977", Year: 2010},
	} {
		if _, err := f.albums.Create(ctx, album); err != nil {
			t.Fatalf("Create album failed: %v", err)
		}
	}

	got, err := f.cached.FindByID(ctx, artist.ID, &repository.QueryOptions{With: []string{"albums"}})
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if len(got.Albums) != 2 {
		t.Errorf("Expected 2 albums attached, got %d", len(got.Albums))
	}
	if got.Translation == nil || got.Translation.Locale != "en" {
		t.Errorf("Expected the default-locale translation attached, got %+v", got.Translation)
	}

	es, err := f.cached.FindByIDWithTranslation(ctx, artist.ID, "es")
	if err != nil {
		t.Fatalf("FindByIDWithTranslation failed: %v", err)
	}
	if es.Translation == nil || es.Translation.Bio != "Rapera chilena" {
		t.Errorf("Expected the es translation attached, got %+v", es.Translation)
	}

	fallback, err := f.cached.LoadTranslationWithFallback(ctx, artist.ID, "fr")
	if err != nil {
		t.Fatalf("LoadTranslationWithFallback failed: %v", err)
	}
	if fallback == nil || fallback.Locale != "en" {
		t.Errorf("Expected fr to fall back to en, got %+v", fallback)
	}

	count, err := f.cached.Count(ctx, nil)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 artist, got %d", count)
	}
}

// TestCachedReadsServeStaleUntilInvalidated proves the decorator actually
// caches: a write that bypasses the repository stays invisible until a
// repository write sweeps the entity's keys.
func TestCachedReadsServeStaleUntilInvalidated(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()

	artist, err := f.cached.CreateWithTranslations(ctx,
		&testsupport.Artist{Name: "Victor Jara", Country: "CL", Rating: 5},
		[]*testsupport.ArtistTranslation{{Locale: "en", Name: "Victor Jara"}})
	if err != nil {
		t.Fatalf("CreateWithTranslations failed: %v", err)
	}

	// Warm the cache.
	if _, err := f.cached.FindByID(ctx, artist.ID); err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}

	// Bypass the repository; the cached read must not see this.
	_, err = f.container.DB().NewUpdate().
		Table("artists").
		Set("country = ?", "XX").
		Where("id = ?", artist.ID).
		Exec(ctx)
	if err != nil {
		t.Fatalf("raw update failed: %v", err)
	}

	stale, err := f.cached.FindByID(ctx, artist.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if stale.Country != "CL" {
		t.Errorf("Expected the cached record (country CL), got %q", stale.Country)
	}

	// A repository write invalidates the entity and the next read is fresh.
	if _, err := f.cached.Update(ctx, artist.ID, map[string]any{"rating": 4}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fresh, err := f.cached.FindByID(ctx, artist.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if fresh.Country != "XX" {
		t.Errorf("Expected the refetched record (country XX), got %q", fresh.Country)
	}
	if fresh.Rating != 4 {
		t.Errorf("Expected rating 4, got %d", fresh.Rating)
	}
}

func TestTranslationWritesThroughContainer(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()

	artist, err := f.cached.CreateWithTranslations(ctx,
		&testsupport.Artist{Name: "Mercedes Sosa", Country: "AR", Rating: 4},
		[]*testsupport.ArtistTranslation{
			{Locale: "en", Name: "Mercedes Sosa", Bio: "Argentine singer"},
		})
	if err != nil {
		t.Fatalf("CreateWithTranslations failed: %v", err)
	}

	// Warm a fallback read for a locale that does not exist yet.
	before, err := f.cached.LoadTranslationWithFallback(ctx, artist.ID, "es")
	if err != nil {
		t.Fatalf("LoadTranslationWithFallback failed: %v", err)
	}
	if before.Locale != "en" {
		t.Fatalf("Expected es to fall back to en, got %q", before.Locale)
	}

	err = f.cached.UpsertTranslations(ctx, artist.ID, []*testsupport.ArtistTranslation{
		{Locale: "es", Name: "Mercedes Sosa", Bio: "Cantante argentina"},
	})
	if err != nil {
		t.Fatalf("UpsertTranslations failed: %v", err)
	}

	after, err := f.cached.LoadTranslationWithFallback(ctx, artist.ID, "es")
	if err != nil {
		t.Fatalf("LoadTranslationWithFallback failed: %v", err)
	}
	if after.Locale != "es" || after.Bio != "Cantante argentina" {
		t.Errorf("Expected the fresh es translation, got %+v", after)
	}

	all, err := f.cached.LoadTranslations(ctx, artist.ID)
	if err != nil {
		t.Fatalf("LoadTranslations failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 translations, got %d", len(all))
	}
}

func TestPaginateThroughContainer(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()

	names := []string{"Ana Tijoux", "Victor Jara", "Mercedes Sosa", "Gustavo Cerati"}
	for _, name := range names {
		if _, err := f.cached.Create(ctx, &testsupport.Artist{Name: name, Country: "CL"}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	page, err := f.cached.Paginate(ctx, repository.PageRequest{Page: 1, Limit: 3})
	if err != nil {
		t.Fatalf("Paginate failed: %v", err)
	}
	if page.Total != 4 {
		t.Errorf("Expected total 4, got %d", page.Total)
	}
	if len(page.Data) != 3 {
		t.Errorf("Expected 3 records on page 1, got %d", len(page.Data))
	}
	if !page.HasNext || page.HasPrev {
		t.Errorf("Expected HasNext and not HasPrev, got next=%v prev=%v", page.HasNext, page.HasPrev)
	}

	// Identical request again serves from cache and must carry the same envelope.
	again, err := f.cached.Paginate(ctx, repository.PageRequest{Page: 1, Limit: 3})
	if err != nil {
		t.Fatalf("Paginate failed: %v", err)
	}
	if again.Total != page.Total || len(again.Data) != len(page.Data) {
		t.Errorf("Cached page differs: total %d vs %d, len %d vs %d",
			again.Total, page.Total, len(again.Data), len(page.Data))
	}
}
