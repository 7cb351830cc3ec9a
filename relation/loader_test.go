package relation_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-persistence-bun/pkg/testsupport"
	"github.com/goliatone/go-persistence-bun/relation"
)

type catalog struct {
	db *bun.DB

	ana    *testsupport.Artist
	victor *testsupport.Artist
	solo   *testsupport.Artist

	rock *testsupport.Genre
	folk *testsupport.Genre
}

// seedCatalog creates three artists: ana with two albums, a profile and two
// genres, victor with one album and one genre, and solo with nothing
// attached.
func seedCatalog(t *testing.T, db *bun.DB) *catalog {
	t.Helper()
	ctx := context.Background()

	c := &catalog{
		db:     db,
		ana:    &testsupport.Artist{ID: uuid.New(), Name: "Ana Tijoux", Country: "CL", Rating: 5},
		victor: &testsupport.Artist{ID: uuid.New(), Name: "Victor Jara", Country: "CL", Rating: 5},
		solo:   &testsupport.Artist{ID: uuid.New(), Name: "Unknown", Country: "AR"},
		rock:   &testsupport.Genre{ID: uuid.New(), Name: "rock"},
		folk:   &testsupport.Genre{ID: uuid.New(), Name: "folk"},
	}

	artists := []*testsupport.Artist{c.ana, c.victor, c.solo}
	_, err := db.NewInsert().Model(&artists).Exec(ctx)
	require.NoError(t, err)

	albums := []*testsupport.Album{
		{ID: uuid.New(), ArtistID: c.ana.ID, Title: "Vengo", Year: 2014},
		{ID: uuid.New(), ArtistID: c.ana.ID, Title: "1977", Year: 2010},
		{ID: uuid.New(), ArtistID: c.victor.ID, Title: "Manifiesto", Year: 1974},
	}
	_, err = db.NewInsert().Model(&albums).Exec(ctx)
	require.NoError(t, err)

	profile := &testsupport.ArtistProfile{ID: uuid.New(), ArtistID: c.ana.ID, Website: "https://anatijoux.example"}
	_, err = db.NewInsert().Model(profile).Exec(ctx)
	require.NoError(t, err)

	genres := []*testsupport.Genre{c.rock, c.folk}
	_, err = db.NewInsert().Model(&genres).Exec(ctx)
	require.NoError(t, err)

	links := []map[string]any{
		{"artist_id": c.ana.ID, "genre_id": c.rock.ID},
		{"artist_id": c.ana.ID, "genre_id": c.folk.ID},
		{"artist_id": c.victor.ID, "genre_id": c.folk.ID},
	}
	for _, link := range links {
		_, err = db.ExecContext(ctx, "INSERT INTO artist_genres (artist_id, genre_id) VALUES (?, ?)", link["artist_id"], link["genre_id"])
		require.NoError(t, err)
	}

	return c
}

func artistRelation(t *testing.T, name string) relation.Config {
	t.Helper()
	relations, err := testsupport.ArtistRelations()
	require.NoError(t, err)
	cfg, ok := relations[name]
	require.True(t, ok, "relation %q not declared", name)
	return cfg
}

func TestLoad_OneToMany(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	c := seedCatalog(t, db)
	loader := relation.NewLoader(db)

	require.NoError(t, loader.Load(context.Background(), artistRelation(t, "albums"), c.ana, c.ana.ID))
	require.Len(t, c.ana.Albums, 2)

	require.NoError(t, loader.Load(context.Background(), artistRelation(t, "albums"), c.solo, c.solo.ID))
	require.Empty(t, c.solo.Albums)
}

func TestLoad_OneToOne(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	c := seedCatalog(t, db)
	loader := relation.NewLoader(db)

	require.NoError(t, loader.Load(context.Background(), artistRelation(t, "profile"), c.ana, c.ana.ID))
	require.NotNil(t, c.ana.Profile)
	require.Equal(t, "https://anatijoux.example", c.ana.Profile.Website)

	require.NoError(t, loader.Load(context.Background(), artistRelation(t, "profile"), c.victor, c.victor.ID))
	require.Nil(t, c.victor.Profile)
}

func TestLoad_ManyToOne(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	c := seedCatalog(t, db)
	loader := relation.NewLoader(db)

	relations, err := testsupport.AlbumRelations()
	require.NoError(t, err)
	rel := relations["artist"]

	var album testsupport.Album
	require.NoError(t, db.NewSelect().Model(&album).Where("title = ?", "Vengo").Scan(context.Background()))

	require.NoError(t, loader.Load(context.Background(), rel, &album, album.ID))
	require.NotNil(t, album.Artist)
	require.Equal(t, c.ana.ID, album.Artist.ID)
}

func TestLoad_ManyToOne_NullKeyShortCircuits(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	seedCatalog(t, db)
	loader := relation.NewLoader(db)

	relations, err := testsupport.AlbumRelations()
	require.NoError(t, err)

	orphan := &testsupport.Album{ID: uuid.New(), Title: "Unreleased"}
	require.NoError(t, loader.Load(context.Background(), relations["artist"], orphan, orphan.ID))
	require.Nil(t, orphan.Artist)
}

func TestLoad_ManyToMany(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	c := seedCatalog(t, db)
	loader := relation.NewLoader(db)

	require.NoError(t, loader.Load(context.Background(), artistRelation(t, "genres"), c.ana, c.ana.ID))
	require.Len(t, c.ana.Genres, 2)

	require.NoError(t, loader.Load(context.Background(), artistRelation(t, "genres"), c.solo, c.solo.ID))
	require.Empty(t, c.solo.Genres)
}

func TestLoadBatch_CompleteMaps(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	c := seedCatalog(t, db)
	loader := relation.NewLoader(db)

	parents := []any{c.ana, c.victor, c.solo}
	parentID := func(p any) uuid.UUID { return p.(*testsupport.Artist).ID }

	require.NoError(t, loader.LoadBatch(context.Background(), artistRelation(t, "albums"), parents, parentID))
	require.Len(t, c.ana.Albums, 2)
	require.Len(t, c.victor.Albums, 1)
	require.NotNil(t, c.solo.Albums, "parents without matches get an empty list, not nil")
	require.Empty(t, c.solo.Albums)

	require.NoError(t, loader.LoadBatch(context.Background(), artistRelation(t, "profile"), parents, parentID))
	require.NotNil(t, c.ana.Profile)
	require.Nil(t, c.victor.Profile)
	require.Nil(t, c.solo.Profile)

	require.NoError(t, loader.LoadBatch(context.Background(), artistRelation(t, "genres"), parents, parentID))
	require.Len(t, c.ana.Genres, 2)
	require.Len(t, c.victor.Genres, 1)
	require.Empty(t, c.solo.Genres)
}

func TestLoadBatch_ManyToOne(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	c := seedCatalog(t, db)
	loader := relation.NewLoader(db)

	var albums []*testsupport.Album
	require.NoError(t, db.NewSelect().Model(&albums).Order("year").Scan(context.Background()))
	albums = append(albums, &testsupport.Album{ID: uuid.New(), Title: "Orphan"})

	relations, err := testsupport.AlbumRelations()
	require.NoError(t, err)

	parents := make([]any, len(albums))
	for i, a := range albums {
		parents[i] = a
	}
	parentID := func(p any) uuid.UUID { return p.(*testsupport.Album).ID }

	require.NoError(t, loader.LoadBatch(context.Background(), relations["artist"], parents, parentID))
	for _, album := range albums {
		if album.Title == "Orphan" {
			require.Nil(t, album.Artist)
			continue
		}
		require.NotNil(t, album.Artist, "album %s should resolve its artist", album.Title)
	}
	require.Equal(t, c.victor.ID, albums[0].Artist.ID)
}

func TestLoadBatch_EmptyParents(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	seedCatalog(t, db)
	loader := relation.NewLoader(db)

	err := loader.LoadBatch(context.Background(), artistRelation(t, "albums"), nil, func(any) uuid.UUID { return uuid.Nil })
	require.NoError(t, err)
}

func TestBatchHelpers(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	c := seedCatalog(t, db)
	ctx := context.Background()
	ids := []uuid.UUID{c.ana.ID, c.victor.ID, c.solo.ID}

	albums, err := relation.LoadOneToManyBatch(ctx, db, "artist_id", ids,
		func(a *testsupport.Album) uuid.UUID { return a.ArtistID })
	require.NoError(t, err)
	require.Len(t, albums[c.ana.ID], 2)
	require.Empty(t, albums[c.solo.ID])

	profiles, err := relation.LoadOneToOneBatch(ctx, db, "artist_id", ids,
		func(p *testsupport.ArtistProfile) uuid.UUID { return p.ArtistID })
	require.NoError(t, err)
	require.NotNil(t, profiles[c.ana.ID])
	require.Nil(t, profiles[c.victor.ID])

	artists, err := relation.LoadManyToOneBatch(ctx, db, "id", []uuid.UUID{c.ana.ID, uuid.New()},
		func(a *testsupport.Artist) uuid.UUID { return a.ID })
	require.NoError(t, err)
	require.NotNil(t, artists[c.ana.ID])

	genres, err := relation.LoadManyToManyBatch(ctx, db,
		relation.JoinTable{Name: "artist_genres", ForeignKey: "artist_id", RelatedKey: "genre_id"},
		"id", ids, func(g *testsupport.Genre) uuid.UUID { return g.ID })
	require.NoError(t, err)
	require.Len(t, genres[c.ana.ID], 2)
	require.Empty(t, genres[c.solo.ID])
}

func TestOneToMany_RejectsUnknownColumn(t *testing.T) {
	_, err := relation.OneToMany[testsupport.Artist, testsupport.Album](
		testsupport.AlbumsTable(), "missing_fk",
		func(a *testsupport.Album) uuid.UUID { return a.ArtistID },
		func(p *testsupport.Artist, children []*testsupport.Album) {},
	)
	require.Error(t, err)
}
