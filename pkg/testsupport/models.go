package testsupport

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-persistence-bun/fieldmap"
	"github.com/goliatone/go-persistence-bun/relation"
	"github.com/goliatone/go-persistence-bun/repository"
	"github.com/goliatone/go-persistence-bun/translatable"
)

// The music-catalog domain used across package tests: artists with albums,
// genres, an optional profile, and per-locale translations.

type Artist struct {
	bun.BaseModel `bun:"table:artists,alias:artists"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Country   string    `bun:"country" json:"country"`
	Rating    int       `bun:"rating" json:"rating"`
	CreatedAt time.Time `bun:"created_at,nullzero" json:"created_at"`

	Albums       []*Album             `bun:"-" json:"albums,omitempty"`
	Genres       []*Genre             `bun:"-" json:"genres,omitempty"`
	Profile      *ArtistProfile       `bun:"-" json:"profile,omitempty"`
	Translation  *ArtistTranslation   `bun:"-" json:"translation,omitempty"`
	Translations []*ArtistTranslation `bun:"-" json:"translations,omitempty"`
}

type Album struct {
	bun.BaseModel `bun:"table:albums,alias:albums"`

	ID       uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ArtistID uuid.UUID `bun:"artist_id,type:uuid" json:"artist_id"`
	Title    string    `bun:"title,notnull" json:"title"`
	Year     int       `bun:"year" json:"year"`

	Artist *Artist `bun:"-" json:"artist,omitempty"`
}

type ArtistProfile struct {
	bun.BaseModel `bun:"table:artist_profiles,alias:artist_profiles"`

	ID       uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ArtistID uuid.UUID `bun:"artist_id,type:uuid" json:"artist_id"`
	Website  string    `bun:"website" json:"website"`
}

type Genre struct {
	bun.BaseModel `bun:"table:genres,alias:genres"`

	ID   uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name string    `bun:"name,notnull" json:"name"`
}

type ArtistTranslation struct {
	bun.BaseModel `bun:"table:artist_translations,alias:artist_translations"`

	ID       uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ArtistID uuid.UUID `bun:"artist_id,type:uuid" json:"artist_id"`
	Locale   string    `bun:"locale,notnull" json:"locale"`
	Name     string    `bun:"name" json:"name"`
	Bio      string    `bun:"bio" json:"bio"`
}

func ArtistsTable() fieldmap.Table {
	return fieldmap.Table{
		Name:    "artists",
		ID:      "id",
		Columns: []string{"id", "name", "country", "rating", "created_at"},
	}
}

func AlbumsTable() fieldmap.Table {
	return fieldmap.Table{
		Name:    "albums",
		ID:      "id",
		Columns: []string{"id", "artist_id", "title", "year"},
	}
}

func ArtistProfilesTable() fieldmap.Table {
	return fieldmap.Table{
		Name:    "artist_profiles",
		ID:      "id",
		Columns: []string{"id", "artist_id", "website"},
	}
}

func GenresTable() fieldmap.Table {
	return fieldmap.Table{
		Name:    "genres",
		ID:      "id",
		Columns: []string{"id", "name"},
	}
}

func ArtistTranslationsTable() fieldmap.Table {
	return fieldmap.Table{
		Name:    "artist_translations",
		ID:      "id",
		Columns: []string{"id", "artist_id", "locale", "name", "bio"},
	}
}

func ArtistHandlers() repository.ModelHandlers[*Artist] {
	return repository.ModelHandlers[*Artist]{
		NewRecord: func() *Artist { return &Artist{} },
		GetID:     func(a *Artist) uuid.UUID { return a.ID },
		SetID:     func(a *Artist, id uuid.UUID) { a.ID = id },
	}
}

func AlbumHandlers() repository.ModelHandlers[*Album] {
	return repository.ModelHandlers[*Album]{
		NewRecord: func() *Album { return &Album{} },
		GetID:     func(a *Album) uuid.UUID { return a.ID },
		SetID:     func(a *Album, id uuid.UUID) { a.ID = id },
	}
}

func ArtistTranslationHandlers() translatable.TranslationHandlers[*ArtistTranslation] {
	return translatable.TranslationHandlers[*ArtistTranslation]{
		NewRecord:   func() *ArtistTranslation { return &ArtistTranslation{} },
		GetID:       func(tr *ArtistTranslation) uuid.UUID { return tr.ID },
		SetID:       func(tr *ArtistTranslation, id uuid.UUID) { tr.ID = id },
		EntityID:    func(tr *ArtistTranslation) uuid.UUID { return tr.ArtistID },
		SetEntityID: func(tr *ArtistTranslation, id uuid.UUID) { tr.ArtistID = id },
		Locale:      func(tr *ArtistTranslation) string { return tr.Locale },
	}
}

// ArtistRelations declares the artist's album, genre, and profile relations.
func ArtistRelations() (map[string]relation.Config, error) {
	albums, err := relation.OneToMany[Artist, Album](
		AlbumsTable(), "artist_id",
		func(a *Album) uuid.UUID { return a.ArtistID },
		func(p *Artist, children []*Album) { p.Albums = children },
	)
	if err != nil {
		return nil, err
	}

	profile, err := relation.OneToOne[Artist, ArtistProfile](
		ArtistProfilesTable(), "artist_id",
		func(p *ArtistProfile) uuid.UUID { return p.ArtistID },
		func(a *Artist, p *ArtistProfile) { a.Profile = p },
	)
	if err != nil {
		return nil, err
	}

	genres, err := relation.ManyToMany[Artist, Genre](
		GenresTable(),
		relation.JoinTable{Name: "artist_genres", ForeignKey: "artist_id", RelatedKey: "genre_id"},
		func(g *Genre) uuid.UUID { return g.ID },
		func(a *Artist, children []*Genre) { a.Genres = children },
	)
	if err != nil {
		return nil, err
	}

	return map[string]relation.Config{
		"albums":  albums,
		"profile": profile,
		"genres":  genres,
	}, nil
}

// AlbumRelations declares the album's owning-artist relation.
func AlbumRelations() (map[string]relation.Config, error) {
	artist, err := relation.ManyToOne[Album, Artist](
		ArtistsTable(), "artist_id",
		func(al *Album) (uuid.UUID, bool) { return al.ArtistID, al.ArtistID != uuid.Nil },
		func(a *Artist) uuid.UUID { return a.ID },
		func(al *Album, a *Artist) { al.Artist = a },
	)
	if err != nil {
		return nil, err
	}
	return map[string]relation.Config{"artist": artist}, nil
}

// ArtistConfig assembles the base repository configuration for artists.
func ArtistConfig() (repository.Config[*Artist], error) {
	relations, err := ArtistRelations()
	if err != nil {
		return repository.Config[*Artist]{}, err
	}
	return repository.Config[*Artist]{
		Table:     ArtistsTable(),
		Relations: relations,
		Handlers:  ArtistHandlers(),
	}, nil
}

// AlbumConfig assembles the base repository configuration for albums.
func AlbumConfig() (repository.Config[*Album], error) {
	relations, err := AlbumRelations()
	if err != nil {
		return repository.Config[*Album]{}, err
	}
	return repository.Config[*Album]{
		Table:     AlbumsTable(),
		Relations: relations,
		Handlers:  AlbumHandlers(),
	}, nil
}

// TranslatableArtistConfig assembles the translatable repository
// configuration for artists with english as the fallback locale.
func TranslatableArtistConfig() (translatable.Config[*Artist, *ArtistTranslation], error) {
	base, err := ArtistConfig()
	if err != nil {
		return translatable.Config[*Artist, *ArtistTranslation]{}, err
	}
	return translatable.Config[*Artist, *ArtistTranslation]{
		Config:              base,
		TranslationTable:    ArtistTranslationsTable(),
		EntityKey:           "artist_id",
		LocaleColumn:        "locale",
		DefaultLocale:       "en",
		TranslationHandlers: ArtistTranslationHandlers(),
		Attach:              func(a *Artist, tr *ArtistTranslation) { a.Translation = tr },
		AttachAll:           func(a *Artist, trs []*ArtistTranslation) { a.Translations = trs },
	}, nil
}
