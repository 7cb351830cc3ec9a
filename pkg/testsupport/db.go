package testsupport

import (
	"database/sql"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE artists (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	country TEXT,
	rating INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP
);

CREATE TABLE albums (
	id TEXT PRIMARY KEY,
	artist_id TEXT NOT NULL REFERENCES artists (id),
	title TEXT NOT NULL,
	year INTEGER
);

CREATE TABLE artist_profiles (
	id TEXT PRIMARY KEY,
	artist_id TEXT NOT NULL UNIQUE REFERENCES artists (id),
	website TEXT
);

CREATE TABLE genres (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE artist_genres (
	artist_id TEXT NOT NULL REFERENCES artists (id),
	genre_id TEXT NOT NULL REFERENCES genres (id),
	PRIMARY KEY (artist_id, genre_id)
);

CREATE TABLE artist_translations (
	id TEXT PRIMARY KEY,
	artist_id TEXT NOT NULL REFERENCES artists (id),
	locale TEXT NOT NULL,
	name TEXT,
	bio TEXT,
	UNIQUE (artist_id, locale)
);
`

// ApplySchema creates the catalog tables on db. Useful when the database
// handle comes from somewhere other than OpenTestDB.
func ApplySchema(db *bun.DB) error {
	_, err := db.Exec(schema)
	return err
}

// OpenTestDB opens a fresh in-memory sqlite database with the catalog
// schema applied. The pool is pinned to a single connection so the
// in-memory database survives for the duration of the test; the handle
// closes with the test.
func OpenTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)
	sqldb.SetConnMaxIdleTime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := ApplySchema(db); err != nil {
		db.Close()
		t.Fatalf("apply schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}
