package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFixture(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	testContent := []byte("test fixture content")

	if err := os.WriteFile(testFile, testContent, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	result := LoadFixture(t, testFile)
	if string(result) != string(testContent) {
		t.Errorf("expected %q, got %q", testContent, result)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "artists.json")
	payload := []byte(`[{"name": "Ana Tijoux", "country": "CL", "rating": 5}]`)

	if err := os.WriteFile(testFile, payload, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	var artists []*Artist
	LoadFixtureJSON(t, testFile, &artists)

	if len(artists) != 1 {
		t.Fatalf("expected 1 artist, got %d", len(artists))
	}
	if artists[0].Name != "Ana Tijoux" {
		t.Errorf("expected name Ana Tijoux, got %q", artists[0].Name)
	}
	if artists[0].Rating != 5 {
		t.Errorf("expected rating 5, got %d", artists[0].Rating)
	}
}

func TestFixturePath(t *testing.T) {
	got := FixturePath("artists.json")
	want := filepath.Join("testdata", "artists.json")
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestOpenTestDB(t *testing.T) {
	db := OpenTestDB(t)

	var count int
	if err := db.QueryRow("SELECT count(*) FROM artists").Scan(&count); err != nil {
		t.Fatalf("schema not applied: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty artists table, got %d rows", count)
	}
}

func TestArtistConfig(t *testing.T) {
	cfg, err := ArtistConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Table.Name != "artists" {
		t.Errorf("expected table artists, got %q", cfg.Table.Name)
	}
	for _, name := range []string{"albums", "profile", "genres"} {
		if _, ok := cfg.Relations[name]; !ok {
			t.Errorf("expected relation %q to be declared", name)
		}
	}
}
