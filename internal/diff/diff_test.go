package diff

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/mrorigo/tuiql/internal/catalog"
	_ "modernc.org/sqlite"
)

func loadCatalog(t *testing.T, ddl string) *catalog.Catalog {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if ddl != "" {
		if _, err := db.Exec(ddl); err != nil {
			t.Fatalf("ddl: %v", err)
		}
	}
	cat, err := catalog.Load(db)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cat
}

func TestDiffRoundTripIsEmpty(t *testing.T) {
	c := loadCatalog(t, `CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT)`)
	entries := Diff(c, c)
	if len(entries) != 0 {
		t.Errorf("diff(C,C) should be empty, got %v", entries)
	}
}

func TestDiffScenarioFromSpec(t *testing.T) {
	a := loadCatalog(t, `CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT)`)
	b := loadCatalog(t, `
		CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT, email TEXT);
		CREATE TABLE posts(id INTEGER PRIMARY KEY, user_id INTEGER);
	`)

	entries := Diff(a, b)

	if len(entries) != 2 {
		t.Fatalf("expected exactly 2 entries, got %d: %v", len(entries), entries)
	}
	if entries[0].Kind != TableAdded || entries[0].Table != "posts" {
		t.Errorf("expected TableAdded(posts) first, got %v", entries[0])
	}
	if entries[1].Kind != ColumnAdded || entries[1].Table != "users" || entries[1].Column != "email" {
		t.Errorf("expected ColumnAdded(users,email) second, got %v", entries[1])
	}
}

func TestDiffAntiSymmetry(t *testing.T) {
	a := loadCatalog(t, `CREATE TABLE t(a INTEGER)`)
	b := loadCatalog(t, `CREATE TABLE t(a INTEGER, b INTEGER)`)

	forward := Diff(a, b)
	backward := Diff(b, a)

	if len(forward) != 1 || forward[0].Kind != ColumnAdded {
		t.Fatalf("expected one ColumnAdded forward, got %v", forward)
	}
	if len(backward) != 1 || backward[0].Kind != ColumnRemoved {
		t.Fatalf("expected one ColumnRemoved backward, got %v", backward)
	}
	if forward[0].Table != backward[0].Table || forward[0].Column != backward[0].Column {
		t.Errorf("anti-symmetric diffs should name the same table/column")
	}
}

func TestDiffDetectsColumnChange(t *testing.T) {
	a := loadCatalog(t, `CREATE TABLE t(a TEXT)`)
	b := loadCatalog(t, `CREATE TABLE t(a INTEGER NOT NULL)`)

	entries := Diff(a, b)
	if len(entries) != 1 || entries[0].Kind != ColumnChanged {
		t.Fatalf("expected one ColumnChanged entry, got %v", entries)
	}
}
