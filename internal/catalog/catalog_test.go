package catalog

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openTest(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoadTablesColumnsAndRowCount(t *testing.T) {
	db := openTest(t)
	db.Exec(`CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)

	cat, err := Load(db)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	names := cat.TableNames()
	if len(names) != 1 || names[0] != "users" {
		t.Fatalf("expected [users], got %v", names)
	}

	tbl, ok := cat.Table("users")
	if !ok {
		t.Fatal("expected users table")
	}
	if tbl.RowCount != 0 {
		t.Errorf("expected empty table row count 0, got %d", tbl.RowCount)
	}
	if len(tbl.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(tbl.Columns))
	}
	if !tbl.Columns[0].PK {
		t.Error("expected id to be PK")
	}
	if !tbl.Columns[1].NotNull {
		t.Error("expected name to be NOT NULL")
	}
}

func TestForeignKeysResolveToSameCatalog(t *testing.T) {
	db := openTest(t)
	db.Exec(`CREATE TABLE users(id INTEGER PRIMARY KEY)`)
	db.Exec(`CREATE TABLE posts(id INTEGER PRIMARY KEY, user_id INTEGER REFERENCES users(id))`)

	cat, err := Load(db)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	posts, ok := cat.Table("posts")
	if !ok {
		t.Fatal("expected posts table")
	}
	if len(posts.ForeignKeys) != 1 {
		t.Fatalf("expected 1 foreign key, got %d", len(posts.ForeignKeys))
	}
	fk := posts.ForeignKeys[0]
	if fk.ToTable != "users" {
		t.Errorf("expected fk to users, got %s", fk.ToTable)
	}
	if _, ok := cat.Table(fk.ToTable); !ok {
		t.Error("foreign key's to-table must resolve in the same catalog")
	}
}

func TestRefreshPicksUpDDL(t *testing.T) {
	db := openTest(t)
	cat, err := Load(db)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cat.TableNames()) != 0 {
		t.Fatal("expected empty catalog")
	}

	db.Exec(`CREATE TABLE t(n INTEGER)`)
	if err := cat.Refresh(db, ""); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(cat.TableNames()) != 1 {
		t.Errorf("expected catalog to reflect CREATE TABLE, got %v", cat.TableNames())
	}
}

func TestIndexesReportUniqueAndColumns(t *testing.T) {
	db := openTest(t)
	db.Exec(`CREATE TABLE t(a INTEGER, b INTEGER)`)
	db.Exec(`CREATE UNIQUE INDEX idx_t_a ON t(a)`)

	cat, err := Load(db)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tbl, _ := cat.Table("t")
	if len(tbl.Indexes) != 1 {
		t.Fatalf("expected 1 index, got %d", len(tbl.Indexes))
	}
	if !tbl.Indexes[0].Unique {
		t.Error("expected unique index")
	}
	if len(tbl.Indexes[0].Columns) != 1 || tbl.Indexes[0].Columns[0] != "a" {
		t.Errorf("expected index on [a], got %v", tbl.Indexes[0].Columns)
	}
}
