package json1

import (
	"database/sql"
	"path/filepath"
	"strings"
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

func TestAvailableOnModerncSqlite(t *testing.T) {
	db := openTest(t)
	if !Available(db) {
		t.Skip("json1 not compiled into this sqlite build")
	}
}

func TestExtractComposesSelect(t *testing.T) {
	q := Extract("users", "profile", "$.name")
	if !strings.Contains(q, "json_extract(") || !strings.Contains(q, "$.name") {
		t.Errorf("unexpected extract SQL: %q", q)
	}
}

func TestEachComposesLateralJoin(t *testing.T) {
	q := Each("users", "tags")
	if !strings.Contains(q, "json_each(t.") {
		t.Errorf("unexpected each SQL: %q", q)
	}
}

func TestTreeComposesLateralJoin(t *testing.T) {
	q := Tree("users", "profile")
	if !strings.Contains(q, "json_tree(t.") {
		t.Errorf("unexpected tree SQL: %q", q)
	}
}

func TestArrayJoinsExpressions(t *testing.T) {
	got := Array([]string{"1", "2", "'three'"})
	want := "json_array(1, 2, 'three')"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestObjectIsKeyOrderDeterministic(t *testing.T) {
	pairs := map[string]string{"b": "2", "a": "1"}
	got1 := Object(pairs)
	got2 := Object(pairs)
	if got1 != got2 {
		t.Fatal("Object should be deterministic across calls")
	}
	if !strings.HasPrefix(got1, "json_object('a', 1, 'b', 2") {
		t.Errorf("expected sorted key order, got %q", got1)
	}
}

func TestSetComposesUpdate(t *testing.T) {
	q := Set("users", "profile", "$.name", "'Ada'")
	if !strings.Contains(q, `UPDATE "users" SET`) || !strings.Contains(q, "json_set(") {
		t.Errorf("unexpected set SQL: %q", q)
	}
}

func TestExtractRoundTripsAgainstRealJSON(t *testing.T) {
	db := openTest(t)
	if !Available(db) {
		t.Skip("json1 not compiled into this sqlite build")
	}
	if _, err := db.Exec(`CREATE TABLE docs(id INTEGER PRIMARY KEY, data TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO docs(data) VALUES ('{"name":"Ada"}')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var name string
	if err := db.QueryRow(Extract("docs", "data", "$.name")).Scan(&name); err != nil {
		t.Fatalf("extract query: %v", err)
	}
	if name != "Ada" {
		t.Errorf("got %q want Ada", name)
	}
}
