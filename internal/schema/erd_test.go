package schema

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
	if _, err := db.Exec(ddl); err != nil {
		t.Fatalf("ddl: %v", err)
	}
	cat, err := catalog.Load(db)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cat
}

func TestComponentsPartitionNodes(t *testing.T) {
	cat := loadCatalog(t, `
		CREATE TABLE a(id INTEGER PRIMARY KEY);
		CREATE TABLE b(id INTEGER PRIMARY KEY, a_id INTEGER REFERENCES a(id));
		CREATE TABLE c(id INTEGER PRIMARY KEY);
	`)
	g := Build(cat)

	seen := make(map[string]bool)
	for _, name := range g.TableNames() {
		seen[name] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(seen))
	}
	if g.Nodes["a"].ComponentID != g.Nodes["b"].ComponentID {
		t.Error("a and b should share a component")
	}
	if g.Nodes["c"].ComponentID == g.Nodes["a"].ComponentID {
		t.Error("c should be its own component")
	}
}

func TestAcyclicGraphHasNoCycleParticipants(t *testing.T) {
	cat := loadCatalog(t, `
		CREATE TABLE a(id INTEGER PRIMARY KEY, b_id INTEGER);
		CREATE TABLE b(id INTEGER PRIMARY KEY, a_id INTEGER REFERENCES a(id));
	`)
	// a.b_id declares no foreign key, so the only edge is b -> a and no
	// table may be flagged as part of a cycle.
	g := Build(cat)
	for _, name := range g.TableNames() {
		if g.Nodes[name].PartOfCycle {
			t.Errorf("unexpected cycle participant %s in acyclic graph", name)
		}
	}
}

func TestInDegreeCountsReferences(t *testing.T) {
	cat := loadCatalog(t, `
		CREATE TABLE users(id INTEGER PRIMARY KEY);
		CREATE TABLE posts(id INTEGER PRIMARY KEY, user_id INTEGER REFERENCES users(id));
		CREATE TABLE comments(id INTEGER PRIMARY KEY, user_id INTEGER REFERENCES users(id));
	`)
	g := Build(cat)
	if g.Nodes["users"].InDegree != 2 {
		t.Errorf("expected in-degree 2 for users, got %d", g.Nodes["users"].InDegree)
	}
}

func TestRenderIsDeterministicAndASCIIByDefault(t *testing.T) {
	cat := loadCatalog(t, `
		CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT);
		CREATE TABLE posts(id INTEGER PRIMARY KEY, user_id INTEGER REFERENCES users(id));
	`)
	g := Build(cat)

	out1 := Render(cat, g, RenderOptions{})
	out2 := Render(cat, g, RenderOptions{})
	if out1 != out2 {
		t.Error("Render should be deterministic")
	}
	for _, r := range out1 {
		if r > 127 {
			t.Fatalf("expected pure ASCII by default, found %q", r)
		}
	}
}
