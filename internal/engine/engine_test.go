package engine

import (
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := Open(dbPath, Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestOpenCreatesEmptyDB(t *testing.T) {
	e := openTest(t)
	if e.Path() == "" {
		t.Error("expected non-empty path")
	}
	if e.TxState() != TxNone {
		t.Errorf("expected TxNone, got %v", e.TxState())
	}
}

func TestExecuteClassification(t *testing.T) {
	e := openTest(t)

	if _, err := e.Execute("CREATE TABLE t(id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	res, err := e.Execute("INSERT INTO t(name) VALUES ('a')")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if res.IsRows {
		t.Error("insert should produce a Changes result")
	}
	if res.Changes != 1 {
		t.Errorf("expected 1 change, got %d", res.Changes)
	}

	rows, err := e.Execute("SELECT id, name FROM t")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !rows.IsRows {
		t.Error("select should produce a Rows result")
	}
	if len(rows.Rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(rows.Rows))
	}
}

func TestTransactionMonotonicity(t *testing.T) {
	e := openTest(t)
	e.Execute("CREATE TABLE t(n INTEGER)")

	if err := e.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := e.Begin(); err == nil {
		t.Error("expected NestedTransaction on double begin")
	}

	if _, err := e.Execute("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("insert inside tx: %v", err)
	}

	if err := e.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := e.Rollback(); err == nil {
		t.Error("expected NoActiveTransaction on empty rollback")
	}

	res, err := e.Execute("SELECT count(*) FROM t")
	if err != nil {
		t.Fatalf("select count: %v", err)
	}
	if res.Rows[0][0].I != 0 {
		t.Errorf("expected rollback to discard insert, got count=%d", res.Rows[0][0].I)
	}
}

func TestCloseRefusesWithActiveTransaction(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := Open(dbPath, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := e.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := e.Close(); err == nil {
		t.Error("expected Close to refuse while transaction is active")
	}
	e.Rollback()
	if err := e.Close(); err != nil {
		t.Errorf("close after rollback: %v", err)
	}
}

func TestExecuteBatchStopsAtFirstError(t *testing.T) {
	e := openTest(t)

	_, failedIndex, err := e.ExecuteBatch("CREATE TABLE t(n INTEGER); INSERT INTO nosuchtable VALUES (1); INSERT INTO t VALUES (2);")
	if err == nil {
		t.Fatal("expected an error from the batch")
	}
	if failedIndex != 1 {
		t.Errorf("expected failure at index 1, got %d", failedIndex)
	}
}

func TestReadonlyRejectsWrites(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	rw, err := Open(dbPath, Options{})
	if err != nil {
		t.Fatalf("open rw: %v", err)
	}
	rw.Execute("CREATE TABLE t(n INTEGER)")
	rw.Close()

	ro, err := Open(dbPath, Options{Readonly: true})
	if err != nil {
		t.Fatalf("open ro: %v", err)
	}
	defer ro.Close()

	if _, err := ro.Execute("INSERT INTO t VALUES (1)"); err == nil {
		t.Error("expected readonly connection to reject a write")
	}
	if _, err := ro.Execute("SELECT * FROM t"); err != nil {
		t.Errorf("expected readonly connection to allow reads: %v", err)
	}
}

func TestIsQueryAndIsDDL(t *testing.T) {
	cases := []struct {
		sql      string
		isQuery  bool
		isDDL    bool
	}{
		{"SELECT * FROM t", true, false},
		{"  select * from t", true, false},
		{"WITH x AS (SELECT 1) SELECT * FROM x", true, false},
		{"PRAGMA table_info(t)", true, false},
		{"EXPLAIN QUERY PLAN SELECT 1", true, false},
		{"INSERT INTO t VALUES (1)", false, false},
		{"CREATE TABLE t(n INTEGER)", false, true},
		{"ALTER TABLE t ADD COLUMN m INTEGER", false, true},
		{"DROP TABLE t", false, true},
	}
	for _, c := range cases {
		if got := IsQuery(c.sql); got != c.isQuery {
			t.Errorf("IsQuery(%q) = %v, want %v", c.sql, got, c.isQuery)
		}
		if got := IsDDL(c.sql); got != c.isDDL {
			t.Errorf("IsDDL(%q) = %v, want %v", c.sql, got, c.isDDL)
		}
	}
}
