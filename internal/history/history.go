// Package history persists executed queries and saved snippets in a
// dedicated SQLite file separate from the working database, per
// spec.md §4.10. Writes are best-effort: a caller that fails to
// persist an entry logs a warning but the REPL keeps running.
package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS query_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	database_name TEXT NOT NULL,
	query TEXT NOT NULL,
	executed_at TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	success INTEGER NOT NULL,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_history_db_time ON query_history(database_name, executed_at DESC);

CREATE TABLE IF NOT EXISTS snippets (
	name TEXT PRIMARY KEY,
	sql TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// Entry is one executed-query record, per spec.md §3.
type Entry struct {
	ID           int64
	DatabaseName string
	Query        string
	ExecutedAt   time.Time
	DurationMs   int64
	Success      bool
	ErrorMessage string
}

// Snippet is a named, saved SQL statement.
type Snippet struct {
	Name      string
	SQL       string
	CreatedAt time.Time
}

// Store is the persistent history/snippet log backed by its own SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if absent) the history database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add appends entry, per spec.md §4.10's append-only invariant. Failure
// to persist is logged, not returned, so the REPL is never blocked by
// a history write.
func (s *Store) Add(entry Entry) {
	_, err := s.db.Exec(
		`INSERT INTO query_history (database_name, query, executed_at, duration_ms, success, error_message)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.DatabaseName, entry.Query, entry.ExecutedAt.UTC().Format(time.RFC3339),
		entry.DurationMs, boolToInt(entry.Success), nullableString(entry.ErrorMessage),
	)
	if err != nil {
		s.logger.Warn("history append failed", "error", err)
	}
}

// Recent returns the most recent entries for dbName (all databases if
// empty), newest first, bounded by limit.
func (s *Store) Recent(dbName string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows *sql.Rows
	var err error
	if dbName == "" {
		rows, err = s.db.Query(
			`SELECT id, database_name, query, executed_at, duration_ms, success, COALESCE(error_message, '')
			 FROM query_history ORDER BY executed_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(
			`SELECT id, database_name, query, executed_at, duration_ms, success, COALESCE(error_message, '')
			 FROM query_history WHERE database_name = ? ORDER BY executed_at DESC LIMIT ?`, dbName, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var executedAt string
		var success int
		if err := rows.Scan(&e.ID, &e.DatabaseName, &e.Query, &executedAt, &e.DurationMs, &success, &e.ErrorMessage); err != nil {
			continue
		}
		e.ExecutedAt, _ = time.Parse(time.RFC3339, executedAt)
		e.Success = success != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear deletes history for dbName, or all history if empty.
func (s *Store) Clear(dbName string) error {
	if dbName == "" {
		_, err := s.db.Exec(`DELETE FROM query_history`)
		return err
	}
	_, err := s.db.Exec(`DELETE FROM query_history WHERE database_name = ?`, dbName)
	return err
}

// SaveSnippet inserts or replaces a named snippet.
func (s *Store) SaveSnippet(name, sqlText string) error {
	_, err := s.db.Exec(
		`INSERT INTO snippets (name, sql, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET sql = excluded.sql, created_at = excluded.created_at`,
		name, sqlText, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Snippet looks up a saved snippet by name.
func (s *Store) Snippet(name string) (Snippet, bool, error) {
	var snip Snippet
	var createdAt string
	err := s.db.QueryRow(`SELECT name, sql, created_at FROM snippets WHERE name = ?`, name).
		Scan(&snip.Name, &snip.SQL, &createdAt)
	if err == sql.ErrNoRows {
		return Snippet{}, false, nil
	}
	if err != nil {
		return Snippet{}, false, err
	}
	snip.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return snip, true, nil
}

// ListSnippets returns every saved snippet, ordered by name.
func (s *Store) ListSnippets() ([]Snippet, error) {
	rows, err := s.db.Query(`SELECT name, sql, created_at FROM snippets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snippet
	for rows.Next() {
		var snip Snippet
		var createdAt string
		if err := rows.Scan(&snip.Name, &snip.SQL, &createdAt); err != nil {
			continue
		}
		snip.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, snip)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
