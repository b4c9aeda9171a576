// Package fts5 composes DDL/DML/query templates for SQLite's FTS5
// full-text search extension and detects its availability, per
// spec.md §4.8. Helpers return SQL text only — actual execution goes
// through the engine package, which keeps this package testable
// without a connection.
package fts5

import (
	"database/sql"
	"fmt"
	"strings"
)

// Available probes SQLite for FTS5 support by scanning PRAGMA
// compile_options for ENABLE_FTS5; no table is created.
func Available(db *sql.DB) bool {
	rows, err := db.Query("PRAGMA compile_options")
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var opt string
		if err := rows.Scan(&opt); err != nil {
			continue
		}
		if strings.Contains(strings.ToUpper(opt), "ENABLE_FTS5") {
			return true
		}
	}
	return false
}

// List enumerates FTS5 virtual tables by textual match on sqlite_master.sql,
// per spec.md §4.8.
func List(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT name, sql FROM sqlite_master WHERE type='table'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		var ddl sql.NullString
		if err := rows.Scan(&name, &ddl); err != nil {
			continue
		}
		if strings.Contains(strings.ToUpper(ddl.String), "USING FTS5") {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

// Create emits CREATE VIRTUAL TABLE ... USING fts5(...) DDL.
func Create(name string, cols []string, tokenizer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE VIRTUAL TABLE %s USING fts5(%s", quoteIdent(name), strings.Join(cols, ", "))
	if tokenizer != "" {
		fmt.Fprintf(&b, ", tokenize='%s'", tokenizer)
	}
	b.WriteString(")")
	return b.String()
}

// Populate emits an INSERT ... SELECT statement to back-fill an FTS5
// table from an existing source table.
func Populate(name, source string, cols []string) string {
	colList := strings.Join(cols, ", ")
	return fmt.Sprintf("INSERT INTO %s(%s) SELECT %s FROM %s", quoteIdent(name), colList, colList, quoteIdent(source))
}

// SearchOptions controls MATCH query composition.
type SearchOptions struct {
	RankOrder bool
	Highlight *HighlightSpec
	Snippet   *SnippetSpec
}

// HighlightSpec composes an fts5 highlight() projection.
type HighlightSpec struct {
	Column            string
	StartTag, EndTag  string
}

// SnippetSpec composes an fts5 snippet() projection.
type SnippetSpec struct {
	Column           string
	StartTag, EndTag string
	Ellipsis         string
	TokenCount       int
}

// Search composes a SELECT using MATCH, optional rank ordering, and an
// optional highlight()/snippet() projection, per spec.md §4.8.
func Search(name, matchExpr string, opts SearchOptions) string {
	projection := "*"
	switch {
	case opts.Highlight != nil:
		h := opts.Highlight
		projection = fmt.Sprintf("highlight(%s, 0, '%s', '%s')", quoteIdent(name), h.StartTag, h.EndTag)
	case opts.Snippet != nil:
		s := opts.Snippet
		projection = fmt.Sprintf("snippet(%s, 0, '%s', '%s', '%s', %d)", quoteIdent(name), s.StartTag, s.EndTag, s.Ellipsis, s.TokenCount)
	}

	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s MATCH '%s'", projection, quoteIdent(name), quoteIdent(name), escapeMatch(matchExpr))
	if opts.RankOrder {
		q += " ORDER BY rank"
	}
	return q
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func escapeMatch(expr string) string {
	return strings.ReplaceAll(expr, "'", "''")
}
