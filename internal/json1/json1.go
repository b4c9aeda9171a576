// Package json1 composes query fragments against SQLite's JSON1
// extension and probes for its availability, per spec.md §4.8. Like
// package fts5, every helper here returns SQL text only; execution
// goes through the engine package.
package json1

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Available probes for JSON1 support by evaluating a trivial json()
// call; a missing extension surfaces as a query error.
func Available(db *sql.DB) bool {
	var out string
	err := db.QueryRow("SELECT json('1')").Scan(&out)
	return err == nil
}

// Extract composes SELECT json_extract(<column>, <path>) FROM <table>.
func Extract(table, column, path string) string {
	return fmt.Sprintf("SELECT json_extract(%s, '%s') FROM %s", quoteIdent(column), escapeLit(path), quoteIdent(table))
}

// Each composes a SELECT against json_each(<column>) for the given table,
// projecting the iteration key/value columns alongside the path.
func Each(table, column string) string {
	return fmt.Sprintf(
		"SELECT t.rowid, j.key, j.value, j.type, j.fullkey FROM %s AS t, json_each(t.%s) AS j",
		quoteIdent(table), quoteIdent(column),
	)
}

// Tree composes a SELECT against json_tree(<column>), which walks nested
// structures recursively rather than one level at a time.
func Tree(table, column string) string {
	return fmt.Sprintf(
		"SELECT t.rowid, j.key, j.value, j.type, j.fullkey, j.path FROM %s AS t, json_tree(t.%s) AS j",
		quoteIdent(table), quoteIdent(column),
	)
}

// Array composes a json_array(...) literal from raw SQL-expression
// operands (callers are responsible for quoting/parameterizing values).
func Array(exprs []string) string {
	return fmt.Sprintf("json_array(%s)", strings.Join(exprs, ", "))
}

// Object composes a json_object(...) literal from alternating key/value
// expression pairs.
func Object(pairs map[string]string) string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	// Deterministic key order keeps generated SQL stable across calls.
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("'%s', %s", escapeLit(k), pairs[k]))
	}
	return fmt.Sprintf("json_object(%s)", strings.Join(parts, ", "))
}

// Set composes UPDATE <table> SET <column> = json_set(<column>, <path>, <value>).
func Set(table, column, path, valueExpr string) string {
	return fmt.Sprintf(
		"UPDATE %s SET %s = json_set(%s, '%s', %s)",
		quoteIdent(table), quoteIdent(column), quoteIdent(column), escapeLit(path), valueExpr,
	)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func escapeLit(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
