// Package catalog introspects a SQLite database's structure — tables,
// views, columns, indexes, foreign keys, triggers — and caches the
// result per spec.md §4.2.
//
// Grounded on the teacher's reload() pattern in internal/core/modules.go
// (query rows into a map, re-run on change) and the PRAGMA-driven
// introspection style used throughout the teacher's schema-adjacent code.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// ColumnInfo mirrors PRAGMA table_info output (spec.md §3).
type ColumnInfo struct {
	Name     string
	Type     string
	NotNull  bool
	Default  string
	HasDef   bool
	PK       bool
	Position int
}

// IndexOrigin matches the origin column of PRAGMA index_list.
type IndexOrigin string

const (
	IndexOriginExplicit IndexOrigin = "c"
	IndexOriginAuto     IndexOrigin = "u"
	IndexOriginPK       IndexOrigin = "pk"
)

// IndexInfo mirrors PRAGMA index_list / index_info.
type IndexInfo struct {
	Name    string
	Unique  bool
	Origin  string
	Columns []string
}

// ForeignKey mirrors PRAGMA foreign_key_list, grouped per constraint.
type ForeignKey struct {
	FromTable   string
	FromColumns []string
	ToTable     string
	ToColumns   []string
	OnDelete    string
	OnUpdate    string
	Deferrable  bool
}

// TriggerInfo records a trigger's defining DDL.
type TriggerInfo struct {
	Name  string
	Table string
	SQL   string
}

// TableInfo is one table or view in the catalog.
type TableInfo struct {
	Name        string
	Kind        string // "table" | "view"
	SQL         string
	Columns     []ColumnInfo
	Indexes     []IndexInfo
	ForeignKeys []ForeignKey
	// RowCount is -1 when the estimate timed out (displayed as "~unknown").
	RowCount int64
}

// RowCountUnknown is the sentinel RowCount value for a timed-out COUNT(*).
const RowCountUnknown int64 = -1

// Catalog is a per-database snapshot, per spec.md §4.2.
type Catalog struct {
	Tables   map[string]*TableInfo
	Triggers []TriggerInfo
	// order holds table/view names sorted alphabetically, matching the
	// ORDER BY name from sqlite_master, so renderers don't need to re-sort.
	order []string
}

// RowCountTimeout bounds each table's COUNT(*) probe (spec.md §4.2 step 3).
var RowCountTimeout = 500 * time.Millisecond

// TableNames returns table/view names in the order sqlite_master
// reported them (alphabetical, per the ORDER BY in spec.md §4.2).
func (c *Catalog) TableNames() []string {
	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

// Table looks up a table or view by name.
func (c *Catalog) Table(name string) (*TableInfo, bool) {
	t, ok := c.Tables[name]
	return t, ok
}

// Load builds a fresh Catalog from db, per spec.md §4.2.
func Load(db *sql.DB) (*Catalog, error) {
	c := &Catalog{Tables: make(map[string]*TableInfo)}
	if err := c.Refresh(db, ""); err != nil {
		return nil, err
	}
	return c, nil
}

// Refresh re-reads a subset (table != "") or all (table == "") of the
// catalog, per spec.md §4.2.
func (c *Catalog) Refresh(db *sql.DB, table string) error {
	rows, err := db.Query(`SELECT name, type, sql FROM sqlite_master WHERE type IN ('table','view','index','trigger') ORDER BY name`)
	if err != nil {
		return fmt.Errorf("load sqlite_master: %w", err)
	}
	defer rows.Close()

	tables := make(map[string]*TableInfo)
	var order []string
	var triggers []TriggerInfo

	for rows.Next() {
		var name, typ string
		var sqlText sql.NullString
		if err := rows.Scan(&name, &typ, &sqlText); err != nil {
			continue
		}
		switch typ {
		case "table", "view":
			if table != "" && name != table {
				if existing, ok := c.Tables[name]; ok {
					tables[name] = existing
					order = append(order, name)
					continue
				}
			}
			tables[name] = &TableInfo{Name: name, Kind: typ, SQL: sqlText.String}
			order = append(order, name)
		case "trigger":
			triggers = append(triggers, TriggerInfo{Name: name, SQL: sqlText.String})
		case "index":
			// index details come from PRAGMA index_list per table below;
			// sqlite_master's index rows are skipped here.
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan sqlite_master: %w", err)
	}

	for name, t := range tables {
		if t.Kind != "table" && t.Kind != "view" {
			continue
		}
		if err := loadColumns(db, t); err != nil {
			return fmt.Errorf("columns for %s: %w", name, err)
		}
		if t.Kind == "table" {
			if err := loadIndexes(db, t); err != nil {
				return fmt.Errorf("indexes for %s: %w", name, err)
			}
			if err := loadForeignKeys(db, t); err != nil {
				return fmt.Errorf("foreign keys for %s: %w", name, err)
			}
			t.RowCount = estimateRowCount(db, name)
		}
	}

	sort.Strings(order)
	c.Tables = tables
	c.order = order
	c.Triggers = triggers
	return nil
}

func loadColumns(db *sql.DB, t *TableInfo) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", t.Name))
	if err != nil {
		return err
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		cols = append(cols, ColumnInfo{
			Name:     name,
			Type:     ctype,
			NotNull:  notnull != 0,
			Default:  dflt.String,
			HasDef:   dflt.Valid,
			PK:       pk != 0,
			Position: cid,
		})
	}
	t.Columns = cols
	return rows.Err()
}

func loadIndexes(db *sql.DB, t *TableInfo) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA index_list(%q)", t.Name))
	if err != nil {
		return err
	}
	defer rows.Close()

	var indexes []IndexInfo
	for rows.Next() {
		var seq int
		var name string
		var unique int
		var origin string
		var partial int
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			continue
		}
		idx := IndexInfo{Name: name, Unique: unique != 0, Origin: origin}
		idx.Columns = indexColumns(db, name)
		indexes = append(indexes, idx)
	}
	t.Indexes = indexes
	return rows.Err()
}

func indexColumns(db *sql.DB, indexName string) []string {
	rows, err := db.Query(fmt.Sprintf("PRAGMA index_info(%q)", indexName))
	if err != nil {
		return nil
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			continue
		}
		cols = append(cols, name.String)
	}
	return cols
}

func loadForeignKeys(db *sql.DB, t *TableInfo) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA foreign_key_list(%q)", t.Name))
	if err != nil {
		return err
	}
	defer rows.Close()

	grouped := make(map[int]*ForeignKey)
	var ids []int
	for rows.Next() {
		var id, seq int
		var table, from, to, onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &table, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			continue
		}
		fk, ok := grouped[id]
		if !ok {
			fk = &ForeignKey{FromTable: t.Name, ToTable: table, OnDelete: onDelete, OnUpdate: onUpdate}
			grouped[id] = fk
			ids = append(ids, id)
		}
		fk.FromColumns = append(fk.FromColumns, from)
		fk.ToColumns = append(fk.ToColumns, to)
	}
	sort.Ints(ids)
	var fks []ForeignKey
	for _, id := range ids {
		fks = append(fks, *grouped[id])
	}
	t.ForeignKeys = fks
	return rows.Err()
}

// estimateRowCount runs SELECT COUNT(*) guarded by RowCountTimeout,
// returning RowCountUnknown on timeout (spec.md §4.2 step 3).
func estimateRowCount(db *sql.DB, table string) int64 {
	ctx, cancel := context.WithTimeout(context.Background(), RowCountTimeout)
	defer cancel()

	var n int64
	err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&n)
	if err != nil {
		return RowCountUnknown
	}
	return n
}
