// Package diff compares two catalogs and emits ordered structural
// differences, per spec.md §4.9.
package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mrorigo/tuiql/internal/catalog"
)

// Kind identifies the tagged difference variant from spec.md §3.
type Kind int

const (
	TableAdded Kind = iota
	TableRemoved
	ColumnAdded
	ColumnRemoved
	ColumnChanged
	IndexAdded
	IndexRemoved
	ForeignKeyAdded
	ForeignKeyRemoved
)

func (k Kind) String() string {
	switch k {
	case TableAdded:
		return "TableAdded"
	case TableRemoved:
		return "TableRemoved"
	case ColumnAdded:
		return "ColumnAdded"
	case ColumnRemoved:
		return "ColumnRemoved"
	case ColumnChanged:
		return "ColumnChanged"
	case IndexAdded:
		return "IndexAdded"
	case IndexRemoved:
		return "IndexRemoved"
	case ForeignKeyAdded:
		return "ForeignKeyAdded"
	case ForeignKeyRemoved:
		return "ForeignKeyRemoved"
	default:
		return "Unknown"
	}
}

// Entry is one structural difference.
type Entry struct {
	Kind    Kind
	Table   string
	Column  string
	Attr    string // which attribute changed, for ColumnChanged
	From    string
	To      string
}

func (e Entry) String() string {
	switch e.Kind {
	case TableAdded, TableRemoved:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Table)
	case ColumnAdded, ColumnRemoved:
		return fmt.Sprintf("%s(%s,%s)", e.Kind, e.Table, e.Column)
	case ColumnChanged:
		return fmt.Sprintf("%s(%s,%s,%s,%s)", e.Kind, e.Table, e.Column, e.From, e.To)
	case IndexAdded, IndexRemoved, ForeignKeyAdded, ForeignKeyRemoved:
		return fmt.Sprintf("%s(%s,%s)", e.Kind, e.Table, e.Column)
	default:
		return e.Kind.String()
	}
}

// Diff compares catalogs a (before) and b (after) and returns a stable,
// canonically-ordered list: sorted by kind then lexical name, per
// spec.md §4.9 / §3.
func Diff(a, b *catalog.Catalog) []Entry {
	var entries []Entry

	aNames := setOf(a.TableNames())
	bNames := setOf(b.TableNames())

	for name := range bNames {
		if !aNames[name] {
			entries = append(entries, Entry{Kind: TableAdded, Table: name})
		}
	}
	for name := range aNames {
		if !bNames[name] {
			entries = append(entries, Entry{Kind: TableRemoved, Table: name})
		}
	}

	for name := range aNames {
		if !bNames[name] {
			continue
		}
		ta, _ := a.Table(name)
		tb, _ := b.Table(name)
		entries = append(entries, diffColumns(name, ta, tb)...)
		entries = append(entries, diffIndexes(name, ta, tb)...)
		entries = append(entries, diffForeignKeys(name, ta, tb)...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		return entryKey(entries[i]) < entryKey(entries[j])
	})

	return entries
}

func entryKey(e Entry) string {
	return e.Table + "\x00" + e.Column
}

func setOf(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func diffColumns(table string, a, b *catalog.TableInfo) []Entry {
	var entries []Entry

	aCols := make(map[string]catalog.ColumnInfo)
	for _, c := range a.Columns {
		aCols[c.Name] = c
	}
	bCols := make(map[string]catalog.ColumnInfo)
	for _, c := range b.Columns {
		bCols[c.Name] = c
	}

	for name := range bCols {
		if _, ok := aCols[name]; !ok {
			entries = append(entries, Entry{Kind: ColumnAdded, Table: table, Column: name})
		}
	}
	for name := range aCols {
		if _, ok := bCols[name]; !ok {
			entries = append(entries, Entry{Kind: ColumnRemoved, Table: table, Column: name})
		}
	}
	for name, ca := range aCols {
		cb, ok := bCols[name]
		if !ok {
			continue
		}
		if changed, from, to := columnAttrDiff(ca, cb); changed {
			entries = append(entries, Entry{Kind: ColumnChanged, Table: table, Column: name, From: from, To: to})
		}
	}

	return entries
}

// columnAttrDiff compares type, notnull, default, pk — position-free, per
// spec.md §4.9 step 2.
func columnAttrDiff(a, b catalog.ColumnInfo) (changed bool, from, to string) {
	var fromParts, toParts []string
	if a.Type != b.Type {
		fromParts = append(fromParts, "type="+a.Type)
		toParts = append(toParts, "type="+b.Type)
	}
	if a.NotNull != b.NotNull {
		fromParts = append(fromParts, fmt.Sprintf("notnull=%v", a.NotNull))
		toParts = append(toParts, fmt.Sprintf("notnull=%v", b.NotNull))
	}
	if a.Default != b.Default || a.HasDef != b.HasDef {
		fromParts = append(fromParts, "default="+a.Default)
		toParts = append(toParts, "default="+b.Default)
	}
	if a.PK != b.PK {
		fromParts = append(fromParts, fmt.Sprintf("pk=%v", a.PK))
		toParts = append(toParts, fmt.Sprintf("pk=%v", b.PK))
	}
	if len(fromParts) == 0 {
		return false, "", ""
	}
	return true, strings.Join(fromParts, ";"), strings.Join(toParts, ";")
}

// diffIndexes treats auto-created unique indexes as equal if their
// covered columns match, per spec.md §4.9 step 3.
func diffIndexes(table string, a, b *catalog.TableInfo) []Entry {
	var entries []Entry

	aKeys := indexKeySet(a.Indexes)
	bKeys := indexKeySet(b.Indexes)

	for key, name := range bKeys {
		if _, ok := aKeys[key]; !ok {
			entries = append(entries, Entry{Kind: IndexAdded, Table: table, Column: name})
		}
	}
	for key, name := range aKeys {
		if _, ok := bKeys[key]; !ok {
			entries = append(entries, Entry{Kind: IndexRemoved, Table: table, Column: name})
		}
	}
	return entries
}

func indexKeySet(indexes []catalog.IndexInfo) map[string]string {
	m := make(map[string]string)
	for _, idx := range indexes {
		key := fmt.Sprintf("%v|%s", idx.Unique, strings.Join(idx.Columns, ","))
		m[key] = idx.Name
	}
	return m
}

// diffForeignKeys keys a foreign key by (from-cols, to-table, to-cols),
// per spec.md §4.9 step 4.
func diffForeignKeys(table string, a, b *catalog.TableInfo) []Entry {
	var entries []Entry

	aKeys := fkKeySet(a.ForeignKeys)
	bKeys := fkKeySet(b.ForeignKeys)

	for key := range bKeys {
		if _, ok := aKeys[key]; !ok {
			entries = append(entries, Entry{Kind: ForeignKeyAdded, Table: table, Column: key})
		}
	}
	for key := range aKeys {
		if _, ok := bKeys[key]; !ok {
			entries = append(entries, Entry{Kind: ForeignKeyRemoved, Table: table, Column: key})
		}
	}
	return entries
}

func fkKeySet(fks []catalog.ForeignKey) map[string]bool {
	m := make(map[string]bool, len(fks))
	for _, fk := range fks {
		key := fmt.Sprintf("%s->%s(%s)", strings.Join(fk.FromColumns, ","), fk.ToTable, strings.Join(fk.ToColumns, ","))
		m[key] = true
	}
	return m
}
