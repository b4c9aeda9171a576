// Package plan runs EXPLAIN QUERY PLAN, builds the resulting forest, and
// renders it as an ASCII tree, per spec.md §4.4.
package plan

import (
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mrorigo/tuiql/internal/catalog"
)

// OpKind classifies a plan node's detail string.
type OpKind int

const (
	OpScan OpKind = iota
	OpSearch
	OpUseIndex
	OpSubquery
	OpOther
)

var (
	reScan       = regexp.MustCompile(`^SCAN `)
	reSearch     = regexp.MustCompile(`^SEARCH .+ USING (INDEX|COVERING INDEX|INTEGER PRIMARY KEY)`)
	reSubquery   = regexp.MustCompile(`SUBQUERY`)
	reTableName  = regexp.MustCompile(`(?:SCAN|SEARCH) (?:TABLE )?(\S+)`)
	reIndexName  = regexp.MustCompile(`USING (?:INDEX|COVERING INDEX) (\S+)`)
)

// Node is one row of EXPLAIN QUERY PLAN, annotated per spec.md §3.
type Node struct {
	ID       int
	ParentID int
	Detail   string
	Op       OpKind
	Table    string
	Index    string
	MayNeedIndex bool

	Elapsed      time.Duration
	HasElapsed   bool
	EstimatedRows int64
	HasEstimate  bool

	Children []*Node
}

// classify determines Op/Table/Index from a detail string, per spec.md §4.4.
func classify(detail string) (OpKind, string, string) {
	switch {
	case reSearch.MatchString(detail):
		// SEARCH ... USING {INDEX,COVERING INDEX,INTEGER PRIMARY KEY} is
		// index use in every case; only a named INDEX/COVERING INDEX
		// carries an index name to report.
		table := ""
		if m := reTableName.FindStringSubmatch(detail); len(m) > 1 {
			table = m[1]
		}
		index := ""
		if m := reIndexName.FindStringSubmatch(detail); len(m) > 1 {
			index = m[1]
		}
		return OpUseIndex, table, index
	case reScan.MatchString(detail):
		table := ""
		if m := reTableName.FindStringSubmatch(detail); len(m) > 1 {
			table = m[1]
		}
		return OpScan, table, ""
	case reSubquery.MatchString(detail):
		return OpSubquery, "", ""
	default:
		return OpOther, "", ""
	}
}

// Parse runs EXPLAIN QUERY PLAN <sqlText> and builds the forest, per
// spec.md §4.4. If cat is non-nil, scan nodes are flagged MayNeedIndex
// when the table carries an index the query didn't use.
func Parse(db *sql.DB, sqlText string, cat *catalog.Catalog) ([]*Node, error) {
	rows, err := db.Query("EXPLAIN QUERY PLAN " + sqlText)
	if err != nil {
		return nil, fmt.Errorf("explain query plan: %w", err)
	}
	defer rows.Close()

	byID := make(map[int]*Node)
	var order []int

	for rows.Next() {
		var id, parent, notused int
		var detail string
		if err := rows.Scan(&id, &parent, &notused, &detail); err != nil {
			return nil, fmt.Errorf("scan plan row: %w", err)
		}
		op, table, index := classify(detail)
		n := &Node{ID: id, ParentID: parent, Detail: detail, Op: op, Table: table, Index: index}
		if op == OpScan && cat != nil {
			if t, ok := cat.Table(table); ok && len(t.Indexes) > 0 {
				n.MayNeedIndex = true
			}
		}
		byID[id] = n
		order = append(order, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var roots []*Node
	for _, id := range order {
		n := byID[id]
		if n.ParentID == 0 {
			roots = append(roots, n)
			continue
		}
		if parent, ok := byID[n.ParentID]; ok {
			parent.Children = append(parent.Children, n)
		} else {
			// Orphaned row with an unknown parent still surfaces as a
			// root rather than being silently dropped.
			roots = append(roots, n)
		}
	}

	return roots, nil
}

// ParseEnhanced runs the query under a measured wall-clock timer and
// overlays elapsed/row-estimate hints, per spec.md §4.4's "enhanced" mode.
func ParseEnhanced(db *sql.DB, sqlText string, cat *catalog.Catalog, rowThreshold int64) ([]*Node, time.Duration, error) {
	roots, err := Parse(db, sqlText, cat)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	rows, err := db.Query(sqlText)
	if err != nil {
		return nil, 0, fmt.Errorf("execute for timing: %w", err)
	}
	for rows.Next() {
	}
	rows.Close()
	elapsed := time.Since(start)

	var annotate func(*Node)
	annotate = func(n *Node) {
		n.Elapsed = elapsed
		n.HasElapsed = true
		if cat != nil && n.Table != "" {
			if t, ok := cat.Table(n.Table); ok && t.RowCount != catalog.RowCountUnknown {
				n.EstimatedRows = t.RowCount
				n.HasEstimate = true
			}
		}
		for _, c := range n.Children {
			annotate(c)
		}
	}
	for _, r := range roots {
		annotate(r)
	}

	return roots, elapsed, nil
}

// Render draws the forest as an ASCII tree using "├──"/"└──" connectors,
// siblings in original row order, per spec.md §4.4.
func Render(roots []*Node, rowThreshold int64) string {
	var b strings.Builder
	sorted := append([]*Node(nil), roots...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for i, n := range sorted {
		renderNode(&b, n, "", i == len(sorted)-1, rowThreshold)
	}
	return b.String()
}

func renderNode(b *strings.Builder, n *Node, prefix string, last bool, rowThreshold int64) {
	connector := "├── "
	childPrefix := prefix + "│   "
	if last {
		connector = "└── "
		childPrefix = prefix + "    "
	}

	line := n.Detail
	if n.MayNeedIndex {
		line += " (may need index)"
	}
	if n.HasElapsed && n.HasEstimate && n.EstimatedRows > rowThreshold {
		line += " (this scan dominated elapsed time)"
	}
	fmt.Fprintf(b, "%s%s%s\n", prefix, connector, line)

	children := append([]*Node(nil), n.Children...)
	sort.SliceStable(children, func(i, j int) bool { return children[i].ID < children[j].ID })
	for i, c := range children {
		renderNode(b, c, childPrefix, i == len(children)-1, rowThreshold)
	}
}
