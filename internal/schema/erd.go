// Package schema derives the entity-relationship graph from a catalog
// and renders it as deterministic ASCII (or optionally Unicode) text,
// per spec.md §4.3.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mrorigo/tuiql/internal/catalog"
)

// Node is a table in the ER graph with derived connectivity fields.
type Node struct {
	Table        string
	InDegree     int
	OutDegree    int
	ComponentID  int
	PartOfCycle  bool
}

// Edge is a directed foreign-key reference from child to parent.
type Edge struct {
	From string // child (the table holding the FK)
	To   string // parent (the referenced table)
}

// Graph is the derived ER graph, per spec.md §3.
type Graph struct {
	Nodes map[string]*Node
	Edges []Edge
	order []string
}

// TableNames returns table names in catalog order.
func (g *Graph) TableNames() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Build derives the ER graph from cat, per spec.md §4.3.
func Build(cat *catalog.Catalog) *Graph {
	g := &Graph{Nodes: make(map[string]*Node)}

	names := cat.TableNames()
	g.order = names
	for _, name := range names {
		g.Nodes[name] = &Node{Table: name}
	}

	for _, name := range names {
		t, _ := cat.Table(name)
		for _, fk := range t.ForeignKeys {
			if _, ok := g.Nodes[fk.ToTable]; !ok {
				continue
			}
			g.Edges = append(g.Edges, Edge{From: name, To: fk.ToTable})
		}
	}

	for _, e := range g.Edges {
		g.Nodes[e.From].OutDegree++
		g.Nodes[e.To].InDegree++
	}

	assignComponents(g)
	markCycles(g)

	return g
}

// assignComponents computes weakly connected components via union-find,
// satisfying the partition invariant from spec.md §3.
func assignComponents(g *Graph) {
	parent := make(map[string]string, len(g.order))
	for _, n := range g.order {
		parent[n] = n
	}
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	for _, e := range g.Edges {
		union(e.From, e.To)
	}

	ids := make(map[string]int)
	nextID := 0
	for _, n := range g.order {
		root := find(n)
		id, ok := ids[root]
		if !ok {
			id = nextID
			ids[root] = id
			nextID++
		}
		g.Nodes[n].ComponentID = id
	}
}

// markCycles runs DFS with three-color marking and flags every node
// that participates in a cycle, per spec.md §4.3.
func markCycles(g *Graph) {
	adj := make(map[string][]string)
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.order))
	for _, n := range g.order {
		color[n] = white
	}
	inCycle := make(map[string]bool)

	var stack []string
	var visit func(string)
	visit = func(u string) {
		color[u] = gray
		stack = append(stack, u)
		for _, v := range adj[u] {
			switch color[v] {
			case white:
				visit(v)
			case gray:
				// Found a back edge u->v: everything on the stack from
				// v onward participates in the cycle.
				for i := len(stack) - 1; i >= 0; i-- {
					inCycle[stack[i]] = true
					if stack[i] == v {
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
	}
	for _, n := range g.order {
		if color[n] == white {
			visit(n)
		}
	}

	for n, v := range inCycle {
		if v {
			g.Nodes[n].PartOfCycle = true
		}
	}
}

// RenderOptions controls glyph selection for Render.
type RenderOptions struct {
	Unicode bool
	Focus   string // render only this table and its direct relationships, if non-empty
}

// Render produces the deterministic text ERD from spec.md §4.3: sections
// ordered by group ("highly connected" first, then "independent"),
// tables ordered lexicographically within a group, columns in declared
// order, relationships listed below each table.
func Render(cat *catalog.Catalog, g *Graph, opts RenderOptions) string {
	var highly, independent []string
	for _, name := range g.TableNames() {
		n := g.Nodes[name]
		if n.InDegree >= 2 || n.PartOfCycle {
			highly = append(highly, name)
		} else {
			independent = append(independent, name)
		}
	}
	sort.Strings(highly)
	sort.Strings(independent)

	if opts.Focus != "" {
		highly = filterFocus(highly, g, opts.Focus)
		independent = filterFocus(independent, g, opts.Focus)
	}

	var b strings.Builder
	arrow := "->"
	if opts.Unicode {
		arrow = "→"
	}

	writeSection := func(title string, names []string) {
		if len(names) == 0 {
			return
		}
		fmt.Fprintf(&b, "== %s ==\n", title)
		for _, name := range names {
			t, ok := cat.Table(name)
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "%s\n", name)
			for _, c := range t.Columns {
				marker := ""
				if c.PK {
					marker = " [PK]"
				}
				fmt.Fprintf(&b, "  %s %s%s\n", c.Name, c.Type, marker)
			}
			for _, fk := range t.ForeignKeys {
				fmt.Fprintf(&b, "  %s %s %s\n", strings.Join(fk.FromColumns, ","), arrow, fk.ToTable)
			}
		}
		b.WriteString("\n")
	}

	writeSection("Highly connected", highly)
	writeSection("Independent", independent)

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func filterFocus(names []string, g *Graph, focus string) []string {
	var out []string
	for _, n := range names {
		if n == focus || isRelated(g, focus, n) {
			out = append(out, n)
		}
	}
	return out
}

func isRelated(g *Graph, a, b string) bool {
	for _, e := range g.Edges {
		if (e.From == a && e.To == b) || (e.From == b && e.To == a) {
			return true
		}
	}
	return false
}
