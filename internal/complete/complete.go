// Package complete produces context-aware SQL completion suggestions,
// per spec.md §4.7. It is pure and side-effect-free: given a prefix and
// a catalog snapshot, it always returns the same ordered suggestion
// list with no I/O.
package complete

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/mrorigo/tuiql/internal/catalog"
)

// Keywords is the static reserved-word lexicon, per spec.md §4.7 (~60 tokens).
var Keywords = []string{
	"SELECT", "FROM", "WHERE", "GROUP", "BY", "ORDER", "HAVING", "LIMIT",
	"OFFSET", "JOIN", "LEFT", "RIGHT", "INNER", "OUTER", "CROSS", "ON",
	"AS", "DISTINCT", "INSERT", "INTO", "VALUES", "UPDATE", "SET",
	"DELETE", "CREATE", "TABLE", "VIEW", "INDEX", "TRIGGER", "DROP",
	"ALTER", "ADD", "COLUMN", "RENAME", "PRIMARY", "KEY", "FOREIGN",
	"REFERENCES", "UNIQUE", "NOT", "NULL", "DEFAULT", "CHECK", "CONSTRAINT",
	"BEGIN", "COMMIT", "ROLLBACK", "TRANSACTION", "AND", "OR", "IN",
	"BETWEEN", "LIKE", "GLOB", "IS", "EXISTS", "CASE", "WHEN", "THEN",
	"ELSE", "END", "UNION", "ALL", "EXCEPT", "INTERSECT", "ASC", "DESC",
	"WITH", "RECURSIVE", "PRAGMA", "EXPLAIN", "ATTACH", "DETACH", "VACUUM",
}

// Functions is the static built-in function lexicon, per spec.md §4.7
// (~40 tokens, rendered with a call-parenthesis pair).
var Functions = []string{
	"count", "sum", "avg", "min", "max", "abs", "round", "length",
	"lower", "upper", "trim", "ltrim", "rtrim", "replace", "substr",
	"instr", "printf", "coalesce", "ifnull", "nullif", "typeof", "cast",
	"date", "time", "datetime", "julianday", "strftime", "random",
	"randomblob", "hex", "quote", "zeroblob", "total", "group_concat",
	"json_extract", "json_each", "json_tree", "json_array", "json_object",
	"json_set", "json", "like", "glob",
}

// Pragmas is the static pragma-name lexicon consulted when the prefix
// begins with "PRAGMA ", per spec.md §4.7.
var Pragmas = []string{
	"foreign_keys", "journal_mode", "page_size", "table_info",
	"index_list", "index_info", "foreign_key_list", "busy_timeout",
	"cache_size", "synchronous", "user_version", "application_id",
	"compile_options", "integrity_check", "quick_check",
}

// Kind classifies a Suggestion's origin.
type Kind int

const (
	KindKeyword Kind = iota
	KindFunction
	KindPragma
	KindTable
	KindColumn
)

// Suggestion is one completion candidate with the score it was ranked by.
type Suggestion struct {
	Text  string
	Kind  Kind
	Score int
}

// Complete returns an ordered, de-duplicated suggestion list for prefix
// against cat, per spec.md §4.7. Matching is case-insensitive and only
// candidates that start with the prefix are returned; see rank for the
// ordering.
func Complete(prefix string, cat *catalog.Catalog) []Suggestion {
	trimmed := strings.TrimSpace(prefix)
	upper := strings.ToUpper(trimmed)

	if strings.HasPrefix(upper, "PRAGMA ") {
		arg := strings.TrimSpace(trimmed[len("PRAGMA "):])
		return rank(arg, namesOf(Pragmas, KindPragma))
	}

	var candidates []candidate
	candidates = append(candidates, namesOf(Keywords, KindKeyword)...)
	candidates = append(candidates, namesOf(Functions, KindFunction)...)

	if cat != nil {
		if dot := strings.LastIndex(trimmed, "."); dot >= 0 {
			table := trimmed[:dot]
			colPrefix := trimmed[dot+1:]
			if t, ok := cat.Table(table); ok {
				var cols []candidate
				for _, c := range t.Columns {
					cols = append(cols, candidate{name: c.Name, kind: KindColumn})
				}
				return rank(colPrefix, cols)
			}
		}

		for _, name := range cat.TableNames() {
			candidates = append(candidates, candidate{name: name, kind: KindTable})
			t, _ := cat.Table(name)
			for _, c := range t.Columns {
				candidates = append(candidates, candidate{name: c.Name, kind: KindColumn})
			}
		}
	}

	return rank(trimmed, candidates)
}

type candidate struct {
	name string
	kind Kind
}

func namesOf(names []string, kind Kind) []candidate {
	out := make([]candidate, len(names))
	for i, n := range names {
		out[i] = candidate{name: n, kind: kind}
	}
	return out
}

// rank scores candidates against prefix and returns a de-duplicated,
// ordered suggestion list sorted by score (lower is better), then
// alphabetically. Candidates that do not start with the prefix are
// dropped, and the edit distance between the prefix and a matching
// name's leading characters is always 0, so every returned suggestion
// scores 0 and the order is alphabetical.
func rank(prefix string, candidates []candidate) []Suggestion {
	lowerPrefix := strings.ToLower(prefix)
	seen := make(map[string]bool)
	var out []Suggestion

	for _, c := range candidates {
		key := strings.ToLower(c.name) + "|" + kindKey(c.kind)
		if seen[key] {
			continue
		}
		lowerName := strings.ToLower(c.name)
		isPrefix := strings.HasPrefix(lowerName, lowerPrefix)
		if lowerPrefix != "" && !isPrefix {
			continue
		}
		seen[key] = true

		score := 0
		if lowerPrefix != "" {
			score = levenshtein.ComputeDistance(lowerPrefix, lowerName[:min(len(lowerPrefix), len(lowerName))])
		}
		out = append(out, Suggestion{Text: renderText(c), Kind: c.kind, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return strings.ToLower(out[i].Text) < strings.ToLower(out[j].Text)
	})

	return out
}

func renderText(c candidate) string {
	if c.kind == KindFunction {
		return c.name + "()"
	}
	return c.name
}

func kindKey(k Kind) string {
	switch k {
	case KindKeyword:
		return "kw"
	case KindFunction:
		return "fn"
	case KindPragma:
		return "pg"
	case KindTable:
		return "tb"
	case KindColumn:
		return "co"
	default:
		return "?"
	}
}
