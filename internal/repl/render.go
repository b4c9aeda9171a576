package repl

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	_ "modernc.org/sqlite"

	"github.com/mrorigo/tuiql/internal/catalog"
	"github.com/mrorigo/tuiql/internal/engine"
)

// renderResult formats a Result with the tabular printer from spec.md
// §4.12: dynamic column widths, a separator row, and a trailing "(N
// row(s))" line for Rows; "Rows affected: N" plus elapsed for Changes.
func renderResult(res *engine.Result) string {
	if !res.IsRows {
		return fmt.Sprintf("Rows affected: %d (%s)", res.Changes, res.Elapsed)
	}

	t := table.NewWriter()
	header := make(table.Row, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c
	}
	t.AppendHeader(header)

	for _, row := range res.Rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell.String()
		}
		t.AppendRow(r)
	}

	var b strings.Builder
	fmt.Fprintln(&b, t.Render())
	fmt.Fprintf(&b, "(%d row(s))", len(res.Rows))
	return b.String()
}

func openAndLoad(path string) (*catalog.Catalog, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return catalog.Load(db)
}

func exportCSV(res *engine.Result) string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	w.Write(res.Columns)
	for _, row := range res.Rows {
		rec := make([]string, len(row))
		for i, c := range row {
			rec[i] = c.String()
		}
		w.Write(rec)
	}
	w.Flush()
	return b.String()
}

func exportJSON(res *engine.Result) string {
	var records []map[string]string
	for _, row := range res.Rows {
		rec := make(map[string]string, len(row))
		for i, c := range row {
			rec[res.Columns[i]] = c.String()
		}
		records = append(records, rec)
	}
	out, _ := json.MarshalIndent(records, "", "  ")
	return string(out)
}

func exportMarkdown(res *engine.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "| %s |\n", strings.Join(res.Columns, " | "))
	sep := make([]string, len(res.Columns))
	for i := range sep {
		sep[i] = "---"
	}
	fmt.Fprintf(&b, "| %s |\n", strings.Join(sep, " | "))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = c.String()
		}
		fmt.Fprintf(&b, "| %s |\n", strings.Join(cells, " | "))
	}
	return b.String()
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
