// Package repl implements the meta-command dispatcher and REPL kernel
// from spec.md §4.5 and §4.12: parsing a line into either a meta-command
// or free-form SQL, routing it to the right subsystem, and keeping the
// session's transaction/catalog state coherent afterward.
//
// Grounded on the teacher's chat.go main loop (readline.NewEx, signal
// handling, a single dispatch switch) and intent.go's line-parsing shape
// (prefix token + whitespace-split arguments), adapted from free-form
// chat intents to the fixed command table in spec.md §6.
package repl

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/mrorigo/tuiql/internal/complete"
	"github.com/mrorigo/tuiql/internal/diff"
	"github.com/mrorigo/tuiql/internal/engine"
	"github.com/mrorigo/tuiql/internal/fts5"
	"github.com/mrorigo/tuiql/internal/json1"
	"github.com/mrorigo/tuiql/internal/kernelerr"
	"github.com/mrorigo/tuiql/internal/lint"
	"github.com/mrorigo/tuiql/internal/plan"
	"github.com/mrorigo/tuiql/internal/plugin"
	"github.com/mrorigo/tuiql/internal/schema"
	"github.com/mrorigo/tuiql/internal/session"
)

// commandNames is the static, exhaustive command table from spec.md §6,
// used both for dispatch and for UnknownCommand suggestions.
var commandNames = []string{
	"open", "attach", "ro", "rw", "begin", "commit", "rollback", "pragma",
	"tables", "erd", "plan", "plan_enhanced", "fts5", "json", "diff",
	"hist", "export", "find", "snip", "plugin", "help", "quit",
}

// Outcome is what a dispatched command produced, for the REPL kernel to
// render.
type Outcome struct {
	Text     string
	Warnings []lint.Warning
	Quit     bool
}

// Dispatcher routes parsed lines to command handlers or the execution
// engine, per spec.md §4.5.
type Dispatcher struct {
	sess    *session.Session
	plugins *plugin.Registry
}

// New builds a Dispatcher bound to sess. The plugin registry is loaded
// lazily from the conventional plugin directory on first :plugin use.
func New(sess *session.Session) *Dispatcher {
	return &Dispatcher{sess: sess}
}

// Close releases the plugin directory watcher, if one was armed.
func (d *Dispatcher) Close() error {
	if d.plugins != nil {
		return d.plugins.Close()
	}
	return nil
}

// Dispatch handles one input line. Meta-commands (prefix ":") never
// enter history; SQL does (spec.md §4.5).
func (d *Dispatcher) Dispatch(line string) (Outcome, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Outcome{}, nil
	}

	if strings.HasPrefix(trimmed, ":") {
		return d.dispatchCommand(trimmed[1:])
	}
	return d.dispatchSQL(trimmed)
}

func (d *Dispatcher) dispatchCommand(rest string) (Outcome, error) {
	args := splitArgs(rest)
	if len(args) == 0 {
		return Outcome{}, nil
	}
	name, rest := args[0], args[1:]

	switch name {
	case "open":
		return d.cmdOpen(rest)
	case "attach":
		return d.cmdAttach(rest)
	case "ro":
		return d.cmdSetReadonly(true)
	case "rw":
		return d.cmdSetReadonly(false)
	case "begin":
		return d.cmdBegin()
	case "commit":
		return d.cmdCommit()
	case "rollback":
		return d.cmdRollback()
	case "pragma":
		return d.cmdPragma(rest)
	case "tables":
		return d.cmdTables()
	case "erd":
		return d.cmdERD(rest)
	case "plan":
		return d.cmdPlan(rest, false)
	case "plan_enhanced":
		return d.cmdPlan(rest, true)
	case "fts5":
		return d.cmdFTS5(rest)
	case "json":
		return d.cmdJSON(rest)
	case "diff":
		return d.cmdDiff(rest)
	case "hist":
		return d.cmdHist(rest)
	case "export":
		return d.cmdExport(rest)
	case "find":
		return d.cmdFind(rest)
	case "snip":
		return d.cmdSnip(rest)
	case "plugin":
		return d.cmdPlugin(rest)
	case "help":
		return d.cmdHelp()
	case "quit":
		return Outcome{Quit: true}, nil
	default:
		return Outcome{}, &kernelerr.UnknownCommandError{Name: name, Suggestions: closestCommands(name, 3)}
	}
}

func (d *Dispatcher) dispatchSQL(stmt string) (Outcome, error) {
	warnings := lint.Check(stmt, d.sess.Engine.TxState() == engine.TxActive)
	if lint.HasDanger(warnings) && !d.sess.SafeOff {
		return Outcome{Warnings: warnings}, kernelerr.New(kernelerr.CategoryCommand, "re-run with confirmation", kernelerr.ErrDangerWithheld)
	}

	res, err := d.sess.Engine.Execute(stmt)
	if err != nil {
		return Outcome{Warnings: warnings}, err
	}
	d.sess.SetLastResult(res)

	if isSchemaMutating(stmt) {
		if refreshErr := d.sess.RefreshCatalog(""); refreshErr != nil {
			return Outcome{Warnings: warnings}, refreshErr
		}
	}

	return Outcome{Text: renderResult(res), Warnings: warnings}, nil
}

// ExecuteConfirmed re-runs stmt bypassing the Danger confirmation gate,
// used by the REPL kernel once the user has confirmed explicitly.
func (d *Dispatcher) ExecuteConfirmed(stmt string) (Outcome, error) {
	res, err := d.sess.Engine.Execute(stmt)
	if err != nil {
		return Outcome{}, err
	}
	d.sess.SetLastResult(res)
	if isSchemaMutating(stmt) {
		if refreshErr := d.sess.RefreshCatalog(""); refreshErr != nil {
			return Outcome{}, refreshErr
		}
	}
	return Outcome{Text: renderResult(res)}, nil
}

func (d *Dispatcher) cmdOpen(args []string) (Outcome, error) {
	if len(args) != 1 {
		return Outcome{}, argCountError("open", "<path>")
	}
	if err := d.sess.Reopen(args[0], d.sess.Engine.Readonly()); err != nil {
		return Outcome{}, err
	}
	return Outcome{Text: fmt.Sprintf("opened %s", args[0])}, nil
}

func (d *Dispatcher) cmdAttach(args []string) (Outcome, error) {
	if len(args) != 2 {
		return Outcome{}, argCountError("attach", "<name> <path>")
	}
	if err := d.sess.Attach(args[0], args[1]); err != nil {
		return Outcome{}, err
	}
	return Outcome{Text: fmt.Sprintf("attached %s as %s", args[1], args[0])}, nil
}

func (d *Dispatcher) cmdSetReadonly(readonly bool) (Outcome, error) {
	if err := d.sess.Engine.SetReadonly(readonly); err != nil {
		return Outcome{}, err
	}
	if readonly {
		return Outcome{Text: "readonly mode enabled"}, nil
	}
	return Outcome{Text: "read-write mode enabled"}, nil
}

func (d *Dispatcher) cmdBegin() (Outcome, error) {
	if err := d.sess.Engine.Begin(); err != nil {
		return Outcome{}, err
	}
	return Outcome{Text: "transaction started"}, nil
}

func (d *Dispatcher) cmdCommit() (Outcome, error) {
	if err := d.sess.Engine.Commit(); err != nil {
		return Outcome{}, err
	}
	return Outcome{Text: "transaction committed"}, nil
}

func (d *Dispatcher) cmdRollback() (Outcome, error) {
	if err := d.sess.Engine.Rollback(); err != nil {
		return Outcome{}, err
	}
	return Outcome{Text: "transaction rolled back"}, nil
}

func (d *Dispatcher) cmdPragma(args []string) (Outcome, error) {
	if len(args) == 0 {
		return Outcome{}, argCountError("pragma", "<name> [value]")
	}
	var stmt string
	if len(args) == 1 {
		stmt = fmt.Sprintf("PRAGMA %s", args[0])
	} else {
		stmt = fmt.Sprintf("PRAGMA %s=%s", args[0], strings.Join(args[1:], " "))
	}
	res, err := d.sess.Engine.Execute(stmt)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Text: renderResult(res)}, nil
}

func (d *Dispatcher) cmdTables() (Outcome, error) {
	names := d.sess.Catalog.TableNames()
	if len(names) == 0 {
		return Outcome{Text: "(no tables)"}, nil
	}
	var b strings.Builder
	for _, name := range names {
		t, _ := d.sess.Catalog.Table(name)
		rowCount := "~unknown"
		if t.RowCount >= 0 {
			rowCount = strconv.FormatInt(t.RowCount, 10)
		}
		fmt.Fprintf(&b, "%s (%s rows)\n", name, rowCount)
		for _, c := range t.Columns {
			marker := ""
			if c.PK {
				marker += " [PK]"
			}
			if c.NotNull {
				marker += " NOT NULL"
			}
			fmt.Fprintf(&b, "  %s%s %s\n", c.Name, marker, c.Type)
		}
	}
	return Outcome{Text: strings.TrimRight(b.String(), "\n")}, nil
}

func (d *Dispatcher) cmdERD(args []string) (Outcome, error) {
	opts := schema.RenderOptions{}
	if len(args) > 0 {
		opts.Focus = args[0]
	}
	g := schema.Build(d.sess.Catalog)
	return Outcome{Text: schema.Render(d.sess.Catalog, g, opts)}, nil
}

func (d *Dispatcher) cmdPlan(args []string, enhanced bool) (Outcome, error) {
	stmt := strings.Join(args, " ")
	if strings.TrimSpace(stmt) == "" {
		return Outcome{}, argCountError("plan", "<sql statement>")
	}
	if enhanced {
		roots, _, err := plan.ParseEnhanced(d.sess.Engine.DB(), stmt, d.sess.Catalog, 10000)
		if err != nil {
			return Outcome{}, kernelerr.New(kernelerr.CategorySchema, "", err)
		}
		return Outcome{Text: plan.Render(roots, 10000)}, nil
	}
	roots, err := plan.Parse(d.sess.Engine.DB(), stmt, d.sess.Catalog)
	if err != nil {
		return Outcome{}, kernelerr.New(kernelerr.CategorySchema, "", err)
	}
	return Outcome{Text: plan.Render(roots, 10000)}, nil
}

func (d *Dispatcher) cmdFTS5(args []string) (Outcome, error) {
	if len(args) == 0 {
		return Outcome{}, argCountError("fts5", "help|list|create …|populate …|search …")
	}
	switch args[0] {
	case "help":
		return Outcome{Text: "fts5 list | fts5 create <name> <col,col,...> [tokenizer] | fts5 populate <name> <source> <col,col,...> | fts5 search <name> <match-expr>"}, nil
	case "list":
		names, err := fts5.List(d.sess.Engine.DB())
		if err != nil {
			return Outcome{}, kernelerr.New(kernelerr.CategorySchema, "", err)
		}
		return Outcome{Text: strings.Join(names, "\n")}, nil
	case "create":
		if len(args) < 3 {
			return Outcome{}, argCountError("fts5 create", "<name> <col,col,...> [tokenizer]")
		}
		tokenizer := ""
		if len(args) > 3 {
			tokenizer = args[3]
		}
		stmt := fts5.Create(args[1], strings.Split(args[2], ","), tokenizer)
		res, err := d.sess.Engine.Execute(stmt)
		if err != nil {
			return Outcome{}, err
		}
		d.sess.RefreshCatalog("")
		return Outcome{Text: renderResult(res)}, nil
	case "populate":
		if len(args) < 4 {
			return Outcome{}, argCountError("fts5 populate", "<name> <source> <col,col,...>")
		}
		stmt := fts5.Populate(args[1], args[2], strings.Split(args[3], ","))
		res, err := d.sess.Engine.Execute(stmt)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Text: renderResult(res)}, nil
	case "search":
		if len(args) < 3 {
			return Outcome{}, argCountError("fts5 search", "<name> <match-expr>")
		}
		stmt := fts5.Search(args[1], strings.Join(args[2:], " "), fts5.SearchOptions{RankOrder: true})
		res, err := d.sess.Engine.Execute(stmt)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Text: renderResult(res)}, nil
	default:
		return Outcome{}, &kernelerr.UnknownCommandError{Name: "fts5 " + args[0]}
	}
}

func (d *Dispatcher) cmdJSON(args []string) (Outcome, error) {
	if len(args) == 0 {
		return Outcome{}, argCountError("json", "help|extract …")
	}
	switch args[0] {
	case "help":
		return Outcome{Text: "json extract <table> <column> <path> | json each <table> <column> | json tree <table> <column>"}, nil
	case "extract":
		if len(args) != 4 {
			return Outcome{}, argCountError("json extract", "<table> <column> <path>")
		}
		res, err := d.sess.Engine.Execute(json1.Extract(args[1], args[2], args[3]))
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Text: renderResult(res)}, nil
	case "each":
		if len(args) != 3 {
			return Outcome{}, argCountError("json each", "<table> <column>")
		}
		res, err := d.sess.Engine.Execute(json1.Each(args[1], args[2]))
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Text: renderResult(res)}, nil
	case "tree":
		if len(args) != 3 {
			return Outcome{}, argCountError("json tree", "<table> <column>")
		}
		res, err := d.sess.Engine.Execute(json1.Tree(args[1], args[2]))
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Text: renderResult(res)}, nil
	default:
		return Outcome{}, &kernelerr.UnknownCommandError{Name: "json " + args[0]}
	}
}

func (d *Dispatcher) cmdDiff(args []string) (Outcome, error) {
	if len(args) != 2 {
		return Outcome{}, argCountError("diff", "<dbA> <dbB>")
	}
	catA, err := openAndLoad(args[0])
	if err != nil {
		return Outcome{}, err
	}
	catB, err := openAndLoad(args[1])
	if err != nil {
		return Outcome{}, err
	}
	entries := diff.Diff(catA, catB)
	if len(entries) == 0 {
		return Outcome{Text: "(no differences)"}, nil
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintln(&b, e.String())
	}
	return Outcome{Text: strings.TrimRight(b.String(), "\n")}, nil
}

func (d *Dispatcher) cmdHist(args []string) (Outcome, error) {
	limit := 20
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			limit = n
		}
	}
	entries, err := d.sess.History.Recent(d.sess.Engine.Path(), limit)
	if err != nil {
		return Outcome{}, kernelerr.New(kernelerr.CategoryDatabase, "", err)
	}
	if len(entries) == 0 {
		return Outcome{Text: "(no history)"}, nil
	}
	var b strings.Builder
	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = "error: " + e.ErrorMessage
		}
		fmt.Fprintf(&b, "[%s] %dms %s — %s\n", e.ExecutedAt.Format("2006-01-02 15:04:05"), e.DurationMs, status, e.Query)
	}
	return Outcome{Text: strings.TrimRight(b.String(), "\n")}, nil
}

func (d *Dispatcher) cmdExport(args []string) (Outcome, error) {
	if len(args) == 0 {
		return Outcome{}, argCountError("export", "csv|json|md [path]")
	}
	res, ok := d.sess.LastResult()
	if !ok {
		return Outcome{}, kernelerr.New(kernelerr.CategoryUI, "run a query first", fmt.Errorf("no result to export"))
	}
	var out string
	switch args[0] {
	case "csv":
		out = exportCSV(res)
	case "json":
		out = exportJSON(res)
	case "md":
		out = exportMarkdown(res)
	default:
		return Outcome{}, kernelerr.New(kernelerr.CategoryUI, "use csv, json, or md", fmt.Errorf("unknown export format %q", args[0]))
	}
	if len(args) > 1 {
		if err := writeFile(args[1], out); err != nil {
			return Outcome{}, kernelerr.New(kernelerr.CategoryUI, "check the path is writable", err)
		}
		return Outcome{Text: fmt.Sprintf("exported to %s", args[1])}, nil
	}
	return Outcome{Text: out}, nil
}

func (d *Dispatcher) cmdFind(args []string) (Outcome, error) {
	if len(args) != 1 {
		return Outcome{}, argCountError("find", "<text>")
	}
	needle := strings.ToLower(args[0])
	var b strings.Builder
	for _, name := range d.sess.Catalog.TableNames() {
		t, _ := d.sess.Catalog.Table(name)
		if strings.Contains(strings.ToLower(name), needle) {
			fmt.Fprintf(&b, "table %s\n", name)
		}
		for _, c := range t.Columns {
			if strings.Contains(strings.ToLower(c.Name), needle) {
				fmt.Fprintf(&b, "column %s.%s\n", name, c.Name)
			}
		}
	}
	if b.Len() == 0 {
		return Outcome{Text: "(no matches)"}, nil
	}
	return Outcome{Text: strings.TrimRight(b.String(), "\n")}, nil
}

func (d *Dispatcher) cmdSnip(args []string) (Outcome, error) {
	if len(args) == 0 {
		return Outcome{}, argCountError("snip", "save|run|list")
	}
	switch args[0] {
	case "save":
		if len(args) < 3 {
			return Outcome{}, argCountError("snip save", "<name> <sql>")
		}
		sqlText := strings.Join(args[2:], " ")
		for _, w := range lint.CheckSnippet(sqlText, false) {
			_ = w // surfaced by the caller's renderer; saving still proceeds
		}
		if err := d.sess.History.SaveSnippet(args[1], sqlText); err != nil {
			return Outcome{}, kernelerr.New(kernelerr.CategoryDatabase, "", err)
		}
		return Outcome{Text: fmt.Sprintf("saved %s", args[1]), Warnings: lint.CheckSnippet(sqlText, false)}, nil
	case "run":
		if len(args) != 2 {
			return Outcome{}, argCountError("snip run", "<name>")
		}
		snip, ok, err := d.sess.History.Snippet(args[1])
		if err != nil {
			return Outcome{}, kernelerr.New(kernelerr.CategoryDatabase, "", err)
		}
		if !ok {
			return Outcome{}, kernelerr.New(kernelerr.CategoryCommand, "", fmt.Errorf("no snippet named %q", args[1]))
		}
		return d.dispatchSQL(snip.SQL)
	case "list":
		snips, err := d.sess.History.ListSnippets()
		if err != nil {
			return Outcome{}, kernelerr.New(kernelerr.CategoryDatabase, "", err)
		}
		if len(snips) == 0 {
			return Outcome{Text: "(no snippets)"}, nil
		}
		var b strings.Builder
		for _, s := range snips {
			fmt.Fprintf(&b, "%s: %s\n", s.Name, s.SQL)
		}
		return Outcome{Text: strings.TrimRight(b.String(), "\n")}, nil
	default:
		return Outcome{}, &kernelerr.UnknownCommandError{Name: "snip " + args[0]}
	}
}

// cmdPlugin looks up a descriptor by name under the plugin directory and
// invokes it synchronously, streaming its combined output back as Outcome
// text, per spec.md §4.11.
func (d *Dispatcher) cmdPlugin(args []string) (Outcome, error) {
	if len(args) == 0 {
		return Outcome{}, argCountError("plugin", "<name> [args…]")
	}
	name, invokeArgs := args[0], args[1:]

	if err := d.loadPlugins(); err != nil {
		return Outcome{}, err
	}
	desc, ok := d.plugins.Get(name)
	if !ok {
		return Outcome{}, &kernelerr.UnknownCommandError{Name: "plugin " + name, Suggestions: closestPluginNames(d.plugins, name, 3)}
	}

	var out bytes.Buffer
	traceID, err := plugin.Invoke(desc, invokeArgs, &out, &out)
	if d.sess.Logger != nil {
		d.sess.Logger.Debug("plugin invocation", "name", name, "trace_id", traceID)
	}
	if err != nil {
		return Outcome{Text: strings.TrimRight(out.String(), "\n")}, err
	}
	return Outcome{Text: strings.TrimRight(out.String(), "\n")}, nil
}

// loadPlugins populates the registry from <home>/.tuiql/plugins on first
// use and arms a directory watcher so plugins dropped in later are
// picked up without restarting the session; a missing directory yields
// an empty, valid, unwatched registry.
func (d *Dispatcher) loadPlugins() error {
	if d.plugins != nil {
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return kernelerr.New(kernelerr.CategoryPlugin, "", err)
	}
	dir := filepath.Join(home, ".tuiql", "plugins")
	descriptors, err := plugin.DescriptorsFromDir(dir)
	if err != nil {
		descriptors = nil
	}
	d.plugins = plugin.NewRegistry(descriptors)
	if _, werr := d.plugins.WatchDir(dir); werr != nil && d.sess.Logger != nil {
		d.sess.Logger.Debug("plugin directory watch disabled", "dir", dir, "error", werr)
	}
	return nil
}

func (d *Dispatcher) cmdHelp() (Outcome, error) {
	var b strings.Builder
	for _, name := range commandNames {
		fmt.Fprintf(&b, ":%s\n", name)
	}
	return Outcome{Text: strings.TrimRight(b.String(), "\n")}, nil
}

// Complete delegates to the completion engine, per spec.md §4.7.
func (d *Dispatcher) Complete(prefix string) []complete.Suggestion {
	return complete.Complete(prefix, d.sess.Catalog)
}

func isSchemaMutating(stmt string) bool {
	trimmed := strings.TrimSpace(stmt)
	upper := strings.ToUpper(trimmed)
	for _, verb := range []string{"CREATE", "ALTER", "DROP", "ATTACH", "DETACH"} {
		if strings.HasPrefix(upper, verb) {
			return true
		}
	}
	return false
}

func argCountError(cmd, usage string) error {
	return kernelerr.New(kernelerr.CategoryCommand, fmt.Sprintf("usage: :%s %s", cmd, usage), fmt.Errorf("wrong number of arguments to :%s", cmd))
}

// closestPluginNames ranks registered plugin names by edit distance to
// name, mirroring closestCommands but scoped to one registry's entries.
func closestPluginNames(reg *plugin.Registry, name string, n int) []string {
	type scored struct {
		name  string
		score int
	}
	var all []scored
	for _, d := range reg.List() {
		all = append(all, scored{d.Name, levenshtein.ComputeDistance(name, d.Name)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score < all[j].score })
	if n > len(all) {
		n = len(all)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].name
	}
	return out
}

func closestCommands(name string, n int) []string {
	type scored struct {
		name  string
		score int
	}
	var all []scored
	for _, c := range commandNames {
		all = append(all, scored{c, levenshtein.ComputeDistance(name, c)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score < all[j].score })
	if n > len(all) {
		n = len(all)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].name
	}
	return out
}

// splitArgs does a simple whitespace split honoring single/double
// quoting, per spec.md §4.5 ("whitespace-split, with simple quoting").
func splitArgs(s string) []string {
	var args []string
	var b strings.Builder
	inSingle, inDouble := false, false
	flush := func() {
		if b.Len() > 0 {
			args = append(args, b.String())
			b.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case (r == ' ' || r == '\t') && !inSingle && !inDouble:
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return args
}
