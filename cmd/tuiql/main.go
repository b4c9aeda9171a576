// Command tuiql is the REPL entry point: parse the few flags spec.md §6
// names, open the session, and hand off to the kernel.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mrorigo/tuiql/internal/engine"
	"github.com/mrorigo/tuiql/internal/history"
	"github.com/mrorigo/tuiql/internal/repl"
	"github.com/mrorigo/tuiql/internal/session"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("tuiql", flag.ContinueOnError)
	readonly := fs.Bool("readonly", false, "open the database readonly")
	_ = fs.String("config", "", "path to a config.toml (collaborator, unused by the kernel)")
	verbose := fs.Bool("verbose", false, "log kernel diagnostics at debug level")
	pageSize := fs.String("page-size", "", "page_size pragma hint applied on open (bytes, power of two)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "usage: tuiql [DB_PATH] [--readonly] [--config PATH] [--verbose] [--page-size N]")
		return 2
	}

	var dbPath string
	if fs.NArg() == 1 {
		dbPath = fs.Arg(0)
	} else {
		path, err := sessionDBPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "tuiql: %v\n", err)
			return 1
		}
		dbPath = path
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	historyPath, err := historyDBPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tuiql: %v\n", err)
		return 1
	}
	hist, err := history.Open(historyPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tuiql: open history store: %v\n", err)
		return 1
	}

	sess, err := session.New(dbPath, *readonly, engine.ParsePageSize(*pageSize), hist, logger)
	if err != nil {
		hist.Close()
		fmt.Fprintf(os.Stderr, "tuiql: %v\n", err)
		return 1
	}

	lineHistoryPath, err := lineEditorHistoryPath()
	if err != nil {
		sess.Close()
		fmt.Fprintf(os.Stderr, "tuiql: %v\n", err)
		return 1
	}

	kernel, err := repl.NewKernel(sess, lineHistoryPath)
	if err != nil {
		sess.Close()
		fmt.Fprintf(os.Stderr, "tuiql: %v\n", err)
		return 1
	}

	return kernel.Run()
}

// historyDBPath resolves <data-dir>/tuiql/history.sqlite, per spec.md §6.
func historyDBPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", fmt.Errorf("resolve data dir: %w", err)
		}
		dir = filepath.Join(home, ".cache")
	}
	full := filepath.Join(dir, "tuiql")
	if err := os.MkdirAll(full, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return filepath.Join(full, "history.sqlite"), nil
}

// sessionDBPath builds a transient per-invocation database under
// ./.tuiql/ when the user doesn't name one, mirroring the teacher's
// session-scoped database convention.
func sessionDBPath() (string, error) {
	dir := ".tuiql"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	name := fmt.Sprintf("session_%s.db", time.Now().Format("20060102_150405"))
	return filepath.Join(dir, name), nil
}

// lineEditorHistoryPath resolves <home>/.tuiql/repl_history.txt.
func lineEditorHistoryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	dir := filepath.Join(home, ".tuiql")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return filepath.Join(dir, "repl_history.txt"), nil
}
