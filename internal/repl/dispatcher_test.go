package repl

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/mrorigo/tuiql/internal/history"
	"github.com/mrorigo/tuiql/internal/kernelerr"
	"github.com/mrorigo/tuiql/internal/session"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *session.Session) {
	t.Helper()
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.sqlite"), nil)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	sess, err := session.New(filepath.Join(t.TempDir(), "test.db"), false, 0, hist, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return New(sess), sess
}

func TestOpenEmptyDBThenTablesReportsNone(t *testing.T) {
	d, _ := newTestDispatcher(t)
	out, err := d.Dispatch(":tables")
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	if out.Text != "(no tables)" {
		t.Errorf("expected no tables, got %q", out.Text)
	}
}

func TestSchemaIntrospectionAfterCreate(t *testing.T) {
	d, _ := newTestDispatcher(t)
	if _, err := d.Dispatch("CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT NOT NULL);"); err != nil {
		t.Fatalf("create: %v", err)
	}
	out, err := d.Dispatch(":tables")
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	if !strings.Contains(out.Text, "users") || !strings.Contains(out.Text, "[PK]") {
		t.Errorf("expected users table with PK marker, got %q", out.Text)
	}
}

func TestTransactionSafetyNestedBeginFails(t *testing.T) {
	d, _ := newTestDispatcher(t)
	if _, err := d.Dispatch(":begin"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := d.Dispatch(":begin"); err == nil {
		t.Fatal("expected NestedTransaction error on double begin")
	}
	d.Dispatch(":rollback")
}

func TestDangerousDeleteWithheldUntilConfirmed(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Dispatch("CREATE TABLE users(id INTEGER PRIMARY KEY);")
	d.Dispatch("INSERT INTO users VALUES (1);")

	_, err := d.Dispatch("DELETE FROM users;")
	if err == nil {
		t.Fatal("expected DELETE without WHERE to be withheld")
	}

	if _, err := d.ExecuteConfirmed("DELETE FROM users;"); err != nil {
		t.Fatalf("confirmed delete: %v", err)
	}
}

func TestUnknownCommandSuggestsClosest(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, err := d.Dispatch(":tabless")
	uce, ok := err.(*kernelerr.UnknownCommandError)
	if !ok {
		t.Fatalf("expected UnknownCommandError, got %T (%v)", err, err)
	}
	found := false
	for _, s := range uce.Suggestions {
		if s == "tables" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected 'tables' among suggestions, got %v", uce.Suggestions)
	}
}

func TestMetaCommandsDoNotEnterHistory(t *testing.T) {
	d, sess := newTestDispatcher(t)
	d.Dispatch(":tables")
	entries, err := sess.History.Recent(sess.Engine.Path(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no history entries from a meta-command, got %d", len(entries))
	}
}

func TestBeginSetsPromptMarker(t *testing.T) {
	d, sess := newTestDispatcher(t)
	d.Dispatch(":begin")
	if sess.PromptSuffix() != "*" {
		t.Errorf("expected '*' prompt marker, got %q", sess.PromptSuffix())
	}
	d.Dispatch(":rollback")
}

func TestPluginInvokesAndStreamsOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-script plugin fixture is POSIX-only")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)

	pluginDir := filepath.Join(home, ".tuiql", "plugins")
	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		t.Fatalf("mkdir plugin dir: %v", err)
	}
	script := filepath.Join(pluginDir, "greet")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho hello $1\n"), 0o755); err != nil {
		t.Fatalf("write plugin: %v", err)
	}

	d, _ := newTestDispatcher(t)
	out, err := d.Dispatch(":plugin greet world")
	if err != nil {
		t.Fatalf("plugin: %v", err)
	}
	if !strings.Contains(out.Text, "hello world") {
		t.Errorf("expected plugin output to include 'hello world', got %q", out.Text)
	}
}

func TestPluginUnknownNameSuggestsClosest(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-script plugin fixture is POSIX-only")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)

	pluginDir := filepath.Join(home, ".tuiql", "plugins")
	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		t.Fatalf("mkdir plugin dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pluginDir, "greet"), []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("write plugin: %v", err)
	}

	d, _ := newTestDispatcher(t)
	_, err := d.Dispatch(":plugin greeet")
	uce, ok := err.(*kernelerr.UnknownCommandError)
	if !ok {
		t.Fatalf("expected UnknownCommandError, got %T (%v)", err, err)
	}
	if len(uce.Suggestions) == 0 || uce.Suggestions[0] != "greet" {
		t.Errorf("expected 'greet' suggested first, got %v", uce.Suggestions)
	}
}

func TestPlanOnPrimaryKeyLookup(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Dispatch("CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT);")
	out, err := d.Dispatch(":plan SELECT * FROM users WHERE id=1")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !strings.Contains(out.Text, "SEARCH") {
		t.Errorf("expected plan output mentioning SEARCH, got %q", out.Text)
	}
}
