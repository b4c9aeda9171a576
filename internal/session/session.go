// Package session models the explicit, process-wide session value from
// spec.md §9: one owner of the connection, transaction state, catalog
// snapshot, and cancel flag, passed to every command handler instead of
// relying on hidden globals.
package session

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/mrorigo/tuiql/internal/catalog"
	"github.com/mrorigo/tuiql/internal/engine"
	"github.com/mrorigo/tuiql/internal/history"
	"github.com/mrorigo/tuiql/internal/kernelerr"
)

// Session is the Database session singleton from spec.md §3. Created on
// first :open, replaced on subsequent :open, destroyed on process exit.
type Session struct {
	Engine  *engine.Engine
	Catalog *catalog.Catalog
	History *history.Store
	Logger  *slog.Logger

	// SafeOff disables the Danger-severity confirmation gate from
	// spec.md §4.6 when true. No meta-command or CLI flag sets it; it
	// stays false unless code holding the Session sets it.
	SafeOff bool

	// Attached tracks extra databases attached via :attach, keyed by
	// schema name.
	Attached map[string]string

	pageSize   int
	lastResult *engine.Result
}

// New opens path and loads its catalog, wiring a fresh Session. pageSize
// is the optional page_size pragma hint from spec.md §4.1; 0 leaves
// SQLite's default in place.
func New(path string, readonly bool, pageSize int, hist *history.Store, logger *slog.Logger) (*Session, error) {
	eng, err := engine.Open(path, engine.Options{Readonly: readonly, PageSize: pageSize})
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(eng.DB())
	if err != nil {
		eng.Close()
		return nil, kernelerr.New(kernelerr.CategorySchema, "", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		Engine:   eng,
		Catalog:  cat,
		History:  hist,
		Logger:   logger,
		Attached: make(map[string]string),
		pageSize: pageSize,
	}, nil
}

// Reopen replaces the active connection, per spec.md §3 ("replaced on
// subsequent :open"). The prior connection is closed first; an active
// transaction on it blocks the switch. The page_size hint from the
// original New call carries over.
func (s *Session) Reopen(path string, readonly bool) error {
	if err := s.Engine.Close(); err != nil {
		return err
	}

	eng, err := engine.Open(path, engine.Options{Readonly: readonly, PageSize: s.pageSize})
	if err != nil {
		return err
	}
	cat, err := catalog.Load(eng.DB())
	if err != nil {
		eng.Close()
		return kernelerr.New(kernelerr.CategorySchema, "", err)
	}

	s.Engine = eng
	s.Catalog = cat
	s.Attached = make(map[string]string)
	return nil
}

// RefreshCatalog re-reads the schema, called by the dispatcher after any
// DDL statement succeeds (spec.md §4.2).
func (s *Session) RefreshCatalog(table string) error {
	if err := s.Catalog.Refresh(s.Engine.DB(), table); err != nil {
		return kernelerr.New(kernelerr.CategorySchema, "", err)
	}
	return nil
}

// PromptSuffix renders the "*" / "[RO]" markers from spec.md §4.12.
func (s *Session) PromptSuffix() string {
	suffix := ""
	if s.Engine.TxState() == engine.TxActive {
		suffix += "*"
	}
	if s.Engine.Readonly() {
		suffix += " [RO]"
	}
	return suffix
}

// Attach records an :attach'd database under name, issuing the ATTACH
// statement through the engine.
func (s *Session) Attach(name, path string) error {
	if _, exists := s.Attached[name]; exists {
		return kernelerr.New(kernelerr.CategoryCommand, "detach it first or pick another name", fmt.Errorf("schema %q already attached", name))
	}
	stmt := fmt.Sprintf("ATTACH DATABASE '%s' AS %s", escapeLiteral(path), name)
	if _, err := s.Engine.Execute(stmt); err != nil {
		return err
	}
	s.Attached[name] = path
	return s.RefreshCatalog("")
}

// Detach reverses Attach.
func (s *Session) Detach(name string) error {
	if _, exists := s.Attached[name]; !exists {
		return kernelerr.New(kernelerr.CategoryCommand, "", fmt.Errorf("schema %q is not attached", name))
	}
	stmt := fmt.Sprintf("DETACH DATABASE %s", name)
	if _, err := s.Engine.Execute(stmt); err != nil {
		return err
	}
	delete(s.Attached, name)
	return s.RefreshCatalog("")
}

// LastResult returns the most recently executed Rows/Changes result, if
// any, used by :export.
func (s *Session) LastResult() (*engine.Result, bool) {
	return s.lastResult, s.lastResult != nil
}

// SetLastResult records the outcome of the most recent statement.
func (s *Session) SetLastResult(r *engine.Result) {
	s.lastResult = r
}

// Close releases the engine and history store.
func (s *Session) Close() error {
	err1 := s.Engine.Close()
	var err2 error
	if s.History != nil {
		err2 = s.History.Close()
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
