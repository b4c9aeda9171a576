// Package engine owns the embedded SQLite connection and the execution
// state machine described in spec.md §4.1: safe pragmas on open, a
// readonly toggle, transaction bookkeeping, and a cancellation hook that
// can be triggered from a signal handler.
//
// Grounded on internal/core/db.go from the teacher repo (modernc.org/sqlite,
// WAL pragma applied best-effort, a single *sql.DB guarded by a mutex, and
// a context.CancelFunc used to unblock in-flight work).
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/mrorigo/tuiql/internal/kernelerr"
)

// TxState is the transaction state machine from spec.md §3.
type TxState int

const (
	TxNone TxState = iota
	TxActive
)

func (s TxState) String() string {
	if s == TxActive {
		return "Active"
	}
	return "None"
}

// Engine is the connection + execution engine. One Engine wraps exactly
// one logical SQLite connection, matching the Database session
// singleton in spec.md §3 (the Session in package session owns the
// Engine's lifecycle across :open calls).
type Engine struct {
	mu       sync.Mutex
	db       *sql.DB
	path     string
	readonly bool
	pageSize int

	txState TxState
	tx      *sql.Tx

	cancelled atomic.Bool
	cancel    context.CancelFunc
	ctx       context.Context
}

// Options configure Open.
type Options struct {
	Readonly bool
	PageSize int // 0 means leave SQLite's default
}

// Open opens dbPath, applying the safe pragmas from spec.md §4.1:
// foreign_keys=ON, best-effort journal_mode=WAL, and an optional
// page_size hint. WAL failures are swallowed (downgrade silently).
func Open(path string, opts Options) (*Engine, error) {
	mode := "rwc"
	if opts.Readonly {
		mode = "ro"
	}
	dsn := fmt.Sprintf("file:%s?mode=%s&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path, mode)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, kernelerr.ConnectionFailed(path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, kernelerr.ConnectionFailed(path, err)
	}

	if !opts.Readonly {
		// Best-effort WAL: some filesystems (network mounts) reject it.
		db.Exec("PRAGMA journal_mode=WAL")
	}
	if opts.PageSize > 0 {
		db.Exec(fmt.Sprintf("PRAGMA page_size=%d", opts.PageSize))
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		db:       db,
		path:     path,
		readonly: opts.Readonly,
		pageSize: opts.PageSize,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Path returns the database file path.
func (e *Engine) Path() string { return e.path }

// Readonly reports the current readonly flag.
func (e *Engine) Readonly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readonly
}

// TxState reports the current transaction state.
func (e *Engine) TxState() TxState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.txState
}

// DB exposes the raw *sql.DB for subsystems (catalog, plan parser, fts5,
// json1) that only need read access and don't participate in the
// transaction/cancellation state machine.
func (e *Engine) DB() *sql.DB { return e.db }

// Stats reports a snapshot of the path, readonly flag and transaction
// state. The REPL prompt builds its markers from Session.PromptSuffix,
// not from Stats.
type Stats struct {
	Path     string
	Readonly bool
	TxState  TxState
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{Path: e.path, Readonly: e.readonly, TxState: e.txState}
}

// Interrupt sets the shared cancellation flag and cancels the running
// statement's context. Safe to call from any goroutine, including a
// signal handler's.
func (e *Engine) Interrupt() {
	e.cancelled.Store(true)
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// resetCancel clears the cancellation flag and arms a fresh context for
// the next statement, per spec.md §5 ("cleared at statement start").
func (e *Engine) resetCancel() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled.Store(false)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e.ctx
}

// Close refuses to close while a transaction is active, per spec.md
// §4.1 ("commits no transaction implicitly").
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.txState == TxActive {
		e.mu.Unlock()
		return kernelerr.New(kernelerr.CategoryTransaction, "commit or rollback first", kernelerr.ErrUnflushedTransaction)
	}
	e.mu.Unlock()

	e.cancel()
	e.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return e.db.Close()
}

// SetReadonly reopens the underlying connection with the new readonly
// flag, per spec.md §4.1 ("enforced at the connection flag level").
func (e *Engine) SetReadonly(readonly bool) error {
	e.mu.Lock()
	if e.txState == TxActive {
		e.mu.Unlock()
		return kernelerr.New(kernelerr.CategoryTransaction, "commit or rollback first", kernelerr.ErrUnflushedTransaction)
	}
	path, pageSize := e.path, e.pageSize
	oldDB := e.db
	e.mu.Unlock()

	next, err := Open(path, Options{Readonly: readonly, PageSize: pageSize})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.db = next.db
	e.readonly = readonly
	e.ctx, e.cancel = next.ctx, next.cancel
	e.mu.Unlock()

	return oldDB.Close()
}

// normalizedLeadingToken returns the upper-cased first token of sql,
// used by Execute to classify statements (spec.md §4.1) and by the
// catalog to decide when a refresh is needed (spec.md §4.2).
func normalizedLeadingToken(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	trimmed = strings.TrimPrefix(trimmed, "(")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimRight(fields[0], ";"))
}

// IsQuery reports whether sqlText should be routed through the query
// path (producing a Rows result) rather than the exec path.
func IsQuery(sqlText string) bool {
	switch normalizedLeadingToken(sqlText) {
	case "SELECT", "WITH", "PRAGMA", "EXPLAIN":
		return true
	}
	return false
}

// IsDDL reports whether sqlText is a schema-mutating statement, used by
// the dispatcher to decide when to refresh the catalog (spec.md §4.2).
func IsDDL(sqlText string) bool {
	switch normalizedLeadingToken(sqlText) {
	case "CREATE", "ALTER", "DROP", "ATTACH", "DETACH":
		return true
	}
	return false
}

// parsePageSize is a small helper used by callers wiring the --page-size
// style config value through to Options.
func parsePageSize(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// ParsePageSize exposes parsePageSize to other packages (config wiring).
func ParsePageSize(s string) int { return parsePageSize(s) }
