package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mrorigo/tuiql/internal/kernelerr"
)

// CellKind discriminates the typed cell union from spec.md §3.
type CellKind int

const (
	CellNull CellKind = iota
	CellInteger
	CellReal
	CellText
	CellBlob
)

// Cell is one value in a Rows result.
type Cell struct {
	Kind CellKind
	I    int64
	F    float64
	S    string
	B    []byte
}

// String renders a cell the way the REPL printer displays it: integers
// exactly, reals shortest-round-trip, text passed through, nulls as
// "NULL", and blobs as a "BLOB(N) bytes" token (spec.md §3, §4.1). Every
// blob renders as that token whatever its length; blob contents are
// never shown, not even for blobs of 16 bytes or fewer.
func (c Cell) String() string {
	switch c.Kind {
	case CellNull:
		return "NULL"
	case CellInteger:
		return fmt.Sprintf("%d", c.I)
	case CellReal:
		return strconv.FormatFloat(c.F, 'g', -1, 64)
	case CellText:
		return c.S
	case CellBlob:
		return fmt.Sprintf("BLOB(%d) bytes", len(c.B))
	default:
		return "NULL"
	}
}

// Result is the tagged value from spec.md §3: either Rows or Changes.
type Result struct {
	IsRows  bool
	Columns []string
	Rows    [][]Cell
	Changes int64
	Elapsed time.Duration
}

// Execute classifies sqlText by its leading token and runs it, per
// spec.md §4.1. SELECT/WITH/PRAGMA/EXPLAIN produce a Rows result;
// everything else produces a Changes result.
func (e *Engine) Execute(sqlText string) (*Result, error) {
	e.mu.Lock()
	readonly := e.readonly
	e.mu.Unlock()

	if readonly && !IsQuery(sqlText) {
		// A write on a readonly connection is rejected without ever
		// reaching the driver.
		return nil, kernelerr.New(kernelerr.CategoryDatabase, "open with :rw first", kernelerr.ErrReadonly)
	}

	ctx := e.resetCancel()
	start := time.Now()

	if IsQuery(sqlText) {
		return e.executeQuery(ctx, sqlText, start)
	}
	return e.executeChange(ctx, sqlText, start)
}

func (e *Engine) querier() interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tx != nil {
		return e.tx
	}
	return e.db
}

func (e *Engine) execer() interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tx != nil {
		return e.tx
	}
	return e.db
}

func (e *Engine) executeQuery(ctx context.Context, sqlText string, start time.Time) (*Result, error) {
	rows, err := e.querier().QueryContext(ctx, sqlText)
	if err != nil {
		return nil, translateExecError(ctx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, translateExecError(ctx, err)
	}

	result := &Result{IsRows: true, Columns: cols}

	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		if ctx.Err() != nil {
			return nil, kernelerr.New(kernelerr.CategoryCancelled, "", kernelerr.ErrCancelled)
		}
		if err := rows.Scan(ptrs...); err != nil {
			// A single cell's decode error degrades that cell to the
			// string "NULL" rather than aborting the row stream
			// (spec.md §4.1).
			degraded := make([]Cell, len(cols))
			for i := range degraded {
				degraded[i] = Cell{Kind: CellText, S: "NULL"}
			}
			result.Rows = append(result.Rows, degraded)
			continue
		}
		row := make([]Cell, len(cols))
		for i, v := range raw {
			row[i] = toCell(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translateExecError(ctx, err)
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

func (e *Engine) executeChange(ctx context.Context, sqlText string, start time.Time) (*Result, error) {
	res, err := e.execer().ExecContext(ctx, sqlText)
	if err != nil {
		return nil, translateExecError(ctx, err)
	}
	n, _ := res.RowsAffected()
	return &Result{Changes: n, Elapsed: time.Since(start)}, nil
}

func toCell(v any) Cell {
	switch t := v.(type) {
	case nil:
		return Cell{Kind: CellNull}
	case int64:
		return Cell{Kind: CellInteger, I: t}
	case float64:
		return Cell{Kind: CellReal, F: t}
	case string:
		return Cell{Kind: CellText, S: t}
	case []byte:
		return Cell{Kind: CellBlob, B: t}
	default:
		return Cell{Kind: CellText, S: fmt.Sprintf("%v", t)}
	}
}

func translateExecError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return kernelerr.New(kernelerr.CategoryCancelled, "", kernelerr.ErrCancelled)
	}
	return kernelerr.SyntaxError(err)
}

// ExecuteBatch runs multiple ';'-terminated statements in order,
// stopping at the first error and returning the 0-based index of the
// failed statement (spec.md §4.1).
func (e *Engine) ExecuteBatch(sqlText string) (results []*Result, failedIndex int, err error) {
	stmts := splitStatements(sqlText)
	for i, stmt := range stmts {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		e.mu.Lock()
		cancelled := e.cancelled.Load()
		e.mu.Unlock()
		if cancelled {
			return results, i, kernelerr.New(kernelerr.CategoryCancelled, "", kernelerr.ErrCancelled)
		}

		res, execErr := e.Execute(stmt)
		if execErr != nil {
			return results, i, execErr
		}
		results = append(results, res)
	}
	return results, -1, nil
}

// splitStatements splits on ';' at top level. It does not attempt to
// understand string literals containing semicolons across statement
// boundaries beyond a simple quote-aware scan, which is sufficient for
// the REPL's batch use case (pasted multi-statement scripts).
func splitStatements(sqlText string) []string {
	var stmts []string
	var b strings.Builder
	inSingle, inDouble := false, false
	for _, r := range sqlText {
		switch r {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case ';':
			if !inSingle && !inDouble {
				stmts = append(stmts, b.String())
				b.Reset()
				continue
			}
		}
		b.WriteRune(r)
	}
	if strings.TrimSpace(b.String()) != "" {
		stmts = append(stmts, b.String())
	}
	return stmts
}

// Begin transitions None -> Active. NestedTransaction if already Active.
func (e *Engine) Begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.txState == TxActive {
		return kernelerr.New(kernelerr.CategoryTransaction, "commit or rollback the current transaction first", kernelerr.ErrNestedTransaction)
	}

	tx, err := e.db.BeginTx(e.ctx, nil)
	if err != nil {
		return kernelerr.SyntaxError(err)
	}
	e.tx = tx
	e.txState = TxActive
	return nil
}

// Commit transitions Active -> None. NoActiveTransaction if already None.
func (e *Engine) Commit() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.txState != TxActive {
		return kernelerr.New(kernelerr.CategoryTransaction, "begin a transaction first", kernelerr.ErrNoActiveTransaction)
	}

	err := e.tx.Commit()
	e.tx = nil
	e.txState = TxNone
	if err != nil {
		return kernelerr.SyntaxError(err)
	}
	return nil
}

// Rollback transitions Active -> None. NoActiveTransaction if already None.
func (e *Engine) Rollback() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.txState != TxActive {
		return kernelerr.New(kernelerr.CategoryTransaction, "begin a transaction first", kernelerr.ErrNoActiveTransaction)
	}

	err := e.tx.Rollback()
	e.tx = nil
	e.txState = TxNone
	if err != nil {
		return kernelerr.SyntaxError(err)
	}
	return nil
}
