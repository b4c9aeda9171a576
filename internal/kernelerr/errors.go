// Package kernelerr defines the error categories the TUIQL kernel
// surfaces to callers. Every error a command handler returns should be
// classifiable into one of these categories so the REPL can render a
// short human message and a remedy instead of a raw driver string.
package kernelerr

import (
	"errors"
	"fmt"
)

// Category groups errors the way spec.md §7 does.
type Category string

const (
	CategoryDatabase    Category = "database"
	CategoryQuery       Category = "query"
	CategoryTransaction Category = "transaction"
	CategoryCancelled   Category = "cancelled"
	CategorySchema      Category = "schema"
	CategoryCommand     Category = "command"
	CategoryUI          Category = "ui"
	CategoryJSON        Category = "json"
	CategoryConfig      Category = "config"
	CategoryPlugin      Category = "plugin"
)

// Error is a classified kernel error with a suggested remedy.
type Error struct {
	Category Category
	Remedy   string
	Err      error
}

func (e *Error) Error() string {
	if e.Remedy != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Category, e.Err, e.Remedy)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err under category with an optional remedy hint.
func New(cat Category, remedy string, err error) *Error {
	return &Error{Category: cat, Remedy: remedy, Err: err}
}

// Sentinel errors for the transaction/cancellation/connection state
// machine described in spec.md §4.1.
var (
	ErrNestedTransaction    = errors.New("nested transaction")
	ErrNoActiveTransaction  = errors.New("no active transaction")
	ErrUnflushedTransaction = errors.New("transaction still active, commit or rollback first")
	ErrCancelled            = errors.New("cancelled")
	ErrReadonly             = errors.New("connection is readonly")
	ErrDangerWithheld       = errors.New("execution withheld pending confirmation")
)

// ConnectionFailed builds the ConnectionFailed(path,reason) error.
func ConnectionFailed(path string, reason error) *Error {
	return New(CategoryDatabase, "check the path and file permissions",
		fmt.Errorf("open %q: %w", path, reason))
}

// SyntaxError builds the SyntaxError(sqlite-reason) error.
func SyntaxError(reason error) *Error {
	return New(CategoryQuery, "check the SQL syntax", reason)
}

// UnknownCommand builds the UnknownCommand(name) error, with up to
// three suggested names supplied by the caller.
type UnknownCommandError struct {
	Name        string
	Suggestions []string
}

func (e *UnknownCommandError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown command %q", e.Name)
	}
	return fmt.Sprintf("unknown command %q (did you mean: %v?)", e.Name, e.Suggestions)
}

// PluginFailedError surfaces a non-zero plugin exit code.
type PluginFailedError struct {
	Name string
	Code int
}

func (e *PluginFailedError) Error() string {
	return fmt.Sprintf("plugin %q exited with code %d", e.Name, e.Code)
}
