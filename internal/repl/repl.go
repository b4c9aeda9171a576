package repl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/mrorigo/tuiql/internal/complete"
	"github.com/mrorigo/tuiql/internal/history"
	"github.com/mrorigo/tuiql/internal/kernelerr"
	"github.com/mrorigo/tuiql/internal/lint"
	"github.com/mrorigo/tuiql/internal/session"
)

// Kernel is the REPL main loop from spec.md §4.12: prompt, read, route,
// render, append to history.
//
// Grounded on the teacher's Chat type in internal/ui/chat.go: readline.NewEx
// for the line editor, a signal goroutine forwarding every SIGINT/SIGTERM
// to the engine's Interrupt so the in-flight statement is cancelled, and a
// sync.Once guarding shutdown.
type Kernel struct {
	sess       *session.Session
	dispatcher *Dispatcher
	rl         *readline.Instance

	shutdownOnce sync.Once
	out          io.Writer
}

// NewKernel wires a Kernel around sess, opening the line-editor history
// file under historyPath (spec.md §6: "<home>/.tuiql/repl_history.txt").
func NewKernel(sess *session.Session, historyPath string) (*Kernel, error) {
	k := &Kernel{sess: sess, dispatcher: New(sess), out: os.Stdout}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          k.prompt(),
		HistoryFile:     historyPath,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete:    &completer{k: k},
	})
	if err != nil {
		return nil, fmt.Errorf("readline: %w", err)
	}
	k.rl = rl
	return k, nil
}

func (k *Kernel) prompt() string {
	name := k.sess.Engine.Path()
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	return fmt.Sprintf("%s%s> ", name, k.sess.PromptSuffix())
}

// Run executes the main loop until :quit or EOF, per spec.md §4.12.
func (k *Kernel) Run() int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigCh {
			k.sess.Engine.Interrupt()
		}
	}()

	for {
		k.rl.SetPrompt(k.prompt())
		line, err := k.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			fmt.Fprintf(k.out, "error: %v\n", err)
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if k.handleLine(line) {
			break
		}
	}

	k.shutdown()
	return 0
}

// handleLine dispatches one line and renders the outcome. It returns
// true when the session should exit.
func (k *Kernel) handleLine(line string) bool {
	start := time.Now()
	isSQL := !strings.HasPrefix(line, ":")

	outcome, err := k.dispatcher.Dispatch(line)
	if outcome.Quit {
		return true
	}

	if err != nil {
		if !k.resolveDanger(line, err, isSQL, start) {
			k.printWarnings(outcome.Warnings)
			fmt.Fprintf(k.out, "error: %v\n", err)
			if isSQL {
				k.recordHistory(line, start, err)
			}
		}
		return false
	}

	k.printWarnings(outcome.Warnings)
	if outcome.Text != "" {
		fmt.Fprintln(k.out, outcome.Text)
	}

	if isSQL {
		k.recordHistory(line, start, nil)
	}
	return false
}

// resolveDanger asks the user to confirm a Danger-severity statement,
// per spec.md §4.6. Returns true if it already handled rendering.
func (k *Kernel) resolveDanger(line string, err error, isSQL bool, start time.Time) bool {
	if !isSQL {
		return false
	}
	if !errors.Is(err, kernelerr.ErrDangerWithheld) {
		return false
	}

	fmt.Fprintf(k.out, "%s\nProceed? [y/N] ", "this statement affects every row without a WHERE clause")
	answer, _ := k.rl.Readline()
	if strings.TrimSpace(strings.ToLower(answer)) != "y" {
		fmt.Fprintln(k.out, "cancelled")
		return true
	}

	outcome, execErr := k.dispatcher.ExecuteConfirmed(line)
	if execErr != nil {
		fmt.Fprintf(k.out, "error: %v\n", execErr)
		k.recordHistory(line, start, execErr)
		return true
	}
	if outcome.Text != "" {
		fmt.Fprintln(k.out, outcome.Text)
	}
	k.recordHistory(line, start, nil)
	return true
}

func (k *Kernel) printWarnings(warnings []lint.Warning) {
	for _, w := range warnings {
		fmt.Fprintf(k.out, "[%s] %s\n", w.Severity, w.Message)
	}
}

func (k *Kernel) recordHistory(query string, start time.Time, err error) {
	if k.sess.History == nil {
		return
	}
	entry := history.Entry{
		DatabaseName: k.sess.Engine.Path(),
		Query:        query,
		ExecutedAt:   start,
		DurationMs:   time.Since(start).Milliseconds(),
		Success:      err == nil,
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	k.sess.History.Add(entry)
}

func (k *Kernel) shutdown() {
	k.shutdownOnce.Do(func() {
		k.rl.Close()
		k.dispatcher.Close()
		k.sess.Close()
	})
}

// completer bridges the completion engine (spec.md §4.7) to readline's
// AutoCompleter interface.
type completer struct {
	k *Kernel
}

func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	prefix := string(line[:pos])
	lastSpace := strings.LastIndexAny(prefix, " \t")
	word := prefix[lastSpace+1:]

	suggestions := complete.Complete(word, c.k.sess.Catalog)
	out := make([][]rune, 0, len(suggestions))
	for _, s := range suggestions {
		if len(s.Text) >= len(word) {
			out = append(out, []rune(s.Text[len(word):]))
		}
	}
	return out, len(word)
}
