// Package plugin enumerates configured external executables and
// dispatches synchronous invocations against them, per spec.md §4.11.
// Only the kernel-side registry and invocation contract are specified
// here; the richer plugin wire protocol is an external collaborator.
package plugin

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/mrorigo/tuiql/internal/kernelerr"
)

// Descriptor is a configured plugin entry, per spec.md §3.
type Descriptor struct {
	Name         string
	Path         string
	Description  string
	Capabilities []string
}

// Registry holds the set of configured plugin descriptors and
// optionally watches their directory for changes.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Descriptor
	dir     string
	watcher *fsnotify.Watcher
}

// NewRegistry builds a registry from descriptors.
func NewRegistry(descriptors []Descriptor) *Registry {
	r := &Registry{byName: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		r.byName[d.Name] = d
	}
	return r
}

// List returns every descriptor in no particular order; callers needing
// a stable order should sort by Name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	return out
}

// Get looks up a descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// WatchDir arms an fsnotify watcher over dir and, for as long as the
// returned watcher lives, re-scans dir on every filesystem event so
// plugin additions and removals are picked up without restarting the
// session, per spec.md §4.11's hot-reload requirement.
func (r *Registry) WatchDir(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch plugin dir: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch plugin dir %s: %w", dir, err)
	}
	r.dir = dir
	r.watcher = w

	go func() {
		for {
			select {
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				r.reload()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return w, nil
}

// reload re-reads the watched directory and replaces the descriptor set.
// A failed scan (e.g. the directory was briefly removed) leaves the
// existing descriptors in place.
func (r *Registry) reload() {
	descriptors, err := DescriptorsFromDir(r.dir)
	if err != nil {
		return
	}
	byName := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		byName[d.Name] = d
	}
	r.mu.Lock()
	r.byName = byName
	r.mu.Unlock()
}

// Close releases the directory watcher, if armed.
func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

// Invoke re-verifies the descriptor and runs it synchronously, streaming
// its stdout/stderr to the given writers, per spec.md §4.11. Each call is
// tagged with a fresh trace id, exposed to the plugin process via
// TUIQL_TRACE_ID and returned to the caller for correlation in logs.
func Invoke(d Descriptor, args []string, stdout, stderr io.Writer) (string, error) {
	traceID := uuid.NewString()

	info, err := os.Stat(d.Path)
	if err != nil {
		return traceID, kernelerr.New(kernelerr.CategoryPlugin, "check the plugin path in your configuration", err)
	}
	if !isExecutable(info) {
		return traceID, kernelerr.New(kernelerr.CategoryPlugin, "mark the plugin executable (chmod +x)", fmt.Errorf("%s is not executable", d.Path))
	}

	cmd := exec.Command(d.Path, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(), "TUIQL_TRACE_ID="+traceID)

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return traceID, &kernelerr.PluginFailedError{Name: d.Name, Code: exitErr.ExitCode()}
		}
		return traceID, kernelerr.New(kernelerr.CategoryPlugin, "", err)
	}
	return traceID, nil
}

func isExecutable(info os.FileInfo) bool {
	if info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}

// DescriptorsFromDir builds descriptors for every regular, executable
// file found directly under dir, using the file's base name.
func DescriptorsFromDir(dir string) ([]Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugin dir: %w", err)
	}
	var out []Descriptor
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !isExecutable(info) {
			continue
		}
		out = append(out, Descriptor{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
		})
	}
	return out, nil
}
