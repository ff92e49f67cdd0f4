// Package watcher reloads plugins when their files change on disk.
//
// Each plugin search path is watched along with the plugin directories
// below it. Changes are grouped by plugin: every file event under
// <root>/<name>/ is reported as <root>/<name>, and a change to a
// single-file plugin is reported as the .lua file itself. Bursts of events
// for the same plugin are debounced into one reload.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherClosed is returned after Close.
var ErrWatcherClosed = errors.New("watcher is closed")

// ReloadFunc is called with the plugin path whose files changed.
type ReloadFunc func(ctx context.Context, path string) error

// Watcher watches plugin search paths.
type Watcher struct {
	fsw      *fsnotify.Watcher
	reload   ReloadFunc
	debounce *Debouncer
	logger   *slog.Logger

	mu     sync.Mutex
	roots  []string
	ctx    context.Context
	closed bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher that calls reload at most once per plugin per
// delay window.
func New(reload ReloadFunc, delay time.Duration, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:    fsw,
		reload: reload,
		logger: slog.Default(),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debounce = NewDebouncer(delay, w.fire)
	return w, nil
}

// Add watches root and the plugin directories in it. A missing root is
// skipped.
func (w *Watcher) Add(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
		w.logger.Debug("plugin path missing, not watched", "path", abs)
		return nil
	}
	w.roots = append(w.roots, abs)
	return w.addTree(abs)
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && hidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			w.logger.Warn("watch failed", "path", p, "error", err)
		}
		return nil
	})
}

// Roots returns the watched search paths.
func (w *Watcher) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// Run handles file events until ctx is cancelled or the watcher closes.
// Reloads run with ctx.
func (w *Watcher) Run(ctx context.Context) {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	if ev.Has(fsnotify.Create) {
		if st, err := os.Stat(ev.Name); err == nil && st.IsDir() && !hidden(filepath.Base(ev.Name)) {
			w.mu.Lock()
			if !w.closed {
				_ = w.addTree(ev.Name)
			}
			w.mu.Unlock()
		}
	}

	key, ok := w.PluginPath(ev.Name)
	if !ok {
		return
	}
	w.logger.Debug("plugin file changed", "path", ev.Name, "op", ev.Op.String(), "plugin", key)
	w.debounce.Trigger(key)
}

// PluginPath maps a changed file to the plugin it belongs to: the
// top-level directory under a root, or a top-level .lua file.
func (w *Watcher) PluginPath(path string) (string, bool) {
	w.mu.Lock()
	roots := w.roots
	w.mu.Unlock()

	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		parts := strings.Split(rel, string(filepath.Separator))
		name := parts[0]
		if hidden(name) || scratch(filepath.Base(path)) {
			return "", false
		}
		// plugin ids carry no dots, so a top-level name with another
		// extension is not a plugin
		if len(parts) == 1 {
			switch filepath.Ext(name) {
			case ".lua", "":
				return filepath.Join(root, name), true
			}
			return "", false
		}
		return filepath.Join(root, name), true
	}
	return "", false
}

func (w *Watcher) fire(key string) {
	w.mu.Lock()
	ctx, closed := w.ctx, w.closed
	w.mu.Unlock()
	if closed || ctx.Err() != nil {
		return
	}
	if err := w.reload(ctx, key); err != nil {
		w.logger.Warn("plugin reload failed", "path", key, "error", err)
		return
	}
	w.logger.Info("plugin reloaded from disk", "path", key)
}

// Flush runs pending reloads now.
func (w *Watcher) Flush() {
	w.debounce.Flush()
}

// Close stops watching. Pending reloads are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.debounce.Stop()
	return w.fsw.Close()
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// scratch matches editor swap and backup files.
func scratch(name string) bool {
	return strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") ||
		strings.HasSuffix(name, ".swx") ||
		strings.HasPrefix(name, "#")
}
