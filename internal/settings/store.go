package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/dshills/neonplay/internal/event/topic"
)

// Well-known paths.
const (
	KeyVersion   = "_version"
	KeyVolume    = "audio.volume"
	KeyEqualizer = "audio.equalizer"
	KeyPlugins   = "plugins"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

// ValidKey reports whether key is a usable settings path. Paths are plain
// dot-separated names; gjson modifiers and wildcards are rejected.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// ChangeFunc is called after a watched key changes. old or new is nil
// when the key did not exist before or was deleted.
type ChangeFunc func(key string, old, new any)

type watch struct {
	pattern topic.Topic
	fn      ChangeFunc
}

// Store is a settings document with optional file backing.
// It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  string

	watchMu sync.RWMutex
	watches map[string]watch
	order   []string

	migrator *Migrator
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMigrator replaces the default migrator.
func WithMigrator(m *Migrator) Option {
	return func(s *Store) {
		if m != nil {
			s.migrator = m
		}
	}
}

func newStore(opts []Option) *Store {
	s := &Store{
		doc:      "{}",
		watches:  make(map[string]watch),
		migrator: DefaultMigrator(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New creates an in-memory store from doc. An empty doc starts a fresh,
// current-version document.
func New(doc string, opts ...Option) (*Store, error) {
	s := newStore(opts)
	if err := s.load(doc); err != nil {
		return nil, err
	}
	return s, nil
}

// Open loads the settings file at path, creating it if missing, and
// migrates it to the current version.
func Open(path string, opts ...Option) (*Store, error) {
	s := newStore(opts)
	s.path = path

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := s.load(string(data)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := s.flush(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(doc string) error {
	if strings.TrimSpace(doc) == "" {
		doc = "{}"
	}
	if !gjson.Valid(doc) || !gjson.Parse(doc).IsObject() {
		return ErrInvalidDocument
	}

	migrated, results, err := s.migrator.Migrate(doc)
	for _, r := range results {
		s.logger.Info("settings migrated",
			"from", r.From.String(),
			"to", r.To.String(),
			"description", r.Description,
			"ok", r.Success)
	}
	if err != nil {
		return err
	}
	s.doc = migrated
	return nil
}

// Path returns the backing file, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

// Version returns the document version.
func (s *Store) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gjson.Get(s.doc, KeyVersion).String()
}

// JSON returns the compact document.
func (s *Store) JSON() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Get returns the value at key. Objects come back as map[string]any,
// arrays as []any and numbers as float64.
func (s *Store) Get(key string) (any, bool) {
	r, ok := s.Result(key)
	if !ok {
		return nil, false
	}
	return r.Value(), true
}

// Result returns the raw gjson result at key.
func (s *Store) Result(key string) (gjson.Result, bool) {
	if !ValidKey(key) {
		return gjson.Result{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := gjson.Get(s.doc, key)
	return r, r.Exists()
}

// Float returns the number at key or def.
func (s *Store) Float(key string, def float64) float64 {
	r, ok := s.Result(key)
	if !ok || r.Type != gjson.Number {
		return def
	}
	return r.Float()
}

// Bool returns the boolean at key or def.
func (s *Store) Bool(key string, def bool) bool {
	r, ok := s.Result(key)
	if !ok || (r.Type != gjson.True && r.Type != gjson.False) {
		return def
	}
	return r.Bool()
}

// Set stores value at key, persists the document and notifies watchers.
func (s *Store) Set(key string, value any) error {
	if !ValidKey(key) || key == KeyVersion {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	s.mu.Lock()
	prev := gjson.Get(s.doc, key)
	doc, err := sjson.Set(s.doc, key, value)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("set %s: %w", key, err)
	}
	s.doc = doc
	err = s.flushLocked()
	next := gjson.Get(s.doc, key)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notify(key, prev, next)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if !ValidKey(key) || key == KeyVersion {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	s.mu.Lock()
	prev := gjson.Get(s.doc, key)
	if !prev.Exists() {
		s.mu.Unlock()
		return nil
	}
	doc, err := sjson.Delete(s.doc, key)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("delete %s: %w", key, err)
	}
	s.doc = doc
	err = s.flushLocked()
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notify(key, prev, gjson.Result{})
	return nil
}

// Keys returns the sorted leaf paths under prefix. Arrays are leaves.
// An empty prefix lists the whole document except the version.
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root := gjson.Parse(s.doc)
	if prefix != "" {
		if !ValidKey(prefix) {
			return nil
		}
		root = gjson.Get(s.doc, prefix)
		if !root.Exists() {
			return nil
		}
	}

	var keys []string
	collectKeys(root, prefix, &keys)
	if prefix == "" {
		keys = removeKey(keys, KeyVersion)
	}
	sort.Strings(keys)
	return keys
}

func collectKeys(r gjson.Result, path string, out *[]string) {
	if !r.IsObject() {
		if path != "" {
			*out = append(*out, path)
		}
		return
	}
	r.ForEach(func(k, v gjson.Result) bool {
		child := k.String()
		if path != "" {
			child = path + "." + child
		}
		collectKeys(v, child, out)
		return true
	})
}

func removeKey(keys []string, key string) []string {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}

// Watch calls fn after any key matching pattern changes. Patterns use
// event topic syntax: "plugins.lyrics.config.*" or "audio.**".
func (s *Store) Watch(pattern string, fn ChangeFunc) (string, error) {
	p := topic.Topic(pattern)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, pattern)
	}
	if fn == nil {
		return "", ErrNilWatcher
	}

	id := uuid.NewString()
	s.watchMu.Lock()
	s.watches[id] = watch{pattern: p, fn: fn}
	s.order = append(s.order, id)
	s.watchMu.Unlock()
	return id, nil
}

// Unwatch removes a watch. It returns false for unknown ids.
func (s *Store) Unwatch(id string) bool {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if _, ok := s.watches[id]; !ok {
		return false
	}
	delete(s.watches, id)
	for i, w := range s.order {
		if w == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// notify reports a change at key. When an object is replaced, watchers
// of the individual leaves under it are notified too.
func (s *Store) notify(key string, prev, next gjson.Result) {
	s.watchMu.RLock()
	if len(s.watches) == 0 {
		s.watchMu.RUnlock()
		return
	}
	watches := make([]watch, 0, len(s.order))
	for _, id := range s.order {
		watches = append(watches, s.watches[id])
	}
	s.watchMu.RUnlock()

	changed := changedLeaves(key, prev, next)
	for _, c := range changed {
		for _, w := range watches {
			if topic.Match(w.pattern, topic.Topic(c.key)) {
				s.call(w, c)
			}
		}
	}
}

type change struct {
	key       string
	old, next any
}

func changedLeaves(key string, prev, next gjson.Result) []change {
	if !prev.IsObject() && !next.IsObject() {
		if prev.Raw == next.Raw {
			return nil
		}
		return []change{{key: key, old: valueOf(prev), next: valueOf(next)}}
	}

	seen := make(map[string]bool)
	var out []change
	add := func(r gjson.Result) {
		var keys []string
		collectKeys(r, key, &keys)
		for _, k := range keys {
			if seen[k] {
				continue
			}
			seen[k] = true
			rel := strings.TrimPrefix(k, key+".")
			o, n := leaf(prev, rel, k == key), leaf(next, rel, k == key)
			if o.Raw != n.Raw {
				out = append(out, change{key: k, old: valueOf(o), next: valueOf(n)})
			}
		}
	}
	add(prev)
	add(next)
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func leaf(r gjson.Result, rel string, self bool) gjson.Result {
	if self {
		if r.IsObject() {
			return gjson.Result{}
		}
		return r
	}
	if !r.IsObject() {
		return gjson.Result{}
	}
	return r.Get(rel)
}

func valueOf(r gjson.Result) any {
	if !r.Exists() {
		return nil
	}
	return r.Value()
}

func (s *Store) call(w watch, c change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("settings watcher panicked", "key", c.key, "panic", r)
		}
	}()
	w.fn(c.key, c.old, c.next)
}

// Flush writes the document to disk. It is a no-op for in-memory stores.
func (s *Store) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil
	}
	return writeAtomic(s.path, pretty.Pretty([]byte(s.doc)))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
