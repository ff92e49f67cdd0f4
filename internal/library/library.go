// Package library keeps the user's track list.
package library

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// SettingsKey is where the track list is persisted in the settings store.
const SettingsKey = "library.tracks"

var (
	// ErrNotFound is returned for unknown track ids.
	ErrNotFound = errors.New("track not found")

	// ErrNoPath is returned when adding a track without a path.
	ErrNoPath = errors.New("track has no path")

	// ErrDuplicate is returned when adding a path that is already listed.
	ErrDuplicate = errors.New("track already in library")
)

// Track is one entry in the library.
type Track struct {
	ID       string        `json:"id" lua:"id"`
	Title    string        `json:"title" lua:"title"`
	Artist   string        `json:"artist,omitempty" lua:"artist"`
	Album    string        `json:"album,omitempty" lua:"album"`
	Path     string        `json:"path" lua:"path"`
	Duration time.Duration `json:"duration,omitempty" lua:"-"`
	Added    time.Time     `json:"added" lua:"-"`
}

// Seconds returns the duration in seconds.
func (t Track) Seconds() float64 {
	return t.Duration.Seconds()
}

// Persister stores the track list. *settings.Store satisfies it.
type Persister interface {
	Set(key string, value any) error
	Result(key string) (gjson.Result, bool)
}

// Library is a concurrency-safe track list.
type Library struct {
	mu     sync.RWMutex
	tracks map[string]Track
	paths  map[string]string
	store  Persister
	now    func() time.Time
}

// New creates a library. With a non-nil store the tracks saved there are
// loaded and every change is written back.
func New(store Persister) *Library {
	l := &Library{
		tracks: make(map[string]Track),
		paths:  make(map[string]string),
		store:  store,
		now:    time.Now,
	}
	if store != nil {
		l.load()
	}
	return l
}

func (l *Library) load() {
	r, ok := l.store.Result(SettingsKey)
	if !ok {
		return
	}
	for _, item := range r.Array() {
		t := Track{
			ID:       item.Get("id").String(),
			Title:    item.Get("title").String(),
			Artist:   item.Get("artist").String(),
			Album:    item.Get("album").String(),
			Path:     item.Get("path").String(),
			Duration: time.Duration(item.Get("duration").Int()),
			Added:    item.Get("added").Time(),
		}
		if t.ID == "" || t.Path == "" {
			continue
		}
		l.tracks[t.ID] = t
		l.paths[t.Path] = t.ID
	}
}

// Add inserts t and returns it with its id and defaults filled in.
func (l *Library) Add(t Track) (Track, error) {
	t.Path = strings.TrimSpace(t.Path)
	if t.Path == "" {
		return Track{}, ErrNoPath
	}
	t.Path = filepath.Clean(t.Path)
	if t.Title == "" {
		base := filepath.Base(t.Path)
		t.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.paths[t.Path]; ok {
		return Track{}, fmt.Errorf("%w: %s", ErrDuplicate, t.Path)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	} else if _, ok := l.tracks[t.ID]; ok {
		return Track{}, fmt.Errorf("%w: id %s", ErrDuplicate, t.ID)
	}
	if t.Added.IsZero() {
		t.Added = l.now().UTC()
	}

	l.tracks[t.ID] = t
	l.paths[t.Path] = t.ID
	if err := l.saveLocked(); err != nil {
		delete(l.tracks, t.ID)
		delete(l.paths, t.Path)
		return Track{}, err
	}
	return t, nil
}

// Remove deletes the track with id.
func (l *Library) Remove(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tracks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(l.tracks, id)
	delete(l.paths, t.Path)
	if err := l.saveLocked(); err != nil {
		l.tracks[id] = t
		l.paths[t.Path] = id
		return err
	}
	return nil
}

// Get returns the track with id.
func (l *Library) Get(id string) (Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tracks[id]
	return t, ok
}

// List returns all tracks ordered by artist, album, then title.
func (l *Library) List() []Track {
	l.mu.RLock()
	out := make([]Track, 0, len(l.tracks))
	for _, t := range l.tracks {
		out = append(out, t)
	}
	l.mu.RUnlock()

	sortTracks(out)
	return out
}

// Search returns tracks whose title, artist or album contains query,
// ignoring case.
func (l *Library) Search(query string) []Track {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return l.List()
	}
	var out []Track
	for _, t := range l.List() {
		if strings.Contains(strings.ToLower(t.Title), q) ||
			strings.Contains(strings.ToLower(t.Artist), q) ||
			strings.Contains(strings.ToLower(t.Album), q) {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of tracks.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tracks)
}

func (l *Library) saveLocked() error {
	if l.store == nil {
		return nil
	}
	out := make([]Track, 0, len(l.tracks))
	for _, t := range l.tracks {
		out = append(out, t)
	}
	sortTracks(out)
	if err := l.store.Set(SettingsKey, out); err != nil {
		return fmt.Errorf("save library: %w", err)
	}
	return nil
}

func sortTracks(ts []Track) {
	sort.Slice(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if a.Artist != b.Artist {
			return a.Artist < b.Artist
		}
		if a.Album != b.Album {
			return a.Album < b.Album
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	})
}
