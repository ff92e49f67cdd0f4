package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Loader discovers plugins on disk.
type Loader struct {
	mu sync.Mutex

	// Search paths for plugins (checked in order)
	paths []string

	discovered map[string]*PluginInfo
}

// PluginInfo is what discovery learned about one plugin.
type PluginInfo struct {
	// ID is the manifest id, or the directory or file name for plugins
	// without a manifest. The registry id of those comes from their Lua
	// metadata.
	ID string

	// Dir is the plugin directory. Single-file plugins share their
	// search path as Dir.
	Dir string

	// Entry is the path of the Lua entry file.
	Entry string

	Manifest   *Manifest
	SingleFile bool
	Err        error
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPaths sets the plugin search paths.
func WithPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.paths = paths
	}
}

// NewLoader creates a new plugin loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		paths:      DefaultPluginPaths(),
		discovered: make(map[string]*PluginInfo),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DefaultPluginPaths returns the default plugin search paths.
func DefaultPluginPaths() []string {
	paths := make([]string, 0, 2)

	// User plugins: $XDG_CONFIG_HOME/neonplay/plugins
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "neonplay", "plugins"))
	}

	// Data plugins: ~/.local/share/neonplay/plugins
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".local", "share", "neonplay", "plugins"))
	}
	return paths
}

// Paths returns the configured search paths.
func (l *Loader) Paths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

// Discover scans the search paths and returns every plugin found, sorted
// by id. When two paths hold the same id, the earlier path wins. Missing
// paths are skipped.
func (l *Loader) Discover() ([]*PluginInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.discovered = make(map[string]*PluginInfo)
	for _, base := range l.paths {
		if err := l.discoverInPath(base); err != nil {
			return nil, err
		}
	}

	plugins := make([]*PluginInfo, 0, len(l.discovered))
	for _, info := range l.discovered {
		plugins = append(plugins, info)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].ID < plugins[j].ID
	})
	return plugins, nil
}

func (l *Loader) discoverInPath(base string) error {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan %s: %w", base, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		var info *PluginInfo
		switch {
		case entry.IsDir():
			info = InspectDir(filepath.Join(base, name))
		case filepath.Ext(name) == ".lua":
			info = InspectFile(filepath.Join(base, name))
		default:
			continue
		}
		if _, exists := l.discovered[info.ID]; !exists {
			l.discovered[info.ID] = info
		}
	}
	return nil
}

// InspectDir examines a plugin directory. Problems are reported in
// PluginInfo.Err rather than returned.
func InspectDir(dir string) *PluginInfo {
	info := &PluginInfo{
		ID:  filepath.Base(dir),
		Dir: dir,
	}

	if path := FindManifest(dir); path != "" {
		m, err := LoadManifest(path)
		if err != nil {
			info.Err = fmt.Errorf("invalid manifest: %w", err)
			return info
		}
		info.ID = m.ID
		info.Manifest = m
		info.Entry = m.EntryPath()
		if _, err := os.Stat(info.Entry); err != nil {
			info.Err = fmt.Errorf("%w: %s", ErrNoEntryPoint, m.Entry)
		}
		return info
	}

	entry := filepath.Join(dir, DefaultEntry)
	if _, err := os.Stat(entry); err != nil {
		info.Err = ErrNoEntryPoint
		return info
	}
	info.Entry = entry
	return info
}

// InspectFile examines a single-file plugin.
func InspectFile(path string) *PluginInfo {
	return &PluginInfo{
		ID:         strings.TrimSuffix(filepath.Base(path), ".lua"),
		Dir:        filepath.Dir(path),
		Entry:      path,
		SingleFile: true,
	}
}

// Inspect examines path, which may be a plugin directory or a .lua file.
func Inspect(path string) (*PluginInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, path)
	}
	if st.IsDir() {
		return InspectDir(path), nil
	}
	if filepath.Ext(path) != ".lua" {
		return nil, fmt.Errorf("%w: %s is not a .lua file", ErrNoEntryPoint, path)
	}
	return InspectFile(path), nil
}

// Get returns the info discovered for id.
func (l *Loader) Get(id string) (*PluginInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	info, ok := l.discovered[id]
	return info, ok
}

// Errors returns the discovered plugins that could not be inspected.
func (l *Loader) Errors() []*PluginInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errored []*PluginInfo
	for _, info := range l.discovered {
		if info.Err != nil {
			errored = append(errored, info)
		}
	}
	sort.Slice(errored, func(i, j int) bool { return errored[i].ID < errored[j].ID })
	return errored
}

// Validate loads the plugin at path into a throwaway host and checks it
// the way the registry would. It returns the plugin's descriptor.
func Validate(ctx context.Context, path string) (*Descriptor, error) {
	info, err := Inspect(path)
	if err != nil {
		return nil, err
	}
	if info.Err != nil {
		return nil, info.Err
	}

	h, err := LoadHost(ctx, info.Entry, info.Manifest)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	if err := validatePlugin(h.Module()); err != nil {
		return h.Descriptor(), err
	}
	return h.Descriptor(), nil
}
