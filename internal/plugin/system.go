package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dshills/neonplay/internal/event"
	"github.com/dshills/neonplay/internal/player"
	"github.com/dshills/neonplay/internal/plugin/api"
	"github.com/dshills/neonplay/internal/settings"
)

// System ties discovery, Lua hosts and the registry together, and keeps
// each plugin's enabled flag in the settings store.
type System struct {
	mu sync.Mutex

	registry *Registry
	loader   *Loader
	settings *settings.Store
	logger   *slog.Logger
	queue    int

	// where each registered plugin came from, by registry id
	sources map[string]*PluginInfo

	unsubscribe func()
}

// SystemConfig configures the plugin system.
type SystemConfig struct {
	// Paths are searched for plugins, in order.
	Paths []string

	// HookTimeout bounds each hook call. Zero disables the bound.
	HookTimeout time.Duration

	// QueueSize bounds pending Lua callbacks per plugin.
	QueueSize int

	// Factory builds plugin contexts. Required.
	Factory *api.Factory

	// Settings, if set, stores enabled flags across runs.
	Settings *settings.Store

	// Bus, if set, receives registry events on plugins.state.
	Bus *event.Bus

	Logger *slog.Logger
}

// DefaultSystemConfig returns the default configuration without a factory.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		Paths:       DefaultPluginPaths(),
		HookTimeout: DefaultHookTimeout,
		QueueSize:   64,
	}
}

// NewSystem creates a plugin system.
func NewSystem(cfg SystemConfig) *System {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &System{
		registry: NewRegistry(
			WithFactory(cfg.Factory),
			WithLogger(logger),
			WithHookTimeout(cfg.HookTimeout),
		),
		loader:   NewLoader(WithPaths(cfg.Paths...)),
		settings: cfg.Settings,
		logger:   logger,
		queue:    cfg.QueueSize,
		sources:  make(map[string]*PluginInfo),
	}
	if cfg.Bus != nil {
		s.unsubscribe = s.registry.Subscribe(publishTo(cfg.Bus))
	}
	return s
}

// publishTo forwards registry events to the bus.
func publishTo(bus *event.Bus) func(RegistryEvent) {
	return func(ev RegistryEvent) {
		data := map[string]any{
			"plugin": ev.Plugin,
			"event":  ev.Type.String(),
			"state":  ev.State.String(),
		}
		if ev.Err != nil {
			data["error"] = ev.Err.Error()
		}
		bus.Publish(event.TopicPluginState, data)
	}
}

// Registry returns the plugin registry.
func (s *System) Registry() *Registry {
	return s.registry
}

// Loader returns the discovery loader.
func (s *System) Loader() *Loader {
	return s.loader
}

// LoadAll discovers plugins and registers every one that loads and
// validates. Plugins stored as enabled are enabled. The returned error
// joins the per-plugin failures; the rest are still registered.
func (s *System) LoadAll(ctx context.Context) error {
	infos, err := s.loader.Discover()
	if err != nil {
		return err
	}

	var errs []error
	for _, info := range infos {
		if info.Err != nil {
			s.logger.Warn("plugin skipped", "plugin", info.ID, "dir", info.Dir, "error", info.Err)
			errs = append(errs, &PluginError{ID: info.ID, Op: "discover", Err: info.Err})
			continue
		}
		if _, err := s.add(ctx, info); err != nil {
			s.logger.Warn("plugin skipped", "plugin", info.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// add starts a host for info and registers it.
func (s *System) add(ctx context.Context, info *PluginInfo) (string, error) {
	h, err := LoadHost(ctx, info.Entry, info.Manifest,
		WithHostLogger(s.logger),
		WithHostQueueSize(s.queue),
	)
	if err != nil {
		return "", &PluginError{ID: info.ID, Op: "load", Err: err}
	}

	m := h.Module()
	if err := validatePlugin(m); err != nil {
		h.Close()
		return "", err
	}
	id := m.Descriptor.ID()
	if !s.registry.Register(ctx, m) {
		h.Close()
		return "", &PluginError{ID: id, Op: "register", Err: ErrAlreadyRegistered}
	}

	s.mu.Lock()
	s.sources[id] = info
	s.mu.Unlock()

	if s.settings != nil {
		if enabled, ok := s.settings.PluginEnabled(id); ok && enabled {
			s.registry.Enable(ctx, id)
		}
	}
	return id, nil
}

// Register adds an in-process module. It is not persisted or reloadable.
func (s *System) Register(ctx context.Context, m *Module) bool {
	return s.registry.Register(ctx, m)
}

// Initialize loads every enabled plugin.
func (s *System) Initialize(ctx context.Context) error {
	return s.registry.Initialize(ctx)
}

// Enable enables id and stores the flag.
func (s *System) Enable(ctx context.Context, id string) bool {
	if !s.registry.Enable(ctx, id) {
		return false
	}
	s.persist(id, true)
	return true
}

// Disable disables id and stores the flag.
func (s *System) Disable(ctx context.Context, id string) bool {
	if !s.registry.Disable(ctx, id) {
		return false
	}
	s.persist(id, false)
	return true
}

func (s *System) persist(id string, enabled bool) {
	if s.settings == nil {
		return
	}
	if err := s.settings.SetPluginEnabled(id, enabled); err != nil {
		s.logger.Warn("plugin state not saved", "plugin", id, "error", err)
	}
}

// Reload unregisters id, re-reads it from disk and registers it again,
// restoring its enabled flag.
func (s *System) Reload(ctx context.Context, id string) error {
	s.mu.Lock()
	info, ok := s.sources[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}

	wasEnabled := s.registry.IsPluginEnabled(id)
	s.registry.Unregister(ctx, id)
	s.mu.Lock()
	delete(s.sources, id)
	s.mu.Unlock()

	var fresh *PluginInfo
	if info.SingleFile {
		fresh = InspectFile(info.Entry)
	} else {
		fresh = InspectDir(info.Dir)
	}
	if fresh.Err != nil {
		return &PluginError{ID: id, Op: "reload", Err: fresh.Err}
	}

	newID, err := s.add(ctx, fresh)
	if err != nil {
		return err
	}
	if wasEnabled && !s.registry.IsPluginEnabled(newID) {
		s.registry.Enable(ctx, newID)
	}
	s.logger.Info("plugin reloaded", "plugin", newID)
	return nil
}

// ReloadPath reloads the plugin whose directory or entry file is path.
func (s *System) ReloadPath(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	s.mu.Lock()
	var id string
	for pid, info := range s.sources {
		if (!info.SingleFile && filepath.Clean(info.Dir) == path) || filepath.Clean(info.Entry) == path {
			id = pid
			break
		}
	}
	s.mu.Unlock()
	if id == "" {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, path)
	}
	return s.Reload(ctx, id)
}

// AddPath loads and registers the plugin at path, a plugin directory or
// a .lua file, and returns its id.
func (s *System) AddPath(ctx context.Context, path string) (string, error) {
	info, err := Inspect(path)
	if err != nil {
		return "", err
	}
	if info.Err != nil {
		return "", &PluginError{ID: info.ID, Op: "discover", Err: info.Err}
	}
	return s.add(ctx, info)
}

// Source returns where id was loaded from.
func (s *System) Source(id string) (*PluginInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.sources[id]
	return info, ok
}

// DispatchPlayerEvent forwards a player event to loaded plugins. It has
// the shape of player.HookFunc.
func (s *System) DispatchPlayerEvent(ctx context.Context, ev player.Event, data map[string]any) {
	s.registry.DispatchPlayerEvent(ctx, ev, data)
}

// Shutdown unloads and unregisters every plugin, closing their hosts.
func (s *System) Shutdown(ctx context.Context) {
	s.registry.Shutdown(ctx)
	ids := s.registry.IDs()
	for i := len(ids) - 1; i >= 0; i-- {
		s.registry.Unregister(ctx, ids[i])
	}
	s.mu.Lock()
	s.sources = make(map[string]*PluginInfo)
	s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}
