package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dshills/neonplay/internal/player"
	"github.com/dshills/neonplay/internal/plugin/api"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

type entry struct {
	desc    *Descriptor
	module  *Module
	pc      *api.PluginContext
	enabled bool
	loaded  bool
	err     error
}

// Registry tracks registered plugins and drives their lifecycle.
//
// All operations are soft-fail: invalid calls return false and are logged,
// and a failing or panicking hook is recorded against its plugin without
// affecting any other. Transitions run one at a time; queries never wait
// for a hook.
type Registry struct {
	// transition serializes state changes and hook calls
	transition sync.Mutex

	mu          sync.RWMutex
	plugins     map[string]*entry
	order       []string
	initialized bool

	factory     *api.Factory
	logger      *slog.Logger
	hookTimeout time.Duration

	obsMu     sync.Mutex
	observers map[uint64]func(RegistryEvent)
	nextObs   uint64
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithFactory sets the factory that builds plugin contexts.
func WithFactory(f *api.Factory) RegistryOption {
	return func(r *Registry) {
		if f != nil {
			r.factory = f
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithHookTimeout bounds each hook call. Zero disables the bound.
func WithHookTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d >= 0 {
			r.hookTimeout = d
		}
	}
}

// NewRegistry creates an empty, uninitialized registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		plugins:     make(map[string]*entry),
		logger:      slog.Default(),
		hookTimeout: DefaultHookTimeout,
		observers:   make(map[uint64]func(RegistryEvent)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.factory == nil {
		r.factory = api.NewFactory(api.Dependencies{Logger: r.logger})
	}
	return r
}

// Register adds m disabled and unloaded. It returns false if m is invalid
// or its id is taken.
func (r *Registry) Register(ctx context.Context, m *Module) bool {
	if err := validatePlugin(m); err != nil {
		id := ""
		if m != nil && m.Descriptor != nil {
			id = m.Descriptor.ID()
		}
		r.logger.Warn("plugin rejected", "plugin", id, "error", err)
		return false
	}
	id := m.Descriptor.ID()

	var evs batch
	r.transition.Lock()
	ok := r.register(ctx, id, m, &evs)
	r.transition.Unlock()
	r.emit(evs)
	return ok
}

func (r *Registry) register(ctx context.Context, id string, m *Module, evs *batch) bool {
	r.mu.Lock()
	if _, exists := r.plugins[id]; exists {
		r.mu.Unlock()
		r.logger.Warn("plugin already registered", "plugin", id)
		return false
	}
	e := &entry{
		desc:   m.Descriptor,
		module: m,
		pc:     r.factory.CreatePluginContext(id, m.Descriptor.Permissions()),
	}
	r.plugins[id] = e
	r.order = append(r.order, id)
	r.mu.Unlock()

	r.logger.Debug("plugin registered", "plugin", id, "version", m.Descriptor.Version())
	evs.add(EventRegistered, id, StateDisabled, nil)

	// no-op until enabled
	_ = r.load(ctx, e, evs)
	return true
}

// Enable marks id enabled and, if the registry is initialized, loads it.
// A load failure is recorded, not returned: Enable still reports true.
func (r *Registry) Enable(ctx context.Context, id string) bool {
	var evs batch
	r.transition.Lock()
	ok := r.enable(ctx, id, &evs)
	r.transition.Unlock()
	r.emit(evs)
	return ok
}

func (r *Registry) enable(ctx context.Context, id string, evs *batch) bool {
	e, ok := r.get(id)
	if !ok {
		r.logger.Warn("enable: plugin not registered", "plugin", id)
		return false
	}

	r.mu.Lock()
	if e.enabled {
		r.mu.Unlock()
		return true
	}
	e.enabled = true
	r.mu.Unlock()

	evs.add(EventEnabled, id, StateEnabled, nil)
	_ = r.load(ctx, e, evs)
	return true
}

// Disable unloads id if needed and clears its enabled flag. Disabling a
// disabled plugin returns true and does nothing.
func (r *Registry) Disable(ctx context.Context, id string) bool {
	var evs batch
	r.transition.Lock()
	ok := r.disable(ctx, id, &evs)
	r.transition.Unlock()
	r.emit(evs)
	return ok
}

func (r *Registry) disable(ctx context.Context, id string, evs *batch) bool {
	e, ok := r.get(id)
	if !ok {
		r.logger.Warn("disable: plugin not registered", "plugin", id)
		return false
	}

	r.mu.RLock()
	enabled := e.enabled
	r.mu.RUnlock()
	if !enabled {
		return true
	}

	r.unload(ctx, e, evs)

	r.mu.Lock()
	e.enabled = false
	r.mu.Unlock()
	evs.add(EventDisabled, id, StateDisabled, nil)
	return true
}

// Unregister unloads id if needed, releases its context and removes it.
func (r *Registry) Unregister(ctx context.Context, id string) bool {
	var evs batch
	r.transition.Lock()
	e, ok := r.unregister(ctx, id, &evs)
	r.transition.Unlock()
	r.emit(evs)

	if ok && e.module.Close != nil {
		e.module.Close()
	}
	return ok
}

func (r *Registry) unregister(ctx context.Context, id string, evs *batch) (*entry, bool) {
	e, ok := r.get(id)
	if !ok {
		r.logger.Warn("unregister: plugin not registered", "plugin", id)
		return nil, false
	}

	r.unload(ctx, e, evs)

	r.mu.Lock()
	e.enabled = false
	delete(r.plugins, id)
	for i, n := range r.order {
		if n == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	e.pc.Release()
	r.logger.Debug("plugin unregistered", "plugin", id)
	evs.add(EventUnregistered, id, StateUnregistered, nil)
	return e, true
}

// Initialize marks the registry ready and loads every enabled plugin in
// registration order. The returned error joins the load failures.
func (r *Registry) Initialize(ctx context.Context) error {
	var evs batch
	r.transition.Lock()

	r.mu.Lock()
	r.initialized = true
	ids := append([]string(nil), r.order...)
	r.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if e, ok := r.get(id); ok {
			if err := r.load(ctx, e, &evs); err != nil {
				errs = append(errs, err)
			}
		}
	}
	r.transition.Unlock()
	r.emit(evs)
	return errors.Join(errs...)
}

// Shutdown unloads every loaded plugin in reverse registration order and
// marks the registry uninitialized. Enabled flags are kept.
func (r *Registry) Shutdown(ctx context.Context) {
	var evs batch
	r.transition.Lock()

	r.mu.Lock()
	r.initialized = false
	ids := append([]string(nil), r.order...)
	r.mu.Unlock()

	for i := len(ids) - 1; i >= 0; i-- {
		if e, ok := r.get(ids[i]); ok {
			r.unload(ctx, e, &evs)
		}
	}
	r.transition.Unlock()
	r.emit(evs)
}

// Initialized returns true between Initialize and Shutdown.
func (r *Registry) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// load runs initialize then onLoad. It is a no-op unless the registry is
// initialized and the plugin is enabled and not loaded.
func (r *Registry) load(ctx context.Context, e *entry, evs *batch) error {
	r.mu.RLock()
	ready := r.initialized && e.enabled && !e.loaded
	r.mu.RUnlock()
	if !ready {
		return nil
	}

	id := e.desc.ID()
	m := e.module
	var err error
	if m.Initialize != nil {
		err = r.call(ctx, id, "initialize", func(ctx context.Context) error {
			return m.Initialize(ctx, e.pc)
		})
	}
	if err == nil && m.OnLoad != nil {
		err = r.call(ctx, id, "onLoad", m.OnLoad)
	}
	if err != nil {
		e.pc.Cleanup()
		r.fail(e, err, evs)
		return err
	}

	r.mu.Lock()
	e.loaded = true
	e.err = nil
	r.mu.Unlock()

	r.logger.Info("plugin loaded", "plugin", id)
	evs.add(EventLoaded, id, StateLoaded, nil)
	return nil
}

// unload runs onUnload. The plugin ends up unloaded whether or not the
// hook succeeds.
func (r *Registry) unload(ctx context.Context, e *entry, evs *batch) {
	r.mu.RLock()
	loaded := e.loaded
	r.mu.RUnlock()
	if !loaded {
		return
	}

	id := e.desc.ID()
	var err error
	if e.module.OnUnload != nil {
		err = r.call(ctx, id, "onUnload", e.module.OnUnload)
	}

	r.mu.Lock()
	e.loaded = false
	if err != nil {
		e.err = err
	}
	r.mu.Unlock()
	e.pc.Cleanup()

	if err != nil {
		r.logger.Warn("plugin unload failed", "plugin", id, "error", err)
		evs.add(EventError, id, StateEnabled, err)
	}
	r.logger.Info("plugin unloaded", "plugin", id)
	evs.add(EventUnloaded, id, StateEnabled, nil)
}

func (r *Registry) fail(e *entry, err error, evs *batch) {
	r.mu.Lock()
	e.err = err
	state := stateOf(e.enabled, e.loaded)
	r.mu.Unlock()

	id := e.desc.ID()
	r.logger.Error("plugin hook failed", "plugin", id, "error", err)
	evs.add(EventError, id, state, err)
}

// call runs fn under the hook timeout, converting panics and deadline
// expiry into errors. A Go hook that ignores ctx is abandoned on timeout.
func (r *Registry) call(ctx context.Context, id, op string, fn func(context.Context) error) error {
	if r.hookTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.hookTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("%w: %v", ErrHookPanic, p)
			}
		}()
		done <- fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", ErrHookTimeout, r.hookTimeout)
	}
	return &PluginError{ID: id, Op: op, Err: err}
}

// DispatchPlayerEvent calls the hook for ev on every loaded plugin, in
// registration order. A failing hook is recorded against its plugin and
// does not stop delivery to the rest.
func (r *Registry) DispatchPlayerEvent(ctx context.Context, ev player.Event, data map[string]any) {
	name, ok := HookName(ev)
	if !ok {
		return
	}

	var evs batch
	r.transition.Lock()
	for _, id := range r.IDs() {
		e, ok := r.get(id)
		if !ok {
			continue
		}
		r.mu.RLock()
		loaded := e.loaded
		r.mu.RUnlock()
		if !loaded {
			continue
		}
		h, ok := e.module.Hook(ev)
		if !ok {
			continue
		}
		arg := maps.Clone(data)
		if err := r.call(ctx, id, name, func(ctx context.Context) error { return h(ctx, arg) }); err != nil {
			r.fail(e, err, &evs)
		}
	}
	r.transition.Unlock()
	r.emit(evs)
}

// Queries

func (r *Registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.plugins[id]
	return e, ok
}

// IsPluginEnabled returns true if id is registered and enabled.
func (r *Registry) IsPluginEnabled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.plugins[id]
	return ok && e.enabled
}

// IsPluginLoaded returns true if id is registered and loaded.
func (r *Registry) IsPluginLoaded(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.plugins[id]
	return ok && e.loaded
}

// State returns the lifecycle state of id.
func (r *Registry) State(id string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.plugins[id]
	if !ok {
		return StateUnregistered
	}
	return stateOf(e.enabled, e.loaded)
}

// GetPluginMetadata returns the descriptor of id.
func (r *Registry) GetPluginMetadata(id string) (*Descriptor, bool) {
	e, ok := r.get(id)
	if !ok {
		return nil, false
	}
	return e.desc, true
}

// Context returns the plugin context created for id at registration.
func (r *Registry) Context(id string) (*api.PluginContext, bool) {
	e, ok := r.get(id)
	if !ok {
		return nil, false
	}
	return e.pc, true
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// IDs returns registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Err returns the last error recorded for id.
func (r *Registry) Err(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.plugins[id]; ok {
		return e.err
	}
	return nil
}

// Errors returns the last recorded error of every plugin that has one.
func (r *Registry) Errors() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	errs := make(map[string]error)
	for id, e := range r.plugins {
		if e.err != nil {
			errs[id] = e.err
		}
	}
	return errs
}

// Status is a snapshot of one registered plugin.
type Status struct {
	Descriptor *Descriptor
	State      State
	Err        error
}

// List returns a snapshot of every plugin in registration order.
func (r *Registry) List() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.order))
	for _, id := range r.order {
		e := r.plugins[id]
		out = append(out, Status{Descriptor: e.desc, State: stateOf(e.enabled, e.loaded), Err: e.err})
	}
	return out
}

// Observers

// Subscribe registers fn for registry events and returns a function that
// removes it. fn runs after the transition completes, outside registry
// locks; a panic in fn is recovered and logged.
func (r *Registry) Subscribe(fn func(RegistryEvent)) func() {
	if fn == nil {
		return func() {}
	}
	r.obsMu.Lock()
	r.nextObs++
	id := r.nextObs
	r.observers[id] = fn
	r.obsMu.Unlock()

	return func() {
		r.obsMu.Lock()
		delete(r.observers, id)
		r.obsMu.Unlock()
	}
}

type batch []RegistryEvent

func (b *batch) add(t EventType, id string, s State, err error) {
	*b = append(*b, RegistryEvent{Type: t, Plugin: id, State: s, Err: err})
}

func (r *Registry) emit(evs batch) {
	if len(evs) == 0 {
		return
	}
	r.obsMu.Lock()
	ids := make([]uint64, 0, len(r.observers))
	for id := range r.observers {
		ids = append(ids, id)
	}
	fns := make([]func(RegistryEvent), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, r.observers[id])
	}
	r.obsMu.Unlock()

	for _, ev := range evs {
		for _, fn := range fns {
			r.notify(fn, ev)
		}
	}
}

func (r *Registry) notify(fn func(RegistryEvent), ev RegistryEvent) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("registry observer panicked", "plugin", ev.Plugin, "event", ev.Type.String(), "panic", p)
		}
	}()
	fn(ev)
}
