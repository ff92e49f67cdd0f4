package api

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/neonplay/internal/plugin/hostcall"
	plua "github.com/dshills/neonplay/internal/plugin/lua"
	"github.com/dshills/neonplay/internal/plugin/security"
	"github.com/dshills/neonplay/internal/version"
)

// DefaultCallbackTimeout bounds a single Lua callback.
const DefaultCallbackTimeout = 5 * time.Second

// Dependencies are the host services shared by every plugin context.
type Dependencies struct {
	Player  PlayerProvider
	Config  ConfigProvider
	UI      UIProvider
	Events  EventProvider
	Audio   AudioProvider
	Library LibraryProvider

	// Host serves fs and net calls. New creates one if nil.
	Host *hostcall.Dispatcher

	Logger *slog.Logger

	// CoreVersion is reported to plugins as mp.version.
	CoreVersion string

	// DataRoot, if set, is where relative fs paths resolve:
	// DataRoot/<plugin id>/<path>.
	DataRoot string
}

// Factory creates plugin contexts.
type Factory struct {
	deps            Dependencies
	checkerOpts     []security.CheckerOption
	callbackTimeout time.Duration
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithCheckerOptions applies opts to every plugin's security checker.
func WithCheckerOptions(opts ...security.CheckerOption) FactoryOption {
	return func(f *Factory) {
		f.checkerOpts = append(f.checkerOpts, opts...)
	}
}

// WithCallbackTimeout bounds each Lua callback. Zero disables the bound.
func WithCallbackTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) {
		if d >= 0 {
			f.callbackTimeout = d
		}
	}
}

// NewFactory creates a factory over deps.
func NewFactory(deps Dependencies, opts ...FactoryOption) *Factory {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Host == nil {
		deps.Host = hostcall.New(hostcall.WithLogger(deps.Logger))
	}
	if deps.CoreVersion == "" {
		deps.CoreVersion = version.Core
	}
	f := &Factory{
		deps:            deps,
		callbackTimeout: DefaultCallbackTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Host returns the shared host call dispatcher.
func (f *Factory) Host() *hostcall.Dispatcher {
	return f.deps.Host
}

// CreatePluginContext builds the context for plugin id holding perms.
// Unknown permissions are ignored. The plugin's checker is registered with
// the host dispatcher; Release removes it.
func (f *Factory) CreatePluginContext(id string, perms []security.Permission) *PluginContext {
	checker := security.NewChecker(id, perms, f.checkerOpts...)
	f.deps.Host.SetChecker(checker)

	logger := f.deps.Logger.With("plugin", id)
	pc := &PluginContext{
		ID:              id,
		checker:         checker,
		host:            f.deps.Host,
		logger:          logger,
		coreVersion:     f.deps.CoreVersion,
		callbackTimeout: f.callbackTimeout,
	}

	pc.Player = &Player{provider: f.deps.Player}
	pc.Log = &Log{logger: logger}
	pc.Config = newConfig(pc, id, f.deps.Config)
	pc.UI = &UI{plugin: id, provider: f.deps.UI}
	pc.Events = newEvents(pc, id, f.deps.Events)
	pc.Utils = &Utils{}

	if g, ok := checker.Grant(security.PermissionUIOverlay); ok {
		pc.UI.Overlay, _ = NewOverlay(g, id, f.deps.UI)
	}
	if g, ok := checker.Grant(security.PermissionDSPAudio); ok {
		pc.DSP, _ = NewDSP(g, id, f.deps.Audio)
	}

	read, _ := checker.Grant(security.PermissionFileRead)
	write, _ := checker.Grant(security.PermissionFileWrite)
	if read.Valid() || write.Valid() {
		dataDir := ""
		if f.deps.DataRoot != "" {
			dataDir = filepath.Join(f.deps.DataRoot, id)
		}
		pc.FS, _ = NewFS(read, write, id, f.deps.Host, dataDir)
	}
	if g, ok := checker.Grant(security.PermissionNetworkFetch); ok {
		pc.Net, _ = NewNet(g, id, f.deps.Host)
	}
	if g, ok := checker.Grant(security.PermissionLibraryManage); ok {
		pc.Library, _ = NewLibrary(g, id, f.deps.Library)
	}
	return pc
}

// PluginContext is everything one plugin can reach.
type PluginContext struct {
	ID string

	Player *Player
	Log    *Log
	Config *Config
	UI     *UI
	Events *Events
	Utils  *Utils

	// nil unless the matching permission is held
	DSP     *DSP
	FS      *FS
	Net     *Net
	Library *Library

	checker         *security.Checker
	host            *hostcall.Dispatcher
	logger          *slog.Logger
	coreVersion     string
	callbackTimeout time.Duration

	mu    sync.Mutex
	sched Scheduler
}

// Permissions returns the held permissions, sorted.
func (pc *PluginContext) Permissions() []security.Permission {
	return pc.checker.Permissions()
}

// Has returns true if the plugin holds p.
func (pc *PluginContext) Has(p security.Permission) bool {
	return pc.checker.Has(p)
}

// Checker returns the plugin's security checker.
func (pc *PluginContext) Checker() *security.Checker {
	return pc.checker
}

// Logger returns the plugin logger.
func (pc *PluginContext) Logger() *slog.Logger {
	return pc.logger
}

// Install preloads the "mp" module into s and returns its table.
// Lua callbacks are queued on sched.
func (pc *PluginContext) Install(s *plua.State, sched Scheduler) *lua.LTable {
	pc.mu.Lock()
	pc.sched = sched
	pc.mu.Unlock()

	mp := pc.table(s.L)
	s.Preload("mp", func(L *lua.LState) int {
		L.Push(mp)
		return 1
	})
	return mp
}

// Cleanup drops event subscriptions, config watches and overlays made
// through the context. The context stays usable.
func (pc *PluginContext) Cleanup() {
	pc.Events.cleanup()
	pc.Config.cleanup()
	if pc.UI.Overlay != nil {
		pc.UI.Overlay.cleanup()
	}
}

// Release runs Cleanup and unregisters the plugin from the host.
func (pc *PluginContext) Release() {
	pc.Cleanup()
	pc.mu.Lock()
	pc.sched = nil
	pc.mu.Unlock()
	pc.host.RemoveChecker(pc.ID)
}

// schedule queues fn on the plugin's Lua goroutine. args is evaluated
// there so conversions use the right LState.
func (pc *PluginContext) schedule(what string, fn *lua.LFunction, args func(L *lua.LState) []lua.LValue) {
	pc.mu.Lock()
	sched := pc.sched
	timeout := pc.callbackTimeout
	pc.mu.Unlock()
	if sched == nil {
		return
	}

	err := sched.Go(func(ctx context.Context, s *plua.State) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		var lv []lua.LValue
		if args != nil {
			lv = args(s.L)
		}
		_, err := s.Call(ctx, fn, lv...)
		return err
	}, func(err error) {
		pc.logger.Warn("plugin callback failed", "callback", what, "error", err)
	})
	if err != nil {
		pc.logger.Warn("plugin callback dropped", "callback", what, "error", err)
	}
}

func (pc *PluginContext) table(L *lua.LState) *lua.LTable {
	mp := L.NewTable()

	info := L.NewTable()
	info.RawSetString("id", lua.LString(pc.ID))
	perms := L.NewTable()
	for _, p := range pc.Permissions() {
		perms.Append(lua.LString(p))
	}
	info.RawSetString("permissions", perms)
	mp.RawSetString("plugin", info)
	mp.RawSetString("version", lua.LString(pc.coreVersion))
	mp.RawSetString("has", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(pc.Has(security.Permission(L.CheckString(1)))))
		return 1
	}))

	mp.RawSetString("player", pc.Player.table(L))
	mp.RawSetString("log", pc.Log.table(L))
	mp.RawSetString("config", pc.Config.table(L))
	mp.RawSetString("ui", pc.UI.table(L))
	mp.RawSetString("events", pc.Events.table(L))
	mp.RawSetString("utils", pc.Utils.table(L))

	if pc.DSP != nil {
		mp.RawSetString("dsp", pc.DSP.table(L))
	}
	if pc.FS != nil {
		mp.RawSetString("fs", pc.FS.table(L))
	}
	if pc.Net != nil {
		mp.RawSetString("net", pc.Net.table(L))
	}
	if pc.Library != nil {
		mp.RawSetString("library", pc.Library.table(L))
	}
	return mp
}

// Lua helpers

func pushError(L *lua.LState, err error) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(err.Error()))
	return 2
}

func pushOK(L *lua.LState, err error) int {
	if err != nil {
		return pushError(L, err)
	}
	L.Push(lua.LTrue)
	return 1
}

// callContext returns the context of the running Lua call.
func callContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func checkGrant(g security.Grant, plugin string, want security.Permission) error {
	if !g.Valid() || g.Plugin() != plugin || g.Permission() != want {
		return ErrInvalidGrant
	}
	return nil
}
