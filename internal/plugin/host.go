package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/neonplay/internal/player"
	"github.com/dshills/neonplay/internal/plugin/api"
	plua "github.com/dshills/neonplay/internal/plugin/lua"
	"github.com/dshills/neonplay/internal/plugin/security"
)

// Lua lifecycle function names.
const (
	luaInitialize = "initialize"
	luaOnLoad     = "onLoad"
	luaOnUnload   = "onUnload"
)

// Host runs one Lua plugin: a sandboxed state, the executor goroutine that
// owns it, and the table the entry file returned.
//
// The entry file is run once, when the host is created. The "mp" module is
// installed just before initialize, so scripts require it from inside their
// hooks rather than at the top level.
type Host struct {
	desc   *Descriptor
	state  *plua.State
	exec   *plua.Executor
	mod    *lua.LTable
	funcs  map[string]bool
	logger *slog.Logger

	cancel    context.CancelFunc
	closeOnce sync.Once
}

type hostConfig struct {
	logger    *slog.Logger
	queueSize int
}

// HostOption configures a Host.
type HostOption func(*hostConfig)

// WithHostLogger sets the logger used for the plugin's print output.
func WithHostLogger(l *slog.Logger) HostOption {
	return func(c *hostConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHostQueueSize bounds the number of pending Lua callbacks.
func WithHostQueueSize(n int) HostOption {
	return func(c *hostConfig) {
		c.queueSize = n
	}
}

// LoadHost runs the Lua file at entry and returns a host for the module
// it returns. With a manifest, the descriptor comes from the manifest and
// the module's metadata id, if set, must match it. Without one, the
// module's metadata table is the descriptor.
func LoadHost(ctx context.Context, entry string, manifest *Manifest, opts ...HostOption) (*Host, error) {
	cfg := hostConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Host{
		funcs:  make(map[string]bool),
		logger: cfg.logger.With("entry", entry),
	}
	state, err := plua.NewState(plua.WithPrintFunc(func(s string) {
		h.logger.Info("plugin print", "text", s)
	}))
	if err != nil {
		return nil, err
	}
	h.state = state
	h.exec = plua.NewExecutor(state, cfg.queueSize)

	runCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.exec.Run(runCtx)

	var meta metadata
	err = h.exec.Execute(ctx, func(ctx context.Context, s *plua.State) error {
		mod, err := s.LoadModule(ctx, entry)
		if err != nil {
			return err
		}
		h.mod = mod
		meta = readMetadata(mod)
		for _, name := range luaFunctions() {
			if _, ok := plua.FunctionField(mod, name); ok {
				h.funcs[name] = true
			}
		}
		return nil
	})
	if err != nil {
		h.Close()
		return nil, err
	}

	desc, err := describe(entry, manifest, meta)
	if err != nil {
		h.Close()
		return nil, err
	}
	h.desc = desc
	h.logger = cfg.logger.With("plugin", desc.ID())
	return h, nil
}

func luaFunctions() []string {
	names := []string{luaInitialize, luaOnLoad, luaOnUnload}
	for _, ev := range PlayerEvents {
		name, _ := HookName(ev)
		names = append(names, name)
	}
	return names
}

// metadata is the module's metadata table. A non-string field is treated
// as missing.
type metadata struct {
	present     bool
	id          string
	name        string
	version     string
	author      string
	description string
	permissions []string
}

func readMetadata(mod *lua.LTable) metadata {
	tbl, ok := plua.TableField(mod, "metadata")
	if !ok {
		return metadata{}
	}
	m := metadata{present: true}
	m.id, _ = plua.StringField(tbl, "id")
	m.name, _ = plua.StringField(tbl, "name")
	m.version, _ = plua.StringField(tbl, "version")
	m.author, _ = plua.StringField(tbl, "author")
	m.description, _ = plua.StringField(tbl, "description")
	if perms, ok := plua.TableField(tbl, "permissions"); ok {
		for i := 1; i <= perms.Len(); i++ {
			if s, ok := perms.RawGetInt(i).(lua.LString); ok {
				m.permissions = append(m.permissions, string(s))
			}
		}
	}
	return m
}

func describe(entry string, manifest *Manifest, meta metadata) (*Descriptor, error) {
	if manifest != nil {
		if meta.id != "" && meta.id != manifest.ID {
			return nil, fmt.Errorf("%w: metadata id %q, manifest id %q", ErrMetadataMismatch, meta.id, manifest.ID)
		}
		info := manifest.Descriptor().Info()
		if info.Author == "" {
			info.Author = meta.author
		}
		if info.Description == "" {
			info.Description = meta.description
		}
		return NewDescriptor(info), nil
	}

	if !meta.present {
		return nil, fmt.Errorf("%w: %s has no manifest and no metadata table", ErrInvalidPlugin, filepath.Base(entry))
	}
	if meta.id != "" && !ValidID(meta.id) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidID, meta.id)
	}
	perms := make([]security.Permission, 0, len(meta.permissions))
	for _, s := range meta.permissions {
		p, err := security.ParsePermission(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPermission, s)
		}
		perms = append(perms, p)
	}
	return NewDescriptor(DescriptorInfo{
		ID:          meta.id,
		Name:        meta.name,
		Description: meta.description,
		Version:     meta.version,
		Author:      meta.author,
		Permissions: perms,
		EntryPoint:  filepath.Base(entry),
		Dir:         filepath.Dir(entry),
	}), nil
}

// Descriptor returns the plugin's descriptor.
func (h *Host) Descriptor() *Descriptor {
	return h.desc
}

// Functions returns the recognized hook functions the module defines.
func (h *Host) Functions() []string {
	var out []string
	for _, name := range luaFunctions() {
		if h.funcs[name] {
			out = append(out, name)
		}
	}
	return out
}

// Module adapts the host to the registry. A module with no recognized
// functions has no hooks and fails validation.
func (h *Host) Module() *Module {
	m := &Module{Descriptor: h.desc, Close: h.Close}
	if len(h.funcs) == 0 {
		return m
	}

	m.Initialize = func(ctx context.Context, pc *api.PluginContext) error {
		return h.exec.Execute(ctx, func(ctx context.Context, s *plua.State) error {
			mp := pc.Install(s, h.exec)
			if !h.funcs[luaInitialize] {
				return nil
			}
			_, err := s.CallField(ctx, h.mod, luaInitialize, mp)
			return err
		})
	}
	if h.funcs[luaOnLoad] {
		m.OnLoad = func(ctx context.Context) error { return h.call(ctx, luaOnLoad, nil) }
	}
	if h.funcs[luaOnUnload] {
		m.OnUnload = func(ctx context.Context) error { return h.call(ctx, luaOnUnload, nil) }
	}

	for _, ev := range PlayerEvents {
		name, _ := HookName(ev)
		if !h.funcs[name] {
			continue
		}
		if m.Hooks == nil {
			m.Hooks = make(map[player.Event]EventHook)
		}
		m.Hooks[ev] = func(ctx context.Context, data map[string]any) error {
			return h.call(ctx, name, data)
		}
	}
	return m
}

// call runs the module function name on the executor. data, if non-nil,
// is passed as a table.
func (h *Host) call(ctx context.Context, name string, data map[string]any) error {
	return h.exec.Execute(ctx, func(ctx context.Context, s *plua.State) error {
		var args []lua.LValue
		if data != nil {
			args = append(args, plua.ToLua(s.L, data))
		}
		_, err := s.CallField(ctx, h.mod, name, args...)
		return err
	})
}

// Close stops the executor and releases the Lua state. It is safe to call
// more than once.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		h.exec.Close()
		h.cancel()
		h.exec.Wait()
		h.state.Close()
	})
}
