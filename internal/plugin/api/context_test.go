package api

import (
	"context"
	"fmt"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/neonplay/internal/audio"
	"github.com/dshills/neonplay/internal/event"
	"github.com/dshills/neonplay/internal/library"
	"github.com/dshills/neonplay/internal/player"
	plua "github.com/dshills/neonplay/internal/plugin/lua"
	"github.com/dshills/neonplay/internal/plugin/security"
	"github.com/dshills/neonplay/internal/settings"
	"github.com/dshills/neonplay/internal/ui"
)

type testHost struct {
	bus      *event.Bus
	store    *settings.Store
	ui       *ui.Headless
	engine   *audio.Engine
	library  *library.Library
	player   *player.Player
	factory  *Factory
	dataRoot string
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()
	store, err := settings.New("")
	if err != nil {
		t.Fatalf("settings.New() error = %v", err)
	}
	bus := event.NewBus()
	engine := audio.NewEngine()
	h := &testHost{
		bus:      bus,
		store:    store,
		ui:       ui.NewHeadless(ui.WithBus(bus)),
		engine:   engine,
		library:  library.New(store),
		player:   player.New(player.WithEngine(engine), player.WithBus(bus)),
		dataRoot: t.TempDir(),
	}
	t.Cleanup(func() { h.player.Close() })
	h.factory = NewFactory(Dependencies{
		Player:   h.player,
		Config:   store,
		UI:       h.ui,
		Events:   bus,
		Audio:    engine,
		Library:  h.library,
		DataRoot: h.dataRoot,
	})
	return h
}

func TestCreatePluginContextSurfaces(t *testing.T) {
	h := newTestHost(t)

	tests := []struct {
		name    string
		perms   []security.Permission
		overlay bool
		dsp     bool
		fs      bool
		net     bool
		library bool
	}{
		{name: "none"},
		{name: "overlay", perms: []security.Permission{security.PermissionUIOverlay}, overlay: true},
		{name: "dsp", perms: []security.Permission{security.PermissionDSPAudio}, dsp: true},
		{name: "fs read", perms: []security.Permission{security.PermissionFileRead}, fs: true},
		{name: "fs write", perms: []security.Permission{security.PermissionFileWrite}, fs: true},
		{name: "net", perms: []security.Permission{security.PermissionNetworkFetch}, net: true},
		{name: "library", perms: []security.Permission{security.PermissionLibraryManage}, library: true},
		{name: "all", perms: security.AllPermissions(), overlay: true, dsp: true, fs: true, net: true, library: true},
		{name: "unknown ignored", perms: []security.Permission{"root:shell"}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := h.factory.CreatePluginContext(fmt.Sprintf("plugin-%d", i), tt.perms)
			defer pc.Release()

			if pc.Player == nil || pc.Log == nil || pc.Config == nil || pc.UI == nil || pc.Events == nil || pc.Utils == nil {
				t.Fatal("always-present surface is nil")
			}
			if got := pc.UI.Overlay != nil; got != tt.overlay {
				t.Errorf("UI.Overlay present = %v, want %v", got, tt.overlay)
			}
			if got := pc.DSP != nil; got != tt.dsp {
				t.Errorf("DSP present = %v, want %v", got, tt.dsp)
			}
			if got := pc.FS != nil; got != tt.fs {
				t.Errorf("FS present = %v, want %v", got, tt.fs)
			}
			if got := pc.Net != nil; got != tt.net {
				t.Errorf("Net present = %v, want %v", got, tt.net)
			}
			if got := pc.Library != nil; got != tt.library {
				t.Errorf("Library present = %v, want %v", got, tt.library)
			}
		})
	}
}

func TestCreatePluginContextRegistersChecker(t *testing.T) {
	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("lyrics", []security.Permission{security.PermissionFileRead})

	if _, ok := h.factory.Host().Checker("lyrics"); !ok {
		t.Fatal("checker not registered with host")
	}
	if !pc.Has(security.PermissionFileRead) || pc.Has(security.PermissionFileWrite) {
		t.Errorf("Has() wrong for %v", pc.Permissions())
	}

	pc.Release()
	if _, ok := h.factory.Host().Checker("lyrics"); ok {
		t.Error("checker still registered after Release")
	}
}

func newLuaState(t *testing.T, pc *PluginContext, sched Scheduler) *plua.State {
	t.Helper()
	s, err := plua.NewState()
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	pc.Install(s, sched)
	return s
}

func TestLuaSurfaceKeys(t *testing.T) {
	h := newTestHost(t)

	tests := []struct {
		name  string
		perms []security.Permission
		code  string
	}{
		{
			name: "no permissions",
			code: `
				local mp = require("mp")
				assert(mp.player and mp.log and mp.config and mp.ui and mp.events and mp.utils)
				assert(mp.dsp == nil, "dsp")
				assert(mp.fs == nil, "fs")
				assert(mp.net == nil, "net")
				assert(mp.library == nil, "library")
				assert(mp.ui.overlay == nil, "overlay")
				assert(#mp.plugin.permissions == 0)
				assert(mp.has("dsp:audio") == false)
			`,
		},
		{
			name:  "read only fs",
			perms: []security.Permission{security.PermissionFileRead},
			code: `
				local mp = require("mp")
				assert(mp.fs.read and mp.fs.list and mp.fs.exists)
				assert(mp.fs.write == nil, "write without grant")
			`,
		},
		{
			name:  "write only fs",
			perms: []security.Permission{security.PermissionFileWrite},
			code: `
				local mp = require("mp")
				assert(mp.fs.write)
				assert(mp.fs.read == nil, "read without grant")
			`,
		},
		{
			name:  "overlay and dsp",
			perms: []security.Permission{security.PermissionUIOverlay, security.PermissionDSPAudio},
			code: `
				local mp = require("mp")
				assert(mp.ui.overlay.show)
				assert(mp.dsp.set_equalizer)
				assert(mp.has("ui:overlay"))
				assert(#mp.plugin.permissions == 2)
			`,
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := h.factory.CreatePluginContext(fmt.Sprintf("lua-%d", i), tt.perms)
			defer pc.Release()
			s := newLuaState(t, pc, nil)
			if err := s.DoString(context.Background(), tt.code); err != nil {
				t.Fatalf("DoString() error = %v", err)
			}
		})
	}
}

func TestLuaPluginInfo(t *testing.T) {
	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("visualizer", nil)
	defer pc.Release()
	s := newLuaState(t, pc, nil)

	err := s.DoString(context.Background(), `
		local mp = require("mp")
		assert(mp.plugin.id == "visualizer")
		assert(mp.version == "`+pc.coreVersion+`")
		assert(mp.config.namespace == "plugins.visualizer.config")
		assert(mp.utils.format_time(75) == "1:15")
	`)
	if err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
}

func TestConfigNamespace(t *testing.T) {
	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("lyrics", nil)
	defer pc.Release()

	if err := pc.Config.Set("source", "lrclib"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, ok := h.store.Get("plugins.lyrics.config.source"); !ok || v != "lrclib" {
		t.Errorf("store value = %v, %v", v, ok)
	}
	if v, ok := pc.Config.Get("source"); !ok || v != "lrclib" {
		t.Errorf("Get(source) = %v, %v", v, ok)
	}
	if keys := pc.Config.Keys(); len(keys) != 1 || keys[0] != "source" {
		t.Errorf("Keys() = %v", keys)
	}

	other := h.factory.CreatePluginContext("other", nil)
	defer other.Release()
	if _, ok := other.Config.Get("source"); ok {
		t.Error("other plugin sees lyrics config")
	}

	if err := pc.Config.Set("../escape", 1); err == nil {
		t.Error("Set(../escape) error = nil")
	}
	if err := pc.Config.Set("source", nil); err != nil {
		t.Fatalf("Set(nil) error = %v", err)
	}
	if _, ok := pc.Config.Get("source"); ok {
		t.Error("Set(nil) did not delete")
	}
}

func TestConfigWatchCleanup(t *testing.T) {
	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("lyrics", nil)

	var keys []string
	if _, err := pc.Config.Watch("**", func(key string, _, _ any) { keys = append(keys, key) }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	pc.Config.Set("color", "red")
	if len(keys) != 1 || keys[0] != "color" {
		t.Fatalf("watched keys = %v", keys)
	}

	pc.Cleanup()
	pc.Config.Set("color", "blue")
	if len(keys) != 1 {
		t.Errorf("watch fired after Cleanup: %v", keys)
	}
}

func TestEventsEmitNamespace(t *testing.T) {
	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("lyrics", nil)
	defer pc.Release()

	var got []string
	h.bus.Subscribe("plugin.**", func(ev event.Event) { got = append(got, ev.Topic.String()) })

	for _, name := range []string{"found", "plugin.lyrics.missing", "plugin.other.spoof"} {
		if _, err := pc.Events.Emit(name, nil); err != nil {
			t.Fatalf("Emit(%q) error = %v", name, err)
		}
	}
	want := []string{"plugin.lyrics.found", "plugin.lyrics.missing", "plugin.lyrics.plugin.other.spoof"}
	if len(got) != len(want) {
		t.Fatalf("topics = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("topic[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"", "a..b", "x.*"} {
		if _, err := pc.Events.Emit(bad, nil); err == nil {
			t.Errorf("Emit(%q) error = nil", bad)
		}
	}
}

func TestEventsCleanup(t *testing.T) {
	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("lyrics", nil)

	if _, err := pc.Events.On("player.*", func(event.Event) {}); err != nil {
		t.Fatalf("On() error = %v", err)
	}
	if pc.Events.Subscriptions() != 1 || h.bus.Subscribers() == 0 {
		t.Fatalf("subscription not recorded")
	}
	pc.Release()
	if h.bus.Subscribers() != 0 {
		t.Errorf("bus Subscribers() = %d after Release", h.bus.Subscribers())
	}
}

func TestLuaCallbacksRunOnExecutor(t *testing.T) {
	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("counter", nil)
	defer pc.Release()

	s, err := plua.NewState()
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	defer s.Close()
	exec := plua.NewExecutor(s, 16)
	pc.Install(s, exec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go exec.Run(ctx)
	defer exec.Close()

	run := func(code string) {
		t.Helper()
		err := exec.Execute(ctx, func(ctx context.Context, s *plua.State) error {
			return s.DoString(ctx, code)
		})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}

	run(`
		local mp = require("mp")
		seen = {}
		mp.events.on("player.*", function(topic, data) table.insert(seen, topic) end)
		mp.config.watch("mode", function(key, old, new) mode = new end)
	`)

	h.bus.Publish(event.TopicPlayerPause, nil)
	h.store.Set("plugins.counter.config.mode", "shuffle")

	var count int
	var mode string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec.Execute(ctx, func(ctx context.Context, s *plua.State) error {
			if tbl, ok := s.L.GetGlobal("seen").(*lua.LTable); ok {
				count = tbl.Len()
			}
			mode = lua.LVAsString(s.L.GetGlobal("mode"))
			return nil
		})
		if count == 1 && mode == "shuffle" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("callbacks: seen %d events, mode %q", count, mode)
}

func TestLuaErrorConvention(t *testing.T) {
	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("errs", nil)
	defer pc.Release()
	s := newLuaState(t, pc, nil)

	err := s.DoString(context.Background(), `
		local mp = require("mp")
		local ok, err = mp.player.play()
		assert(ok == nil and type(err) == "string", "play without track")
		local ok2, err2 = mp.config.set("bad key", 1)
		assert(ok2 == nil and err2 ~= nil)
		assert(mp.config.get("missing", 42) == 42)
	`)
	if err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
}
