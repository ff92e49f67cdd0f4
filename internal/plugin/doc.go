// Package plugin provides the neonplay plugin system.
//
// Plugins are Lua scripts. Each runs in its own sandboxed state and reaches
// the host only through a permission-scoped context, exposed to scripts as
// the "mp" module.
//
// # Quick Start
//
//	factory := api.NewFactory(api.Dependencies{Player: p, Config: store, ...})
//	sys := plugin.NewSystem(plugin.SystemConfig{
//	    Paths:       plugin.DefaultPluginPaths(),
//	    HookTimeout: plugin.DefaultHookTimeout,
//	    Factory:     factory,
//	    Settings:    store,
//	})
//	if err := sys.LoadAll(ctx); err != nil {
//	    logger.Warn("some plugins failed to load", "error", err)
//	}
//	sys.Initialize(ctx)
//	defer sys.Shutdown(context.Background())
//
// # Plugin Structure
//
// Single-file plugin:
//
//	~/.config/neonplay/plugins/clock.lua
//
// Directory plugin:
//
//	~/.config/neonplay/plugins/lyrics/
//	├── plugin.json      # Manifest (or plugin.yaml)
//	└── init.lua         # Entry point
//
// # Manifest
//
//	{
//	  "id": "lyrics",
//	  "name": "Lyrics",
//	  "version": "1.0.0",
//	  "author": "someone",
//	  "entry": "init.lua",
//	  "permissions": ["network:fetch", "ui:overlay"],
//	  "minCoreVersion": "1.0.0"
//	}
//
// A single-file plugin has no manifest; its module's metadata table takes
// the manifest's place.
//
// # Lifecycle
//
// Registered plugins move between three states:
//
//	disabled -> Enable -> enabled -> (registry initialized) -> loaded
//	loaded -> Disable -> disabled
//
// Loading calls initialize(mp) and then onLoad(); unloading calls
// onUnload(). Every hook runs under a deadline. A hook that fails, panics
// or times out is recorded against its plugin and never affects another.
//
// # Example Plugin
//
//	local M = {
//	    metadata = { id = "np", name = "Now Playing", version = "1.0.0", author = "me" },
//	}
//
//	local mp
//
//	function M.initialize(ctx)
//	    mp = ctx
//	end
//
//	function M.onTrackChange(track)
//	    mp.ui.notify("Now playing: " .. (track.title or "?"))
//	end
//
//	return M
package plugin
