// Package api builds the permission-scoped context handed to each plugin.
//
// A Factory holds the host services (player, settings, UI, event bus,
// audio engine, library and the host call dispatcher). CreatePluginContext
// returns a PluginContext whose always-present surfaces are Player, Log,
// Config, UI, Events and Utils. The optional surfaces exist only when the
// plugin holds the matching permission:
//
//	DSP        dsp:audio
//	FS         filesystem:read, filesystem:write
//	Net        network:fetch
//	Library    library:manage
//	UI.Overlay ui:overlay
//
// Optional surfaces are built from a security.Grant, which only a
// security.Checker holding the permission can issue. Without the grant the
// field is nil, and the key is missing from the Lua module.
//
// # Lua
//
// Install exposes the context to a plugin's Lua state as the module "mp":
//
//	local mp = require("mp")
//
//	mp.log.info("loaded", { version = mp.version })
//	mp.events.on("player.track.changed", function(topic, track)
//	    mp.ui.notify("Now playing " .. track.title)
//	end)
//	if mp.dsp then
//	    mp.dsp.set_equalizer({ { frequency = 60, gain = 4 } })
//	end
//
// Functions that can fail return nil and an error message; bad argument
// types raise a Lua error. Callbacks registered from Lua (events.on,
// config.watch) are queued on the plugin's Scheduler and never run on the
// goroutine that produced the event.
package api
