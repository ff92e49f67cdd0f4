package plugin

import (
	"context"

	"github.com/dshills/neonplay/internal/player"
	"github.com/dshills/neonplay/internal/plugin/api"
)

// EventHook handles one player event.
type EventHook func(ctx context.Context, data map[string]any) error

// Module is a plugin instance as the registry sees it: a descriptor plus
// optional hooks. Lua plugins are adapted to a Module by Host; Go plugins
// can build one directly.
type Module struct {
	Descriptor *Descriptor

	// Initialize receives the plugin's context before OnLoad.
	Initialize func(ctx context.Context, pc *api.PluginContext) error
	OnLoad     func(ctx context.Context) error
	OnUnload   func(ctx context.Context) error

	// Hooks are called for player events while the plugin is loaded.
	Hooks map[player.Event]EventHook

	// Close releases resources held by the module. It runs once, after the
	// plugin is unregistered.
	Close func()
}

// PlayerEvents lists the player events a plugin can hook.
var PlayerEvents = []player.Event{
	player.EventPlay,
	player.EventPause,
	player.EventStop,
	player.EventTrackChange,
	player.EventVolume,
	player.EventSeek,
	player.EventEnded,
}

// hookNames maps player events to Lua hook function names.
var hookNames = map[player.Event]string{
	player.EventPlay:        "onPlay",
	player.EventPause:       "onPause",
	player.EventStop:        "onStop",
	player.EventTrackChange: "onTrackChange",
	player.EventVolume:      "onVolumeChange",
	player.EventSeek:        "onSeek",
	player.EventEnded:       "onEnded",
}

// HookName returns the Lua function name for ev.
func HookName(ev player.Event) (string, bool) {
	name, ok := hookNames[ev]
	return name, ok
}

// Hook returns the handler for ev.
func (m *Module) Hook(ev player.Event) (EventHook, bool) {
	if m == nil || m.Hooks == nil {
		return nil, false
	}
	h, ok := m.Hooks[ev]
	return h, ok && h != nil
}

// HasHooks returns true if any lifecycle or player-event hook is set.
func (m *Module) HasHooks() bool {
	if m == nil {
		return false
	}
	if m.Initialize != nil || m.OnLoad != nil || m.OnUnload != nil {
		return true
	}
	for _, h := range m.Hooks {
		if h != nil {
			return true
		}
	}
	return false
}
