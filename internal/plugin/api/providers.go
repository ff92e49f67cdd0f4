package api

import (
	"context"

	"github.com/dshills/neonplay/internal/audio"
	"github.com/dshills/neonplay/internal/event"
	"github.com/dshills/neonplay/internal/event/topic"
	"github.com/dshills/neonplay/internal/library"
	"github.com/dshills/neonplay/internal/player"
	"github.com/dshills/neonplay/internal/plugin/hostcall"
	plua "github.com/dshills/neonplay/internal/plugin/lua"
	"github.com/dshills/neonplay/internal/settings"
	"github.com/dshills/neonplay/internal/ui"
)

// PlayerProvider is the transport. *player.Player satisfies it.
type PlayerProvider interface {
	Play() error
	Pause() error
	Stop() error
	Seek(seconds float64) error
	Position() float64
	Duration() float64
	Volume() float64
	SetVolume(v float64) error
	State() string
	Track() (library.Track, bool)
}

// ConfigProvider is the settings store. *settings.Store satisfies it.
type ConfigProvider interface {
	Get(key string) (any, bool)
	Set(key string, value any) error
	Delete(key string) error
	Keys(prefix string) []string
	Watch(pattern string, fn settings.ChangeFunc) (string, error)
	Unwatch(id string) bool
}

// UIProvider shows notifications and overlays. *ui.Headless satisfies it.
type UIProvider interface {
	Notify(plugin, message string, level ui.Level) error
	ShowOverlay(plugin string, o ui.Overlay) (string, error)
	UpdateOverlay(plugin, id string, o ui.Overlay) error
	HideOverlay(plugin, id string) error
}

// EventProvider is the event bus. *event.Bus satisfies it.
type EventProvider interface {
	Subscribe(pattern topic.Topic, h event.Handler) (string, error)
	Unsubscribe(id string) bool
	Publish(t topic.Topic, data any) (int, error)
}

// AudioProvider is the signal chain. *audio.Engine satisfies it.
type AudioProvider interface {
	SetEqualizer(bands []audio.Band) error
	Equalizer() []audio.Band
	SetVolume(v float64)
	Volume() float64
	Levels() audio.Levels
}

// LibraryProvider is the track list. *library.Library satisfies it.
type LibraryProvider interface {
	List() []library.Track
	Get(id string) (library.Track, bool)
	Search(query string) []library.Track
	Add(t library.Track) (library.Track, error)
	Remove(id string) error
}

// Caller sends capability requests to the host. *hostcall.Dispatcher
// satisfies it.
type Caller interface {
	Call(ctx context.Context, req hostcall.Request) (any, error)
}

// Scheduler runs work on the goroutine that owns a plugin's Lua state.
// *lua.Executor satisfies it.
type Scheduler interface {
	Go(fn func(ctx context.Context, s *plua.State) error, onErr func(error)) error
}

var (
	_ PlayerProvider  = (*player.Player)(nil)
	_ EventProvider   = (*event.Bus)(nil)
	_ AudioProvider   = (*audio.Engine)(nil)
	_ LibraryProvider = (*library.Library)(nil)
	_ ConfigProvider  = (*settings.Store)(nil)
	_ UIProvider      = (*ui.Headless)(nil)
	_ Caller          = (*hostcall.Dispatcher)(nil)
	_ Scheduler       = (*plua.Executor)(nil)
)
