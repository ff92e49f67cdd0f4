// Package app wires neonplay's components together and runs them.
//
// New builds every service in dependency order: configuration, logger,
// event bus, settings store, library, UI surface, audio engine and player,
// then the plugin system over all of them. Run discovers and loads plugins
// and drives playback until its context is cancelled; Shutdown unloads
// plugins and persists the audio settings.
package app

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dshills/neonplay/internal/audio"
	"github.com/dshills/neonplay/internal/config"
	"github.com/dshills/neonplay/internal/event"
	"github.com/dshills/neonplay/internal/library"
	"github.com/dshills/neonplay/internal/player"
	"github.com/dshills/neonplay/internal/plugin"
	"github.com/dshills/neonplay/internal/settings"
	"github.com/dshills/neonplay/internal/ui"
	"github.com/dshills/neonplay/internal/watcher"
)

// Options configures the application.
type Options struct {
	// ConfigPath is the configuration file. Empty means the default path.
	ConfigPath string

	// Config, if set, is used as is and ConfigPath is ignored.
	Config *config.Config

	// LogLevel overrides the configured level when set.
	LogLevel string

	// Logger replaces the logger built from the configuration.
	Logger *slog.Logger

	// LogOutput is where the built logger writes. Defaults to stderr.
	LogOutput io.Writer

	// Opener replaces the player's file decoder.
	Opener player.Opener
}

// Application owns every neonplay service.
type Application struct {
	mu sync.Mutex

	opts   Options
	cfg    *config.Config
	logger *slog.Logger

	bus      *event.Bus
	settings *settings.Store
	library  *library.Library
	ui       *ui.Headless
	engine   *audio.Engine
	player   *player.Player
	sink     *player.Sink
	plugins  *plugin.System
	watcher  *watcher.Watcher

	settingsWatch string
	pluginsLoaded bool

	running      atomic.Bool
	started      atomic.Bool
	closed       bool
	done         chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// New builds the application. Nothing runs until Run.
func New(opts Options) (*Application, error) {
	app := &Application{
		opts: opts,
		done: make(chan struct{}),
	}
	if err := newBootstrapper(app).bootstrap(); err != nil {
		return nil, err
	}
	return app, nil
}

// Config returns the loaded configuration.
func (app *Application) Config() *config.Config { return app.cfg }

// Logger returns the process logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Bus returns the event bus.
func (app *Application) Bus() *event.Bus { return app.bus }

// Settings returns the settings store.
func (app *Application) Settings() *settings.Store { return app.settings }

// Library returns the track library.
func (app *Application) Library() *library.Library { return app.library }

// UI returns the headless UI surface.
func (app *Application) UI() *ui.Headless { return app.ui }

// Player returns the player.
func (app *Application) Player() *player.Player { return app.player }

// Plugins returns the plugin system.
func (app *Application) Plugins() *plugin.System { return app.plugins }

// IsRunning reports whether Run has loaded plugins and started playback.
func (app *Application) IsRunning() bool {
	return app.started.Load()
}
