package app

import (
	"context"
	"os"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/dshills/neonplay/internal/audio"
	"github.com/dshills/neonplay/internal/config"
	"github.com/dshills/neonplay/internal/event"
	"github.com/dshills/neonplay/internal/library"
	"github.com/dshills/neonplay/internal/player"
	"github.com/dshills/neonplay/internal/plugin"
	"github.com/dshills/neonplay/internal/plugin/api"
	"github.com/dshills/neonplay/internal/settings"
	"github.com/dshills/neonplay/internal/ui"
)

// bootstrapper initializes components in dependency order and tears down
// the ones already started if a later one fails.
type bootstrapper struct {
	app       *Application
	initOrder []string
}

func newBootstrapper(app *Application) *bootstrapper {
	return &bootstrapper{
		app:       app,
		initOrder: make([]string, 0, 8),
	}
}

func (b *bootstrapper) bootstrap() error {
	steps := []struct {
		name string
		init func() error
	}{
		{"config", b.initConfig},
		{"logger", b.initLogger},
		{"event bus", b.initEventBus},
		{"settings", b.initSettings},
		{"library", b.initLibrary},
		{"ui", b.initUI},
		{"player", b.initPlayer},
		{"plugins", b.initPlugins},
	}
	for _, step := range steps {
		if err := step.init(); err != nil {
			b.cleanup()
			return &InitError{Component: step.name, Err: err}
		}
		b.initOrder = append(b.initOrder, step.name)
	}
	return nil
}

func (b *bootstrapper) initConfig() error {
	opts := b.app.opts
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.Load(config.Options{Path: opts.ConfigPath})
		if err != nil {
			return err
		}
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	b.app.cfg = cfg
	return nil
}

func (b *bootstrapper) initLogger() error {
	if b.app.opts.Logger != nil {
		b.app.logger = b.app.opts.Logger
		return nil
	}
	out := b.app.opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	b.app.logger = NewLogger(out, b.app.cfg.Log.Level, b.app.cfg.Log.Format)
	return nil
}

func (b *bootstrapper) initEventBus() error {
	b.app.bus = event.NewBus(event.WithLogger(b.app.logger))
	return nil
}

func (b *bootstrapper) initSettings() error {
	app := b.app
	store, err := settings.Open(app.cfg.Settings.Path, settings.WithLogger(app.logger))
	if err != nil {
		return err
	}
	app.settings = store

	// every settings change is announced on the bus
	id, err := store.Watch("**", func(key string, prev, next any) {
		app.bus.Publish(event.TopicSettingsChanged, map[string]any{
			"key": key,
			"old": prev,
			"new": next,
		})
	})
	if err != nil {
		return err
	}
	app.settingsWatch = id
	return nil
}

func (b *bootstrapper) initLibrary() error {
	b.app.library = library.New(b.app.settings)
	return nil
}

func (b *bootstrapper) initUI() error {
	b.app.ui = ui.NewHeadless(ui.WithBus(b.app.bus), ui.WithLogger(b.app.logger))
	return nil
}

func (b *bootstrapper) initPlayer() error {
	app := b.app
	rate := beep.SampleRate(app.cfg.Audio.SampleRate)
	app.engine = audio.NewEngine(audio.WithSampleRate(rate), audio.WithLogger(app.logger))
	app.restoreAudio()

	opts := []player.Option{
		player.WithEngine(app.engine),
		player.WithBus(app.bus),
		player.WithHook(app.dispatchPlayerEvent),
		player.WithLogger(app.logger),
	}
	if app.opts.Opener != nil {
		opts = append(opts, player.WithOpener(app.opts.Opener))
	}
	app.player = player.New(opts...)
	app.sink = player.NewSink(app.player.Output, rate, app.cfg.Audio.RenderPeriod.D())
	return nil
}

func (b *bootstrapper) initPlugins() error {
	app := b.app
	pc := app.cfg.Plugins
	factory := api.NewFactory(api.Dependencies{
		Player:   app.player,
		Config:   app.settings,
		UI:       app.ui,
		Events:   app.bus,
		Audio:    app.engine,
		Library:  app.library,
		Logger:   app.logger,
		DataRoot: pc.DataDir,
	},
		api.WithCheckerOptions(pc.CheckerOptions()...),
		api.WithCallbackTimeout(pc.CallbackTimeout.D()),
	)
	app.plugins = plugin.NewSystem(plugin.SystemConfig{
		Paths:       pc.Paths,
		HookTimeout: pc.HookTimeout.D(),
		QueueSize:   pc.QueueSize,
		Factory:     factory,
		Settings:    app.settings,
		Bus:         app.bus,
		Logger:      app.logger,
	})
	return nil
}

// cleanup tears down started components in reverse order.
func (b *bootstrapper) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := len(b.initOrder) - 1; i >= 0; i-- {
		b.cleanupComponent(ctx, b.initOrder[i])
	}
}

func (b *bootstrapper) cleanupComponent(ctx context.Context, component string) {
	app := b.app
	switch component {
	case "plugins":
		app.plugins.Shutdown(ctx)
		app.plugins = nil
	case "player":
		app.player.Close()
		app.player = nil
	case "settings":
		app.settings.Unwatch(app.settingsWatch)
	case "event bus":
		app.bus.Close()
	}
}
