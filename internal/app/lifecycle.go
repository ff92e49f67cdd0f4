package app

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/dshills/neonplay/internal/audio"
	"github.com/dshills/neonplay/internal/player"
	"github.com/dshills/neonplay/internal/plugin"
	"github.com/dshills/neonplay/internal/plugin/api"
	"github.com/dshills/neonplay/internal/settings"
	"github.com/dshills/neonplay/internal/watcher"
)

// shutdownTimeout bounds plugin unloading during Shutdown.
const shutdownTimeout = 10 * time.Second

// LoadPlugins discovers and registers plugins from the configured paths.
// Later calls do nothing. The returned error joins per-plugin failures;
// the plugins that loaded stay registered.
func (app *Application) LoadPlugins(ctx context.Context) error {
	app.mu.Lock()
	if app.pluginsLoaded {
		app.mu.Unlock()
		return nil
	}
	app.pluginsLoaded = true
	app.mu.Unlock()

	return app.plugins.LoadAll(ctx)
}

// Run loads plugins and drives playback until ctx is cancelled. Plugin
// failures are logged, not returned.
func (app *Application) Run(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	app.mu.Lock()
	closed := app.closed
	app.mu.Unlock()
	if closed {
		return ErrShutDown
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := app.LoadPlugins(ctx); err != nil {
		app.logger.Warn("some plugins failed to load", "error", err)
	}
	if err := app.plugins.Initialize(ctx); err != nil {
		app.logger.Warn("some plugins failed to initialize", "error", err)
	}

	app.mu.Lock()
	if app.closed {
		app.mu.Unlock()
		return ErrShutDown
	}
	app.spawn(func() { app.player.Run(ctx) })
	app.spawn(func() { app.sink.Run(ctx) })
	if app.cfg.Plugins.Watch {
		if err := app.startWatcher(ctx); err != nil {
			app.logger.Warn("plugin hot reload disabled", "error", err)
		}
	}
	app.started.Store(true)
	app.mu.Unlock()
	defer app.started.Store(false)

	app.logger.Info("neonplay running",
		"plugins", app.plugins.Registry().Count(),
		"config", app.cfg.Path(),
	)

	select {
	case <-ctx.Done():
	case <-app.done:
	}
	return nil
}

// spawn starts fn as a Run goroutine. Callers hold app.mu.
func (app *Application) spawn(fn func()) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		fn()
	}()
}

// startWatcher watches the plugin paths. Callers hold app.mu.
func (app *Application) startWatcher(ctx context.Context) error {
	w, err := watcher.New(app.reloadPlugin, app.cfg.Plugins.WatchDebounce.D(),
		watcher.WithLogger(app.logger))
	if err != nil {
		return err
	}
	for _, dir := range app.cfg.Plugins.Paths {
		if err := w.Add(dir); err != nil {
			app.logger.Warn("plugin path not watched", "path", dir, "error", err)
		}
	}
	app.watcher = w
	app.spawn(func() { w.Run(ctx) })
	return nil
}

// reloadPlugin reloads the plugin at path, registering it if it is new.
func (app *Application) reloadPlugin(ctx context.Context, path string) error {
	err := app.plugins.ReloadPath(ctx, path)
	if !errors.Is(err, plugin.ErrPluginNotFound) {
		return err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		return nil
	}
	id, err := app.plugins.AddPath(ctx, path)
	if err != nil {
		return err
	}
	app.logger.Info("plugin added", "plugin", id, "path", path)
	return nil
}

func (app *Application) dispatchPlayerEvent(ctx context.Context, ev player.Event, data map[string]any) {
	if app.plugins != nil {
		app.plugins.DispatchPlayerEvent(ctx, ev, data)
	}
}

// Shutdown stops Run, delivers pending player events, unloads plugins,
// saves the audio settings and releases every component. It is safe to
// call more than once.
func (app *Application) Shutdown() {
	app.shutdownOnce.Do(func() {
		app.mu.Lock()
		app.closed = true
		close(app.done)
		w := app.watcher
		app.mu.Unlock()

		if w != nil {
			w.Close()
		}
		app.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		app.player.Drain(ctx)
		app.plugins.Shutdown(ctx)
		app.saveAudio()
		if err := app.player.Close(); err != nil {
			app.logger.Warn("player close failed", "error", err)
		}
		app.settings.Unwatch(app.settingsWatch)
		app.bus.Close()
		app.logger.Debug("neonplay stopped")
	})
}

// restoreAudio applies the stored volume and equalizer to the engine.
// Invalid stored bands are dropped.
func (app *Application) restoreAudio() {
	app.engine.SetVolume(app.settings.Float(settings.KeyVolume, 1))

	r, ok := app.settings.Result(settings.KeyEqualizer)
	if !ok {
		return
	}
	var bands []audio.Band
	for _, item := range r.Array() {
		bands = append(bands, audio.Band{
			Frequency: item.Get("frequency").Float(),
			Gain:      item.Get("gain").Float(),
		})
	}
	if err := api.ValidateBands(bands); err != nil {
		app.logger.Warn("stored equalizer ignored", "error", err)
		return
	}
	if err := app.engine.SetEqualizer(bands); err != nil {
		app.logger.Warn("stored equalizer not applied", "error", err)
	}
}

// saveAudio stores the engine's volume and equalizer.
func (app *Application) saveAudio() {
	if err := app.settings.Set(settings.KeyVolume, app.engine.Volume()); err != nil {
		app.logger.Warn("volume not saved", "error", err)
	}
	bands := app.engine.Equalizer()
	out := make([]map[string]any, 0, len(bands))
	for _, b := range bands {
		out = append(out, map[string]any{"frequency": b.Frequency, "gain": b.Gain})
	}
	if err := app.settings.Set(settings.KeyEqualizer, out); err != nil {
		app.logger.Warn("equalizer not saved", "error", err)
	}
}
