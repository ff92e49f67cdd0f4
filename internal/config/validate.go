package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// ValidationError names the setting that failed.
type ValidationError struct {
	Path    string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s = %v: %s", e.Path, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"auto", "text", "json"}
)

// Validate checks every setting and joins the failures.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, path string, value any, msg string) {
		if !ok {
			errs = append(errs, &ValidationError{Path: path, Value: value, Message: msg})
		}
	}

	check(slices.Contains(logLevels, c.Log.Level), "log.level", c.Log.Level, "must be one of "+strings.Join(logLevels, ", "))
	check(slices.Contains(logFormats, c.Log.Format), "log.format", c.Log.Format, "must be one of "+strings.Join(logFormats, ", "))

	p := c.Plugins
	check(p.HookTimeout >= 0, "plugins.hook_timeout", p.HookTimeout.D(), "must not be negative")
	check(p.CallbackTimeout >= 0, "plugins.callback_timeout", p.CallbackTimeout.D(), "must not be negative")
	check(p.QueueSize > 0, "plugins.queue_size", p.QueueSize, "must be positive")
	check(p.WatchDebounce.D() >= 0 && p.WatchDebounce.D() <= time.Minute,
		"plugins.watch_debounce", p.WatchDebounce.D(), "must be between 0 and 1m")
	check(p.FileOpsPerSecond >= 0, "plugins.file_ops_per_second", p.FileOpsPerSecond, "must not be negative")
	check(p.FetchesPerSecond >= 0, "plugins.fetches_per_second", p.FetchesPerSecond, "must not be negative")
	check(p.MaxFetchBytes > 0, "plugins.max_fetch_bytes", p.MaxFetchBytes, "must be positive")
	for _, dir := range p.Paths {
		check(strings.TrimSpace(dir) != "", "plugins.paths", dir, "must not contain empty paths")
	}

	a := c.Audio
	check(a.SampleRate >= 8000 && a.SampleRate <= 192000, "audio.sample_rate", a.SampleRate, "must be between 8000 and 192000")
	check(a.RenderPeriod.D() > 0, "audio.render_period", a.RenderPeriod.D(), "must be positive")

	check(c.Settings.Path != "", "settings.path", c.Settings.Path, "must be set")

	return errors.Join(errs...)
}
