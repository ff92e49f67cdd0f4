// Package config loads neonplay's application configuration.
//
// Configuration is layered, each layer overriding the one before:
//
//  1. Built-in defaults (Default)
//  2. The TOML file, by default $XDG_CONFIG_HOME/neonplay/config.toml
//  3. NEONPLAY_* environment variables
//
// Example config.toml:
//
//	[log]
//	level = "debug"
//
//	[plugins]
//	paths = ["~/neonplay-plugins"]
//	hook_timeout = "3s"
//	watch = true
//	allowed_hosts = ["lrclib.net"]
//
//	[audio]
//	sample_rate = 48000
//
// User preferences that plugins and the player change at runtime live in
// the settings store, not here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/neonplay/internal/config/loader"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NEONPLAY_"

// Config is the application configuration.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Plugins  PluginsConfig  `toml:"plugins"`
	Audio    AudioConfig    `toml:"audio"`
	Settings SettingsConfig `toml:"settings"`

	// file the configuration was read from, if any
	path string
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level"`

	// Format is auto, text or json. Auto picks text on a terminal.
	Format string `toml:"format"`
}

// PluginsConfig controls discovery, limits and sandbox policy.
type PluginsConfig struct {
	Paths           []string `toml:"paths"`
	DataDir         string   `toml:"data_dir"`
	HookTimeout     Duration `toml:"hook_timeout"`
	CallbackTimeout Duration `toml:"callback_timeout"`
	QueueSize       int      `toml:"queue_size"`

	Watch         bool     `toml:"watch"`
	WatchDebounce Duration `toml:"watch_debounce"`

	AllowedHosts []string `toml:"allowed_hosts"`
	BlockedHosts []string `toml:"blocked_hosts"`
	AllowedPaths []string `toml:"allowed_paths"`
	BlockedPaths []string `toml:"blocked_paths"`

	FileOpsPerSecond int   `toml:"file_ops_per_second"`
	FetchesPerSecond int   `toml:"fetches_per_second"`
	MaxFetchBytes    int64 `toml:"max_fetch_bytes"`
}

// AudioConfig controls the signal chain.
type AudioConfig struct {
	SampleRate int `toml:"sample_rate"`

	// RenderPeriod is how often the headless sink pulls audio.
	RenderPeriod Duration `toml:"render_period"`
}

// SettingsConfig locates the settings document.
type SettingsConfig struct {
	Path string `toml:"path"`
}

// Duration is a time.Duration written as a string such as "5s".
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Plugins: PluginsConfig{
			Paths:            defaultPluginPaths(),
			DataDir:          filepath.Join(dataHome(), "neonplay", "plugin-data"),
			HookTimeout:      Duration(5 * time.Second),
			CallbackTimeout:  Duration(time.Second),
			QueueSize:        64,
			Watch:            false,
			WatchDebounce:    Duration(250 * time.Millisecond),
			FileOpsPerSecond: 100,
			FetchesPerSecond: 10,
			MaxFetchBytes:    4 << 20,
		},
		Audio: AudioConfig{
			SampleRate:   44100,
			RenderPeriod: Duration(20 * time.Millisecond),
		},
		Settings: SettingsConfig{
			Path: filepath.Join(configHome(), "neonplay", "settings.json"),
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(configHome(), "neonplay", "config.toml")
}

// Path returns the file the configuration was read from, or "".
func (c *Config) Path() string {
	return c.path
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	b, err := toml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(b)
}

func configHome() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func dataHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	return "."
}

func defaultPluginPaths() []string {
	return []string{
		filepath.Join(configHome(), "neonplay", "plugins"),
		filepath.Join(dataHome(), "neonplay", "plugins"),
	}
}

// envVars maps NEONPLAY_* variables to config paths.
var envVars = map[string]loader.EnvVar{
	EnvPrefix + "LOG_LEVEL":        {Path: "log.level", Kind: loader.String},
	EnvPrefix + "LOG_FORMAT":       {Path: "log.format", Kind: loader.String},
	EnvPrefix + "PLUGIN_PATHS":     {Path: "plugins.paths", Kind: loader.List},
	EnvPrefix + "PLUGIN_DATA_DIR":  {Path: "plugins.data_dir", Kind: loader.String},
	EnvPrefix + "HOOK_TIMEOUT":     {Path: "plugins.hook_timeout", Kind: loader.String},
	EnvPrefix + "CALLBACK_TIMEOUT": {Path: "plugins.callback_timeout", Kind: loader.String},
	EnvPrefix + "WATCH":            {Path: "plugins.watch", Kind: loader.Bool},
	EnvPrefix + "ALLOWED_HOSTS":    {Path: "plugins.allowed_hosts", Kind: loader.List},
	EnvPrefix + "SAMPLE_RATE":      {Path: "audio.sample_rate", Kind: loader.Int},
	EnvPrefix + "SETTINGS_PATH":    {Path: "settings.path", Kind: loader.String},
}

// EnvVars returns the names of the supported environment overrides.
func EnvVars() []string {
	names := make([]string, 0, len(envVars))
	for name := range envVars {
		names = append(names, name)
	}
	return names
}
