package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/neonplay/internal/config/loader"
)

// Options controls Load.
type Options struct {
	// Path is the config file. Empty means DefaultPath. A missing file is
	// not an error.
	Path string

	// LookupEnv replaces os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// FS replaces the real file system.
	FS loader.FileSystem
}

// Load builds the configuration from defaults, the config file and the
// environment, then validates it.
func Load(opts Options) (*Config, error) {
	path := opts.Path
	if path == "" {
		path = DefaultPath()
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = loader.OSFS{}
	}
	env := loader.NewEnvLoader(envVars)
	if opts.LookupEnv != nil {
		env.WithLookup(opts.LookupEnv)
	}

	defaults, err := toMap(Default())
	if err != nil {
		return nil, err
	}

	merged, err := loader.LoadAll(
		loader.MapLoader(defaults),
		loader.NewTOMLLoaderWithFS(fsys, path),
		env,
	)
	if err != nil {
		return nil, err
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := fsys.Stat(path); err == nil {
		cfg.path = path
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a TOML document over the defaults without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	defaults, err := toMap(Default())
	if err != nil {
		return nil, err
	}
	file, err := loader.ParseTOML("<input>", data)
	if err != nil {
		return nil, err
	}
	cfg, err := fromMap(loader.DeepMerge(defaults, file))
	if err != nil {
		return nil, err
	}
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func toMap(c *Config) (map[string]any, error) {
	b, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	var m map[string]any
	if err := toml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode defaults: %w", err)
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	b, err := toml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	var c Config
	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &c, nil
}

// expandPaths resolves a leading ~ in path settings.
func (c *Config) expandPaths() {
	for i, p := range c.Plugins.Paths {
		c.Plugins.Paths[i] = expandHome(p)
	}
	for i, p := range c.Plugins.AllowedPaths {
		c.Plugins.AllowedPaths[i] = expandHome(p)
	}
	for i, p := range c.Plugins.BlockedPaths {
		c.Plugins.BlockedPaths[i] = expandHome(p)
	}
	c.Plugins.DataDir = expandHome(c.Plugins.DataDir)
	c.Settings.Path = expandHome(c.Settings.Path)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
