// Package loader reads configuration sources into generic maps.
//
// Each source (a TOML file, the environment) produces a map[string]any.
// Maps are layered with DeepMerge, later sources overriding earlier ones,
// before being decoded into typed configuration.
package loader

import (
	"io/fs"
	"os"
)

// Loader is a configuration source.
type Loader interface {
	// Load returns the source's values. A missing source returns nil, nil.
	Load() (map[string]any, error)
}

// FileSystem is the file access a file loader needs.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
}

// OSFS implements FileSystem on the real file system.
type OSFS struct{}

// ReadFile reads the file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Stat returns file info for path.
func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// LoadAll loads every source in order and merges the results, later
// sources taking precedence.
func LoadAll(sources ...Loader) (map[string]any, error) {
	merged := make(map[string]any)
	for _, src := range sources {
		m, err := src.Load()
		if err != nil {
			return nil, err
		}
		merged = DeepMerge(merged, m)
	}
	return merged, nil
}

// MapLoader serves a fixed map. It is used for defaults.
type MapLoader map[string]any

// Load returns a copy of the map.
func (m MapLoader) Load() (map[string]any, error) {
	return Clone(m), nil
}
