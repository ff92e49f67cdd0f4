package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/neonplay/internal/plugin/security"
	"github.com/dshills/neonplay/internal/version"
)

// Manifest file names, in lookup order.
const (
	ManifestJSON = "plugin.json"
	ManifestYAML = "plugin.yaml"
	ManifestYML  = "plugin.yml"

	// DefaultEntry is used when a manifest names no entry file.
	DefaultEntry = "init.lua"
)

// Manifest describes a plugin on disk.
type Manifest struct {
	ID             string   `json:"id" yaml:"id"`
	Name           string   `json:"name" yaml:"name"`
	Version        string   `json:"version" yaml:"version"`
	Description    string   `json:"description,omitempty" yaml:"description,omitempty"`
	Author         string   `json:"author,omitempty" yaml:"author,omitempty"`
	Entry          string   `json:"entry,omitempty" yaml:"entry,omitempty"`
	Permissions    []string `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	MinCoreVersion string   `json:"minCoreVersion,omitempty" yaml:"minCoreVersion,omitempty"`

	// directory holding the manifest
	dir string
}

// Validation errors.
var (
	ErrMissingID         = errors.New("manifest: id is required")
	ErrInvalidID         = errors.New("manifest: id must be lowercase alphanumeric with hyphens")
	ErrMissingName       = errors.New("manifest: name is required")
	ErrMissingVersion    = errors.New("manifest: version is required")
	ErrInvalidVersion    = errors.New("manifest: version must be valid semver")
	ErrInvalidEntry      = errors.New("manifest: entry must be a .lua file inside the plugin directory")
	ErrInvalidPermission = errors.New("manifest: invalid permission")
	ErrIncompatibleCore  = errors.New("manifest: requires a newer core version")
	ErrUnsupportedFormat = errors.New("manifest: unsupported file format")
)

// idPattern validates plugin ids.
var idPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)

// ValidID reports whether id is a usable plugin id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// LoadManifest reads and validates the manifest at path. The format is
// chosen by extension: .json, .yaml or .yml.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", filepath.Base(path), err)
	}

	m.dir = filepath.Dir(path)
	m.applyDefaults()
	if err := m.Validate(version.Core); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindManifest returns the manifest path in dir, or "" if there is none.
func FindManifest(dir string) string {
	for _, name := range []string{ManifestJSON, ManifestYAML, ManifestYML} {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

// LoadManifestFromDir loads the manifest in dir.
func LoadManifestFromDir(dir string) (*Manifest, error) {
	path := FindManifest(dir)
	if path == "" {
		return nil, fmt.Errorf("%w: no manifest in %s", ErrPluginNotFound, dir)
	}
	return LoadManifest(path)
}

func (m *Manifest) applyDefaults() {
	if m.Entry == "" {
		m.Entry = DefaultEntry
	}
}

// Validate checks the manifest against the running core version.
func (m *Manifest) Validate(core string) error {
	if m.ID == "" {
		return ErrMissingID
	}
	if !ValidID(m.ID) {
		return fmt.Errorf("%w: %s", ErrInvalidID, m.ID)
	}
	if m.Name == "" {
		return ErrMissingName
	}

	if m.Version == "" {
		return ErrMissingVersion
	}
	if !version.Valid(m.Version) {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
	}

	entry := m.Entry
	if entry == "" {
		entry = DefaultEntry
	}
	if filepath.Ext(entry) != ".lua" || filepath.IsAbs(entry) || !filepath.IsLocal(entry) {
		return fmt.Errorf("%w: %s", ErrInvalidEntry, entry)
	}

	for _, p := range m.Permissions {
		if _, err := security.ParsePermission(p); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidPermission, p)
		}
	}

	if m.MinCoreVersion != "" {
		if !version.Valid(m.MinCoreVersion) {
			return fmt.Errorf("%w: minCoreVersion %s", ErrInvalidVersion, m.MinCoreVersion)
		}
		ok, err := version.Satisfies(core, ">= "+m.MinCoreVersion)
		if err != nil {
			return fmt.Errorf("%w: core %s", ErrInvalidVersion, core)
		}
		if !ok {
			return fmt.Errorf("%w: %s needs %s, running %s", ErrIncompatibleCore, m.ID, m.MinCoreVersion, core)
		}
	}
	return nil
}

// Dir returns the plugin directory.
func (m *Manifest) Dir() string {
	return m.dir
}

// EntryPath returns the full path to the entry file.
func (m *Manifest) EntryPath() string {
	entry := m.Entry
	if entry == "" {
		entry = DefaultEntry
	}
	return filepath.Join(m.dir, entry)
}

// Descriptor converts a validated manifest into a descriptor.
func (m *Manifest) Descriptor() *Descriptor {
	perms := make([]security.Permission, 0, len(m.Permissions))
	for _, p := range m.Permissions {
		perms = append(perms, security.Permission(p))
	}
	entry := m.Entry
	if entry == "" {
		entry = DefaultEntry
	}
	return NewDescriptor(DescriptorInfo{
		ID:             m.ID,
		Name:           m.Name,
		Description:    m.Description,
		Version:        m.Version,
		Author:         m.Author,
		Permissions:    perms,
		EntryPoint:     entry,
		MinCoreVersion: m.MinCoreVersion,
		Dir:            m.dir,
	})
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	return fmt.Sprintf("%s v%s", m.Name, m.Version)
}
