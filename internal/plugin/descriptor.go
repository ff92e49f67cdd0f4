package plugin

import (
	"sort"

	"github.com/dshills/neonplay/internal/plugin/security"
)

// Descriptor is the immutable declaration of a plugin: identity,
// permissions and entry point. Use NewDescriptor or Manifest.Descriptor.
type Descriptor struct {
	id             string
	name           string
	description    string
	version        string
	author         string
	permissions    []security.Permission
	entryPoint     string
	minCoreVersion string
	dir            string
}

// DescriptorInfo holds the fields used to build a Descriptor.
type DescriptorInfo struct {
	ID             string
	Name           string
	Description    string
	Version        string
	Author         string
	Permissions    []security.Permission
	EntryPoint     string
	MinCoreVersion string
	Dir            string
}

// NewDescriptor builds a descriptor from info. Permissions are deduplicated
// and sorted; nothing else is validated here.
func NewDescriptor(info DescriptorInfo) *Descriptor {
	seen := make(map[security.Permission]bool, len(info.Permissions))
	perms := make([]security.Permission, 0, len(info.Permissions))
	for _, p := range info.Permissions {
		if !seen[p] {
			seen[p] = true
			perms = append(perms, p)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })

	return &Descriptor{
		id:             info.ID,
		name:           info.Name,
		description:    info.Description,
		version:        info.Version,
		author:         info.Author,
		permissions:    perms,
		entryPoint:     info.EntryPoint,
		minCoreVersion: info.MinCoreVersion,
		dir:            info.Dir,
	}
}

func (d *Descriptor) ID() string             { return d.id }
func (d *Descriptor) Name() string           { return d.name }
func (d *Descriptor) Description() string    { return d.description }
func (d *Descriptor) Version() string        { return d.version }
func (d *Descriptor) Author() string         { return d.author }
func (d *Descriptor) EntryPoint() string     { return d.entryPoint }
func (d *Descriptor) MinCoreVersion() string { return d.minCoreVersion }

// Dir returns the plugin directory, or "" for in-process plugins.
func (d *Descriptor) Dir() string { return d.dir }

// Permissions returns a copy of the declared permissions.
func (d *Descriptor) Permissions() []security.Permission {
	return append([]security.Permission(nil), d.permissions...)
}

// HasPermission returns true if p is declared.
func (d *Descriptor) HasPermission(p security.Permission) bool {
	for _, have := range d.permissions {
		if have == p {
			return true
		}
	}
	return false
}

// Info returns the descriptor's fields.
func (d *Descriptor) Info() DescriptorInfo {
	return DescriptorInfo{
		ID:             d.id,
		Name:           d.name,
		Description:    d.description,
		Version:        d.version,
		Author:         d.author,
		Permissions:    d.Permissions(),
		EntryPoint:     d.entryPoint,
		MinCoreVersion: d.minCoreVersion,
		Dir:            d.dir,
	}
}

// String returns "name vversion".
func (d *Descriptor) String() string {
	name := d.name
	if name == "" {
		name = d.id
	}
	return name + " v" + d.version
}
