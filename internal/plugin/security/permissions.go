package security

import (
	"fmt"
	"sort"
)

// Permission is a named grant controlling which optional API surface a
// plugin's context exposes.
type Permission string

// The closed set of plugin permissions.
const (
	// PermissionFileRead allows reading files through the host.
	PermissionFileRead Permission = "filesystem:read"

	// PermissionFileWrite allows writing files through the host.
	PermissionFileWrite Permission = "filesystem:write"

	// PermissionNetworkFetch allows fetching URLs through the host.
	PermissionNetworkFetch Permission = "network:fetch"

	// PermissionDSPAudio allows control over the audio signal chain.
	PermissionDSPAudio Permission = "dsp:audio"

	// PermissionUIOverlay allows drawing overlays on the player.
	PermissionUIOverlay Permission = "ui:overlay"

	// PermissionLibraryManage allows modifying the media library.
	PermissionLibraryManage Permission = "library:manage"
)

// RiskLevel indicates the security risk of a permission.
type RiskLevel int

const (
	// RiskLow indicates minimal security risk.
	RiskLow RiskLevel = iota

	// RiskMedium indicates moderate security risk.
	RiskMedium

	// RiskHigh indicates significant security risk.
	RiskHigh
)

// String returns a string representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// PermissionInfo provides metadata about a permission.
type PermissionInfo struct {
	Name                 Permission
	DisplayName          string
	Description          string
	RiskLevel            RiskLevel
	RequiresUserApproval bool
}

var permissionRegistry = map[Permission]PermissionInfo{
	PermissionFileRead: {
		Name:        PermissionFileRead,
		DisplayName: "File Read",
		Description: "Read files from the filesystem",
		RiskLevel:   RiskMedium,
	},
	PermissionFileWrite: {
		Name:                 PermissionFileWrite,
		DisplayName:          "File Write",
		Description:          "Write files to the filesystem",
		RiskLevel:            RiskHigh,
		RequiresUserApproval: true,
	},
	PermissionNetworkFetch: {
		Name:                 PermissionNetworkFetch,
		DisplayName:          "Network Fetch",
		Description:          "Fetch resources over the network",
		RiskLevel:            RiskHigh,
		RequiresUserApproval: true,
	},
	PermissionDSPAudio: {
		Name:        PermissionDSPAudio,
		DisplayName: "Audio Processing",
		Description: "Change equalizer bands and output volume",
		RiskLevel:   RiskLow,
	},
	PermissionUIOverlay: {
		Name:        PermissionUIOverlay,
		DisplayName: "UI Overlay",
		Description: "Draw overlays on top of the player",
		RiskLevel:   RiskLow,
	},
	PermissionLibraryManage: {
		Name:        PermissionLibraryManage,
		DisplayName: "Library Management",
		Description: "Add and remove tracks in the media library",
		RiskLevel:   RiskMedium,
	},
}

// ParsePermission converts a manifest string into a Permission.
func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if _, ok := permissionRegistry[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPermission, s)
	}
	return p, nil
}

// IsValid returns true if the permission is part of the closed set.
func (p Permission) IsValid() bool {
	_, ok := permissionRegistry[p]
	return ok
}

// Info returns metadata about the permission.
func (p Permission) Info() (PermissionInfo, bool) {
	info, ok := permissionRegistry[p]
	return info, ok
}

// String returns the manifest spelling of the permission.
func (p Permission) String() string {
	return string(p)
}

// AllPermissions returns every known permission, sorted.
func AllPermissions() []Permission {
	perms := make([]Permission, 0, len(permissionRegistry))
	for p := range permissionRegistry {
		perms = append(perms, p)
	}
	sortPermissions(perms)
	return perms
}

// ApprovalRequired returns the permissions in perms that need explicit user
// approval before a plugin holding them is enabled.
func ApprovalRequired(perms []Permission) []Permission {
	var out []Permission
	for _, p := range perms {
		if info, ok := permissionRegistry[p]; ok && info.RequiresUserApproval {
			out = append(out, p)
		}
	}
	return out
}

// Normalize returns a sorted copy of perms with duplicates removed.
// Unknown permissions are returned as an error.
func Normalize(perms []Permission) ([]Permission, error) {
	seen := make(map[Permission]bool, len(perms))
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		if !p.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPermission, string(p))
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sortPermissions(out)
	return out, nil
}

func sortPermissions(perms []Permission) {
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
}
