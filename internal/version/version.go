// Package version parses and compares the semantic versions used by plugin
// manifests and the settings document.
package version

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Core is the version of the running player core.
const Core = "1.2.0"

// ErrInvalid is returned for strings that are not semantic versions.
var ErrInvalid = errors.New("invalid semantic version")

// Version is a parsed semantic version. Build metadata is dropped.
type Version struct {
	Major, Minor, Patch int
	Pre                 string
}

// Parse parses s, accepting an optional leading "v". All three numeric
// components are required.
func Parse(s string) (Version, error) {
	sv, err := semver.StrictNewVersion(strings.TrimPrefix(s, "v"))
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
	}
	return Version{
		Major: int(sv.Major()),
		Minor: int(sv.Minor()),
		Patch: int(sv.Patch()),
		Pre:   sv.Prerelease(),
	}, nil
}

// Valid returns true if s parses.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

func (v Version) String() string {
	return v.semver().String()
}

// Compare returns -1, 0 or 1. A pre-release sorts before its release.
func (v Version) Compare(o Version) int {
	return v.semver().Compare(o.semver())
}

func (v Version) semver() *semver.Version {
	return semver.New(uint64(v.Major), uint64(v.Minor), uint64(v.Patch), v.Pre, "")
}

// Compare parses and compares a and b.
func Compare(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// Satisfies reports whether v meets the constraint c, for example
// ">= 1.1.0" or "^1.2".
func Satisfies(v, c string) (bool, error) {
	sv, err := semver.StrictNewVersion(strings.TrimPrefix(v, "v"))
	if err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrInvalid, v, err)
	}
	cs, err := semver.NewConstraint(c)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint %q: %w", c, err)
	}
	return cs.Check(sv), nil
}
