package plugin

import (
	"errors"
	"fmt"
)

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when a plugin cannot be located.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrNoEntryPoint is returned when a plugin directory has no Lua entry file.
	ErrNoEntryPoint = errors.New("plugin has no entry point (init.lua)")

	// ErrNilManifest is returned when a nil manifest is provided.
	ErrNilManifest = errors.New("manifest is nil")

	// ErrInvalidPlugin is returned when a module fails validation.
	ErrInvalidPlugin = errors.New("invalid plugin")

	// ErrAlreadyRegistered is returned when registering a duplicate id.
	ErrAlreadyRegistered = errors.New("plugin already registered")

	// ErrHookTimeout is returned when a lifecycle or event hook exceeds
	// the registry's hook timeout.
	ErrHookTimeout = errors.New("plugin hook timed out")

	// ErrHookPanic wraps a panic recovered from a Go hook.
	ErrHookPanic = errors.New("plugin hook panicked")

	// ErrMetadataMismatch is returned when a Lua module's metadata id
	// disagrees with its manifest.
	ErrMetadataMismatch = errors.New("plugin metadata does not match manifest")
)

// PluginError records a failed operation on one plugin.
type PluginError struct {
	ID  string
	Op  string
	Err error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s: %s: %v", e.ID, e.Op, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a hook timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrHookTimeout)
}
