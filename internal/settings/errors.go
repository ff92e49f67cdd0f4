package settings

import "errors"

var (
	// ErrInvalidKey is returned for empty or malformed setting paths.
	ErrInvalidKey = errors.New("invalid settings key")

	// ErrInvalidDocument is returned when the settings file is not a JSON object.
	ErrInvalidDocument = errors.New("settings document is not a JSON object")

	// ErrNilWatcher is returned when Watch is called with a nil function.
	ErrNilWatcher = errors.New("nil settings watcher")
)
