package api

import "errors"

var (
	// ErrInvalidGrant is returned when an optional surface is built from a
	// grant that is empty, for another plugin, or for another permission.
	ErrInvalidGrant = errors.New("invalid permission grant")

	// ErrUnavailable is returned when the host service behind a surface is
	// not configured.
	ErrUnavailable = errors.New("host service unavailable")

	// ErrInvalidKey is returned for malformed config keys.
	ErrInvalidKey = errors.New("invalid config key")

	// ErrInvalidEvent is returned for malformed event names or patterns.
	ErrInvalidEvent = errors.New("invalid event name")

	// ErrInvalidBand is returned for equalizer bands out of range.
	ErrInvalidBand = errors.New("invalid equalizer band")
)
