package security

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPermission is returned for permission strings outside the closed set.
	ErrUnknownPermission = errors.New("unknown permission")

	// ErrRateLimited is returned when a plugin exceeds its operation rate.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// PermissionError is returned when an operation is not permitted.
type PermissionError struct {
	Plugin     string
	Permission Permission
	Operation  string
	Reason     string
}

// Error implements the error interface.
func (e *PermissionError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("plugin %q: %s requires %q: %s", e.Plugin, e.Operation, e.Permission, e.Reason)
	}
	return fmt.Sprintf("plugin %q: permission %q: %s", e.Plugin, e.Permission, e.Reason)
}

// IsPermissionError reports whether err is or wraps a *PermissionError.
func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
