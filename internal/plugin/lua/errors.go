package lua

import "errors"

// Errors for Lua runtime operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutorClosed is returned when submitting work to a closed executor.
	ErrExecutorClosed = errors.New("lua executor is closed")

	// ErrQueueFull is returned when an asynchronous job cannot be queued.
	ErrQueueFull = errors.New("lua executor queue full")

	// ErrNotModule is returned when a script does not return a table.
	ErrNotModule = errors.New("script did not return a table")

	// ErrNotFunction is returned when calling a value that is not a function.
	ErrNotFunction = errors.New("value is not a function")
)
