package audio

import "errors"

var (
	// ErrContextClosed is returned when modifying a closed context.
	ErrContextClosed = errors.New("audio context closed")

	// ErrNoInput is returned when connecting to a node without an input.
	ErrNoInput = errors.New("node has no input")

	// ErrNoElement is returned when attaching a nil media element.
	ErrNoElement = errors.New("no media element")
)
