package event

import "errors"

var (
	// ErrInvalidTopic is returned for empty or malformed topics and patterns.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("nil handler")

	// ErrPatternPublish is returned when publishing to a wildcard topic.
	ErrPatternPublish = errors.New("cannot publish to a wildcard topic")

	// ErrBusClosed is returned after Close.
	ErrBusClosed = errors.New("event bus closed")
)
