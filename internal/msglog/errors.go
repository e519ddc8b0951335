package msglog

import "errors"

var (
	// ErrUnknownMessage is returned for operations on a message the Store has not seen.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrUnknownEvent is returned by Apply for an event type it does not handle.
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrInvalidEvent is returned by Apply for an event missing a field its type needs.
	ErrInvalidEvent = errors.New("invalid event")
)
