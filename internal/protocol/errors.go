package protocol

import "errors"

var (
	// ErrMalformed is returned for payloads that are not a JSON object.
	ErrMalformed = errors.New("protocol: malformed payload")

	// ErrMissingEvent is returned when the event field is absent or not a string.
	ErrMissingEvent = errors.New("protocol: missing event")

	// ErrUnknownEvent is returned for an event name with no handler.
	ErrUnknownEvent = errors.New("protocol: unknown event")

	// ErrWrongDevice is returned when a payload names another device.
	ErrWrongDevice = errors.New("protocol: payload addressed to another device")
)
