package command

import "errors"

var (
	// ErrUnsupported is returned for events this device recognises but does
	// not act on, such as wireless credential changes.
	ErrUnsupported = errors.New("command: unsupported event")

	// ErrPersist is returned when a configuration was applied in memory but
	// could not be saved.
	ErrPersist = errors.New("command: persisting control config")
)
