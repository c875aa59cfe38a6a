package schedule

import "errors"

// Domain-specific errors for schedule handling.
var (
	// ErrInvalidDay is returned for a day name that is not a weekday.
	ErrInvalidDay = errors.New("schedule: invalid day")

	// ErrInvalidTime is returned for a time that is not HH:MM.
	ErrInvalidTime = errors.New("schedule: invalid time")

	// ErrNotRunning is returned when jobs are added after Stop.
	ErrNotRunning = errors.New("schedule: runner stopped")
)
