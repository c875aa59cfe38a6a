package hardware

import "errors"

// Domain-specific errors for GPIO binding.
var (
	// ErrHostInit is returned when periph.io cannot initialise the host drivers.
	ErrHostInit = errors.New("hardware: host initialisation failed")

	// ErrPinNotFound is returned when a configured pin name is not in the registry.
	ErrPinNotFound = errors.New("hardware: pin not found")
)
