package valve

import (
	"errors"
	"fmt"
)

// Error classes. ActuationError unwraps to one of these so callers can
// branch with errors.Is without switching on numeric codes.
var (
	// ErrSensorFault is returned when a limit sensor reports an impossible contact state.
	ErrSensorFault = errors.New("valve: limit sensor fault")

	// ErrTimeout is returned when the target limit was not reached in time.
	ErrTimeout = errors.New("valve: actuation timeout")

	// ErrInvalidAngle is returned for a manual angle other than 0 or 90.
	ErrInvalidAngle = errors.New("valve: invalid angle")

	// ErrConfigNotFound is returned when no control configuration has been persisted.
	ErrConfigNotFound = errors.New("valve: control config not found")
)

// Code is the numeric outcome of an actuation, as reported to the cloud.
// The values are part of the wire protocol.
type Code int

const (
	CodeOK               Code = 0
	CodeCloseSensorFault Code = 111
	CodeOpenSensorFault  Code = 121
	CodeCloseTimeout     Code = 231
	CodeOpenTimeout      Code = 331
	CodeInvalidAngle     Code = 901
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeCloseSensorFault:
		return "close_sensor_fault"
	case CodeOpenSensorFault:
		return "open_sensor_fault"
	case CodeCloseTimeout:
		return "close_timeout"
	case CodeOpenTimeout:
		return "open_timeout"
	case CodeInvalidAngle:
		return "invalid_angle"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// class returns the sentinel for c, or nil for CodeOK and unknown codes.
func (c Code) class() error {
	switch c {
	case CodeCloseSensorFault, CodeOpenSensorFault:
		return ErrSensorFault
	case CodeCloseTimeout, CodeOpenTimeout:
		return ErrTimeout
	case CodeInvalidAngle:
		return ErrInvalidAngle
	default:
		return nil
	}
}

// timeoutCode returns the timeout code for a direction.
func timeoutCode(op Operation) Code {
	if op == OpOpen {
		return CodeOpenTimeout
	}
	return CodeCloseTimeout
}

// ActuationError describes a failed actuation attempt.
// The zero value means success.
type ActuationError struct {
	Op    Operation
	Code  Code
	Angle int // requested angle, set for CodeInvalidAngle
}

func (e *ActuationError) Error() string {
	if e.Code == CodeInvalidAngle {
		return fmt.Sprintf("Invalid angle %d error code: %d", e.Angle, int(e.Code))
	}
	return fmt.Sprintf("Motor %s error code: %d", e.Op, int(e.Code))
}

func (e *ActuationError) Unwrap() error {
	return e.Code.class()
}

// CodeOf extracts the actuation code from err. nil maps to CodeOK.
// Errors that carry no code map to -1.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var ae *ActuationError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return -1
}
