package valve

import (
	"slices"
	"time"
)

// Canonical angles for the two confirmed end positions.
const (
	ClosedAngle = 0
	OpenAngle   = 90
)

// MaxScheduleEntries is the number of schedule rows a ControlConfig keeps.
// Entries beyond this are dropped at ingestion.
const MaxScheduleEntries = 20

// Actuation timing. These are fixed for the mechanism and not configurable.
const (
	// ActuationTimeout bounds a single open or close attempt.
	ActuationTimeout = 10 * time.Second

	// PollInterval is the delay between limit samples while the motor runs.
	PollInterval = 10 * time.Millisecond

	// DefaultSpeed is the motor duty on a 0-255 scale.
	DefaultSpeed = 200

	blinkDuration = 500 * time.Millisecond
)

// Position is the motor driver's memory of its last confirmed completed motion.
type Position int

const (
	PositionUnknown Position = iota
	PositionOpened
	PositionClosed
)

func (p Position) String() string {
	switch p {
	case PositionOpened:
		return "opened"
	case PositionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Reading is the interpreted value of one limit sensor sample.
type Reading int

const (
	// Fault means both contacts agree, which a healthy changeover switch never does.
	Fault Reading = iota
	NotAsserted
	Asserted
)

func (r Reading) String() string {
	switch r {
	case Asserted:
		return "asserted"
	case NotAsserted:
		return "not_asserted"
	default:
		return "fault"
	}
}

// Operation names an actuation request.
type Operation string

const (
	OpOpen  Operation = "open"
	OpClose Operation = "close"

	// OpPosition is a manual angle request that could not be mapped to open or close.
	OpPosition Operation = "position"
)

// Target returns the position an operation drives towards.
func (o Operation) Target() Position {
	switch o {
	case OpOpen:
		return PositionOpened
	case OpClose:
		return PositionClosed
	default:
		return PositionUnknown
	}
}

// OperationForAngle maps a requested angle to an operation.
// ok is false for anything other than ClosedAngle or OpenAngle.
func OperationForAngle(angle int) (op Operation, ok bool) {
	switch angle {
	case ClosedAngle:
		return OpClose, true
	case OpenAngle:
		return OpOpen, true
	default:
		return OpPosition, false
	}
}

// RequestedControl is the most recent manual intent from any command source.
// Writers overwrite it wholesale; there is no queue.
type RequestedControl struct {
	ScheduleMode bool `json:"schedule"`
	SensorMode   bool `json:"sensor"`
	SetAngle     bool `json:"set_angle"`
	Angle        int  `json:"angle"`
}

// ScheduleEntry opens and closes the valve at fixed times on one weekday.
// Times are "HH:MM" in the device time zone; an empty time means no action.
type ScheduleEntry struct {
	Day   string `json:"day"`
	Open  string `json:"open"`
	Close string `json:"close"`
}

// ControlConfig holds automatic-mode settings.
type ControlConfig struct {
	ScheduleMode  bool            `json:"schedule"`
	SensorMode    bool            `json:"sensor"`
	ApplySchedule bool            `json:"set_schedule"`
	Schedule      []ScheduleEntry `json:"schedule_info"`
	SensorUpper   int             `json:"upper_limit"`
	SensorLower   int             `json:"lower_limit"`
}

// Clone returns a copy that shares no memory with c.
func (c ControlConfig) Clone() ControlConfig {
	c.Schedule = slices.Clone(c.Schedule)
	return c
}

// TrimSchedule drops schedule entries beyond MaxScheduleEntries.
// It reports whether anything was dropped.
func (c *ControlConfig) TrimSchedule() bool {
	if len(c.Schedule) <= MaxScheduleEntries {
		return false
	}
	c.Schedule = c.Schedule[:MaxScheduleEntries:MaxScheduleEntries]
	return true
}

// LimitStatus is the last self-test result for one limit sensor.
type LimitStatus struct {
	// Known is false when the sensor reported a fault.
	Known    bool `json:"available"`
	Asserted bool `json:"asserted"`
}

// ObservedState is what the valve believes is physically true.
//
// IsOpen and IsClose are never both true, and Angle only changes together
// with them on a confirmed completion.
type ObservedState struct {
	ScheduleMode bool           `json:"schedule"`
	SensorMode   bool           `json:"sensor"`
	Angle        int            `json:"angle"`
	IsOpen       bool           `json:"is_open"`
	IsClose      bool           `json:"is_close"`
	OpenLimit    LimitStatus    `json:"open_limit"`
	CloseLimit   LimitStatus    `json:"close_limit"`
	LastError    ActuationError `json:"-"`
}

// ErrorMessage formats LastError for reporting. It is empty when the last
// actuation succeeded.
func (s ObservedState) ErrorMessage() string {
	if s.LastError.Code == CodeOK {
		return ""
	}
	return s.LastError.Error()
}

// ErrorCode returns the numeric code of the last actuation outcome.
func (s ObservedState) ErrorCode() Code {
	return s.LastError.Code
}
