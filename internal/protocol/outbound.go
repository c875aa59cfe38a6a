package protocol

import (
	"time"

	"github.com/nerrad567/gray-logic-valve/internal/valve"
)

// TimestampLayout is the wire format for timestamps. Times are UTC.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Status values for valve_status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Timestamp formats t for the wire.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Header is the common prefix of every outbound document.
type Header struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	DeviceID  string `json:"device_id"`
}

func header(event, deviceID string, now time.Time) Header {
	return Header{Event: event, Timestamp: Timestamp(now), DeviceID: deviceID}
}

// ControllerState is the get_controller section.
type ControllerState struct {
	Schedule bool `json:"schedule"`
	Sensor   bool `json:"sensor"`
}

// ValveState is the get_valvedata section.
type ValveState struct {
	Angle   int  `json:"angle"`
	IsOpen  bool `json:"is_open"`
	IsClose bool `json:"is_close"`
}

// LimitState is the get_limitdata section.
type LimitState struct {
	OpenAvailable  bool `json:"is_open_limit"`
	OpenAsserted   bool `json:"open_limit"`
	CloseAvailable bool `json:"is_close_limit"`
	CloseAsserted  bool `json:"close_limit"`
}

// StateData is valve_basic_data (broker) or valve_data (websocket). Only
// the websocket form carries Error.
type StateData struct {
	Header
	Controller ControllerState `json:"get_controller"`
	Valve      ValveState      `json:"get_valvedata"`
	Limits     LimitState      `json:"get_limitdata"`
	Error      *string         `json:"Error,omitempty"`
}

func newStateData(event, deviceID string, now time.Time, s valve.ObservedState) StateData {
	return StateData{
		Header: header(event, deviceID, now),
		Controller: ControllerState{
			Schedule: s.ScheduleMode,
			Sensor:   s.SensorMode,
		},
		Valve: ValveState{
			Angle:   s.Angle,
			IsOpen:  s.IsOpen,
			IsClose: s.IsClose,
		},
		Limits: LimitState{
			OpenAvailable:  s.OpenLimit.Known,
			OpenAsserted:   s.OpenLimit.Asserted,
			CloseAvailable: s.CloseLimit.Known,
			CloseAsserted:  s.CloseLimit.Asserted,
		},
	}
}

// NewBasicData builds the periodic valve_basic_data document.
func NewBasicData(deviceID string, now time.Time, s valve.ObservedState) StateData {
	return newStateData(EventValveBasicData, deviceID, now, s)
}

// NewValveData builds the websocket valve_data reply, which includes the
// error message.
func NewValveData(deviceID string, now time.Time, s valve.ObservedState) StateData {
	d := newStateData(EventValveData, deviceID, now, s)
	msg := s.ErrorMessage()
	d.Error = &msg
	return d
}

// StatusData is valve_status.
type StatusData struct {
	Header
	Status string `json:"status"`
}

// NewStatus builds a valve_status document.
func NewStatus(deviceID string, now time.Time, status string) StatusData {
	return StatusData{Header: header(EventValveStatus, deviceID, now), Status: status}
}

// ErrorData is valve_error.
type ErrorData struct {
	Header
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// NewError builds a valve_error document from the last actuation outcome.
func NewError(deviceID string, now time.Time, s valve.ObservedState) ErrorData {
	return ErrorData{
		Header: header(EventValveError, deviceID, now),
		Error:  s.ErrorMessage(),
		Code:   int(s.ErrorCode()),
	}
}

// DeviceInfo is the handshake reply.
type DeviceInfo struct {
	Header
}

// NewDeviceInfo builds a device_info document.
func NewDeviceInfo(deviceID string, now time.Time) DeviceInfo {
	return DeviceInfo{Header: header(EventDeviceInfo, deviceID, now)}
}
