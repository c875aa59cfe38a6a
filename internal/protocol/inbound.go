package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-valve/internal/valve"
)

// Event names.
const (
	EventSetValveBasic     = "set_valve_basic"
	EventSetValveControl   = "set_valve_control"
	EventSetValveWifi      = "set_valve_wifi"
	EventRequestDeviceInfo = "request_device_info"
	EventDeviceBasicInfo   = "device_basic_info"

	EventValveBasicData = "valve_basic_data"
	EventValveData      = "valve_data"
	EventValveStatus    = "valve_status"
	EventValveError     = "valve_error"
	EventDeviceInfo     = "device_info"
)

// Envelope holds the fields every message carries.
type Envelope struct {
	Event    string `json:"event"`
	DeviceID string `json:"device_id,omitempty"`
}

// PeekEvent decodes only the envelope of payload.
func PeekEvent(payload []byte) (Envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil || raw == nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, errOrNull(err))
	}

	var env Envelope
	if json.Unmarshal(raw["event"], &env.Event) != nil || env.Event == "" {
		return Envelope{}, ErrMissingEvent
	}
	_ = json.Unmarshal(raw["device_id"], &env.DeviceID)
	return env, nil
}

// CheckDevice rejects an envelope addressed to a device other than id.
// An empty device_id is accepted since the topic already names the device.
func (e Envelope) CheckDevice(id string) error {
	if e.DeviceID != "" && e.DeviceID != id {
		return fmt.Errorf("%w: %q", ErrWrongDevice, e.DeviceID)
	}
	return nil
}

// BasicCommand is a set_valve_basic message.
type BasicCommand struct {
	Envelope
	Controller *Controller
	Valve      *ValveCommand
}

// Controller carries the automatic-mode flags. Both must be booleans for
// the section to count.
type Controller struct {
	Schedule bool `json:"schedule"`
	Sensor   bool `json:"sensor"`
}

// ValveCommand is a manual angle request.
type ValveCommand struct {
	Name     string `json:"name,omitempty"`
	SetAngle bool   `json:"set_angle"`
	Angle    int    `json:"angle"`
}

// DecodeBasic decodes a set_valve_basic payload from the broker.
func DecodeBasic(payload []byte) (BasicCommand, error) {
	raw, env, err := decodeObject(payload)
	if err != nil {
		return BasicCommand{}, err
	}
	cmd := BasicCommand{Envelope: env}
	cmd.Controller = decodeController(raw["set_controller"])
	cmd.Valve = decodeValve(raw["valve_data"])
	return cmd, nil
}

// Requested converts the command into a RequestedControl. Sections that
// were missing or malformed contribute false and zero.
func (c BasicCommand) Requested() valve.RequestedControl {
	var r valve.RequestedControl
	if c.Controller != nil {
		r.ScheduleMode = c.Controller.Schedule
		r.SensorMode = c.Controller.Sensor
	}
	if c.Valve != nil {
		r.SetAngle = c.Valve.SetAngle
		r.Angle = c.Valve.Angle
	}
	return r
}

// DecodeLocalBasic decodes a set_valve_basic message from a local websocket
// client. Local commands always clear both automatic modes, and a request
// with set_angle false or a non-numeric angle becomes {false, 0}.
// ok is false when valve_data is missing.
func DecodeLocalBasic(payload []byte) (valve.RequestedControl, bool, error) {
	raw, _, err := decodeObject(payload)
	if err != nil {
		return valve.RequestedControl{}, false, err
	}
	var section map[string]json.RawMessage
	if json.Unmarshal(raw["valve_data"], &section) != nil || section == nil {
		return valve.RequestedControl{}, false, nil
	}

	var r valve.RequestedControl
	var setAngle bool
	if json.Unmarshal(section["set_angle"], &setAngle) == nil && setAngle {
		if angle, ok := decodeInt(section["angle"]); ok {
			r.SetAngle = true
			r.Angle = angle
		}
	}
	return r, true, nil
}

// ControlCommand is a set_valve_control message.
type ControlCommand struct {
	Envelope
	Controller *Controller
	Schedule   *ScheduleData
	Sensor     *SensorData
}

// ScheduleData is the set_scheduledata section.
type ScheduleData struct {
	SetSchedule bool                  `json:"set_schedule"`
	Entries     []valve.ScheduleEntry `json:"schedule_info"`
}

// SensorData is the set_sensordata section.
type SensorData struct {
	Upper int `json:"upper_limit"`
	Lower int `json:"lower_limit"`
}

// DecodeControl decodes a set_valve_control payload.
func DecodeControl(payload []byte) (ControlCommand, error) {
	raw, env, err := decodeObject(payload)
	if err != nil {
		return ControlCommand{}, err
	}

	cmd := ControlCommand{Envelope: env}
	cmd.Controller = decodeController(raw["set_controllerdata"])

	var sched map[string]json.RawMessage
	if json.Unmarshal(raw["set_scheduledata"], &sched) == nil && sched != nil {
		sd := &ScheduleData{}
		_ = json.Unmarshal(sched["set_schedule"], &sd.SetSchedule)

		var items []map[string]json.RawMessage
		if json.Unmarshal(sched["schedule_info"], &items) == nil {
			for _, item := range items {
				var e valve.ScheduleEntry
				if json.Unmarshal(item["day"], &e.Day) != nil ||
					json.Unmarshal(item["open"], &e.Open) != nil ||
					json.Unmarshal(item["close"], &e.Close) != nil {
					continue
				}
				sd.Entries = append(sd.Entries, e)
			}
		}
		cmd.Schedule = sd
	}

	var sensor map[string]json.RawMessage
	if json.Unmarshal(raw["set_sensordata"], &sensor) == nil && sensor != nil {
		upper, okU := decodeInt(sensor["upper_limit"])
		lower, okL := decodeInt(sensor["lower_limit"])
		if okU && okL {
			cmd.Sensor = &SensorData{Upper: upper, Lower: lower}
		}
	}
	return cmd, nil
}

// Config converts the command into a ControlConfig, replacing the previous
// configuration wholesale. Entries beyond valve.MaxScheduleEntries are
// dropped.
func (c ControlCommand) Config() valve.ControlConfig {
	var cfg valve.ControlConfig
	if c.Controller != nil {
		cfg.ScheduleMode = c.Controller.Schedule
		cfg.SensorMode = c.Controller.Sensor
	}
	if c.Schedule != nil {
		cfg.ApplySchedule = c.Schedule.SetSchedule
		cfg.Schedule = append([]valve.ScheduleEntry(nil), c.Schedule.Entries...)
	}
	if c.Sensor != nil {
		cfg.SensorUpper = c.Sensor.Upper
		cfg.SensorLower = c.Sensor.Lower
	}
	cfg.TrimSchedule()
	return cfg
}

// HandshakeRequest is a request_device_info message.
type HandshakeRequest struct {
	Event   string `json:"event"`
	Passkey string `json:"passkey"`
}

// BasicInfoRequest is a device_basic_info message.
type BasicInfoRequest struct {
	Event string `json:"event"`
	Data  struct {
		UserID   string `json:"user_id"`
		DeviceID string `json:"device_id"`
	} `json:"data"`
}

func decodeObject(payload []byte) (map[string]json.RawMessage, Envelope, error) {
	env, err := PeekEvent(payload)
	if err != nil {
		return nil, Envelope{}, err
	}
	var raw map[string]json.RawMessage
	_ = json.Unmarshal(payload, &raw)
	return raw, env, nil
}

func decodeController(msg json.RawMessage) *Controller {
	var section map[string]json.RawMessage
	if json.Unmarshal(msg, &section) != nil || section == nil {
		return nil
	}
	var c Controller
	if json.Unmarshal(section["schedule"], &c.Schedule) != nil ||
		json.Unmarshal(section["sensor"], &c.Sensor) != nil {
		return nil
	}
	return &c
}

func decodeValve(msg json.RawMessage) *ValveCommand {
	var section map[string]json.RawMessage
	if json.Unmarshal(msg, &section) != nil || section == nil {
		return nil
	}
	var v ValveCommand
	_ = json.Unmarshal(section["name"], &v.Name)
	angle, ok := decodeInt(section["angle"])
	if json.Unmarshal(section["set_angle"], &v.SetAngle) != nil || !ok {
		return nil
	}
	v.Angle = angle
	return &v
}

// decodeInt accepts any JSON number and truncates it toward zero.
func decodeInt(msg json.RawMessage) (int, bool) {
	var f float64
	if len(msg) == 0 || json.Unmarshal(msg, &f) != nil {
		return 0, false
	}
	return int(f), true
}

func errOrNull(err error) error {
	if err == nil {
		return fmt.Errorf("not an object")
	}
	return err
}
