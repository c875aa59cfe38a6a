package mqtt

import "fmt"

// DefaultBaseTopic is the prefix every valve topic lives under.
const DefaultBaseTopic = "vortex_device/wifi_valve"

// Topic suffixes below {base}/{device_id}.
const (
	SuffixCmdData     = "cmd_data"
	SuffixControlData = "control_data"
	SuffixStateData   = "state_data"
	SuffixStatus      = "status"
	SuffixError       = "error"
)

// Topics builds the topics of one device.
//
//	topics := mqtt.NewTopics("", "valve-01")
//	topics.StateData() // "vortex_device/wifi_valve/valve-01/state_data"
type Topics struct {
	Base     string
	DeviceID string
}

// NewTopics returns the topic builder for deviceID. An empty base selects
// DefaultBaseTopic.
func NewTopics(base, deviceID string) Topics {
	if base == "" {
		base = DefaultBaseTopic
	}
	return Topics{Base: base, DeviceID: deviceID}
}

func (t Topics) device(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", t.Base, t.DeviceID, suffix)
}

// CmdData receives set_valve_basic commands.
func (t Topics) CmdData() string { return t.device(SuffixCmdData) }

// ControlData receives set_valve_control commands.
func (t Topics) ControlData() string { return t.device(SuffixControlData) }

// StateData carries the periodic valve_basic_data document.
func (t Topics) StateData() string { return t.device(SuffixStateData) }

// Status carries valve_status and the last will.
func (t Topics) Status() string { return t.device(SuffixStatus) }

// Error carries valve_error.
func (t Topics) Error() string { return t.device(SuffixError) }

// Inbound returns the command topics the device subscribes to.
func (t Topics) Inbound() []string {
	return []string{t.CmdData(), t.ControlData()}
}
