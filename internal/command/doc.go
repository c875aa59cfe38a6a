// Package command applies inbound valve commands to the shared state.
//
// A Handler accepts payloads from the broker, the local websocket channel
// and the HTTP API. It decodes them with package protocol and writes:
//
//   - set_valve_basic into RequestedControl
//   - set_valve_control into ControlConfig, which is then persisted and
//     used to re-arm the schedule runner
//
// Malformed payloads are logged and dropped without a partial write. The
// handler never touches the hardware; the control loop picks up the new
// request on its next tick.
package command
