// Package telemetry publishes the valve's observed state.
//
// A Reporter snapshots ObservedState every publish interval (5 s by default)
// and fans it out to every configured sink:
//
//   - MQTT: valve_basic_data on state_data, valve_status on status and
//     valve_error on error, all three on every tick
//   - InfluxDB: one valve_state point
//   - websocket: a valve_data broadcast to authorised local clients
//
// It also mirrors the state into Prometheus gauges and drives the green
// LED from the broker connection state. Sink failures are logged and
// counted; they never stop the loop.
package telemetry
