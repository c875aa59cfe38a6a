// Package influxdb records valve telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// Two measurements are written, both tagged with device_id:
//
//	valve_state      one point per telemetry tick (angle, flags, limit
//	                 availability, error_code)
//	valve_actuation  one point per actuation attempt, also tagged with
//	                 operation and source (code, duration_ms, success)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry goes to MQTT only
//	}
//	defer client.Close()
//
//	client.WriteValveState(deviceID, store.Observed(), time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Write errors are delivered asynchronously through SetOnError.
package influxdb
