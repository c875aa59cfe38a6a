package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-valve/internal/valve"
)

// Measurement names.
const (
	MeasurementValveState     = "valve_state"
	MeasurementValveActuation = "valve_actuation"
)

// WriteValveState records one ObservedState snapshot.
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteValveState(deviceID string, s valve.ObservedState, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(valveStatePoint(deviceID, s, at))
}

// WriteActuation records a completed actuation attempt.
func (c *Client) WriteActuation(deviceID string, rec valve.ActuationRecord) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(actuationPoint(deviceID, rec))
}

// WritePoint writes a custom point stamped now.
//
// Example:
//
//	client.WritePoint("valve_host",
//	    map[string]string{"device_id": "valve-01"},
//	    map[string]any{"cpu_temp_c": 48.5})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func valveStatePoint(deviceID string, s valve.ObservedState, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementValveState,
		map[string]string{
			"device_id": deviceID,
		},
		map[string]any{
			"angle":          s.Angle,
			"is_open":        s.IsOpen,
			"is_close":       s.IsClose,
			"schedule_mode":  s.ScheduleMode,
			"sensor_mode":    s.SensorMode,
			"open_limit_ok":  s.OpenLimit.Known,
			"open_limit":     s.OpenLimit.Asserted,
			"close_limit_ok": s.CloseLimit.Known,
			"close_limit":    s.CloseLimit.Asserted,
			"error_code":     int(s.ErrorCode()),
		},
		at,
	)
}

func actuationPoint(deviceID string, rec valve.ActuationRecord) *write.Point {
	at := rec.StartedAt
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		MeasurementValveActuation,
		map[string]string{
			"device_id": deviceID,
			"operation": string(rec.Operation),
			"source":    rec.Source,
		},
		map[string]any{
			"code":        int(rec.Code),
			"duration_ms": rec.Duration.Milliseconds(),
			"success":     rec.Code == valve.CodeOK,
		},
		at,
	)
}
