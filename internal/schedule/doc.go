// Package schedule runs the weekly open/close timetable.
//
// Each ControlConfig schedule entry names a weekday with optional open and
// close times. Runner turns every non-empty edge into a gocron weekly job in
// the device time zone. Jobs only post a Target; the control loop decides
// whether to act on it, so a firing job can never race a manual movement.
package schedule
