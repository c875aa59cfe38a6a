// Package valve implements the control core of a rotary valve actuator.
//
// The package covers the hardware drivers and the actuation state machine:
//   - LimitSensor interprets a two-contact changeover limit switch
//   - Motor drives the H-bridge and remembers the last confirmed position
//   - Indicator drives a status LED
//   - Actuator opens and closes the valve with limit confirmation and a
//     10 second timeout, then records the outcome in the Store
//
// The Store holds three records (RequestedControl, ControlConfig and
// ObservedState), each behind its own lock with copy-in/copy-out access.
// No lock is ever held across a hardware call.
//
// Outcomes are numeric Codes carried by *ActuationError:
//
//	0    success
//	111  close sensor fault (self-test)
//	121  open sensor fault (self-test)
//	231  close timeout
//	331  open timeout
//	901  invalid manual angle
//
// Thread Safety: Store and Motor position accessors are safe for concurrent
// use. Actuator.Open and Actuator.Close must be serialised by the caller;
// package control does that.
package valve
