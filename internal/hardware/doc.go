// Package hardware binds the valve drivers to GPIO pins.
//
// Pin names from the hardware section of the configuration are resolved
// through the periph.io registry after host.Init. With hardware.simulated
// set, the pins come from package sim instead and the valve is modelled
// in-process, which lets the daemon run on a development machine.
package hardware
