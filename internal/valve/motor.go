package valve

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// maxSpeed is the top of the 8-bit speed scale used by commands and config.
const maxSpeed = 255

// DefaultPWMFrequency is used when NewMotor is given zero.
const DefaultPWMFrequency = 5 * physic.KiloHertz

// Motor drives a DC gear motor through an H-bridge.
//
// IN1/IN2 select the direction and the enable pin carries the PWM duty.
// Clockwise closes the valve and counter-clockwise opens it.
//
// Position is the driver's own memory of the last confirmed completed
// motion. It is never inferred from ObservedState.
type Motor struct {
	enable gpio.PinOut
	in1    gpio.PinOut
	in2    gpio.PinOut
	freq   physic.Frequency

	mu       sync.Mutex
	position Position
	noPWM    bool // enable pin rejected PWM; drive it as a plain output
}

// NewMotor returns a stopped motor driver with an unknown position.
func NewMotor(enable, in1, in2 gpio.PinOut, freq physic.Frequency) *Motor {
	if freq <= 0 {
		freq = DefaultPWMFrequency
	}
	return &Motor{enable: enable, in1: in1, in2: in2, freq: freq}
}

// Init puts all three pins into output mode, motor stopped.
func (m *Motor) Init() error {
	return m.Stop()
}

// RunClockwise drives towards closed at speed (0-255).
func (m *Motor) RunClockwise(speed int) error {
	return m.run(gpio.High, gpio.Low, speed)
}

// RunCounterClockwise drives towards open at speed (0-255).
func (m *Motor) RunCounterClockwise(speed int) error {
	return m.run(gpio.Low, gpio.High, speed)
}

// Stop de-energises the bridge.
func (m *Motor) Stop() error {
	return errors.Join(
		wrapPin("enable", m.enable.Out(gpio.Low)),
		wrapPin("in1", m.in1.Out(gpio.Low)),
		wrapPin("in2", m.in2.Out(gpio.Low)),
	)
}

// Position returns the last confirmed position.
func (m *Motor) Position() Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// SetPosition records a confirmed position. Only the Actuator calls this.
func (m *Motor) SetPosition(p Position) {
	m.mu.Lock()
	m.position = p
	m.mu.Unlock()
}

func (m *Motor) run(in1, in2 gpio.Level, speed int) error {
	if err := m.in1.Out(in1); err != nil {
		return wrapPin("in1", err)
	}
	if err := m.in2.Out(in2); err != nil {
		return wrapPin("in2", err)
	}
	return m.drive(speed)
}

func (m *Motor) drive(speed int) error {
	speed = min(max(speed, 0), maxSpeed)
	if speed == 0 {
		return wrapPin("enable", m.enable.Out(gpio.Low))
	}

	m.mu.Lock()
	noPWM := m.noPWM
	m.mu.Unlock()

	if !noPWM {
		duty := gpio.Duty(int64(gpio.DutyMax) * int64(speed) / maxSpeed)
		err := m.enable.PWM(duty, m.freq)
		if err == nil {
			return nil
		}
		// Not every header pin has a PWM block behind it. Full speed is
		// still safe for the gearbox, so fall back and stop retrying.
		m.mu.Lock()
		m.noPWM = true
		m.mu.Unlock()
	}
	return wrapPin("enable", m.enable.Out(gpio.High))
}

func wrapPin(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("motor %s pin: %w", name, err)
}
