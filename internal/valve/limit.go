package valve

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// LimitSensor reads a changeover limit switch wired to two inputs.
//
// A healthy switch always has exactly one contact closed: A high with B low
// means the limit is reached, A low with B high means it is not. Both high
// or both low indicates a broken wire or a failed switch.
type LimitSensor struct {
	name string
	a    gpio.PinIn
	b    gpio.PinIn
}

// NewLimitSensor returns a sensor over two input pins.
func NewLimitSensor(name string, a, b gpio.PinIn) *LimitSensor {
	return &LimitSensor{name: name, a: a, b: b}
}

// Name identifies the sensor in logs.
func (s *LimitSensor) Name() string { return s.name }

// Init configures both inputs with pull-ups and no edge detection.
func (s *LimitSensor) Init() error {
	if err := s.a.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("%s limit pin A %s: %w", s.name, s.a, err)
	}
	if err := s.b.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("%s limit pin B %s: %w", s.name, s.b, err)
	}
	return nil
}

// Read takes one sample of both contacts. It does not debounce.
func (s *LimitSensor) Read() Reading {
	a, b := s.a.Read(), s.b.Read()
	switch {
	case a == gpio.High && b == gpio.Low:
		return Asserted
	case a == gpio.Low && b == gpio.High:
		return NotAsserted
	default:
		return Fault
	}
}
