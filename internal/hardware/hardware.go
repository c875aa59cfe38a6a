package hardware

import (
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/nerrad567/gray-logic-valve/internal/hardware/sim"
	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-valve/internal/valve"
)

// Board is a bound set of valve drivers plus the pins behind them.
type Board struct {
	valve.Hardware

	// Sim is the simulated valve, or nil on real hardware.
	Sim *sim.Valve

	pins []gpio.PinIO
}

// Lookup resolves a pin name. gpioreg.ByName is the production lookup.
type Lookup func(name string) gpio.PinIO

// Open initialises the GPIO host and binds the pins named in cfg. When
// cfg.Simulated is set no host access happens and clock drives the model;
// a nil clock means the real one.
func Open(cfg config.HardwareConfig, clock clockwork.Clock) (*Board, error) {
	if cfg.Simulated {
		if clock == nil {
			clock = clockwork.NewRealClock()
		}
		v := sim.New(clock)
		return &Board{Hardware: v.Hardware(), Sim: v}, nil
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHostInit, err)
	}
	return Bind(cfg, gpioreg.ByName)
}

// Bind builds the drivers over pins resolved by lookup.
// LED pins are optional; every other pin is required.
func Bind(cfg config.HardwareConfig, lookup Lookup) (*Board, error) {
	b := &Board{}

	var errs []error
	pin := func(name string, optional bool) gpio.PinIO {
		if name == "" && optional {
			return nil
		}
		p := lookup(name)
		if p == nil {
			errs = append(errs, fmt.Errorf("%w: %q", ErrPinNotFound, name))
			return nil
		}
		b.pins = append(b.pins, p)
		return p
	}

	enable := pin(cfg.Motor.EnablePin, false)
	in1 := pin(cfg.Motor.IN1Pin, false)
	in2 := pin(cfg.Motor.IN2Pin, false)
	openA := pin(cfg.Limits.Open.PinA, false)
	openB := pin(cfg.Limits.Open.PinB, false)
	closeA := pin(cfg.Limits.Close.PinA, false)
	closeB := pin(cfg.Limits.Close.PinB, false)
	red := pin(cfg.LEDs.RedPin, true)
	green := pin(cfg.LEDs.GreenPin, true)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	b.Hardware = valve.Hardware{
		Motor:      valve.NewMotor(enable, in1, in2, physic.Frequency(cfg.Motor.PWMFrequency)*physic.Hertz),
		OpenLimit:  valve.NewLimitSensor("open", openA, openB),
		CloseLimit: valve.NewLimitSensor("close", closeA, closeB),
		Red:        valve.NewIndicator(outOrNil(red)),
		Green:      valve.NewIndicator(outOrNil(green)),
	}
	return b, nil
}

// outOrNil keeps a nil gpio.PinIO from becoming a non-nil gpio.PinOut.
func outOrNil(p gpio.PinIO) gpio.PinOut {
	if p == nil {
		return nil
	}
	return p
}

// Close stops the motor, turns the LEDs off and halts every bound pin.
func (b *Board) Close() error {
	var errs []error
	if b.Motor != nil {
		errs = append(errs, b.Motor.Stop())
	}
	errs = append(errs, b.Red.Off(), b.Green.Off())
	for _, p := range b.pins {
		if err := p.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halting %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
