package valve

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

func newTestMotor() (*Motor, *gpiotest.Pin, *gpiotest.Pin, *gpiotest.Pin) {
	en := &gpiotest.Pin{N: "EN"}
	in1 := &gpiotest.Pin{N: "IN1"}
	in2 := &gpiotest.Pin{N: "IN2"}
	return NewMotor(en, in1, in2, 0), en, in1, in2
}

func TestMotor_Direction(t *testing.T) {
	tests := []struct {
		name     string
		run      func(*Motor, int) error
		in1, in2 gpio.Level
	}{
		{"clockwise closes", (*Motor).RunClockwise, gpio.High, gpio.Low},
		{"counter-clockwise opens", (*Motor).RunCounterClockwise, gpio.Low, gpio.High},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, en, in1, in2 := newTestMotor()

			if err := tt.run(m, DefaultSpeed); err != nil {
				t.Fatalf("run error = %v", err)
			}
			if in1.L != tt.in1 || in2.L != tt.in2 {
				t.Errorf("IN1=%v IN2=%v, want IN1=%v IN2=%v", in1.L, in2.L, tt.in1, tt.in2)
			}
			want := gpio.Duty(int64(gpio.DutyMax) * DefaultSpeed / maxSpeed)
			if en.D != want {
				t.Errorf("duty = %v, want %v", en.D, want)
			}
			if en.F != DefaultPWMFrequency {
				t.Errorf("frequency = %v, want %v", en.F, DefaultPWMFrequency)
			}
		})
	}
}

func TestMotor_Stop(t *testing.T) {
	m, en, in1, in2 := newTestMotor()
	if err := m.RunClockwise(255); err != nil {
		t.Fatal(err)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if en.L != gpio.Low || in1.L != gpio.Low || in2.L != gpio.Low {
		t.Errorf("after Stop EN=%v IN1=%v IN2=%v, want all low", en.L, in1.L, in2.L)
	}
}

func TestMotor_ZeroSpeedDisables(t *testing.T) {
	m, en, _, _ := newTestMotor()

	if err := m.RunCounterClockwise(0); err != nil {
		t.Fatal(err)
	}
	if en.L != gpio.Low || en.D != 0 {
		t.Errorf("enable = %v duty %v, want low with no PWM", en.L, en.D)
	}
}

// noPWMPin models a header pin with no PWM block.
type noPWMPin struct {
	*gpiotest.Pin
	attempts int
}

func (p *noPWMPin) PWM(gpio.Duty, physic.Frequency) error {
	p.attempts++
	return errors.New("pwm not supported")
}

func TestMotor_PWMFallback(t *testing.T) {
	en := &noPWMPin{Pin: &gpiotest.Pin{N: "EN"}}
	m := NewMotor(en, &gpiotest.Pin{N: "IN1"}, &gpiotest.Pin{N: "IN2"}, 20*physic.KiloHertz)

	for range 3 {
		if err := m.RunClockwise(DefaultSpeed); err != nil {
			t.Fatalf("RunClockwise() error = %v", err)
		}
	}
	if en.L != gpio.High {
		t.Error("enable not driven high after PWM was rejected")
	}
	if en.attempts != 1 {
		t.Errorf("PWM attempted %d times, want 1", en.attempts)
	}
}

func TestMotor_Position(t *testing.T) {
	m, _, _, _ := newTestMotor()
	if got := m.Position(); got != PositionUnknown {
		t.Errorf("initial Position() = %v, want unknown", got)
	}

	m.SetPosition(PositionOpened)
	if got := m.Position(); got != PositionOpened {
		t.Errorf("Position() = %v, want opened", got)
	}
	// Running does not change the confirmed position.
	_ = m.RunClockwise(DefaultSpeed)
	if got := m.Position(); got != PositionOpened {
		t.Errorf("Position() after run = %v, want opened", got)
	}
}
