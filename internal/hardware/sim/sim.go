// Package sim models a rotary valve behind simulated GPIO pins.
//
// The model integrates motor travel against a clockwork clock: while the
// H-bridge is energised the shaft moves at a rate proportional to the PWM
// duty, and the limit contacts flip when it reaches either end stop. Faults
// can be injected to exercise the actuator's timeout and sensor paths.
package sim

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"

	"github.com/nerrad567/gray-logic-valve/internal/valve"
)

// DefaultTravelTime is the closed-to-open stroke at full duty.
const DefaultTravelTime = 3 * time.Second

// Limit selects one of the two limit switches.
type Limit int

const (
	OpenLimit Limit = iota
	CloseLimit
)

// Valve is a simulated valve and its pins.
type Valve struct {
	clock  clockwork.Clock
	travel time.Duration

	enable *drivePin
	in1    *drivePin
	in2    *drivePin
	openA  *contactPin
	openB  *contactPin
	closeA *contactPin
	closeB *contactPin
	red    *gpiotest.Pin
	green  *gpiotest.Pin

	mu      sync.Mutex
	angle   float64
	last    time.Time
	duty    float64
	dirIn1  gpio.Level
	dirIn2  gpio.Level
	jammed  bool
	broken  [2]bool
	strokes int
}

// New returns a closed valve with its motor stopped.
func New(clock clockwork.Clock) *Valve {
	v := &Valve{
		clock:  clock,
		travel: DefaultTravelTime,
		last:   clock.Now(),
		red:    &gpiotest.Pin{N: "SIM_RED"},
		green:  &gpiotest.Pin{N: "SIM_GREEN"},
	}
	v.enable = &drivePin{Pin: &gpiotest.Pin{N: "SIM_EN"}, v: v, role: roleEnable}
	v.in1 = &drivePin{Pin: &gpiotest.Pin{N: "SIM_IN1"}, v: v, role: roleIN1}
	v.in2 = &drivePin{Pin: &gpiotest.Pin{N: "SIM_IN2"}, v: v, role: roleIN2}
	v.openA = &contactPin{Pin: &gpiotest.Pin{N: "SIM_OPEN_A"}, v: v, limit: OpenLimit, contactA: true}
	v.openB = &contactPin{Pin: &gpiotest.Pin{N: "SIM_OPEN_B"}, v: v, limit: OpenLimit}
	v.closeA = &contactPin{Pin: &gpiotest.Pin{N: "SIM_CLOSE_A"}, v: v, limit: CloseLimit, contactA: true}
	v.closeB = &contactPin{Pin: &gpiotest.Pin{N: "SIM_CLOSE_B"}, v: v, limit: CloseLimit}
	return v
}

// Hardware returns valve drivers bound to the simulated pins.
func (v *Valve) Hardware() valve.Hardware {
	return valve.Hardware{
		Motor:      valve.NewMotor(v.enable, v.in1, v.in2, 0),
		OpenLimit:  valve.NewLimitSensor("open", v.openA, v.openB),
		CloseLimit: valve.NewLimitSensor("close", v.closeA, v.closeB),
		Red:        valve.NewIndicator(v.red),
		Green:      valve.NewIndicator(v.green),
	}
}

// SetTravelTime changes the full-duty stroke time.
func (v *Valve) SetTravelTime(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()
	if d > 0 {
		v.travel = d
	}
}

// SetAngle places the shaft, clamped to the end stops.
func (v *Valve) SetAngle(deg float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()
	v.angle = clamp(deg)
}

// Angle returns the current shaft angle in degrees.
func (v *Valve) Angle() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()
	return v.angle
}

// Jam stops the shaft from moving while the motor is energised.
func (v *Valve) Jam(jammed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()
	v.jammed = jammed
}

// BreakLimit makes both contacts of a limit read high, as with a cut
// common wire and pull-ups.
func (v *Valve) BreakLimit(l Limit, broken bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.broken[l] = broken
}

// Running reports whether the bridge is energised with a direction selected.
func (v *Valve) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.direction() != 0
}

// Strokes counts completed end-to-end arrivals.
func (v *Valve) Strokes() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()
	return v.strokes
}

// LEDs returns the red and green LED levels.
func (v *Valve) LEDs() (red, green gpio.Level) {
	return v.red.Read(), v.green.Read()
}

// direction is +1 opening, -1 closing and 0 stopped. Callers hold mu.
func (v *Valve) direction() float64 {
	if v.duty == 0 {
		return 0
	}
	switch {
	case v.dirIn1 == gpio.High && v.dirIn2 == gpio.Low:
		return -1
	case v.dirIn1 == gpio.Low && v.dirIn2 == gpio.High:
		return 1
	default:
		return 0
	}
}

// advance integrates shaft travel up to now. Callers hold mu.
func (v *Valve) advance() {
	now := v.clock.Now()
	dt := now.Sub(v.last)
	v.last = now
	if dt <= 0 || v.jammed {
		return
	}

	dir := v.direction()
	if dir == 0 {
		return
	}

	before := v.angle
	rate := float64(valve.OpenAngle) / v.travel.Seconds()
	v.angle = clamp(v.angle + dir*v.duty*rate*dt.Seconds())
	if v.angle != before && (v.angle == valve.OpenAngle || v.angle == valve.ClosedAngle) {
		v.strokes++
	}
}

// contact returns the level of one limit contact. Callers hold mu.
func (v *Valve) contact(l Limit, contactA bool) gpio.Level {
	if v.broken[l] {
		return gpio.High
	}
	var reached bool
	if l == OpenLimit {
		reached = v.angle >= valve.OpenAngle
	} else {
		reached = v.angle <= valve.ClosedAngle
	}
	if contactA {
		return gpio.Level(reached)
	}
	return gpio.Level(!reached)
}

func clamp(deg float64) float64 {
	return min(max(deg, valve.ClosedAngle), valve.OpenAngle)
}

type pinRole int

const (
	roleEnable pinRole = iota
	roleIN1
	roleIN2
)

// drivePin is an H-bridge output that feeds the model.
type drivePin struct {
	*gpiotest.Pin
	v    *Valve
	role pinRole
}

func (p *drivePin) Out(l gpio.Level) error {
	p.v.mu.Lock()
	p.v.advance()
	switch p.role {
	case roleEnable:
		p.v.duty = 0
		if l == gpio.High {
			p.v.duty = 1
		}
	case roleIN1:
		p.v.dirIn1 = l
	case roleIN2:
		p.v.dirIn2 = l
	}
	p.v.mu.Unlock()
	return p.Pin.Out(l)
}

func (p *drivePin) PWM(duty gpio.Duty, f physic.Frequency) error {
	if p.role == roleEnable {
		p.v.mu.Lock()
		p.v.advance()
		p.v.duty = float64(duty) / float64(gpio.DutyMax)
		p.v.mu.Unlock()
	}
	return p.Pin.PWM(duty, f)
}

// contactPin is one side of a changeover limit switch.
type contactPin struct {
	*gpiotest.Pin
	v        *Valve
	limit    Limit
	contactA bool
}

func (p *contactPin) Read() gpio.Level {
	p.v.mu.Lock()
	defer p.v.mu.Unlock()
	p.v.advance()
	return p.v.contact(p.limit, p.contactA)
}
