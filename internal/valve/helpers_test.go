package valve

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

// switchPin is a fake input whose level may depend on how often it was read,
// which lets a test model a limit that closes after the motor has run a while.
type switchPin struct {
	*gpiotest.Pin
	reads atomic.Int64
	level atomic.Pointer[func(n int64) gpio.Level]
}

func newSwitchPin(name string) *switchPin {
	return &switchPin{Pin: &gpiotest.Pin{N: name}}
}

func (p *switchPin) Read() gpio.Level {
	n := p.reads.Add(1)
	if fn := p.level.Load(); fn != nil {
		return (*fn)(n)
	}
	return p.Pin.Read()
}

func (p *switchPin) script(fn func(n int64) gpio.Level) {
	p.level.Store(&fn)
}

// pwmPin counts PWM calls on the enable pin.
type pwmPin struct {
	*gpiotest.Pin
	pwmCalls atomic.Int64
}

func (p *pwmPin) PWM(duty gpio.Duty, f physic.Frequency) error {
	p.pwmCalls.Add(1)
	return p.Pin.PWM(duty, f)
}

// ledPin records every level written to it.
type ledPin struct {
	*gpiotest.Pin
	mu     sync.Mutex
	writes []gpio.Level
}

func newLEDPin(name string) *ledPin {
	return &ledPin{Pin: &gpiotest.Pin{N: name}}
}

func (p *ledPin) Out(l gpio.Level) error {
	p.mu.Lock()
	p.writes = append(p.writes, l)
	p.mu.Unlock()
	return p.Pin.Out(l)
}

func (p *ledPin) history() []gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.writes)
}

type rig struct {
	clock *clockwork.FakeClock
	store *Store

	en       *pwmPin
	in1, in2 *gpiotest.Pin
	openA    *switchPin
	openB    *switchPin
	closeA   *switchPin
	closeB   *switchPin
	red      *ledPin
	green    *ledPin

	motor *Motor
	act   *Actuator
}

func newRig(t *testing.T) *rig {
	t.Helper()

	r := &rig{
		clock:  clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)),
		store:  NewStore(),
		en:     &pwmPin{Pin: &gpiotest.Pin{N: "EN"}},
		in1:    &gpiotest.Pin{N: "IN1"},
		in2:    &gpiotest.Pin{N: "IN2"},
		openA:  newSwitchPin("OPEN_A"),
		openB:  newSwitchPin("OPEN_B"),
		closeA: newSwitchPin("CLOSE_A"),
		closeB: newSwitchPin("CLOSE_B"),
		red:    newLEDPin("RED"),
		green:  newLEDPin("GREEN"),
	}
	r.motor = NewMotor(r.en, r.in1, r.in2, 0)
	r.act = NewActuator(Hardware{
		Motor:      r.motor,
		OpenLimit:  NewLimitSensor("open", r.openA, r.openB),
		CloseLimit: NewLimitSensor("close", r.closeA, r.closeB),
		Red:        NewIndicator(r.red),
		Green:      NewIndicator(r.green),
	}, r.store, WithClock(r.clock))

	// Both limits healthy and released.
	r.setOpen(NotAsserted)
	r.setClose(NotAsserted)
	return r
}

func setSwitch(a, b *switchPin, reading Reading) {
	switch reading {
	case Asserted:
		_ = a.Out(gpio.High)
		_ = b.Out(gpio.Low)
	case NotAsserted:
		_ = a.Out(gpio.Low)
		_ = b.Out(gpio.High)
	default:
		_ = a.Out(gpio.High)
		_ = b.Out(gpio.High)
	}
}

func (r *rig) setOpen(reading Reading)  { setSwitch(r.openA, r.openB, reading) }
func (r *rig) setClose(reading Reading) { setSwitch(r.closeA, r.closeB, reading) }

// assertAfter makes a limit read NotAsserted for the first n samples and
// Asserted afterwards. The self-test sample counts as the first.
func assertAfter(a, b *switchPin, n int64) {
	a.script(func(i int64) gpio.Level { return gpio.Level(i > n) })
	b.script(func(i int64) gpio.Level { return gpio.Level(i <= n) })
}

// run executes fn while advancing the fake clock one poll interval at a time
// whenever fn is asleep. It returns the simulated elapsed time and fn's result.
func (r *rig) run(t *testing.T, fn func() error) (time.Duration, error) {
	t.Helper()

	start := r.clock.Now()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := fn()
		cancel()
		done <- err
	}()

	deadline := time.After(30 * time.Second)
	for {
		if err := r.clock.BlockUntilContext(ctx, 1); err != nil {
			break
		}
		r.clock.Advance(PollInterval)

		select {
		case <-deadline:
			t.Fatal("actuation did not finish")
		default:
		}
	}

	err := <-done
	return r.clock.Since(start), err
}

func (r *rig) assertStopped(t *testing.T) {
	t.Helper()
	if r.en.Read() != gpio.Low || r.in1.Read() != gpio.Low || r.in2.Read() != gpio.Low {
		t.Errorf("motor not stopped: EN=%v IN1=%v IN2=%v", r.en.Read(), r.in1.Read(), r.in2.Read())
	}
}
