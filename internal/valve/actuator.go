package valve

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Logger is the logging interface used by the valve package.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Hardware groups the drivers an Actuator controls.
// Red and Green may be nil.
type Hardware struct {
	Motor      *Motor
	OpenLimit  *LimitSensor
	CloseLimit *LimitSensor
	Red        *Indicator
	Green      *Indicator
}

// Option configures an Actuator.
type Option func(*Actuator)

// WithClock sets the clock used for timeouts and polling. Tests pass a fake.
func WithClock(c clockwork.Clock) Option {
	return func(a *Actuator) { a.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(a *Actuator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithSpeed sets the motor duty (1-255).
func WithSpeed(speed int) Option {
	return func(a *Actuator) {
		if speed > 0 {
			a.speed = min(speed, maxSpeed)
		}
	}
}

// Actuator runs open and close operations against the hardware and records
// their outcome in the Store.
//
// Thread Safety: Open and Close block for up to ActuationTimeout and must not
// be called concurrently with each other. The control loop is the only caller.
type Actuator struct {
	hw     Hardware
	store  *Store
	clock  clockwork.Clock
	logger Logger
	speed  int

	initOnce sync.Once
	initErr  error
}

// NewActuator returns an actuator over hw that reports into store.
func NewActuator(hw Hardware, store *Store, opts ...Option) *Actuator {
	a := &Actuator{
		hw:     hw,
		store:  store,
		clock:  clockwork.NewRealClock(),
		logger: noopLogger{},
		speed:  DefaultSpeed,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Init configures the pins, stops the motor and blinks both LEDs for half a
// second. Only the first call has any effect.
func (a *Actuator) Init() error {
	a.initOnce.Do(func() {
		a.initErr = errors.Join(
			a.hw.Motor.Init(),
			a.hw.CloseLimit.Init(),
			a.hw.OpenLimit.Init(),
		)
		if a.initErr != nil {
			return
		}

		a.ledOn(a.hw.Red)
		a.ledOn(a.hw.Green)
		a.clock.Sleep(blinkDuration)
		a.ledOff(a.hw.Red)
		a.ledOff(a.hw.Green)

		a.logger.Info("valve hardware initialised", "speed", a.speed)
	})
	return a.initErr
}

// SelfTest samples both limit sensors and records their availability in
// ObservedState. A fault on the close sensor takes precedence.
func (a *Actuator) SelfTest() error {
	closeReading := a.hw.CloseLimit.Read()
	openReading := a.hw.OpenLimit.Read()

	a.store.UpdateObserved(func(s *ObservedState) {
		s.CloseLimit = limitStatus(closeReading)
		s.OpenLimit = limitStatus(openReading)
	})

	switch {
	case closeReading == Fault:
		return &ActuationError{Code: CodeCloseSensorFault}
	case openReading == Fault:
		return &ActuationError{Code: CodeOpenSensorFault}
	}
	return nil
}

func limitStatus(r Reading) LimitStatus {
	return LimitStatus{Known: r != Fault, Asserted: r == Asserted}
}

// Open drives the valve to its open limit. It returns nil on success or an
// *ActuationError describing why the valve did not get there.
func (a *Actuator) Open() error {
	return a.actuate(OpOpen)
}

// Close drives the valve to its closed limit. See Open.
func (a *Actuator) Close() error {
	return a.actuate(OpClose)
}

func (a *Actuator) actuate(op Operation) error {
	start := a.clock.Now()

	err := a.SelfTest()
	if err != nil {
		var ae *ActuationError
		if errors.As(err, &ae) {
			ae.Op = op
		}
	} else if a.hw.Motor.Position() != op.Target() {
		err = a.drive(op, start)
	}

	a.stopMotor(op)

	if err != nil {
		a.fail(op, err)
		return err
	}
	a.succeed(op, a.clock.Since(start))
	return nil
}

// drive runs the motor until the target limit asserts, the target sensor
// faults, or ActuationTimeout elapses. The motor is stopped on every exit.
func (a *Actuator) drive(op Operation, start time.Time) error {
	target, run, faultCode := a.hw.OpenLimit, a.hw.Motor.RunCounterClockwise, CodeOpenSensorFault
	if op == OpClose {
		target, run, faultCode = a.hw.CloseLimit, a.hw.Motor.RunClockwise, CodeCloseSensorFault
	}

	for {
		switch target.Read() {
		case Asserted:
			a.stopMotor(op)
			a.logger.Debug("limit reached", "op", op, "limit", target.Name())
			return nil
		case Fault:
			a.stopMotor(op)
			return &ActuationError{Op: op, Code: faultCode}
		}

		if a.clock.Since(start) > ActuationTimeout {
			a.stopMotor(op)
			return &ActuationError{Op: op, Code: timeoutCode(op)}
		}

		if err := run(a.speed); err != nil {
			a.logger.Error("motor drive failed", "op", op, "error", err)
		}
		a.clock.Sleep(PollInterval)
	}
}

func (a *Actuator) succeed(op Operation, took time.Duration) {
	isOpen := op == OpOpen
	angle := ClosedAngle
	if isOpen {
		angle = OpenAngle
	}

	a.store.UpdateObserved(func(s *ObservedState) {
		s.LastError = ActuationError{}
		s.IsOpen = isOpen
		s.IsClose = !isOpen
		s.Angle = angle
	})
	a.hw.Motor.SetPosition(op.Target())
	a.ledOff(a.hw.Red)

	a.logger.Info("valve actuated", "op", op, "angle", angle, "duration", took)
}

// fail records err without touching IsOpen, IsClose or Angle.
func (a *Actuator) fail(op Operation, err error) {
	var ae *ActuationError
	if !errors.As(err, &ae) {
		ae = &ActuationError{Op: op, Code: -1}
	}
	recorded := *ae

	a.store.UpdateObserved(func(s *ObservedState) {
		s.LastError = recorded
	})
	a.ledOn(a.hw.Red)

	a.logger.Error("valve actuation failed", "op", op, "code", int(recorded.Code), "error", err)
}

// RecordInvalidAngle reports a manual request for an angle the mechanism
// cannot hold. Nothing moves.
func (a *Actuator) RecordInvalidAngle(angle int) error {
	err := &ActuationError{Op: OpPosition, Code: CodeInvalidAngle, Angle: angle}
	a.fail(OpPosition, err)
	return err
}

func (a *Actuator) stopMotor(op Operation) {
	if err := a.hw.Motor.Stop(); err != nil {
		a.logger.Error("motor stop failed", "op", op, "error", err)
	}
}

func (a *Actuator) ledOn(led *Indicator) {
	if err := led.On(); err != nil {
		a.logger.Warn("status led write failed", "error", err)
	}
}

func (a *Actuator) ledOff(led *Indicator) {
	if err := led.Off(); err != nil {
		a.logger.Warn("status led write failed", "error", err)
	}
}

// Green returns the connectivity LED so transport code can drive it.
func (a *Actuator) Green() *Indicator { return a.hw.Green }

// Position is the motor's last confirmed end position.
func (a *Actuator) Position() Position { return a.hw.Motor.Position() }
