package control

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/gray-logic-valve/internal/schedule"
	"github.com/nerrad567/gray-logic-valve/internal/valve"
)

// Period is the synchronization cycle.
const Period = time.Second

// historyWriteTimeout bounds the history insert after each actuation.
const historyWriteTimeout = 2 * time.Second

// Phase is the loop's actuation state.
type Phase int

const (
	Idle Phase = iota
	Actuating
)

func (p Phase) String() string {
	if p == Actuating {
		return "actuating"
	}
	return "idle"
}

// Actuator is the part of *valve.Actuator the loop drives.
type Actuator interface {
	Open() error
	Close() error
	SelfTest() error
	RecordInvalidAngle(angle int) error
	Position() valve.Position
}

// TargetSource supplies scheduled targets. *schedule.Runner implements it.
type TargetSource interface {
	Take() (schedule.Target, bool)
}

// HistoryRecorder persists actuation outcomes.
type HistoryRecorder interface {
	RecordActuation(ctx context.Context, rec valve.ActuationRecord) error
}

// MetricsRecorder receives actuation metrics. *metrics.Recorder implements it.
type MetricsRecorder interface {
	ObserveActuation(op, source string, code int, d time.Duration)
	SetActuating(on bool)
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the clock driving the cycle ticker.
func WithClock(c clockwork.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithLogger sets the logger.
func WithLogger(lg valve.Logger) Option {
	return func(l *Loop) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// WithSchedule sets the source of scheduled targets.
func WithSchedule(s TargetSource) Option {
	return func(l *Loop) { l.targets = s }
}

// WithHistory sets where actuation outcomes are recorded.
func WithHistory(h HistoryRecorder) Option {
	return func(l *Loop) { l.history = h }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(l *Loop) {
		if m != nil {
			l.metrics = m
		}
	}
}

type dispatch struct {
	op      valve.Operation
	source  string
	started time.Time
	retry   bool // same manual request as the previous attempt
}

type outcome struct {
	dispatch
	err  error
	took time.Duration
}

// Loop is the synchronization task.
type Loop struct {
	store   *valve.Store
	act     Actuator
	clock   clockwork.Clock
	targets TargetSource
	history HistoryRecorder
	metrics MetricsRecorder
	logger  valve.Logger

	// Owned by the loop goroutine.
	phase    Phase
	handled  uint64
	lastCode valve.Code

	done chan outcome
	busy atomic.Bool
}

// New creates a Loop over store and act.
func New(store *valve.Store, act Actuator, opts ...Option) *Loop {
	l := &Loop{
		store:   store,
		act:     act,
		clock:   clockwork.NewRealClock(),
		metrics: nopMetrics{},
		logger:  nopLogger{},
		done:    make(chan outcome, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes a cycle every Period until ctx is cancelled. A movement in
// progress at cancellation is waited for, which takes at most
// valve.ActuationTimeout.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(Period)
	defer ticker.Stop()

	l.logger.Info("control loop started", "period", Period)
	for {
		select {
		case <-ctx.Done():
			l.awaitActuation(ctx)
			l.logger.Info("control loop stopped")
			return nil
		case o := <-l.done:
			l.complete(ctx, o)
		case <-ticker.Chan():
			l.Step(ctx)
		}
	}
}

// Actuating reports whether a movement is in flight. The answer may be
// stale by the time the caller acts on it.
func (l *Loop) Actuating() bool {
	return l.busy.Load()
}

// Step runs one cycle. It must only be called from the loop goroutine.
func (l *Loop) Step(ctx context.Context) {
	req, version := l.store.RequestedVersion()

	l.store.UpdateObserved(func(s *valve.ObservedState) {
		s.ScheduleMode = req.ScheduleMode
		s.SensorMode = req.SensorMode
	})

	if l.phase != Idle {
		return
	}

	switch {
	case !req.ScheduleMode && !req.SensorMode:
		l.dropTarget("manual mode")
		if req.SetAngle && l.manual(ctx, req.Angle, version) {
			return
		}
	case req.ScheduleMode:
		if t, ok := l.takeTarget(); ok {
			if l.store.Config().ScheduleMode {
				l.start(dispatch{op: t.Op, source: valve.SourceSchedule})
				return
			}
			l.logger.Debug("schedule target discarded, schedule controller disabled", "op", t.Op, "entry", t.Entry)
		}
	default:
		l.dropTarget("sensor mode")
	}

	// Nothing to do: refresh the limit status for telemetry.
	if err := l.act.SelfTest(); err != nil {
		l.logger.Debug("idle self-test failed", "error", err)
	}
}

// manual handles a standing set_angle request and reports whether it started
// a movement. The request stays in force after a failure, so every idle cycle
// retries it until the motor's position matches. An invalid angle is recorded
// once per request.
func (l *Loop) manual(ctx context.Context, angle int, version uint64) bool {
	retry := version == l.handled
	l.handled = version

	op, ok := valve.OperationForAngle(angle)
	if ok {
		if l.act.Position() == op.Target() {
			return false
		}
		l.start(dispatch{op: op, source: valve.SourceManual, retry: retry})
		return true
	}
	if retry {
		return false
	}

	start := l.clock.Now()
	err := l.act.RecordInvalidAngle(angle)
	l.logger.Warn("manual request ignored", "angle", angle, "error", err)
	l.record(ctx, outcome{
		dispatch: dispatch{op: valve.OpPosition, source: valve.SourceManual, started: start},
		err:      err,
	})
	return false
}

// start dispatches a movement. The phase flips before the goroutine exists.
func (l *Loop) start(d dispatch) {
	l.phase = Actuating
	l.busy.Store(true)
	l.metrics.SetActuating(true)

	run := l.act.Open
	if d.op == valve.OpClose {
		run = l.act.Close
	}
	d.started = l.clock.Now()

	if d.retry {
		l.logger.Debug("actuation retried", "op", d.op, "source", d.source)
	} else {
		l.logger.Info("actuation dispatched", "op", d.op, "source", d.source)
	}
	go func() {
		err := run()
		l.done <- outcome{dispatch: d, err: err, took: l.clock.Since(d.started)}
	}()
}

func (l *Loop) complete(ctx context.Context, o outcome) {
	l.phase = Idle
	l.busy.Store(false)
	l.metrics.SetActuating(false)
	l.record(ctx, o)
}

// awaitActuation blocks until an in-flight movement reports back.
func (l *Loop) awaitActuation(ctx context.Context) {
	if l.phase != Actuating {
		return
	}
	l.logger.Info("waiting for in-flight actuation")
	l.complete(ctx, <-l.done)
}

func (l *Loop) record(ctx context.Context, o outcome) {
	code := valve.CodeOf(o.err)
	l.metrics.ObserveActuation(string(o.op), o.source, int(code), o.took)

	// A retry failing the same way as the attempt before it adds no history.
	repeat := o.retry && code != valve.CodeOK && code == l.lastCode
	if o.source == valve.SourceManual {
		l.lastCode = code
	}
	if l.history == nil || repeat {
		return
	}
	// The outcome is recorded even when the loop is shutting down.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()
	if err := l.history.RecordActuation(hctx, valve.ActuationRecord{
		Operation: o.op,
		Source:    o.source,
		Code:      code,
		Duration:  o.took,
		StartedAt: o.started,
	}); err != nil {
		l.logger.Error("failed to record actuation history", "op", o.op, "error", err)
	}
}

func (l *Loop) takeTarget() (schedule.Target, bool) {
	if l.targets == nil {
		return schedule.Target{}, false
	}
	return l.targets.Take()
}

func (l *Loop) dropTarget(reason string) {
	if t, ok := l.takeTarget(); ok {
		l.logger.Debug("schedule target discarded", "reason", reason, "op", t.Op, "entry", t.Entry)
	}
}

type nopMetrics struct{}

func (nopMetrics) ObserveActuation(string, string, int, time.Duration) {}
func (nopMetrics) SetActuating(bool)                                  {}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
