package schedule

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/gray-logic-valve/internal/valve"
)

const (
	// entryTag marks jobs built from ControlConfig schedule entries so
	// Apply can replace them without touching maintenance jobs.
	entryTag = "valve-schedule"

	maintenanceTag = "maintenance"
)

// Target is a scheduled actuation waiting for the control loop.
type Target struct {
	Op    valve.Operation
	Entry int
	At    time.Time
}

// Runner turns schedule entries into weekly gocron jobs. A firing job does
// not touch hardware; it posts a Target that the control loop takes when it
// is idle and schedule mode is on. A newer target replaces an untaken one.
type Runner struct {
	scheduler gocron.Scheduler
	clock     clockwork.Clock
	logger    valve.Logger

	mu      sync.Mutex
	pending *Target
	stopped bool
}

// Option configures a Runner.
type Option func(*runnerOptions)

type runnerOptions struct {
	clock  clockwork.Clock
	loc    *time.Location
	logger valve.Logger
}

// WithClock sets the scheduler clock.
func WithClock(c clockwork.Clock) Option {
	return func(o *runnerOptions) { o.clock = c }
}

// WithLocation sets the time zone schedule times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(o *runnerOptions) { o.loc = loc }
}

// WithLogger sets the logger.
func WithLogger(l valve.Logger) Option {
	return func(o *runnerOptions) { o.logger = l }
}

// New creates a stopped Runner.
func New(opts ...Option) (*Runner, error) {
	o := runnerOptions{clock: clockwork.NewRealClock(), loc: time.Local}
	for _, opt := range opts {
		opt(&o)
	}

	s, err := gocron.NewScheduler(
		gocron.WithClock(o.clock),
		gocron.WithLocation(o.loc),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}

	r := &Runner{scheduler: s, clock: o.clock, logger: o.logger}
	if r.logger == nil {
		r.logger = nopLogger{}
	}
	return r, nil
}

// Start begins running jobs.
func (r *Runner) Start() {
	r.logger.Info("starting schedule runner")
	r.scheduler.Start()
}

// Stop shuts the scheduler down and waits for running jobs.
func (r *Runner) Stop() error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.logger.Info("stopping schedule runner")
	if err := r.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutting down scheduler: %w", err)
	}
	return nil
}

// Apply replaces the entry jobs with those described by cfg.Schedule.
// With cfg.ApplySchedule unset the timetable is disarmed and no jobs remain.
//
// Entries are armed regardless of cfg.ScheduleMode so that switching the
// mode on takes effect at the next boundary; the control loop discards
// targets while the mode is off. Invalid entries are skipped and reported
// together.
func (r *Runner) Apply(cfg valve.ControlConfig) error {
	r.mu.Lock()
	stopped := r.stopped
	r.pending = nil
	r.mu.Unlock()
	if stopped {
		return ErrNotRunning
	}

	r.scheduler.RemoveByTags(entryTag)
	if !cfg.ApplySchedule {
		r.logger.Info("schedule disarmed", "entries", len(cfg.Schedule))
		return nil
	}

	var errs []error
	scheduled := 0
	for i, e := range cfg.Schedule {
		if i >= valve.MaxScheduleEntries {
			break
		}
		day, err := ParseDay(e.Day)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		for _, edge := range []struct {
			op valve.Operation
			at string
		}{
			{valve.OpOpen, e.Open},
			{valve.OpClose, e.Close},
		} {
			h, m, ok, err := ParseClock(edge.at)
			if err != nil {
				errs = append(errs, fmt.Errorf("entry %d %s: %w", i, edge.op, err))
				continue
			}
			if !ok {
				continue
			}
			if err := r.addEntryJob(i, day, h, m, edge.op); err != nil {
				errs = append(errs, err)
				continue
			}
			scheduled++
		}
	}

	r.logger.Info("schedule applied",
		"entries", len(cfg.Schedule),
		"jobs", scheduled,
		"schedule_mode", cfg.ScheduleMode,
	)
	return errors.Join(errs...)
}

func (r *Runner) addEntryJob(entry int, day time.Weekday, hour, minute uint, op valve.Operation) error {
	_, err := r.scheduler.NewJob(
		gocron.WeeklyJob(1,
			gocron.NewWeekdays(day),
			gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0)),
		),
		gocron.NewTask(r.post, entry, op),
		gocron.WithName(fmt.Sprintf("entry-%d-%s-%s-%02d%02d", entry, op, day, hour, minute)),
		gocron.WithTags(entryTag),
	)
	if err != nil {
		return fmt.Errorf("scheduling entry %d %s: %w", entry, op, err)
	}
	return nil
}

// post records a target. It runs on a gocron worker goroutine.
func (r *Runner) post(entry int, op valve.Operation) {
	t := Target{Op: op, Entry: entry, At: r.clock.Now()}

	r.mu.Lock()
	replaced := r.pending
	r.pending = &t
	r.mu.Unlock()

	if replaced != nil {
		r.logger.Warn("scheduled target replaced before dispatch",
			"previous_op", replaced.Op,
			"previous_entry", replaced.Entry,
			"op", op,
		)
	}
	r.logger.Debug("scheduled target posted", "op", op, "entry", entry)
}

// Take removes and returns the pending target, if any.
func (r *Runner) Take() (Target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return Target{}, false
	}
	t := *r.pending
	r.pending = nil
	return t, true
}

// Every registers a maintenance job that runs fn at a fixed interval.
// Runs never overlap.
func (r *Runner) Every(name string, interval time.Duration, fn func()) error {
	_, err := r.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithTags(maintenanceTag),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", name, err)
	}
	return nil
}

// NextRuns returns the next firing time of every entry job, soonest first.
func (r *Runner) NextRuns() []time.Time {
	var out []time.Time
	for _, j := range r.scheduler.Jobs() {
		if !slices.Contains(j.Tags(), entryTag) {
			continue
		}
		next, err := j.NextRun()
		if err != nil || next.IsZero() {
			continue
		}
		out = append(out, next)
	}
	slices.SortFunc(out, time.Time.Compare)
	return out
}

// EntryJobs returns the number of scheduled entry jobs.
func (r *Runner) EntryJobs() int {
	n := 0
	for _, j := range r.scheduler.Jobs() {
		if slices.Contains(j.Tags(), entryTag) {
			n++
		}
	}
	return n
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
