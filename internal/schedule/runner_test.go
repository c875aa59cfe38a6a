package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/gray-logic-valve/internal/valve"
)

// monday0800 is a Monday.
var monday0800 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newTestRunner(t *testing.T) (*Runner, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(monday0800)
	r, err := New(WithClock(clock), WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r.Start()
	t.Cleanup(func() { _ = r.Stop() })
	return r, clock
}

func TestRunner_ApplySchedulesEdges(t *testing.T) {
	r, _ := newTestRunner(t)

	err := r.Apply(valve.ControlConfig{
		ScheduleMode:  true,
		ApplySchedule: true,
		Schedule: []valve.ScheduleEntry{
			{Day: "Mon", Open: "08:30", Close: "17:00"},
			{Day: "Wed", Open: "", Close: "06:15"},
		},
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := r.EntryJobs(); got != 3 {
		t.Errorf("EntryJobs() = %d, want 3", got)
	}

	next := r.NextRuns()
	if len(next) == 0 {
		t.Fatal("NextRuns() empty")
	}
	if want := monday0800.Add(30 * time.Minute); !next[0].Equal(want) {
		t.Errorf("first run = %v, want %v", next[0], want)
	}
}

func TestRunner_ApplyReplaces(t *testing.T) {
	r, _ := newTestRunner(t)

	if err := r.Every("prune", time.Hour, func() {}); err != nil {
		t.Fatal(err)
	}
	cfg := valve.ControlConfig{
		ApplySchedule: true,
		Schedule:      []valve.ScheduleEntry{{Day: "Tue", Open: "09:00", Close: "10:00"}},
	}
	if err := r.Apply(cfg); err != nil {
		t.Fatal(err)
	}
	cfg.Schedule = []valve.ScheduleEntry{{Day: "Fri", Open: "07:00"}}
	if err := r.Apply(cfg); err != nil {
		t.Fatal(err)
	}

	if got := r.EntryJobs(); got != 1 {
		t.Errorf("EntryJobs() = %d after replace, want 1", got)
	}
	if got := len(r.scheduler.Jobs()); got != 2 {
		t.Errorf("total jobs = %d, want entry job plus maintenance job", got)
	}
}

func TestRunner_ApplyReportsInvalidEntries(t *testing.T) {
	r, _ := newTestRunner(t)

	err := r.Apply(valve.ControlConfig{ApplySchedule: true, Schedule: []valve.ScheduleEntry{
		{Day: "Funday", Open: "08:00"},
		{Day: "Thu", Open: "99:00", Close: "18:00"},
	}})

	if !errors.Is(err, ErrInvalidDay) || !errors.Is(err, ErrInvalidTime) {
		t.Errorf("Apply() error = %v, want both ErrInvalidDay and ErrInvalidTime", err)
	}
	if got := r.EntryJobs(); got != 1 {
		t.Errorf("EntryJobs() = %d, want the one valid edge", got)
	}
}

func TestRunner_ApplyDisarms(t *testing.T) {
	r, _ := newTestRunner(t)
	cfg := valve.ControlConfig{
		ApplySchedule: true,
		Schedule:      []valve.ScheduleEntry{{Day: "Sat", Open: "10:00", Close: "11:00"}},
	}
	if err := r.Apply(cfg); err != nil {
		t.Fatal(err)
	}

	cfg.ApplySchedule = false
	if err := r.Apply(cfg); err != nil {
		t.Fatal(err)
	}
	if got := r.EntryJobs(); got != 0 {
		t.Errorf("EntryJobs() = %d with set_schedule off, want 0", got)
	}
}

func TestRunner_PostAndTake(t *testing.T) {
	r, _ := newTestRunner(t)

	if _, ok := r.Take(); ok {
		t.Fatal("Take() on empty runner returned a target")
	}

	r.post(0, valve.OpOpen)
	r.post(1, valve.OpClose)

	got, ok := r.Take()
	if !ok || got.Op != valve.OpClose || got.Entry != 1 {
		t.Errorf("Take() = %+v, %v; want the newer close target", got, ok)
	}
	if !got.At.Equal(monday0800) {
		t.Errorf("At = %v, want %v", got.At, monday0800)
	}
	if _, ok := r.Take(); ok {
		t.Error("Take() returned the same target twice")
	}
}

func TestRunner_ApplyClearsPending(t *testing.T) {
	r, _ := newTestRunner(t)
	r.post(0, valve.OpOpen)

	if err := r.Apply(valve.ControlConfig{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Take(); ok {
		t.Error("target from the old schedule survived Apply")
	}
}

func TestRunner_JobFires(t *testing.T) {
	r, clock := newTestRunner(t)

	if err := r.Apply(valve.ControlConfig{
		ScheduleMode:  true,
		ApplySchedule: true,
		Schedule:      []valve.ScheduleEntry{{Day: "monday", Open: "08:01"}},
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("job timer never armed: %v", err)
	}
	clock.Advance(time.Minute)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := r.Take(); ok {
			if got.Op != valve.OpOpen {
				t.Errorf("Op = %s, want open", got.Op)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scheduled job did not post a target")
}

func TestRunner_ApplyAfterStop(t *testing.T) {
	clock := clockwork.NewFakeClockAt(monday0800)
	r, err := New(WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	r.Start()
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}

	if err := r.Apply(valve.ControlConfig{}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Apply() after Stop error = %v, want ErrNotRunning", err)
	}
}
