package valve

import (
	"fmt"
	"sync"
	"testing"
)

func TestStore_ZeroState(t *testing.T) {
	s := NewStore()

	got := s.Observed()
	if got.IsOpen || got.IsClose || got.Angle != 0 || got.ErrorMessage() != "" {
		t.Errorf("Observed() = %+v, want zero state", got)
	}
	if s.Requested() != (RequestedControl{}) {
		t.Errorf("Requested() = %+v, want zero", s.Requested())
	}
}

func TestStore_ConfigCopiesSchedule(t *testing.T) {
	s := NewStore()
	cfg := ControlConfig{
		ScheduleMode: true,
		Schedule:     []ScheduleEntry{{Day: "monday", Open: "08:00", Close: "09:00"}},
	}
	s.SetConfig(cfg)

	cfg.Schedule[0].Open = "23:00"
	snap := s.Config()
	if snap.Schedule[0].Open != "08:00" {
		t.Errorf("store aliased caller's schedule: %q", snap.Schedule[0].Open)
	}

	snap.Schedule[0].Close = "23:59"
	if s.Config().Schedule[0].Close != "09:00" {
		t.Error("snapshot aliased stored schedule")
	}
}

func TestStore_ConfigTrimsSchedule(t *testing.T) {
	s := NewStore()
	cfg := ControlConfig{}
	for i := range MaxScheduleEntries + 5 {
		cfg.Schedule = append(cfg.Schedule, ScheduleEntry{Day: "sunday", Open: fmt.Sprintf("%02d:00", i%24)})
	}

	s.SetConfig(cfg)

	if n := len(s.Config().Schedule); n != MaxScheduleEntries {
		t.Errorf("stored %d entries, want %d", n, MaxScheduleEntries)
	}
}

func TestControlConfig_TrimSchedule(t *testing.T) {
	cfg := ControlConfig{Schedule: make([]ScheduleEntry, MaxScheduleEntries)}
	if cfg.TrimSchedule() {
		t.Error("TrimSchedule() = true at the limit")
	}

	cfg.Schedule = append(cfg.Schedule, ScheduleEntry{})
	if !cfg.TrimSchedule() {
		t.Error("TrimSchedule() = false over the limit")
	}
	if len(cfg.Schedule) != MaxScheduleEntries {
		t.Errorf("len = %d", len(cfg.Schedule))
	}
}

func TestGuarded_ConcurrentUpdate(t *testing.T) {
	g := NewGuarded(0)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				g.Update(func(v *int) { *v++ })
			}
		}()
	}
	wg.Wait()

	if got := g.Load(); got != 5000 {
		t.Errorf("Load() = %d, want 5000", got)
	}
}

func TestStore_LastWriterWins(t *testing.T) {
	s := NewStore()
	s.SetRequested(RequestedControl{SetAngle: true, Angle: OpenAngle})
	s.SetRequested(RequestedControl{SetAngle: true, Angle: ClosedAngle})

	if got := s.Requested(); got.Angle != ClosedAngle {
		t.Errorf("Requested().Angle = %d, want %d", got.Angle, ClosedAngle)
	}
}

func TestStore_RequestedVersion(t *testing.T) {
	s := NewStore()
	if _, v := s.RequestedVersion(); v != 0 {
		t.Errorf("initial version = %d, want 0", v)
	}

	req := RequestedControl{SetAngle: true, Angle: OpenAngle}
	s.SetRequested(req)
	s.SetRequested(req)

	got, v := s.RequestedVersion()
	if v != 2 {
		t.Errorf("version = %d, want 2 (identical writes still count)", v)
	}
	if got != req {
		t.Errorf("RequestedVersion() = %+v, want %+v", got, req)
	}
}
