package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestParseDay(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Weekday
		wantErr bool
	}{
		{"Mon", time.Monday, false},
		{"monday", time.Monday, false},
		{" SUN ", time.Sunday, false},
		{"Thurs", time.Thursday, false},
		{"sat", time.Saturday, false},
		{"", 0, true},
		{"someday", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDay(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidDay) {
				t.Errorf("ParseDay(%q) error = %v, want ErrInvalidDay", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseDay(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		h, m    uint
		ok      bool
		wantErr bool
	}{
		{"08:00", 8, 0, true, false},
		{"23:59", 23, 59, true, false},
		{"", 0, 0, false, false},
		{"24:00", 0, 0, false, true},
		{"8am", 0, 0, false, true},
	}
	for _, tt := range tests {
		h, m, ok, err := ParseClock(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidTime) {
				t.Errorf("ParseClock(%q) error = %v, want ErrInvalidTime", tt.in, err)
			}
			continue
		}
		if err != nil || h != tt.h || m != tt.m || ok != tt.ok {
			t.Errorf("ParseClock(%q) = %d, %d, %v, %v; want %d, %d, %v", tt.in, h, m, ok, err, tt.h, tt.m, tt.ok)
		}
	}
}
