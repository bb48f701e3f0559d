package schedule

import (
	"testing"
	"time"
)

// 2026-10-12 is a Monday.
func at(dayOfMonth, hour, minute int) time.Time {
	return time.Date(2026, time.October, dayOfMonth, hour, minute, 0, 0, time.UTC)
}

func window(start, end string, days ...time.Weekday) Window {
	s, err := ParseClock(start)
	if err != nil {
		panic(err)
	}
	e, err := ParseClock(end)
	if err != nil {
		panic(err)
	}
	w := Window{Enabled: true, Start: s, End: e}
	for _, d := range days {
		w.Days[d] = true
	}
	return w
}

var everyDay = []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}

func TestIsWithinWindow(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		w    Window
		want bool
	}{
		{"disabled always permits", at(12, 12, 0), Window{}, true},
		{"same-day inside", at(12, 10, 0), window("09:00", "17:00", everyDay...), true},
		{"same-day end exclusive", at(12, 17, 0), window("09:00", "17:00", everyDay...), false},
		{"same-day start inclusive", at(12, 9, 0), window("09:00", "17:00", everyDay...), true},
		{"same-day disabled weekday", at(12, 10, 0), window("09:00", "17:00", time.Tuesday), false},
		{"overnight evening side", at(12, 23, 0), window("22:00", "06:00", time.Monday), true},
		{"overnight morning side uses previous day", at(13, 5, 0), window("22:00", "06:00", time.Monday), true},
		{"overnight morning side previous day disabled", at(12, 5, 0), window("22:00", "06:00", time.Monday), false},
		{"overnight gap", at(12, 12, 0), window("22:00", "06:00", everyDay...), false},
		{"zero length window", at(12, 9, 0), window("09:00", "09:00", everyDay...), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWithinWindow(tt.now, tt.w); got != tt.want {
				t.Fatalf("IsWithinWindow = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeUntilNextWindow(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		w    Window
		want time.Duration
	}{
		{"disabled", at(12, 12, 0), Window{}, 0},
		{"later today", at(12, 20, 0), window("22:00", "06:00", everyDay...), 2 * time.Hour},
		{"tomorrow after same-day window", at(12, 18, 0), window("09:00", "17:00", everyDay...), 15 * time.Hour},
		{"skips disabled days", at(12, 18, 0), window("09:00", "17:00", time.Wednesday), 39 * time.Hour},
		{"only today enabled and already closed", at(12, 18, 0), window("09:00", "17:00", time.Monday), 24 * time.Hour},
		{"six days ahead", at(12, 18, 0), window("09:00", "17:00", time.Sunday), 5*24*time.Hour + 15*time.Hour},
		{"inside same-day window", at(12, 10, 0), window("09:00", "17:00", everyDay...), 0},
		{"same-day window at start", at(12, 9, 0), window("09:00", "17:00", everyDay...), 0},
		{"overnight window at start", at(12, 22, 0), window("22:00", "06:00", everyDay...), 0},
		{"no days enabled", at(12, 18, 0), window("09:00", "17:00"), 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimeUntilNextWindow(tt.now, tt.w); got != tt.want {
				t.Fatalf("TimeUntilNextWindow = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpeningInstantIsInsideWithNoWait(t *testing.T) {
	windows := []Window{
		window("09:00", "17:00", everyDay...),
		window("09:00", "17:00", time.Monday),
		window("22:00", "06:00", everyDay...),
		window("22:00", "06:00", time.Monday),
		window("00:00", "23:59", time.Monday, time.Friday),
	}
	for _, w := range windows {
		opening := at(12, 0, 0).Add(w.Start)
		if !IsWithinWindow(opening, w) {
			t.Errorf("%s-%s: expected %v inside", FormatClock(w.Start), FormatClock(w.End), opening)
		}
		if wait := TimeUntilNextWindow(opening, w); wait != 0 {
			t.Errorf("%s-%s: expected no wait at %v, got %v", FormatClock(w.Start), FormatClock(w.End), opening, wait)
		}
	}
}

func TestWindowOpensWhenWaitElapses(t *testing.T) {
	w := window("22:00", "06:00", time.Monday, time.Thursday)
	now := at(13, 12, 0)
	wait := TimeUntilNextWindow(now, w)
	if IsWithinWindow(now, w) {
		t.Fatal("expected to start outside the window")
	}
	if !IsWithinWindow(now.Add(wait), w) {
		t.Fatalf("window closed at %v after waiting %v", now.Add(wait), wait)
	}
	if IsWithinWindow(now.Add(wait-time.Minute), w) {
		t.Fatal("window open before wait elapsed")
	}
}

func TestCappedWait(t *testing.T) {
	ceiling := 5 * time.Minute
	if got := CappedWait(2*time.Hour, ceiling); got != ceiling {
		t.Fatalf("CappedWait long = %v", got)
	}
	if got := CappedWait(90*time.Second, ceiling); got != 90*time.Second {
		t.Fatalf("CappedWait short = %v", got)
	}
	if got := CappedWait(-time.Second, ceiling); got != 0 {
		t.Fatalf("CappedWait negative = %v", got)
	}
}

func TestParseClock(t *testing.T) {
	got, err := ParseClock("22:30")
	if err != nil || got != 22*time.Hour+30*time.Minute {
		t.Fatalf("ParseClock = %v, %v", got, err)
	}
	if _, err := ParseClock("24:00"); err == nil {
		t.Fatal("expected error for hour 24")
	}
	if _, err := ParseClock("noon"); err == nil {
		t.Fatal("expected error for non-numeric value")
	}
	if FormatClock(got) != "22:30" {
		t.Fatalf("FormatClock = %q", FormatClock(got))
	}
}

func TestParseDays(t *testing.T) {
	days, err := ParseDays([]string{"Mon", "friday", " "})
	if err != nil {
		t.Fatalf("ParseDays: %v", err)
	}
	if !days[time.Monday] || !days[time.Friday] || days[time.Sunday] {
		t.Fatalf("unexpected days %v", days)
	}
	if _, err := ParseDays([]string{"someday"}); err == nil {
		t.Fatal("expected error for unknown weekday")
	}
}
