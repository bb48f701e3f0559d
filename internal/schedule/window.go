package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Window is a daily run window. Start and End are offsets from local
// midnight. A window with Start > End wraps past midnight.
type Window struct {
	Enabled bool
	Start   time.Duration
	End     time.Duration
	Days    [7]bool // indexed by time.Weekday
}

// Overnight reports whether the window wraps past midnight.
func (w Window) Overnight() bool {
	return w.Start > w.End
}

// AnyDay reports whether at least one weekday is enabled.
func (w Window) AnyDay() bool {
	for _, enabled := range w.Days {
		if enabled {
			return true
		}
	}
	return false
}

// IsWithinWindow reports whether now falls inside the window. The morning side
// of an overnight window belongs to the previous weekday, so a Monday-only
// 22:00-06:00 window still covers Tuesday 05:00.
func IsWithinWindow(now time.Time, w Window) bool {
	if !w.Enabled {
		return true
	}
	tod := timeOfDay(now)
	today := now.Weekday()

	if !w.Overnight() {
		return w.Days[today] && tod >= w.Start && tod < w.End
	}
	if tod >= w.Start {
		return w.Days[today]
	}
	if tod < w.End {
		return w.Days[previous(today)]
	}
	return false
}

// TimeUntilNextWindow returns how long to wait from now until the next window
// opens, looking at most six days ahead. It returns zero when scheduling is
// disabled or today's window is already open, and one day when no day in
// that range qualifies.
func TimeUntilNextWindow(now time.Time, w Window) time.Duration {
	if !w.Enabled {
		return 0
	}
	tod := timeOfDay(now)
	for daysAhead := 0; daysAhead < 7; daysAhead++ {
		weekday := time.Weekday((int(now.Weekday()) + daysAhead) % 7)
		if !w.Days[weekday] {
			continue
		}
		if daysAhead == 0 {
			if tod < w.Start {
				return w.Start - tod
			}
			if w.Overnight() || tod < w.End {
				return 0
			}
			continue
		}
		return (day - tod) + time.Duration(daysAhead-1)*day + w.Start
	}
	return day
}

// CappedWait bounds d to [0, ceiling] so a long idle period is broken into
// re-check intervals.
func CappedWait(d, ceiling time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}

// ParseClock parses an "HH:MM" or "HH:MM:SS" time of day into an offset from
// midnight.
func ParseClock(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("time of day %q must be HH:MM", value)
	}
	limits := []int{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("time of day %q must be HH:MM", value)
		}
		total += time.Duration(n) * units[i]
	}
	return total, nil
}

// FormatClock renders an offset from midnight as HH:MM.
func FormatClock(offset time.Duration) string {
	offset = offset % day
	return fmt.Sprintf("%02d:%02d", int(offset/time.Hour), int(offset%time.Hour/time.Minute))
}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseDays converts weekday names (short or full, any case) into an enable set.
func ParseDays(names []string) ([7]bool, error) {
	var days [7]bool
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		weekday, ok := dayNames[key]
		if !ok {
			return days, fmt.Errorf("unknown weekday %q", name)
		}
		days[weekday] = true
	}
	return days, nil
}

func timeOfDay(now time.Time) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return now.Sub(midnight)
}

func previous(weekday time.Weekday) time.Weekday {
	return (weekday + 6) % 7
}
