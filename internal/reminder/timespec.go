package reminder

import (
	"fmt"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
}

// ParseTimeSpec reads "HH:MM" or an ISO-8601 date-time. For a date-time only
// the clock portion is kept, so "2025-03-01T18:30" fires every day at 18:30
// until the reminder completes. Offsets are not converted; the clock is taken
// as written.
func ParseTimeSpec(spec string) (ClockTime, error) {
	s := strings.TrimSpace(spec)
	if t, err := time.Parse("15:04", s); err == nil {
		return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidTimeSpec, spec)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sun":       time.Sunday,
	"mon":       time.Monday,
	"tue":       time.Tuesday,
	"wed":       time.Wednesday,
	"thu":       time.Thursday,
	"fri":       time.Friday,
	"sat":       time.Saturday,
}

// ParseWeekday recognises full and three-letter English weekday names,
// case-insensitively.
func ParseWeekday(name string) (time.Weekday, bool) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// nextDaily returns the first instant strictly after from at clock c.
func nextDaily(from time.Time, c ClockTime) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), c.Hour, c.Minute, 0, 0, from.Location())
	if !next.After(from) {
		next = time.Date(from.Year(), from.Month(), from.Day()+1, c.Hour, c.Minute, 0, 0, from.Location())
	}
	return next
}

// nextWeekly returns the first instant strictly after from on weekday d at clock c.
func nextWeekly(from time.Time, d time.Weekday, c ClockTime) time.Time {
	ahead := (int(d) - int(from.Weekday()) + 7) % 7
	next := time.Date(from.Year(), from.Month(), from.Day()+ahead, c.Hour, c.Minute, 0, 0, from.Location())
	if !next.After(from) {
		next = time.Date(from.Year(), from.Month(), from.Day()+ahead+7, c.Hour, c.Minute, 0, 0, from.Location())
	}
	return next
}
