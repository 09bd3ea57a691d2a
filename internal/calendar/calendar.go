// Package calendar holds the wall-clock primitives shared by appointments,
// blocked windows and attendances.
package calendar

import (
	"fmt"
	"time"
)

// Clock is a time of day in whole minutes since midnight.
type Clock int

const minutesPerDay = 24 * 60

// ParseClock accepts "HH:MM" (24h). "HH:MM:SS" is accepted when seconds are zero,
// since that is how Postgres renders TIME columns.
func ParseClock(s string) (Clock, error) {
	layout := "15:04"
	if len(s) == len("15:04:05") {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil || t.Second() != 0 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) Valid() bool {
	return c >= 0 && c < minutesPerDay
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// ParseDate parses "YYYY-MM-DD" into midnight UTC, the form DATE columns use.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// DateOf truncates t to its civil date, expressed as midnight UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// At places a civil date and clock on the clinic's wall clock.
func At(date time.Time, c Clock, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), 0, 0, loc)
}

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Span builds the interval a booking occupies.
func Span(date time.Time, start Clock, durationMinutes int, loc *time.Location) Interval {
	s := At(date, start, loc)
	return Interval{Start: s, End: s.Add(time.Duration(durationMinutes) * time.Minute)}
}

// Days lists the civil dates a booking touches, earliest first. A booking
// ending exactly at midnight does not touch the next day.
func Days(date time.Time, start Clock, durationMinutes int) []time.Time {
	last := 0
	if durationMinutes > 0 {
		last = (int(start) + durationMinutes - 1) / minutesPerDay
	}
	first := DateOf(date)
	days := make([]time.Time, 0, last+1)
	for i := 0; i <= last; i++ {
		days = append(days, first.AddDate(0, 0, i))
	}
	return days
}

// Overlaps is true when the two ranges share at least one instant. Touching
// endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && i.End.After(o.Start)
}

// Contains is true when o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return !i.Start.After(o.Start) && !i.End.Before(o.End)
}

func (i Interval) String() string {
	if i.Start.Year() == i.End.Year() && i.Start.YearDay() == i.End.YearDay() {
		return i.Start.Format("2006-01-02 15:04") + "-" + i.End.Format("15:04")
	}
	return i.Start.Format("2006-01-02 15:04") + " to " + i.End.Format("2006-01-02 15:04")
}
