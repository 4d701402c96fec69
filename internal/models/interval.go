package models

import (
	"fmt"
	"time"
)

// Interval is one 15-minute unit of a calendar day, indexed 0..95.
type Interval int

const (
	IntervalsPerDay = 96
	IntervalWidth   = 15 * time.Minute

	MinInterval Interval = 0
	MaxInterval Interval = IntervalsPerDay - 1

	DateLayout = "2006-01-02"
)

// Valid reports whether the interval addresses a slot of a single day.
func (i Interval) Valid() bool {
	return i >= MinInterval && i <= MaxInterval
}

// ToClock converts an interval to wall-clock hour and minute.
// Range checks are the caller's job.
func ToClock(i Interval) (hour, minute int) {
	return int(i) / 4, (int(i) % 4) * 15
}

// Clock formats the interval start as HH:MM.
func (i Interval) Clock() string {
	h, m := ToClock(i)
	return fmt.Sprintf("%02d:%02d", h, m)
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(date string) (time.Time, error) {
	return time.Parse(DateLayout, date)
}

// StartOf returns the absolute UTC start time of the interval on date.
func StartOf(date string, i Interval) (time.Time, error) {
	day, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return At(day, i), nil
}

// At returns the start of interval i on the given day.
func At(day time.Time, i Interval) time.Time {
	h, m := ToClock(i)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, time.UTC)
}
