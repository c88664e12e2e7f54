// Package slot holds the hour-granularity interval arithmetic shared by bookings and blocked slots.
//
// Every interval lives inside one calendar day: 0 <= Start < End <= 24. An end of 24 means midnight at the close
// of that day; intervals never wrap into the next day.
package slot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	MinHour = 0
	MaxHour = 24

	dateLayout = "2006-01-02"
)

var (
	ErrInvalidHour     = errors.New("time must be a whole hour between 00:00 and 24:00")
	ErrInvalidDate     = errors.New("date must use the YYYY-MM-DD format")
	ErrInvalidInterval = errors.New("start time must be before end time")
	ErrOutsideHours    = errors.New("time slot is outside business hours")
)

type Interval struct {
	Start int
	End   int
}

func New(start, end int) (Interval, error) {
	if start < MinHour || start > MaxHour || end < MinHour || end > MaxHour {
		return Interval{}, ErrInvalidHour
	}

	if start >= end {
		return Interval{}, ErrInvalidInterval
	}

	return Interval{Start: start, End: end}, nil
}

// Parse builds an interval from two "HH:00" strings.
func Parse(start, end string) (Interval, error) {
	startHour, err := ParseHour(start)
	if err != nil {
		return Interval{}, fmt.Errorf("start time %q: %w", start, err)
	}

	endHour, err := ParseHour(end)
	if err != nil {
		return Interval{}, fmt.Errorf("end time %q: %w", end, err)
	}

	return New(startHour, endHour)
}

// Overlaps reports whether [s1,e1) and [s2,e2) share at least one hour.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && i.End > other.Start
}

func (i Interval) Hours() int {
	return i.End - i.Start
}

func (i Interval) Within(open, close int) bool {
	return i.Start >= open && i.End <= close
}

func (i Interval) String() string {
	return FormatHour(i.Start) + "-" + FormatHour(i.End)
}

func ParseHour(value string) (int, error) {
	hourPart, minutePart, found := strings.Cut(strings.TrimSpace(value), ":")
	if !found || minutePart != "00" || len(hourPart) == 0 || len(hourPart) > 2 {
		return 0, ErrInvalidHour
	}

	if strings.IndexFunc(hourPart, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, ErrInvalidHour
	}

	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < MinHour || hour > MaxHour {
		return 0, ErrInvalidHour
	}

	return hour, nil
}

func FormatHour(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

// ParseDate returns the calendar day as UTC midnight, the form dates are stored in.
func ParseDate(value string) (time.Time, error) {
	date, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}

	return date, nil
}

func FormatDate(date time.Time) string {
	return date.Format(dateLayout)
}

// Day truncates an instant to its calendar day in loc and returns it as UTC midnight.
func Day(instant time.Time, loc *time.Location) time.Time {
	local := instant.In(loc)

	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Instant converts a stored calendar day and hour into an absolute time in loc.
func Instant(date time.Time, hour int, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, loc)
}
