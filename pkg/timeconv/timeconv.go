// Package timeconv converts between a user's wall-clock time and the canonical UTC
// timestamps stored for events, and renders timestamps for display.
//
// All functions are pure: they depend only on their arguments and the zone data
// compiled into the process.
package timeconv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidTimeFormat = errors.New("invalid time format, expected HH:MM:SS or YYYY-MM-DD HH:MM:SS")
	ErrInvalidDateFormat = errors.New("invalid date format, expected YYYY-MM-DD")
	ErrUnknownZone       = errors.New("unknown time zone")
	ErrInvalidOffset     = errors.New("invalid UTC offset, expected e.g. +02:00 or -0530")
)

const (
	DateLayout     = "2006-01-02"
	ClockLayout    = "15:04:05"
	DateTimeLayout = DateLayout + " " + ClockLayout

	displayDateLayout = "01-02-2006"
)

// Clock-only inputs carry no date; they are placed on this day in the caller's zone.
const (
	referenceYear  = 2000
	referenceMonth = time.January
	referenceDay   = 1
)

// ToCanonical interprets value as wall-clock time in loc and returns the same
// instant in UTC. value is either "YYYY-MM-DD HH:MM:SS" or "HH:MM:SS".
func ToCanonical(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	value = strings.TrimSpace(value)

	// time.Parse accepts a one-digit hour; the length check keeps HH:MM:SS strict
	switch len(value) {
	case len(DateTimeLayout):
		if t, err := time.ParseInLocation(DateTimeLayout, value, loc); err == nil {
			return t.UTC(), nil
		}
	case len(ClockLayout):
		t, err := time.Parse(ClockLayout, value)
		if err != nil {
			break
		}
		local := time.Date(referenceYear, referenceMonth, referenceDay, t.Hour(), t.Minute(), t.Second(), 0, loc)
		return local.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, value)
}

// FromCanonical renders a UTC instant as "YYYY-MM-DD HH:MM:SS" wall-clock time in loc.
func FromCanonical(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateTimeLayout)
}

// FromCanonicalClock renders only the "HH:MM:SS" part of FromCanonical.
func FromCanonicalClock(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(ClockLayout)
}

// SplitLocal returns the date and clock components of t as seen in loc.
func SplitLocal(t time.Time, loc *time.Location) (date, clock string) {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return local.Format(DateLayout), local.Format(ClockLayout)
}

// ComposeLocal joins separate date and clock strings and converts the result to UTC.
func ComposeLocal(date, clock string, loc *time.Location) (time.Time, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" {
		return time.Time{}, fmt.Errorf("%w: missing date", ErrInvalidTimeFormat)
	}
	return ToCanonical(date+" "+clock, loc)
}

// LoadZone resolves an IANA zone name.
func LoadZone(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnknownZone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownZone, name)
	}
	return loc, nil
}

// FormatForDisplay renders t in loc as "MM-DD-YYYY h:MM AM ZONE".
//
// Hours of 10 or less on the 12-hour clock are printed without padding; larger
// hours are zero-padded to two digits.
func FormatForDisplay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)

	h := local.Hour() % 12
	if h == 0 {
		h = 12
	}
	var hour string
	if h <= 10 {
		hour = strconv.Itoa(h)
	} else {
		hour = fmt.Sprintf("%02d", h)
	}

	suffix := "AM"
	if local.Hour() >= 12 {
		suffix = "PM"
	}
	abbr, _ := local.Zone()

	return fmt.Sprintf("%s %s:%02d %s %s", local.Format(displayDateLayout), hour, local.Minute(), suffix, abbr)
}

// FormatDate converts "YYYY-MM-DD" to "MM-DD-YYYY".
func FormatDate(date string) (string, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDateFormat, date)
	}
	return t.Format(displayDateLayout), nil
}

// ParseOffset parses "+02:00", "-0530", "+5" or "UTC+3" into signed seconds east of UTC.
func ParseOffset(value string) (int, error) {
	s := strings.TrimSpace(strings.ToUpper(value))
	s = strings.TrimPrefix(s, "UTC")
	s = strings.TrimPrefix(s, "GMT")
	if s == "" {
		return 0, nil
	}

	sign := 1
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, value)
	}

	var hours, minutes int
	var err error
	switch {
	case strings.Contains(s, ":"):
		parts := strings.SplitN(s, ":", 2)
		hours, err = strconv.Atoi(parts[0])
		if err == nil {
			minutes, err = strconv.Atoi(parts[1])
		}
	case len(s) == 4:
		hours, err = strconv.Atoi(s[:2])
		if err == nil {
			minutes, err = strconv.Atoi(s[2:])
		}
	default:
		hours, err = strconv.Atoi(s)
	}
	if err != nil || hours > 14 || minutes < 0 || minutes > 59 || hours < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, value)
	}
	return sign * (hours*3600 + minutes*60), nil
}
