// Package timefmt renders stored times and dates for display.
package timefmt

import (
	"fmt"
	"github.com/lefinal/confcomp-server/agenda"
	"github.com/lefinal/confcomp-server/errors"
	"time"
)

const (
	// StoredDateLayout is the layout of dates in the database.
	StoredDateLayout = "2006-01-02"
	// DisplayTimeLayout is the 12-hour layout for displayed times.
	DisplayTimeLayout = "3:04 PM"
	// DisplayDateLayout is the long layout for displayed dates.
	DisplayDateLayout = "Monday, January 2, 2006"
)

// neutralHour is the hour at which dates without time are interpreted. Noon in
// UTC stays on the same calendar day in every time zone we care about.
const neutralHour = 12

// FormatTime formats a 24-hour time of the format HH:MM or HH:MM:SS as 12-hour
// time with AM/PM like "2:05 PM".
func FormatTime(s string) (string, error) {
	clock, err := agenda.ParseClock(s)
	if err != nil {
		return "", errors.Wrap(err, "parse time", nil)
	}
	return FormatClock(clock), nil
}

// FormatClock formats the agenda.Clock like FormatTime.
func FormatClock(clock agenda.Clock) string {
	t := time.Date(2000, time.January, 1, clock.Hours(), clock.Minutes(), 0, 0, time.UTC)
	return t.Format(DisplayTimeLayout)
}

// FormatTimeRange formats start and end like "9:00 AM - 10:00 AM".
func FormatTimeRange(start string, end string) (string, error) {
	startStr, err := FormatTime(start)
	if err != nil {
		return "", errors.Wrap(err, "format start", nil)
	}
	endStr, err := FormatTime(end)
	if err != nil {
		return "", errors.Wrap(err, "format end", nil)
	}
	return fmt.Sprintf("%s - %s", startStr, endStr), nil
}

// ParseDate parses a date of the format YYYY-MM-DD. The returned time is at
// noon UTC of that day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(StoredDateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.NewBadRequestErr(fmt.Sprintf("malformed date %q", s), err, errors.Details{"value": s})
	}
	return t.Add(neutralHour * time.Hour), nil
}

// FormatDate formats a date of the format YYYY-MM-DD like
// "Wednesday, August 13, 2025".
func FormatDate(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", errors.Wrap(err, "parse date", nil)
	}
	return t.Format(DisplayDateLayout), nil
}
