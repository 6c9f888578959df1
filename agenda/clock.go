package agenda

import (
	"fmt"
	"github.com/lefinal/confcomp-server/errors"
)

// minutesPerDay is the number of minutes in a day. A Clock is always less.
const minutesPerDay = 24 * 60

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// ParseClock parses a 24-hour time in the format HH:MM or HH:MM:SS. Seconds are
// validated but dropped. Malformed input is rejected with an
// errors.ErrBadRequest error instead of being parsed on a best-effort basis.
func ParseClock(s string) (Clock, error) {
	if len(s) != 5 && len(s) != 8 {
		return 0, newMalformedClockError(s, "invalid length")
	}
	hours, ok := parseTwoDigits(s[0:2])
	if !ok || hours > 23 || s[2] != ':' {
		return 0, newMalformedClockError(s, "invalid hours")
	}
	minutes, ok := parseTwoDigits(s[3:5])
	if !ok || minutes > 59 {
		return 0, newMalformedClockError(s, "invalid minutes")
	}
	if len(s) == 8 {
		seconds, ok := parseTwoDigits(s[6:8])
		if !ok || seconds > 59 || s[5] != ':' {
			return 0, newMalformedClockError(s, "invalid seconds")
		}
	}
	return Clock(hours*60 + minutes), nil
}

// MustParseClock is like ParseClock but panics on malformed input. Only use it
// for constants and tests.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func parseTwoDigits(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

func newMalformedClockError(s string, reason string) error {
	return errors.NewBadRequestErr(fmt.Sprintf("malformed time %q: %s", s, reason), nil, errors.Details{"value": s})
}

// Hours returns the hour of the day.
func (c Clock) Hours() int {
	return int(c) / 60
}

// Minutes returns the minute of the hour.
func (c Clock) Minutes() int {
	return int(c) % 60
}

// String formats the Clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hours(), c.Minutes())
}

// Valid checks whether the Clock lies within a single day.
func (c Clock) Valid() bool {
	return c >= 0 && c < minutesPerDay
}
