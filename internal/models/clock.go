package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Clock is a wall-clock time of day expressed in minutes since midnight.
type Clock int

// MinutesPerDay bounds valid Clock values.
const MinutesPerDay = 24 * 60

// NewClock builds a Clock from hour and minute components.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts HH:MM or HH:MM:SS.
func ParseClock(raw string) (Clock, error) {
	raw = strings.TrimSpace(raw)
	layouts := []string{"15:04", "15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return NewClock(t.Hour(), t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", raw)
}

// MustParseClock panics on malformed input. Intended for tests and constants.
func MustParseClock(raw string) Clock {
	c, err := ParseClock(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// Hour returns the hour component.
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c Clock) Minute() int { return int(c) % 60 }

// Add shifts the clock by the given number of minutes.
func (c Clock) Add(minutes int) Clock { return c + Clock(minutes) }

// Valid reports whether the clock falls within a single day.
func (c Clock) Valid() bool { return c >= 0 && c <= MinutesPerDay }

// String renders HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On combines the clock with a calendar date in the date's location.
func (c Clock) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, date.Location())
}

// MarshalText renders HH:MM for JSON and YAML encoders.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses "HH:MM".
func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Scan implements sql.Scanner for Postgres TIME columns.
func (c *Clock) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*c = NewClock(v.Hour(), v.Minute())
		return nil
	case []byte:
		return c.UnmarshalText(v)
	case string:
		return c.UnmarshalText([]byte(v))
	default:
		return fmt.Errorf("cannot scan %T into Clock", src)
	}
}

// Value implements driver.Valuer.
func (c Clock) Value() (driver.Value, error) {
	return c.String() + ":00", nil
}

// DateOnly truncates a timestamp to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD into a UTC date.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	return t, nil
}
