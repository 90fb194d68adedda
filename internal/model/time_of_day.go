package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is an offset from midnight, stored as "HH:MM:SS" so it sorts
// correctly as text and as a SQL TIME.
type TimeOfDay time.Duration

const day = 24 * time.Hour

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// TimeOfDayOf extracts the wall-clock time of t.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second)
}

func (t TimeOfDay) Hour() int   { return int(time.Duration(t) / time.Hour) }
func (t TimeOfDay) Minute() int { return int(time.Duration(t) % time.Hour / time.Minute) }
func (t TimeOfDay) Second() int { return int(time.Duration(t) % time.Minute / time.Second) }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	layout := "15:04:05"
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}
	// PostgreSQL may append fractional seconds.
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	parsed, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDayOf(parsed), nil
}

func (t TimeOfDay) Value() (driver.Value, error) {
	if t < 0 || time.Duration(t) >= day {
		return nil, fmt.Errorf("time of day out of range: %s", time.Duration(t))
	}
	return t.String(), nil
}

func (t *TimeOfDay) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = 0
		return nil
	case string:
		parsed, err := ParseTimeOfDay(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case []byte:
		return t.Scan(string(v))
	case time.Time:
		*t = TimeOfDayOf(v)
		return nil
	}
	return fmt.Errorf("cannot scan %T into TimeOfDay", src)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
