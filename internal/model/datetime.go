package model

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	localDateTimeLayout      = "2006-01-02T15:04:05.999999999"
	localDateTimeShortLayout = "2006-01-02T15:04"
)

// LocalDateTime is a zone-less date-time ("2024-05-01T10:00:00"). The wall clock
// is kept in a time.Time with the UTC location.
type LocalDateTime struct{ time.Time }

// Now returns the current local wall clock as a LocalDateTime, truncated to
// microseconds so it survives a round trip through a timestamp column.
func Now() LocalDateTime {
	t := time.Now()
	return LocalDateTime{time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC).Truncate(time.Microsecond)}
}

// String formats without a zone.
func (d LocalDateTime) String() string { return d.UTC().Format(localDateTimeLayout) }

// MarshalJSON implements json.Marshaler.
func (d LocalDateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *LocalDateTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("creationDate: %w", err)
	}
	t, err := ParseLocalDateTime(s)
	if err != nil {
		return err
	}
	*d = t
	return nil
}

// ParseLocalDateTime accepts "yyyy-MM-ddTHH:mm[:ss[.fraction]]". The fraction is
// truncated to microseconds, the precision of a timestamp column.
func ParseLocalDateTime(s string) (LocalDateTime, error) {
	t, err := time.ParseInLocation(localDateTimeLayout, s, time.UTC)
	if err != nil {
		var serr error
		if t, serr = time.ParseInLocation(localDateTimeShortLayout, s, time.UTC); serr != nil {
			return LocalDateTime{}, fmt.Errorf("creationDate %q: %w", s, err)
		}
	}
	return LocalDateTime{t.Truncate(time.Microsecond)}, nil
}
