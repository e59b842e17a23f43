package core

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidMonth = errors.New("invalid month")

// Month is a calendar month without a day component, the granularity of
// all scheduling in the tracker. The zero value means "not set" and is
// used for open-ended template bounds.
type Month struct {
	year  int
	month time.Month
}

func NewMonth(year int, month time.Month) Month {
	// Normalize out-of-range month numbers the way time.Date does.
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Month{year: t.Year(), month: t.Month()}
}

// MonthOf truncates a point in time to its calendar month.
func MonthOf(t time.Time) Month {
	return Month{year: t.Year(), month: t.Month()}
}

func CurrentMonth() Month {
	return MonthOf(time.Now())
}

// ParseMonth reads the "2006-01" form used by the persisted dataset.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, ErrInvalidMonth
	}
	return MonthOf(t), nil
}

func (m Month) IsZero() bool {
	return m.year == 0 && m.month == 0
}

func (m Month) Year() int {
	return m.year
}

func (m Month) Month() time.Month {
	return m.month
}

func (m Month) Before(o Month) bool {
	return m.year < o.year || (m.year == o.year && m.month < o.month)
}

func (m Month) After(o Month) bool {
	return o.Before(m)
}

// Add moves n calendar months forward (or backward when negative).
func (m Month) Add(n int) Month {
	return MonthOf(m.Time().AddDate(0, n, 0))
}

// Time returns the first instant of the month in UTC.
func (m Month) Time() time.Time {
	return time.Date(m.year, m.month, 1, 0, 0, 0, 0, time.UTC)
}

func (m Month) String() string {
	if m.IsZero() {
		return ""
	}
	return m.Time().Format("2006-01")
}

func (m Month) MarshalJSON() ([]byte, error) {
	if m.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts null, the canonical "2006-01" form, and full
// RFC 3339 timestamps as written by older datasets.
func (m *Month) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Month{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ErrInvalidMonth
	}
	if s == "" {
		*m = Month{}
		return nil
	}
	if parsed, err := ParseMonth(s); err == nil {
		*m = parsed
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*m = MonthOf(t)
		return nil
	}
	return ErrInvalidMonth
}
