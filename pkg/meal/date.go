package meal

import (
	"fmt"
	"time"
)

// DateLayout is the canonical civil-date format used across the API and the
// database, matching how dates are persisted ("2006-01-02", no time part).
const DateLayout = "2006-01-02"

// Date is a civil calendar day. The embedded time is always midnight UTC so
// that two Dates built from the same calendar day compare equal regardless of
// the source location.
type Date struct {
	t time.Time
}

// DateOf truncates t to its calendar day (in t's location) and normalizes it
// to midnight UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// NewDate builds a Date from year, month, and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a civil date in DateLayout.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected format %s", s, DateLayout)
	}
	return Date{t: t}, nil
}

func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) String() string        { return d.t.Format(DateLayout) }
func (d Date) Time() time.Time       { return d.t }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) Day() int              { return d.t.Day() }

func (d Date) Equal(other Date) bool  { return d.t.Equal(other.t) }
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool  { return d.t.After(other.t) }

// AddDays returns the date n calendar days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// DaysUntil returns the number of calendar days from d to other, negative when
// other is earlier. Exact because both dates sit at midnight UTC.
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t) / (24 * time.Hour))
}

// WeekdayOrdinal returns which occurrence of its weekday this date is within
// its month: 1 for the first Monday/Saturday/..., 2 for the second, and so on.
func (d Date) WeekdayOrdinal() int {
	return (d.t.Day()-1)/7 + 1
}
