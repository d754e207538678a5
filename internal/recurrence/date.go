// Package recurrence computes the next occurrence of a recurring task.
package recurrence

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is an anchor or result that remembers whether it is a calendar date
// without a clock time. Date-only values are held at UTC midnight.
type Date struct {
	Time     time.Time
	DateOnly bool
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 instant (fractional seconds
// optional). Instants keep the offset they were written with.
func ParseDate(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Date{}, fmt.Errorf("empty date")
	}
	if len(raw) == len(dateLayout) {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return Date{}, fmt.Errorf("parse date %q: %w", raw, err)
		}
		return Date{Time: t, DateOnly: true}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return Date{}, fmt.Errorf("parse instant %q: %w", raw, err)
	}
	return Date{Time: t}, nil
}

// OnDay builds a date-only value.
func OnDay(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), DateOnly: true}
}

// At builds an instant.
func At(t time.Time) Date {
	return Date{Time: t}
}

// String renders YYYY-MM-DD for date-only values and RFC 3339 otherwise.
func (d Date) String() string {
	if d.DateOnly {
		return d.Time.Format(dateLayout)
	}
	return d.Time.Format(time.RFC3339)
}

func (d Date) IsZero() bool { return d.Time.IsZero() }

// After compares the underlying instants.
func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

func (d Date) addDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n), DateOnly: d.DateOnly}
}

func (d Date) addMonths(n int) Date {
	return Date{Time: d.Time.AddDate(0, n, 0), DateOnly: d.DateOnly}
}

func (d Date) addYears(n int) Date {
	return Date{Time: d.Time.AddDate(n, 0, 0), DateOnly: d.DateOnly}
}

// today returns the calendar day of t as a date-only value.
func today(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return OnDay(y, m, d)
}
