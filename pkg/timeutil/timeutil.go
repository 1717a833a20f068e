// Package timeutil provides the UTC date helpers used for giveaway windows.
// Event end dates are entered as calendar days and close at 23:59:59 UTC.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// Layouts used by the giveaway store and the admin commands.
const (
	// DateLayout is the calendar-day format admins type ("2025-01-31").
	DateLayout = "2006-01-02"

	// EndDateLayout is the stored form of an event end ("2025-01-31T23:59:59Z").
	EndDateLayout = "2006-01-02T15:04:05Z07:00"
)

// EndOfDay returns 23:59:59 UTC of the given day.
// Second precision matches the stored end-date strings.
func EndOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 0, time.UTC)
}

// ParseDate parses a calendar day in DateLayout and returns its start in UTC.
func ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: invalid date %q, expected YYYY-MM-DD: %w", value, err)
	}
	return t, nil
}

// FormatEndDate returns the stored end-date string for the given day.
func FormatEndDate(day time.Time) string {
	return EndOfDay(day).Format(EndDateLayout)
}

// ParseEndDate parses a stored end date.
// Accepted forms: RFC 3339 with or without fractional seconds, the textual
// timestamptz form Postgres emits ("2025-01-31 23:59:59+00"), and a bare
// calendar day, which is taken to close at 23:59:59 UTC.
func ParseEndDate(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, fmt.Errorf("timeutil: empty end date")
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05Z07", "2006-01-02 15:04:05Z07:00"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}

	if day, err := time.ParseInLocation(DateLayout, v, time.UTC); err == nil {
		return EndOfDay(day), nil
	}

	return time.Time{}, fmt.Errorf("timeutil: unrecognized end date %q", value)
}
