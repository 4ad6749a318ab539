// Package dates does calendar-date arithmetic on YYYY-MM-DD strings.
//
// Dates are treated as plain calendar days: parsing pins them to midnight UTC
// so that adding days or months never crosses a DST boundary. Only "today"
// depends on a time zone, and that is resolved once through Today.
package dates

import (
	"fmt"
	"regexp"
	"time"
)

const Layout = "2006-01-02"

const DefaultZone = "America/Caracas"

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Parse accepts only the strict YYYY-MM-DD form and rejects impossible days
// such as 2026-02-30.
func Parse(s string) (time.Time, error) {
	if !datePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

func Format(t time.Time) string {
	return t.Format(Layout)
}

// LoadZone resolves an IANA zone name, falling back to DefaultZone for an
// empty name.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", name, err)
	}
	return loc, nil
}

// Today returns the calendar date of now as observed in loc.
func Today(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(Layout)
}

func AddDays(date string, days int) (string, error) {
	t, err := Parse(date)
	if err != nil {
		return "", err
	}
	return Format(t.AddDate(0, 0, days)), nil
}

// AddMonths moves date by n calendar months. When the source day does not
// exist in the target month it is clamped to the month's last day, so
// 2026-01-31 +1 is 2026-02-28 rather than a day in March.
func AddMonths(date string, n int) (string, error) {
	t, err := Parse(date)
	if err != nil {
		return "", err
	}

	total := t.Year()*12 + int(t.Month()) - 1 + n
	year, month := total/12, total%12
	if month < 0 {
		month += 12
		year--
	}

	day := t.Day()
	if last := daysIn(year, time.Month(month+1)); day > last {
		day = last
	}
	return Format(time.Date(year, time.Month(month+1), day, 0, 0, 0, 0, time.UTC)), nil
}

// Normalize reduces either a YYYY-MM-DD date or an RFC3339 timestamp to the
// calendar date it represents in loc.
func Normalize(input string, loc *time.Location) (string, error) {
	if datePattern.MatchString(input) {
		if _, err := Parse(input); err != nil {
			return "", err
		}
		return input, nil
	}
	ts, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC3339", input)
	}
	return Today(ts, loc), nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
