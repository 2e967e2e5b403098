package period

import (
	"fmt"
	"time"
)

// Period is a named relative time window for aggregate queries
type Period string

const (
	Day   Period = "day"
	Week  Period = "week"
	Month Period = "month"
	Year  Period = "year"
	All   Period = "all"
)

// Default is used when a caller supplies an absent or unknown token
const Default = Month

// Parse accepts only the five canonical tokens
func Parse(token string) (Period, error) {
	switch p := Period(token); p {
	case Day, Week, Month, Year, All:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q", token)
	}
}

// FromQuery parses a request parameter, defaulting to month
func FromQuery(token string) Period {
	p, err := Parse(token)
	if err != nil {
		return Default
	}
	return p
}

// Cutoff returns the earliest instant inside the window ending at now.
// The second result is false for All, which has no lower bound.
func Cutoff(p Period, now time.Time) (time.Time, bool, error) {
	switch p {
	case Day:
		return now.Add(-24 * time.Hour), true, nil
	case Week:
		return now.AddDate(0, 0, -7), true, nil
	case Month:
		return now.AddDate(0, -1, 0), true, nil
	case Year:
		return now.AddDate(-1, 0, 0), true, nil
	case All:
		return time.Time{}, false, nil
	default:
		return time.Time{}, false, fmt.Errorf("unresolved period %q", string(p))
	}
}

// Since is Cutoff expressed as an optional bound for store queries
func Since(p Period, now time.Time) (*time.Time, error) {
	cutoff, ok, err := Cutoff(p, now)
	if err != nil || !ok {
		return nil, err
	}
	return &cutoff, nil
}
