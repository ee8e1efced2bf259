package core

import (
	"strings"
	"time"
)

type Period string

const (
	PeriodDay       Period = "day"
	PeriodWeek      Period = "week"
	PeriodMonth     Period = "month"
	PeriodPrevMonth Period = "prev_month"
	PeriodYear      Period = "year"
)

// ParsePeriod maps a user-facing tag to a Period.
func ParsePeriod(s string) (Period, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "today":
		return PeriodDay, true
	case "week":
		return PeriodWeek, true
	case "month":
		return PeriodMonth, true
	case "prev_month", "prevmonth":
		return PeriodPrevMonth, true
	case "year":
		return PeriodYear, true
	}
	return "", false
}

// Window is a half-open time range. A zero End leaves it open toward the future.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	if t.Before(w.Start) {
		return false
	}
	return w.End.IsZero() || t.Before(w.End)
}

// WindowFor computes the window of p relative to now, in now's location.
// Weeks start on Monday.
func WindowFor(p Period, now time.Time) (Window, bool) {
	y, m, d := now.Date()
	loc := now.Location()
	switch p {
	case PeriodDay:
		return Window{Start: time.Date(y, m, d, 0, 0, 0, 0, loc)}, true
	case PeriodWeek:
		sinceMonday := (int(now.Weekday()) + 6) % 7
		return Window{Start: time.Date(y, m, d-sinceMonday, 0, 0, 0, 0, loc)}, true
	case PeriodMonth:
		return Window{Start: time.Date(y, m, 1, 0, 0, 0, 0, loc)}, true
	case PeriodPrevMonth:
		end := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return Window{Start: end.AddDate(0, -1, 0), End: end}, true
	case PeriodYear:
		return Window{Start: time.Date(y, 1, 1, 0, 0, 0, 0, loc)}, true
	}
	return Window{}, false
}

type FilterOptions struct {
	// User keeps only records with an exactly matching user when non-empty.
	User           string
	IncludeIgnored bool
}

// Filter returns the records inside the period window that pass opts.
// An unknown period applies no time restriction, but the user and ignore
// filters still run; the records are not returned untouched.
func Filter(records []Expense, p Period, now time.Time, opts FilterOptions) []Expense {
	window, bounded := WindowFor(p, now)
	out := make([]Expense, 0, len(records))
	for _, r := range records {
		if bounded && !window.Contains(r.Timestamp) {
			continue
		}
		if opts.User != "" && r.User != opts.User {
			continue
		}
		if !opts.IncludeIgnored && r.Ignored() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// DaysInMonth returns the number of days in t's month.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
