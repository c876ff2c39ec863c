// Package timewindow generates contiguous calendar windows used to bucket visit history.
package timewindow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Granularity string

const (
	// Week windows run Monday through Sunday. The newest window is the full
	// week containing the anchor.
	Week Granularity = "WEEK"
	// MonthCompleted windows end on the last day of the month before the anchor.
	MonthCompleted Granularity = "MONTH_COMPLETED"
	// MonthInclusive windows end on the last day of the anchor's month.
	MonthInclusive Granularity = "MONTH_INCLUSIVE"
)

const (
	weekLabelLayout  = "2006-01-02"
	monthLabelLayout = "2006-01"
)

var (
	ErrInvalidCount       = errors.New("invalid_window_count")
	ErrInvalidGranularity = errors.New("invalid_granularity")
)

// Window is an inclusive calendar interval. Start and End are midnight UTC.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// Contains reports whether the calendar day of t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	day := Truncate(t)
	return !day.Before(w.Start) && !day.After(w.End)
}

// Days returns the number of calendar days covered, inclusive of both ends.
func (w Window) Days() int {
	return DaysBetween(w.Start, w.End) + 1
}

func ParseGranularity(raw string) (Granularity, error) {
	switch Granularity(strings.ToUpper(strings.TrimSpace(raw))) {
	case Week:
		return Week, nil
	case MonthCompleted, "MONTH":
		return MonthCompleted, nil
	case MonthInclusive:
		return MonthInclusive, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, raw)
	}
}

// Generate returns count contiguous windows ordered oldest to newest.
func Generate(anchor time.Time, g Granularity, count int) ([]Window, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}

	day := Truncate(anchor)
	windows := make([]Window, 0, count)
	switch g {
	case Week:
		newest := WeekStart(day)
		for i := count - 1; i >= 0; i-- {
			start := newest.AddDate(0, 0, -7*i)
			windows = append(windows, Window{
				Start: start,
				End:   start.AddDate(0, 0, 6),
				Label: start.Format(weekLabelLayout),
			})
		}
	case MonthCompleted, MonthInclusive:
		newest := monthStart(day)
		if g == MonthCompleted {
			newest = newest.AddDate(0, -1, 0)
		}
		for i := count - 1; i >= 0; i-- {
			start := newest.AddDate(0, -i, 0)
			windows = append(windows, Window{
				Start: start,
				End:   start.AddDate(0, 1, -1),
				Label: start.Format(monthLabelLayout),
			})
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidGranularity, g)
	}
	return windows, nil
}

// MustGenerate is Generate for call sites with constant arguments.
func MustGenerate(anchor time.Time, g Granularity, count int) []Window {
	windows, err := Generate(anchor, g, count)
	if err != nil {
		panic(err)
	}
	return windows
}

// Span returns the first start and last end of an ordered window list.
func Span(windows []Window) (time.Time, time.Time, bool) {
	if len(windows) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return windows[0].Start, windows[len(windows)-1].End, true
}

// Truncate drops the time of day, keeping the calendar date as seen in t's location.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekStart returns the Monday on or before t.
func WeekStart(t time.Time) time.Time {
	day := Truncate(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// DaysBetween returns the whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Truncate(b).Sub(Truncate(a)) / (24 * time.Hour))
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}
