package analytics

import (
	"errors"
	"fmt"
	"time"

	"github.com/benvon/habit-tracker/internal/models"
)

// DateLayout is the ISO calendar-date layout used for keys and wire formats
const DateLayout = "2006-01-02"

var (
	// ErrInvalidDate is returned for unparsable calendar dates
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidWindow is returned when a window ends before it starts
	ErrInvalidWindow = errors.New("invalid date window")
)

// Day strips the time-of-day from t using t's own calendar fields and returns
// midnight UTC of that calendar day. Converting to UTC first would shift late
// evening timestamps in negative offsets onto the next day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateKey returns the ISO calendar-date key for t
func DateKey(t time.Time) string {
	return Day(t).Format(DateLayout)
}

// ParseDate parses a strict YYYY-MM-DD calendar date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// AddDays moves a calendar day forward or backward
func AddDays(t time.Time, days int) time.Time {
	return Day(t).AddDate(0, 0, days)
}

// DaysBetween returns the number of whole calendar days from a to b
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// Window is an inclusive range of calendar days
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow normalises both bounds to calendar days and rejects windows that
// end before they start
func NewWindow(start, end time.Time) (Window, error) {
	w := Window{Start: Day(start), End: Day(end)}
	if w.End.Before(w.Start) {
		return Window{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidWindow, DateKey(end), DateKey(start))
	}
	return w, nil
}

// ParseWindow builds a window from two ISO date strings
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseDate(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return Window{}, err
	}
	return NewWindow(s, e)
}

// LastNDays returns the n-day window ending on ref (inclusive)
func LastNDays(ref time.Time, n int) Window {
	if n < 1 {
		n = 1
	}
	end := Day(ref)
	return Window{Start: end.AddDate(0, 0, -(n - 1)), End: end}
}

// Days returns the number of calendar days in the window, both ends included
func (w Window) Days() int {
	return DaysBetween(w.Start, w.End) + 1
}

// Contains reports whether t falls on a day inside the window
func (w Window) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

// Dates enumerates every calendar day in the window in ascending order
func (w Window) Dates() []time.Time {
	n := w.Days()
	if n <= 0 {
		return nil
	}
	dates := make([]time.Time, 0, n)
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// completionIndex maps a calendar-day key to its completed flag. Later entries
// for the same day overwrite earlier ones.
func completionIndex(entries []models.HabitEntry) map[string]bool {
	idx := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Date.IsZero() {
			continue
		}
		idx[DateKey(e.Date)] = e.Completed
	}
	return idx
}

// filterWindow keeps entries whose date falls inside w
func filterWindow(entries []models.HabitEntry, w Window) []models.HabitEntry {
	out := make([]models.HabitEntry, 0, len(entries))
	for _, e := range entries {
		if e.Date.IsZero() || !w.Contains(e.Date) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// rate divides with a zero-denominator rule of 0
func rate(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den)
}
