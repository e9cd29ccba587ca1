package analytics

import (
	"time"

	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
)

// HabitFlag is one habit's completion state on a calendar day
type HabitFlag struct {
	HabitID   uuid.UUID `json:"habit_id"`
	Name      string    `json:"name,omitempty"`
	Completed bool      `json:"completed"`
}

// CalendarDay is the merged completion record for one calendar date
type CalendarDay struct {
	Date           string      `json:"date"`
	CompletedCount int         `json:"completed_count"`
	TotalHabits    int         `json:"total_habits"`
	CompletionRate float64     `json:"completion_rate"`
	Level          int         `json:"level"`
	Habits         []HabitFlag `json:"habits"`
}

// CalendarOptions tunes the all-habits calendar
type CalendarOptions struct {
	// GateOnCreation excludes a habit from a day's denominator when the day is
	// before the habit was created. Off by default: every habit counts on every day.
	GateOnCreation bool
}

// HeatmapLevel maps a completion rate onto a 0-4 intensity scale
func HeatmapLevel(r float64) int {
	switch {
	case r <= 0:
		return 0
	case r <= 0.25:
		return 1
	case r <= 0.5:
		return 2
	case r <= 0.75:
		return 3
	default:
		return 4
	}
}

// BuildHabitCalendar expands w into one record per day for a single habit.
// The habit is expected every day, so TotalHabits is always 1.
func BuildHabitCalendar(w Window, habitID uuid.UUID, entries []models.HabitEntry) []CalendarDay {
	own := make([]models.HabitEntry, 0, len(entries))
	for _, e := range entries {
		if e.HabitID == habitID {
			own = append(own, e)
		}
	}
	idx := completionIndex(filterWindow(own, w))

	dates := w.Dates()
	days := make([]CalendarDay, 0, len(dates))
	for _, d := range dates {
		key := d.Format(DateLayout)
		completed := idx[key]
		count := 0
		if completed {
			count = 1
		}
		r := rate(count, 1)
		days = append(days, CalendarDay{
			Date:           key,
			CompletedCount: count,
			TotalHabits:    1,
			CompletionRate: r,
			Level:          HeatmapLevel(r),
			Habits:         []HabitFlag{{HabitID: habitID, Completed: completed}},
		})
	}
	return days
}

// BuildUserCalendar expands w into one record per day across a user's
// non-archived habits. Days with no entries are zero-filled, never omitted.
func BuildUserCalendar(w Window, habits []*models.Habit, entries []models.HabitEntry, opts CalendarOptions) []CalendarDay {
	active := models.ActiveHabits(habits)
	activeIDs := make(map[uuid.UUID]bool, len(active))
	for _, h := range active {
		activeIDs[h.ID] = true
	}

	// habit -> day -> completed
	byHabit := make(map[uuid.UUID]map[string]bool, len(active))
	for _, e := range filterWindow(entries, w) {
		if !activeIDs[e.HabitID] {
			continue
		}
		m, ok := byHabit[e.HabitID]
		if !ok {
			m = make(map[string]bool)
			byHabit[e.HabitID] = m
		}
		m[DateKey(e.Date)] = e.Completed
	}

	dates := w.Dates()
	days := make([]CalendarDay, 0, len(dates))
	for _, d := range dates {
		key := d.Format(DateLayout)
		day := CalendarDay{Date: key, Habits: make([]HabitFlag, 0, len(active))}
		for _, h := range active {
			if opts.GateOnCreation && !h.CreatedAt.IsZero() && d.Before(Day(h.CreatedAt)) {
				continue
			}
			completed := byHabit[h.ID][key]
			day.TotalHabits++
			if completed {
				day.CompletedCount++
			}
			day.Habits = append(day.Habits, HabitFlag{HabitID: h.ID, Name: h.Name, Completed: completed})
		}
		day.CompletionRate = rate(day.CompletedCount, day.TotalHabits)
		day.Level = HeatmapLevel(day.CompletionRate)
		days = append(days, day)
	}
	return days
}

// BuildYearHeatmap builds the all-habits calendar for a whole calendar year
func BuildYearHeatmap(year int, habits []*models.Habit, entries []models.HabitEntry, opts CalendarOptions) []CalendarDay {
	w := Window{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
	return BuildUserCalendar(w, habits, entries, opts)
}
