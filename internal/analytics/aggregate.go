package analytics

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
)

// Aggregate is a completion summary over a window. CompletionRate is a fraction
// in [0,1]; use RoundPercent for display.
type Aggregate struct {
	CompletedCount int     `json:"completed_count"`
	TotalDays      int     `json:"total_days"`
	CompletionRate float64 `json:"completion_rate"`
}

// PeriodAggregate labels an aggregate with the period it covers
type PeriodAggregate struct {
	Label  string `json:"label"`
	Window Window `json:"window"`
	Aggregate
}

// HabitSummary collects the per-habit numbers shown on stats views and exports
type HabitSummary struct {
	HabitID          uuid.UUID `json:"habit_id"`
	Name             string    `json:"name"`
	TotalCompletions int       `json:"total_completions"`
	CurrentStreak    int       `json:"current_streak"`
	LongestStreak    int       `json:"longest_streak"`
	Last30Days       Aggregate `json:"last_30_days"`
	AllTime          Aggregate `json:"all_time"`
}

// RoundPercent converts a fraction to a whole percentage, half away from zero
func RoundPercent(rate float64) int {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0
	}
	return int(math.Round(rate * 100))
}

// ComputeAggregate summarises one habit's entries inside w. The denominator is
// the number of entries present, which suits sparse habits.
func ComputeAggregate(entries []models.HabitEntry, w Window) Aggregate {
	considered := filterWindow(entries, w)
	completed := 0
	for _, e := range considered {
		if e.Completed {
			completed++
		}
	}
	return Aggregate{
		CompletedCount: completed,
		TotalDays:      len(considered),
		CompletionRate: rate(completed, len(considered)),
	}
}

// ComputeAllTime summarises every entry a habit has, regardless of date
func ComputeAllTime(entries []models.HabitEntry) Aggregate {
	completed, total := 0, 0
	for _, e := range entries {
		if e.Date.IsZero() {
			continue
		}
		total++
		if e.Completed {
			completed++
		}
	}
	return Aggregate{CompletedCount: completed, TotalDays: total, CompletionRate: rate(completed, total)}
}

// ComputeUserAggregate summarises a user's active habits inside w. The
// denominator is calendar days in the window times the number of active habits,
// so a day without any entry counts against the rate.
func ComputeUserAggregate(habits []*models.Habit, entries []models.HabitEntry, w Window) Aggregate {
	active := make(map[uuid.UUID]bool)
	for _, h := range models.ActiveHabits(habits) {
		active[h.ID] = true
	}

	// One completion per habit per day, even if duplicates slip through.
	seen := make(map[string]bool)
	completed := 0
	for _, e := range filterWindow(entries, w) {
		if !e.Completed || !active[e.HabitID] {
			continue
		}
		key := e.HabitID.String() + "|" + DateKey(e.Date)
		if seen[key] {
			continue
		}
		seen[key] = true
		completed++
	}

	total := w.Days() * len(active)
	return Aggregate{CompletedCount: completed, TotalDays: total, CompletionRate: rate(completed, total)}
}

// Last30Days summarises the thirty days ending on ref
func Last30Days(entries []models.HabitEntry, ref time.Time) Aggregate {
	return ComputeAggregate(entries, LastNDays(ref, 30))
}

// MonthlyAggregates returns twelve month buckets for the given year
func MonthlyAggregates(entries []models.HabitEntry, year int) []PeriodAggregate {
	out := make([]PeriodAggregate, 0, 12)
	for m := time.January; m <= time.December; m++ {
		start := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
		w := Window{Start: start, End: start.AddDate(0, 1, -1)}
		out = append(out, PeriodAggregate{
			Label:     start.Format("2006-01"),
			Window:    w,
			Aggregate: ComputeAggregate(entries, w),
		})
	}
	return out
}

// YearlyAggregates returns one bucket per calendar year that has entries, oldest first
func YearlyAggregates(entries []models.HabitEntry) []PeriodAggregate {
	years := make(map[int]bool)
	for _, e := range entries {
		if e.Date.IsZero() {
			continue
		}
		years[Day(e.Date).Year()] = true
	}
	sorted := make([]int, 0, len(years))
	for y := range years {
		sorted = append(sorted, y)
	}
	sort.Ints(sorted)

	out := make([]PeriodAggregate, 0, len(sorted))
	for _, y := range sorted {
		w := Window{
			Start: time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC),
		}
		out = append(out, PeriodAggregate{
			Label:     strconv.Itoa(y),
			Window:    w,
			Aggregate: ComputeAggregate(entries, w),
		})
	}
	return out
}

// SummarizeHabit computes the stats-view summary for one habit as of ref
func SummarizeHabit(habit *models.Habit, entries []models.HabitEntry, ref time.Time) HabitSummary {
	all := ComputeAllTime(entries)
	return HabitSummary{
		HabitID:          habit.ID,
		Name:             habit.Name,
		TotalCompletions: all.CompletedCount,
		CurrentStreak:    ComputeStreak(entries, ref),
		LongestStreak:    ComputeLongestStreak(entries),
		Last30Days:       Last30Days(entries, ref),
		AllTime:          all,
	}
}
