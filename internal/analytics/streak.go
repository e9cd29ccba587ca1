package analytics

import (
	"sort"
	"time"

	"github.com/benvon/habit-tracker/internal/models"
)

// UnionStreakLookbackDays bounds the backward walk for cross-habit streaks
const UnionStreakLookbackDays = 365

// ComputeStreak returns the number of consecutive completed days ending at ref.
// An unmarked ref day does not break the streak on its own: the walk then
// starts from the day before. Entries with Completed=false count as missing.
func ComputeStreak(entries []models.HabitEntry, ref time.Time) int {
	return walkStreak(completionIndex(entries), ref, 0)
}

// ComputeUnionStreak computes the streak over several habits' entries, where a
// day is kept when any entry on it is completed. At most lookbackDays days are
// counted; lookbackDays <= 0 means unbounded.
func ComputeUnionStreak(entries []models.HabitEntry, ref time.Time, lookbackDays int) int {
	idx := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Date.IsZero() || !e.Completed {
			continue
		}
		idx[DateKey(e.Date)] = true
	}
	return walkStreak(idx, ref, lookbackDays)
}

func walkStreak(idx map[string]bool, ref time.Time, lookbackDays int) int {
	if len(idx) == 0 {
		return 0
	}

	day := Day(ref)
	if !idx[day.Format(DateLayout)] {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for idx[day.Format(DateLayout)] {
		streak++
		if lookbackDays > 0 && streak >= lookbackDays {
			break
		}
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// ComputeLongestStreak returns the longest run of consecutive completed days
// anywhere in the entry history
func ComputeLongestStreak(entries []models.HabitEntry) int {
	idx := completionIndex(entries)
	days := make([]time.Time, 0, len(idx))
	for key, completed := range idx {
		if !completed {
			continue
		}
		d, err := time.Parse(DateLayout, key)
		if err != nil {
			continue
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return 0
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if DaysBetween(days[i-1], days[i]) == 1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
