package analytics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
)

// LeaderboardWindow selects the time span a leaderboard covers
type LeaderboardWindow string

const (
	LeaderboardWeek  LeaderboardWindow = "week"
	LeaderboardMonth LeaderboardWindow = "month"
	LeaderboardAll   LeaderboardWindow = "all"
)

// Score weights
const (
	ScorePerCompletion   = 10
	ScorePerRatePoint    = 5
	ScorePerStreakDay    = 20
	leaderboardWeekDays  = 7
	leaderboardMonthDays = 30
	hoursPerDay          = 24
)

// ErrInvalidLeaderboardWindow is returned for unknown window selectors
var ErrInvalidLeaderboardWindow = errors.New("invalid leaderboard window")

// ErrForeignHabit is returned when a scoring input holds a habit owned by someone else
var ErrForeignHabit = errors.New("habit does not belong to user")

// LeaderboardWindows lists every supported window
var LeaderboardWindows = []LeaderboardWindow{LeaderboardWeek, LeaderboardMonth, LeaderboardAll}

// ParseLeaderboardWindow parses a window selector; empty defaults to week
func ParseLeaderboardWindow(s string) (LeaderboardWindow, error) {
	switch LeaderboardWindow(s) {
	case "":
		return LeaderboardWeek, nil
	case LeaderboardWeek, LeaderboardMonth, LeaderboardAll:
		return LeaderboardWindow(s), nil
	default:
		return "", fmt.Errorf("%w: %q (must be 'week', 'month', or 'all')", ErrInvalidLeaderboardWindow, s)
	}
}

// WindowStart returns the instant a leaderboard window opens. The all-time
// window opens at the Unix epoch.
func WindowStart(w LeaderboardWindow, now time.Time) time.Time {
	now = now.UTC()
	switch w {
	case LeaderboardMonth:
		return now.AddDate(0, 0, -leaderboardMonthDays)
	case LeaderboardAll:
		return time.Unix(0, 0).UTC()
	default:
		return now.AddDate(0, 0, -leaderboardWeekDays)
	}
}

// WindowDays returns the integer ceiling of the window length in days
func WindowDays(w LeaderboardWindow, now time.Time) int {
	hours := now.UTC().Sub(WindowStart(w, now)).Hours()
	return int(math.Ceil(hours / hoursPerDay))
}

// CalendarWindow returns the calendar days a leaderboard window covers, ending on now
func CalendarWindow(w LeaderboardWindow, now time.Time) Window {
	if w == LeaderboardAll {
		return Window{Start: Day(WindowStart(w, now)), End: Day(now)}
	}
	return LastNDays(now, WindowDays(w, now))
}

// LeaderboardInput is everything needed to score one user
type LeaderboardInput struct {
	UserID      uuid.UUID
	DisplayName string
	Habits      []*models.Habit
	Entries     []models.HabitEntry
}

// LeaderboardEntry is one ranked row. CompletionRate is a whole percent.
type LeaderboardEntry struct {
	Rank             int       `json:"rank"`
	UserID           uuid.UUID `json:"user_id"`
	DisplayName      string    `json:"display_name"`
	TotalHabits      int       `json:"total_habits"`
	TotalCompletions int       `json:"total_completions"`
	CompletionRate   int       `json:"completion_rate"`
	CurrentStreak    int       `json:"current_streak"`
	Score            int       `json:"score"`
}

// SkippedUser records a user left out of a ranking because of bad data
type SkippedUser struct {
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason"`
}

// LeaderboardResult is a ranked leaderboard for one window
type LeaderboardResult struct {
	Window      LeaderboardWindow  `json:"window"`
	GeneratedAt time.Time          `json:"generated_at"`
	Entries     []LeaderboardEntry `json:"entries"`
	Skipped     []SkippedUser      `json:"skipped,omitempty"`
}

// ScoreUser scores one user for a window. The boolean is false when the user
// has no active habits and must be left out of the ranking entirely. The
// current streak is only computed for the all-time window; it is 0 otherwise.
func ScoreUser(in LeaderboardInput, window LeaderboardWindow, now time.Time) (LeaderboardEntry, bool, error) {
	active := make(map[uuid.UUID]bool)
	for _, h := range models.ActiveHabits(in.Habits) {
		if h.OwnerID != in.UserID {
			return LeaderboardEntry{}, false, fmt.Errorf("%w: habit %s", ErrForeignHabit, h.ID)
		}
		active[h.ID] = true
	}
	if len(active) == 0 {
		return LeaderboardEntry{}, false, nil
	}

	cal := CalendarWindow(window, now)
	days := WindowDays(window, now)

	owned := make([]models.HabitEntry, 0, len(in.Entries))
	seen := make(map[string]bool)
	completions := 0
	for _, e := range in.Entries {
		if e.Date.IsZero() || !active[e.HabitID] {
			continue
		}
		owned = append(owned, e)
		if !e.Completed || !cal.Contains(e.Date) {
			continue
		}
		key := e.HabitID.String() + "|" + DateKey(e.Date)
		if seen[key] {
			continue
		}
		seen[key] = true
		completions++
	}

	expected := len(active) * days
	completionRate := 0
	if expected > 0 {
		completionRate = int(math.Round(float64(completions) / float64(expected) * 100))
	}

	streak := 0
	if window == LeaderboardAll {
		streak = ComputeUnionStreak(owned, now, UnionStreakLookbackDays)
	}

	return LeaderboardEntry{
		UserID:           in.UserID,
		DisplayName:      in.DisplayName,
		TotalHabits:      len(active),
		TotalCompletions: completions,
		CompletionRate:   completionRate,
		CurrentStreak:    streak,
		Score:            completions*ScorePerCompletion + completionRate*ScorePerRatePoint + streak*ScorePerStreakDay,
	}, true, nil
}

// ScoreLeaderboard scores and ranks every input. Ties keep input order, ranks
// are 1-based positions, and a user whose data fails validation is reported in
// Skipped without affecting anyone else.
func ScoreLeaderboard(inputs []LeaderboardInput, window LeaderboardWindow, now time.Time) LeaderboardResult {
	result := LeaderboardResult{
		Window:      window,
		GeneratedAt: now,
		Entries:     make([]LeaderboardEntry, 0, len(inputs)),
	}
	for _, in := range inputs {
		entry, ok, err := ScoreUser(in, window, now)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedUser{UserID: in.UserID, Reason: err.Error()})
			continue
		}
		if !ok {
			continue
		}
		result.Entries = append(result.Entries, entry)
	}

	sort.SliceStable(result.Entries, func(i, j int) bool {
		return result.Entries[i].Score > result.Entries[j].Score
	})
	for i := range result.Entries {
		result.Entries[i].Rank = i + 1
	}
	return result
}
