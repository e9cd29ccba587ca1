// Package stats serves per-user analytics views by loading habits and entries
// from the store and handing them to the pure analytics core.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/metrics"
	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrHabitNotFound is returned when a habit does not exist or belongs to someone else
var ErrHabitNotFound = errors.New("habit not found")

// HabitReader reads habits
type HabitReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Habit, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, includeArchived bool) ([]*models.Habit, error)
}

// EntryReader reads entries
type EntryReader interface {
	ListByHabit(ctx context.Context, habitID uuid.UUID, w *analytics.Window) ([]models.HabitEntry, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, w *analytics.Window, includeArchived bool) ([]models.HabitEntry, error)
}

// HabitStats is the stats view for a single habit
type HabitStats struct {
	Summary analytics.HabitSummary      `json:"summary"`
	Monthly []analytics.PeriodAggregate `json:"monthly"`
	Yearly  []analytics.PeriodAggregate `json:"yearly"`
	Recent  []analytics.CalendarDay     `json:"recent"`
}

// Overview is the stats view across all of a user's habits
type Overview struct {
	Date          string                   `json:"date"`
	TotalHabits   int                      `json:"total_habits"`
	ActiveHabits  int                      `json:"active_habits"`
	Today         analytics.Aggregate      `json:"today"`
	Last7Days     analytics.Aggregate      `json:"last_7_days"`
	Last30Days    analytics.Aggregate      `json:"last_30_days"`
	CurrentStreak int                      `json:"current_streak"`
	Habits        []analytics.HabitSummary `json:"habits"`
}

// InsightsView bundles insights with the weekday breakdown they were derived from
type InsightsView struct {
	Insights []analytics.Insight     `json:"insights"`
	Weekdays []analytics.WeekdayStat `json:"weekdays"`
}

// Service computes analytics views for one user at a time
type Service struct {
	habits  HabitReader
	entries EntryReader
	logger  *zap.Logger
}

// NewService creates a stats service
func NewService(habits HabitReader, entries EntryReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{habits: habits, entries: entries, logger: logger}
}

// OwnedHabit loads a habit and checks it belongs to userID
func (s *Service) OwnedHabit(ctx context.Context, userID, habitID uuid.UUID) (*models.Habit, error) {
	habit, err := s.habits.GetByID(ctx, habitID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHabitNotFound, err)
	}
	if habit.OwnerID != userID {
		return nil, ErrHabitNotFound
	}
	return habit, nil
}

// HabitStats computes the single-habit view as of ref
func (s *Service) HabitStats(ctx context.Context, userID, habitID uuid.UUID, ref time.Time) (*HabitStats, error) {
	start := time.Now()
	defer metrics.ObserveComputation("habit_stats", start)

	habit, err := s.OwnedHabit(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}
	entries, err := s.entries.ListByHabit(ctx, habitID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	return &HabitStats{
		Summary: analytics.SummarizeHabit(habit, entries, ref),
		Monthly: analytics.MonthlyAggregates(entries, analytics.Day(ref).Year()),
		Yearly:  analytics.YearlyAggregates(entries),
		Recent:  analytics.BuildHabitCalendar(analytics.LastNDays(ref, 30), habit.ID, entries),
	}, nil
}

// Overview computes the all-habits view as of ref
func (s *Service) Overview(ctx context.Context, userID uuid.UUID, ref time.Time) (*Overview, error) {
	start := time.Now()
	defer metrics.ObserveComputation("overview", start)

	habits, err := s.habits.ListByOwner(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	entries, err := s.entries.ListByOwner(ctx, userID, nil, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	active := models.ActiveHabits(habits)
	byHabit := groupByHabit(entries)
	activeEntries := make([]models.HabitEntry, 0, len(entries))
	for _, h := range active {
		activeEntries = append(activeEntries, byHabit[h.ID]...)
	}

	summaries := make([]analytics.HabitSummary, 0, len(habits))
	for _, h := range habits {
		summaries = append(summaries, analytics.SummarizeHabit(h, byHabit[h.ID], ref))
	}

	return &Overview{
		Date:          analytics.DateKey(ref),
		TotalHabits:   len(habits),
		ActiveHabits:  len(active),
		Today:         analytics.ComputeUserAggregate(habits, entries, analytics.LastNDays(ref, 1)),
		Last7Days:     analytics.ComputeUserAggregate(habits, entries, analytics.LastNDays(ref, 7)),
		Last30Days:    analytics.ComputeUserAggregate(habits, entries, analytics.LastNDays(ref, 30)),
		CurrentStreak: analytics.ComputeUnionStreak(activeEntries, ref, analytics.UnionStreakLookbackDays),
		Habits:        summaries,
	}, nil
}

// Calendar builds the per-day calendar for a window. With habitID set it is
// the single-habit calendar, otherwise it covers every non-archived habit.
func (s *Service) Calendar(ctx context.Context, userID uuid.UUID, habitID *uuid.UUID, w analytics.Window, opts analytics.CalendarOptions) ([]analytics.CalendarDay, error) {
	start := time.Now()
	defer metrics.ObserveComputation("calendar", start)

	if habitID != nil {
		habit, err := s.OwnedHabit(ctx, userID, *habitID)
		if err != nil {
			return nil, err
		}
		entries, err := s.entries.ListByHabit(ctx, habit.ID, &w)
		if err != nil {
			return nil, fmt.Errorf("failed to list entries: %w", err)
		}
		return analytics.BuildHabitCalendar(w, habit.ID, entries), nil
	}

	habits, err := s.habits.ListByOwner(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	entries, err := s.entries.ListByOwner(ctx, userID, &w, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return analytics.BuildUserCalendar(w, habits, entries, opts), nil
}

// Insights generates insights for the user, or for one habit when habitID is set
func (s *Service) Insights(ctx context.Context, userID uuid.UUID, habitID *uuid.UUID, ref time.Time, opts analytics.InsightOptions) (*InsightsView, error) {
	start := time.Now()
	defer metrics.ObserveComputation("insights", start)

	var w *analytics.Window
	if opts.LookbackDays > 0 {
		lookback := analytics.LastNDays(ref, opts.LookbackDays)
		w = &lookback
	}

	var entries []models.HabitEntry
	var err error
	if habitID != nil {
		if _, err := s.OwnedHabit(ctx, userID, *habitID); err != nil {
			return nil, err
		}
		entries, err = s.entries.ListByHabit(ctx, *habitID, w)
	} else {
		entries, err = s.entries.ListByOwner(ctx, userID, w, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	return &InsightsView{
		Insights: analytics.GenerateInsights(entries, ref, opts),
		Weekdays: analytics.WeekdayStats(entries),
	}, nil
}

// Streak returns the current streak of one habit as of ref
func (s *Service) Streak(ctx context.Context, userID, habitID uuid.UUID, ref time.Time) (int, error) {
	start := time.Now()
	defer metrics.ObserveComputation("streak", start)

	if _, err := s.OwnedHabit(ctx, userID, habitID); err != nil {
		return 0, err
	}
	entries, err := s.entries.ListByHabit(ctx, habitID, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to list entries: %w", err)
	}
	return analytics.ComputeStreak(entries, ref), nil
}

func groupByHabit(entries []models.HabitEntry) map[uuid.UUID][]models.HabitEntry {
	out := make(map[uuid.UUID][]models.HabitEntry)
	for _, e := range entries {
		out[e.HabitID] = append(out[e.HabitID], e)
	}
	return out
}
