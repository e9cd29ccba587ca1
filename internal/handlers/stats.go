package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/services/stats"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	// DefaultCalendarDays is the calendar window when start/end are omitted
	DefaultCalendarDays = 30
	// MaxCalendarDays bounds the calendar window to two years
	MaxCalendarDays = 731
	// DefaultInsightLookbackDays bounds insight history when lookback is omitted
	DefaultInsightLookbackDays = 90
)

// StatsService computes the per-user analytics views
type StatsService interface {
	HabitStats(ctx context.Context, userID, habitID uuid.UUID, ref time.Time) (*stats.HabitStats, error)
	Overview(ctx context.Context, userID uuid.UUID, ref time.Time) (*stats.Overview, error)
	Calendar(ctx context.Context, userID uuid.UUID, habitID *uuid.UUID, w analytics.Window, opts analytics.CalendarOptions) ([]analytics.CalendarDay, error)
	Insights(ctx context.Context, userID uuid.UUID, habitID *uuid.UUID, ref time.Time, opts analytics.InsightOptions) (*stats.InsightsView, error)
	Streak(ctx context.Context, userID, habitID uuid.UUID, ref time.Time) (int, error)
}

var _ StatsService = (*stats.Service)(nil)

// StatsHandler serves the analytics views
type StatsHandler struct {
	stats  StatsService
	logger *zap.Logger
	now    func() time.Time
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(statsService StatsService, logger *zap.Logger) *StatsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsHandler{stats: statsService, logger: logger, now: time.Now}
}

// RegisterRoutes registers stats routes on the given router
// The router should already have the /stats prefix
func (h *StatsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/overview", h.GetOverview).Methods("GET")
	r.HandleFunc("/calendar", h.GetCalendar).Methods("GET")
	r.HandleFunc("/insights", h.GetInsights).Methods("GET")
	r.HandleFunc("/habits/{id}", h.GetHabitStats).Methods("GET")
	r.HandleFunc("/habits/{id}/streak", h.GetStreak).Methods("GET")
}

// StreakResponse is the current streak of one habit
type StreakResponse struct {
	HabitID string `json:"habit_id"`
	Date    string `json:"date"`
	Streak  int    `json:"streak"`
}

// GetHabitStats returns totals, streaks and period breakdowns for one habit
func (h *StatsHandler) GetHabitStats(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathID(w, r, "id", "habit")
	if !ok {
		return
	}
	ref, ok := h.reference(w, r)
	if !ok {
		return
	}

	result, err := h.stats.HabitStats(r.Context(), user.ID, id, ref)
	if err != nil {
		h.respondStatsError(w, err, "Failed to compute habit statistics")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetOverview returns the all-habits summary
func (h *StatsHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	ref, ok := h.reference(w, r)
	if !ok {
		return
	}

	result, err := h.stats.Overview(r.Context(), user.ID, ref)
	if err != nil {
		h.respondStatsError(w, err, "Failed to compute overview")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetCalendar returns one record per day. Supports ?start=&end=, ?year=,
// ?habit_id= for a single habit and ?gate=true to skip days before a habit existed.
func (h *StatsHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	ref, ok := h.reference(w, r)
	if !ok {
		return
	}

	var window analytics.Window
	var err error
	if y := r.URL.Query().Get("year"); y != "" {
		year, convErr := strconv.Atoi(y)
		if convErr != nil || year < 1970 || year > 9999 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid year")
			return
		}
		window, err = analytics.NewWindow(
			time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
		)
	} else {
		window, err = queryWindow(r, ref, DefaultCalendarDays)
	}
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if window.Days() > MaxCalendarDays {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Calendar window exceeds %d days", MaxCalendarDays))
		return
	}

	habitID, err := optionalHabitID(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid habit ID")
		return
	}

	opts := analytics.CalendarOptions{GateOnCreation: r.URL.Query().Get("gate") == "true"}
	days, err := h.stats.Calendar(r.Context(), user.ID, habitID, window, opts)
	if err != nil {
		h.respondStatsError(w, err, "Failed to build calendar")
		return
	}

	respondJSON(w, http.StatusOK, days)
}

// GetInsights returns generated insights and the weekday breakdown.
// ?lookback=0 considers all history.
func (h *StatsHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	ref, ok := h.reference(w, r)
	if !ok {
		return
	}

	lookback := DefaultInsightLookbackDays
	if l := r.URL.Query().Get("lookback"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 0 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid lookback")
			return
		}
		lookback = parsed
	}

	habitID, err := optionalHabitID(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid habit ID")
		return
	}

	result, err := h.stats.Insights(r.Context(), user.ID, habitID, ref, analytics.InsightOptions{LookbackDays: lookback})
	if err != nil {
		h.respondStatsError(w, err, "Failed to generate insights")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetStreak returns the current streak of one habit
func (h *StatsHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathID(w, r, "id", "habit")
	if !ok {
		return
	}
	ref, ok := h.reference(w, r)
	if !ok {
		return
	}

	streak, err := h.stats.Streak(r.Context(), user.ID, id, ref)
	if err != nil {
		h.respondStatsError(w, err, "Failed to compute streak")
		return
	}

	respondJSON(w, http.StatusOK, StreakResponse{
		HabitID: id.String(),
		Date:    analytics.DateKey(ref),
		Streak:  streak,
	})
}

func (h *StatsHandler) reference(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	ref, err := referenceDate(r, h.now())
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid date, expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return ref, true
}

func (h *StatsHandler) respondStatsError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, stats.ErrHabitNotFound) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Habit not found")
		return
	}
	h.logger.Error("stats_computation_failed", zap.String("operation", message), zap.Error(err))
	respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", message)
}
