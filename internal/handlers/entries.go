package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/database"
	"github.com/benvon/habit-tracker/internal/models"
	"github.com/benvon/habit-tracker/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ChangeHook is invoked after a user's tracked data changes so derived state
// (challenge progress, cached leaderboards) can be refreshed
type ChangeHook func(ctx context.Context, userID uuid.UUID) error

// DefaultEntryListDays is the window used when listing entries without start/end
const DefaultEntryListDays = 30

// EntryHandler handles daily completion entries for a habit
type EntryHandler struct {
	habitRepo database.HabitRepositoryInterface
	entryRepo database.EntryRepositoryInterface
	onChange  ChangeHook
	logger    *zap.Logger
	now       func() time.Time
}

// EntryHandlerOption configures an EntryHandler
type EntryHandlerOption func(*EntryHandler)

// WithEntryChangeHook runs hook after every successful entry write
func WithEntryChangeHook(hook ChangeHook) EntryHandlerOption {
	return func(h *EntryHandler) {
		h.onChange = hook
	}
}

// NewEntryHandler creates a new entry handler
func NewEntryHandler(habitRepo database.HabitRepositoryInterface, entryRepo database.EntryRepositoryInterface, logger *zap.Logger, opts ...EntryHandlerOption) *EntryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &EntryHandler{habitRepo: habitRepo, entryRepo: entryRepo, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers entry routes on the /habits router
func (h *EntryHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/{id}/entries", h.ListEntries).Methods("GET")
	r.HandleFunc("/{id}/entries/{date}", h.PutEntry).Methods("PUT")
	r.HandleFunc("/{id}/entries/{date}", h.DeleteEntry).Methods("DELETE")
}

// PutEntryRequest marks or unmarks a day. Completed defaults to true.
type PutEntryRequest struct {
	Completed *bool   `json:"completed,omitempty"`
	Note      *string `json:"note,omitempty" validate:"omitempty,max=2000"`
}

// ListEntries lists a habit's entries within ?start=&end= (default: last 30 days)
func (h *EntryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	habit, ok := h.ownedHabit(w, r, user)
	if !ok {
		return
	}

	window, err := queryWindow(r, h.now(), DefaultEntryListDays)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	entries, err := h.entryRepo.ListByHabit(r.Context(), habit.ID, &window)
	if err != nil {
		h.logger.Error("failed_to_list_entries", zap.String("habit_id", habit.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve entries")
		return
	}

	respondJSON(w, http.StatusOK, entries)
}

// PutEntry creates or overwrites the entry for one calendar day
func (h *EntryHandler) PutEntry(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	habit, date, ok := h.entryTarget(w, r, user)
	if !ok {
		return
	}
	if habit.IsArchived {
		respondJSONError(w, http.StatusConflict, "Conflict", "Habit is archived")
		return
	}

	var req PutEntryRequest
	if r.ContentLength != 0 {
		if !decodeAndValidate(w, r, &req) {
			return
		}
	}

	entry := &models.HabitEntry{
		HabitID:   habit.ID,
		Date:      date,
		Completed: req.Completed == nil || *req.Completed,
		Note:      validation.SanitizeOptional(req.Note),
	}

	if err := h.entryRepo.Upsert(r.Context(), entry); err != nil {
		h.logger.Error("failed_to_upsert_entry",
			zap.String("habit_id", habit.ID.String()),
			zap.String("date", analytics.DateKey(date)),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to save entry")
		return
	}
	h.notify(r, user.ID)

	respondJSON(w, http.StatusOK, entry)
}

// DeleteEntry removes the entry for one calendar day
func (h *EntryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	habit, date, ok := h.entryTarget(w, r, user)
	if !ok {
		return
	}

	if err := h.entryRepo.Delete(r.Context(), habit.ID, date); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Entry not found")
			return
		}
		h.logger.Error("failed_to_delete_entry",
			zap.String("habit_id", habit.ID.String()),
			zap.String("date", analytics.DateKey(date)),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete entry")
		return
	}
	h.notify(r, user.ID)

	w.WriteHeader(http.StatusNoContent)
}

// entryTarget resolves the {id} habit and {date} day. Dates more than one day
// ahead of the server clock are rejected; the slack covers users east of UTC.
func (h *EntryHandler) entryTarget(w http.ResponseWriter, r *http.Request, user *models.User) (*models.Habit, time.Time, bool) {
	habit, ok := h.ownedHabit(w, r, user)
	if !ok {
		return nil, time.Time{}, false
	}

	date, err := analytics.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid date, expected YYYY-MM-DD")
		return nil, time.Time{}, false
	}
	if date.After(analytics.AddDays(h.now().UTC(), 1)) {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Entry date cannot be in the future")
		return nil, time.Time{}, false
	}
	return habit, date, true
}

func (h *EntryHandler) ownedHabit(w http.ResponseWriter, r *http.Request, user *models.User) (*models.Habit, bool) {
	id, ok := pathID(w, r, "id", "habit")
	if !ok {
		return nil, false
	}
	return loadOwnedHabit(w, r, h.habitRepo, h.logger, user, id)
}

func (h *EntryHandler) notify(r *http.Request, userID uuid.UUID) {
	if h.onChange == nil {
		return
	}
	if err := h.onChange(r.Context(), userID); err != nil {
		h.logger.Warn("entry_change_hook_failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}
