package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/benvon/habit-tracker/internal/database"
	"github.com/benvon/habit-tracker/internal/models"
	"github.com/benvon/habit-tracker/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HabitHandler handles habit CRUD requests
type HabitHandler struct {
	habitRepo database.HabitRepositoryInterface
	onChange  ChangeHook
	logger    *zap.Logger
}

// HabitHandlerOption configures a HabitHandler
type HabitHandlerOption func(*HabitHandler)

// WithHabitChangeHook runs hook after a habit is archived, restored or deleted
func WithHabitChangeHook(hook ChangeHook) HabitHandlerOption {
	return func(h *HabitHandler) {
		h.onChange = hook
	}
}

// NewHabitHandler creates a new habit handler
func NewHabitHandler(habitRepo database.HabitRepositoryInterface, logger *zap.Logger, opts ...HabitHandlerOption) *HabitHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HabitHandler{habitRepo: habitRepo, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers habit routes on the given router
// The router should already have the /habits prefix
func (h *HabitHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListHabits).Methods("GET")
	r.HandleFunc("", h.CreateHabit).Methods("POST")
	r.HandleFunc("/{id}", h.GetHabit).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateHabit).Methods("PATCH")
	r.HandleFunc("/{id}", h.DeleteHabit).Methods("DELETE")
	r.HandleFunc("/{id}/archive", h.ArchiveHabit).Methods("POST")
	r.HandleFunc("/{id}/unarchive", h.UnarchiveHabit).Methods("POST")
}

// CreateHabitRequest represents a create habit request
type CreateHabitRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// UpdateHabitRequest represents an update habit request
type UpdateHabitRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// ListHabits lists the user's habits; archived ones only with ?include_archived=true
func (h *HabitHandler) ListHabits(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	includeArchived := r.URL.Query().Get("include_archived") == "true"
	habits, err := h.habitRepo.ListByOwner(r.Context(), user.ID, includeArchived)
	if err != nil {
		h.logger.Error("failed_to_list_habits", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve habits")
		return
	}

	respondJSON(w, http.StatusOK, habits)
}

// CreateHabit creates a new habit
func (h *HabitHandler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req CreateHabitRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	name := validation.SanitizeText(req.Name)
	if name == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Name is required and cannot be empty after sanitization")
		return
	}

	habit := &models.Habit{
		ID:          uuid.New(),
		OwnerID:     user.ID,
		Name:        name,
		Description: validation.SanitizeOptional(req.Description),
	}

	if err := h.habitRepo.Create(r.Context(), habit); err != nil {
		h.logger.Error("failed_to_create_habit", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create habit")
		return
	}

	respondJSON(w, http.StatusCreated, habit)
}

// GetHabit retrieves a habit by ID
func (h *HabitHandler) GetHabit(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	habit, ok := h.ownedHabit(w, r, user)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, habit)
}

// UpdateHabit renames or redescribes a habit
func (h *HabitHandler) UpdateHabit(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	habit, ok := h.ownedHabit(w, r, user)
	if !ok {
		return
	}

	var req UpdateHabitRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if req.Name != nil {
		sanitized := validation.SanitizeText(*req.Name)
		if sanitized == "" {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Name cannot be empty after sanitization")
			return
		}
		if len(sanitized) > validation.MaxNameLength {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Name exceeds maximum length of %d characters", validation.MaxNameLength))
			return
		}
		habit.Name = sanitized
	}
	if req.Description != nil {
		habit.Description = validation.SanitizeOptional(req.Description)
	}

	if err := h.habitRepo.Update(r.Context(), habit); err != nil {
		h.logger.Error("failed_to_update_habit", zap.String("habit_id", habit.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update habit")
		return
	}

	respondJSON(w, http.StatusOK, habit)
}

// DeleteHabit deletes a habit and its entries
func (h *HabitHandler) DeleteHabit(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	habit, ok := h.ownedHabit(w, r, user)
	if !ok {
		return
	}

	if err := h.habitRepo.Delete(r.Context(), habit.ID); err != nil {
		h.logger.Error("failed_to_delete_habit", zap.String("habit_id", habit.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete habit")
		return
	}
	h.notify(r, user.ID)

	w.WriteHeader(http.StatusNoContent)
}

// ArchiveHabit hides a habit from active views
func (h *HabitHandler) ArchiveHabit(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

// UnarchiveHabit restores an archived habit
func (h *HabitHandler) UnarchiveHabit(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *HabitHandler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	habit, ok := h.ownedHabit(w, r, user)
	if !ok {
		return
	}

	if habit.IsArchived != archived {
		if err := h.habitRepo.SetArchived(r.Context(), habit.ID, archived); err != nil {
			h.logger.Error("failed_to_archive_habit",
				zap.String("habit_id", habit.ID.String()),
				zap.Bool("archived", archived),
				zap.Error(err),
			)
			respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update habit")
			return
		}
		habit.IsArchived = archived
		h.notify(r, user.ID)
	}

	respondJSON(w, http.StatusOK, habit)
}

// ownedHabit loads the {id} habit and checks ownership, writing the error response on failure
func (h *HabitHandler) ownedHabit(w http.ResponseWriter, r *http.Request, user *models.User) (*models.Habit, bool) {
	id, ok := pathID(w, r, "id", "habit")
	if !ok {
		return nil, false
	}
	return loadOwnedHabit(w, r, h.habitRepo, h.logger, user, id)
}

func (h *HabitHandler) notify(r *http.Request, userID uuid.UUID) {
	if h.onChange == nil {
		return
	}
	if err := h.onChange(r.Context(), userID); err != nil {
		h.logger.Warn("habit_change_hook_failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// loadOwnedHabit is shared by every handler that addresses a habit by ID
func loadOwnedHabit(w http.ResponseWriter, r *http.Request, repo database.HabitRepositoryInterface, logger *zap.Logger, user *models.User, id uuid.UUID) (*models.Habit, bool) {
	habit, err := repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Habit not found")
			return nil, false
		}
		logger.Error("failed_to_load_habit", zap.String("habit_id", id.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve habit")
		return nil, false
	}

	if habit.OwnerID != user.ID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Habit does not belong to user")
		return nil, false
	}
	return habit, true
}
