package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/challenges"
	"github.com/benvon/habit-tracker/internal/database"
	"github.com/benvon/habit-tracker/internal/models"
	"github.com/benvon/habit-tracker/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// UserLookup resolves invitees
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// ChallengeService is the challenge lifecycle the handler drives
type ChallengeService interface {
	Create(ctx context.Context, creatorID uuid.UUID, req challenges.CreateRequest) (*models.Challenge, error)
	Get(ctx context.Context, challengeID, userID uuid.UUID) (*challenges.Detail, error)
	List(ctx context.Context, userID uuid.UUID) ([]*models.Challenge, error)
	Invite(ctx context.Context, challengeID, inviterID, inviteeID uuid.UUID) (*models.ChallengeParticipant, error)
	Respond(ctx context.Context, challengeID, userID uuid.UUID, accept bool, habitID *uuid.UUID) (*models.ChallengeParticipant, error)
	Reconcile(ctx context.Context, challengeID uuid.UUID) (*challenges.ReconcileReport, error)
	Cancel(ctx context.Context, challengeID, userID uuid.UUID) error
}

var _ ChallengeService = (*challenges.Service)(nil)

// ReconcileTrigger schedules or runs reconciliation of one challenge
type ReconcileTrigger func(ctx context.Context, challengeID uuid.UUID) error

// ChallengeHandler handles shared challenge requests
type ChallengeHandler struct {
	service ChallengeService
	users   UserLookup
	trigger ReconcileTrigger
	logger  *zap.Logger
}

// ChallengeHandlerOption configures a ChallengeHandler
type ChallengeHandlerOption func(*ChallengeHandler)

// WithReconcileTrigger runs trigger after a participant accepts
func WithReconcileTrigger(trigger ReconcileTrigger) ChallengeHandlerOption {
	return func(h *ChallengeHandler) {
		h.trigger = trigger
	}
}

// NewChallengeHandler creates a new challenge handler
func NewChallengeHandler(service ChallengeService, users UserLookup, logger *zap.Logger, opts ...ChallengeHandlerOption) *ChallengeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ChallengeHandler{service: service, users: users, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers challenge routes on the given router
// The router should already have the /challenges prefix
func (h *ChallengeHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListChallenges).Methods("GET")
	r.HandleFunc("", h.CreateChallenge).Methods("POST")
	r.HandleFunc("/{id}", h.GetChallenge).Methods("GET")
	r.HandleFunc("/{id}/invitations", h.InviteParticipant).Methods("POST")
	r.HandleFunc("/{id}/response", h.RespondToInvitation).Methods("POST")
	r.HandleFunc("/{id}/reconcile", h.ReconcileChallenge).Methods("POST")
	r.HandleFunc("/{id}/cancel", h.CancelChallenge).Methods("POST")
}

// CreateChallengeRequest represents a create challenge request
type CreateChallengeRequest struct {
	HabitID           uuid.UUID `json:"habit_id" validate:"required"`
	Title             string    `json:"title" validate:"required,min=1,max=200"`
	Description       *string   `json:"description,omitempty" validate:"omitempty,max=2000"`
	StartDate         string    `json:"start_date" validate:"required,iso_date"`
	EndDate           string    `json:"end_date" validate:"required,iso_date"`
	TargetCompletions int       `json:"target_completions" validate:"required,min=1,max=100000"`
}

// InviteRequest names the invitee by ID or email
type InviteRequest struct {
	UserID *uuid.UUID `json:"user_id,omitempty" validate:"required_without=Email"`
	Email  string     `json:"email,omitempty" validate:"omitempty,email"`
}

// RespondRequest answers an invitation. HabitID optionally binds one of the
// responder's own habits instead of matching by name.
type RespondRequest struct {
	Response string     `json:"response" validate:"required,challenge_response"`
	HabitID  *uuid.UUID `json:"habit_id,omitempty"`
}

// ListChallenges lists challenges the user created or was invited to
func (h *ChallengeHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	list, err := h.service.List(r.Context(), user.ID)
	if err != nil {
		h.respondChallengeError(w, err, "Failed to retrieve challenges")
		return
	}

	respondJSON(w, http.StatusOK, list)
}

// CreateChallenge creates a challenge around one of the user's habits
func (h *ChallengeHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req CreateChallengeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	window, err := analytics.ParseWindow(req.StartDate, req.EndDate)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	challenge, err := h.service.Create(r.Context(), user.ID, challenges.CreateRequest{
		HabitID:           req.HabitID,
		Title:             validation.SanitizeText(req.Title),
		Description:       validation.SanitizeOptional(req.Description),
		StartDate:         window.Start,
		EndDate:           window.End,
		TargetCompletions: req.TargetCompletions,
	})
	if err != nil {
		h.respondChallengeErrorWithNotFound(w, err, "Failed to create challenge", "Habit not found")
		return
	}

	respondJSON(w, http.StatusCreated, challenge)
}

// GetChallenge returns a challenge and its participants
func (h *ChallengeHandler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathID(w, r, "id", "challenge")
	if !ok {
		return
	}

	detail, err := h.service.Get(r.Context(), id, user.ID)
	if err != nil {
		h.respondChallengeError(w, err, "Failed to retrieve challenge")
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// InviteParticipant invites another user. Only the creator may invite.
func (h *ChallengeHandler) InviteParticipant(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathID(w, r, "id", "challenge")
	if !ok {
		return
	}

	var req InviteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	invitee, err := h.resolveInvitee(r.Context(), req)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "User not found")
			return
		}
		h.logger.Error("failed_to_resolve_invitee", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to resolve invitee")
		return
	}

	participant, err := h.service.Invite(r.Context(), id, user.ID, invitee.ID)
	if err != nil {
		h.respondChallengeError(w, err, "Failed to invite participant")
		return
	}

	respondJSON(w, http.StatusCreated, participant)
}

// RespondToInvitation accepts or declines an invitation
func (h *ChallengeHandler) RespondToInvitation(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathID(w, r, "id", "challenge")
	if !ok {
		return
	}

	var req RespondRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	accept := req.Response == "accept"
	participant, err := h.service.Respond(r.Context(), id, user.ID, accept, req.HabitID)
	if err != nil {
		h.respondChallengeErrorWithNotFound(w, err, "Failed to record response", "Challenge or habit not found")
		return
	}

	if accept && h.trigger != nil {
		if err := h.trigger(r.Context(), id); err != nil {
			h.logger.Warn("challenge_reconcile_trigger_failed",
				zap.String("challenge_id", id.String()),
				zap.Error(err),
			)
		}
	}

	respondJSON(w, http.StatusOK, participant)
}

// ReconcileChallenge recomputes progress synchronously and returns the report
func (h *ChallengeHandler) ReconcileChallenge(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathID(w, r, "id", "challenge")
	if !ok {
		return
	}

	ctx := r.Context()
	if _, err := h.service.Get(ctx, id, user.ID); err != nil {
		h.respondChallengeError(w, err, "Failed to retrieve challenge")
		return
	}

	report, err := h.service.Reconcile(ctx, id)
	if err != nil {
		h.respondChallengeError(w, err, "Failed to reconcile challenge")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// CancelChallenge cancels an open challenge. Only the creator may cancel.
func (h *ChallengeHandler) CancelChallenge(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathID(w, r, "id", "challenge")
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), id, user.ID); err != nil {
		h.respondChallengeError(w, err, "Failed to cancel challenge")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChallengeHandler) resolveInvitee(ctx context.Context, req InviteRequest) (*models.User, error) {
	if req.UserID != nil {
		return h.users.GetByID(ctx, *req.UserID)
	}
	return h.users.GetByEmail(ctx, req.Email)
}

// respondChallengeError maps service errors onto HTTP statuses
func (h *ChallengeHandler) respondChallengeError(w http.ResponseWriter, err error, message string) {
	h.respondChallengeErrorWithNotFound(w, err, message, "Challenge not found")
}

func (h *ChallengeHandler) respondChallengeErrorWithNotFound(w http.ResponseWriter, err error, message, notFound string) {
	switch {
	case errors.Is(err, challenges.ErrInvalidChallenge):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, challenges.ErrNotCreator), errors.Is(err, challenges.ErrHabitNotOwned):
		respondJSONError(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, challenges.ErrNotParticipant), errors.Is(err, database.ErrNotFound):
		respondJSONError(w, http.StatusNotFound, "Not Found", notFound)
	case errors.Is(err, challenges.ErrChallengeClosed),
		errors.Is(err, challenges.ErrAlreadyParticipant),
		errors.Is(err, challenges.ErrInvalidTransition):
		respondJSONError(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("challenge_request_failed", zap.String("operation", message), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", message)
	}
}
