package handlers

import (
	"context"
	"net/http"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// LeaderboardProvider returns a ranked leaderboard for a window
type LeaderboardProvider interface {
	Get(ctx context.Context, window analytics.LeaderboardWindow) (*analytics.LeaderboardResult, error)
}

// LeaderboardHandler serves the cross-user ranking
type LeaderboardHandler struct {
	provider LeaderboardProvider
	logger   *zap.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(provider LeaderboardProvider, logger *zap.Logger) *LeaderboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaderboardHandler{provider: provider, logger: logger}
}

// RegisterRoutes registers leaderboard routes on the given router
// The router should already have the /leaderboard prefix
func (h *LeaderboardHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.GetLeaderboard).Methods("GET")
}

// GetLeaderboard returns the ranking for ?window=week|month|all (default week)
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if user := requireUser(w, r); user == nil {
		return
	}

	raw := r.URL.Query().Get("window")
	if raw == "" {
		raw = string(analytics.LeaderboardWeek)
	}
	window, err := analytics.ParseLeaderboardWindow(raw)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid window: must be 'week', 'month', or 'all'")
		return
	}

	result, err := h.provider.Get(r.Context(), window)
	if err != nil {
		h.logger.Error("failed_to_get_leaderboard", zap.String("window", string(window)), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to compute leaderboard")
		return
	}

	respondJSON(w, http.StatusOK, result)
}
