package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/benvon/habit-tracker/internal/database"
	"github.com/benvon/habit-tracker/internal/logger"
	"github.com/benvon/habit-tracker/internal/models"
	"github.com/benvon/habit-tracker/internal/request"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenVerifier validates a bearer token and returns its identity claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.TokenClaims, error)
}

// UserStore is the subset of the user repository the auth middleware needs
type UserStore interface {
	GetByProviderID(ctx context.Context, providerID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

// UserFromContext extracts the user from the request context
func UserFromContext(r *http.Request) *models.User {
	return request.UserFromContext(r)
}

// Auth creates authentication middleware that validates bearer tokens and
// attaches the matching user to the request, creating it on first sight
func Auth(users UserStore, verifier TokenVerifier, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, "Missing Authorization header")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
				respondError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			ctx := r.Context()
			claims, err := verifier.Verify(ctx, strings.TrimSpace(tokenString))
			if err != nil {
				log.Info("token_verification_failed",
					zap.String("path", logger.SanitizePath(r.URL.Path)),
					zap.String("error", logger.SanitizeError(err)),
				)
				respondError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			user, err := resolveUser(ctx, users, claims, log)
			if err != nil {
				log.Error("user_lookup_failed",
					zap.String("subject", logger.SanitizeUserID(claims.Sub)),
					zap.Error(err),
				)
				respondError(w, http.StatusInternalServerError, "Database error")
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(ctx, user)))
		})
	}
}

// resolveUser finds the user for the token subject, creating it if missing
// and refreshing email or name when the identity provider changed them
func resolveUser(ctx context.Context, users UserStore, claims *models.TokenClaims, log *zap.Logger) (*models.User, error) {
	user, err := users.GetByProviderID(ctx, claims.Sub)
	if errors.Is(err, database.ErrNotFound) {
		sub := claims.Sub
		user = &models.User{
			ID:            uuid.New(),
			Email:         claims.Email,
			ProviderID:    &sub,
			EmailVerified: true,
		}
		if claims.Name != "" {
			name := claims.Name
			user.Name = &name
		}
		if err := users.Create(ctx, user); err != nil {
			return nil, err
		}
		log.Info("user_created", zap.String("user_id", user.ID.String()))
		return user, nil
	}
	if err != nil {
		return nil, err
	}

	updateNeeded := false
	if claims.Email != "" && user.Email != claims.Email {
		user.Email = claims.Email
		updateNeeded = true
	}
	if claims.Name != "" && (user.Name == nil || *user.Name != claims.Name) {
		name := claims.Name
		user.Name = &name
		updateNeeded = true
	}
	if updateNeeded {
		if err := users.Update(ctx, user); err != nil {
			log.Warn("user_profile_update_failed",
				zap.String("user_id", user.ID.String()),
				zap.Error(err),
			)
		}
	}
	return user, nil
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success": false,
		"error":   http.StatusText(status),
		"message": message,
	}

	_ = json.NewEncoder(w).Encode(response)
}
