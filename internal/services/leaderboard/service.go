// Package leaderboard builds, caches and refreshes the cross-user leaderboard.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/metrics"
	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel per-user store reads
const DefaultConcurrency = 8

// UserLister lists users eligible for ranking
type UserLister interface {
	ListWithActiveHabits(ctx context.Context) ([]*models.User, error)
}

// HabitLister lists a user's habits
type HabitLister interface {
	ListByOwner(ctx context.Context, ownerID uuid.UUID, includeArchived bool) ([]*models.Habit, error)
}

// EntryLister lists a user's entries
type EntryLister interface {
	ListByOwner(ctx context.Context, ownerID uuid.UUID, w *analytics.Window, includeArchived bool) ([]models.HabitEntry, error)
}

// Cache stores computed leaderboards
type Cache interface {
	Get(ctx context.Context, window analytics.LeaderboardWindow) (*analytics.LeaderboardResult, bool, error)
	Set(ctx context.Context, result *analytics.LeaderboardResult) error
	Invalidate(ctx context.Context, windows ...analytics.LeaderboardWindow) error
}

// Service computes leaderboards from the store
type Service struct {
	users       UserLister
	habits      HabitLister
	entries     EntryLister
	cache       Cache
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

// NewService creates a leaderboard service. cache may be nil.
func NewService(users UserLister, habits HabitLister, entries EntryLister, cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:       users,
		habits:      habits,
		entries:     entries,
		cache:       cache,
		logger:      logger,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
}

// Get returns the leaderboard for a window, from cache when possible
func (s *Service) Get(ctx context.Context, window analytics.LeaderboardWindow) (*analytics.LeaderboardResult, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, window)
		if err != nil {
			s.logger.Warn("leaderboard_cache_read_failed", zap.String("window", string(window)), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	result, err := s.Compute(ctx, window)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, result); err != nil {
			s.logger.Warn("leaderboard_cache_write_failed", zap.String("window", string(window)), zap.Error(err))
		}
	}
	return result, nil
}

// Compute scores every eligible user for a window, bypassing the cache.
// A user whose data cannot be loaded is reported in Skipped.
func (s *Service) Compute(ctx context.Context, window analytics.LeaderboardWindow) (*analytics.LeaderboardResult, error) {
	start := time.Now()
	defer metrics.ObserveComputation("leaderboard", start)

	users, err := s.users.ListWithActiveHabits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	now := s.now()
	w := analytics.CalendarWindow(window, now)
	inputs := make([]analytics.LeaderboardInput, len(users))
	loadErrs := make([]error, len(users))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, u := range users {
		g.Go(func() error {
			in, err := s.loadInput(gctx, u, w)
			if err != nil {
				loadErrs[i] = err
				return nil
			}
			inputs[i] = in
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("leaderboard computation cancelled: %w", err)
	}

	scored := make([]analytics.LeaderboardInput, 0, len(users))
	var skipped []analytics.SkippedUser
	for i, u := range users {
		if loadErrs[i] != nil {
			s.logger.Warn("leaderboard_user_skipped", zap.String("user_id", u.ID.String()), zap.Error(loadErrs[i]))
			skipped = append(skipped, analytics.SkippedUser{UserID: u.ID, Reason: loadErrs[i].Error()})
			continue
		}
		scored = append(scored, inputs[i])
	}

	result := analytics.ScoreLeaderboard(scored, window, now)
	for _, sk := range result.Skipped {
		s.logger.Warn("leaderboard_user_skipped", zap.String("user_id", sk.UserID.String()), zap.String("reason", sk.Reason))
	}
	result.Skipped = append(skipped, result.Skipped...)

	s.logger.Debug("leaderboard_computed",
		zap.String("window", string(window)),
		zap.Int("ranked", len(result.Entries)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return &result, nil
}

// Refresh recomputes and caches every window
func (s *Service) Refresh(ctx context.Context) error {
	for _, window := range analytics.LeaderboardWindows {
		if err := s.RefreshWindow(ctx, window); err != nil {
			return err
		}
	}
	s.logger.Info("leaderboard_refreshed", zap.Int("windows", len(analytics.LeaderboardWindows)))
	return nil
}

// RefreshWindow recomputes one window and stores it in the cache
func (s *Service) RefreshWindow(ctx context.Context, window analytics.LeaderboardWindow) error {
	result, err := s.Compute(ctx, window)
	if err != nil {
		return fmt.Errorf("failed to compute %s leaderboard: %w", window, err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, result); err != nil {
			return fmt.Errorf("failed to cache %s leaderboard: %w", window, err)
		}
	}
	return nil
}

// Invalidate drops cached leaderboards so the next read recomputes
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

func (s *Service) loadInput(ctx context.Context, u *models.User, w analytics.Window) (analytics.LeaderboardInput, error) {
	habits, err := s.habits.ListByOwner(ctx, u.ID, false)
	if err != nil {
		return analytics.LeaderboardInput{}, fmt.Errorf("failed to list habits: %w", err)
	}
	entries, err := s.entries.ListByOwner(ctx, u.ID, &w, false)
	if err != nil {
		return analytics.LeaderboardInput{}, fmt.Errorf("failed to list entries: %w", err)
	}
	return analytics.LeaderboardInput{
		UserID:      u.ID,
		DisplayName: u.DisplayName(),
		Habits:      habits,
		Entries:     entries,
	}, nil
}
