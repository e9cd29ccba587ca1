package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/queue"
	"go.uber.org/zap"
)

// DefaultRefreshInterval is how often cached leaderboards are rebuilt
const DefaultRefreshInterval = 10 * time.Minute

// LeaderboardScheduler periodically rebuilds every leaderboard window, through
// the queue when one is configured so only one worker does each window
type LeaderboardScheduler struct {
	refresher WindowRefresher
	jobQueue  queue.JobQueue
	interval  time.Duration
	logger    *zap.Logger
}

// NewLeaderboardScheduler creates a scheduler. jobQueue may be nil.
func NewLeaderboardScheduler(refresher WindowRefresher, jobQueue queue.JobQueue, interval time.Duration, logger *zap.Logger) *LeaderboardScheduler {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaderboardScheduler{
		refresher: refresher,
		jobQueue:  jobQueue,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules one round immediately and then every interval until ctx is cancelled
func (s *LeaderboardScheduler) Start(ctx context.Context) error {
	if err := s.ScheduleRefresh(ctx); err != nil {
		s.logger.Warn("leaderboard_refresh_schedule_failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.ScheduleRefresh(ctx); err != nil {
				s.logger.Warn("leaderboard_refresh_schedule_failed", zap.Error(err))
			}
		}
	}
}

// ScheduleRefresh enqueues one refresh job per window, or refreshes inline without a queue.
// Queued jobs expire at the next tick so a backlog never piles up.
func (s *LeaderboardScheduler) ScheduleRefresh(ctx context.Context) error {
	var errs []error
	for _, window := range analytics.LeaderboardWindows {
		if s.jobQueue == nil {
			if err := s.refresher.RefreshWindow(ctx, window); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		job := queue.NewLeaderboardRefreshJob(string(window), s.interval)
		if err := s.jobQueue.Enqueue(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("failed to enqueue %s refresh: %w", window, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Debug("leaderboard_refresh_scheduled",
		zap.Int("windows", len(analytics.LeaderboardWindows)),
		zap.Bool("queued", s.jobQueue != nil),
	)
	return nil
}
