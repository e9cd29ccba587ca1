package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/habit-tracker/internal/challenges"
	"github.com/benvon/habit-tracker/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultReconcileDebounce collapses bursts of check-ins into one reconcile
const DefaultReconcileDebounce = 5 * time.Second

// ChallengeReconciler is the part of the challenge service the workers drive
type ChallengeReconciler interface {
	AffectedChallenges(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	Reconcile(ctx context.Context, challengeID uuid.UUID) (*challenges.ReconcileReport, error)
}

// LeaderboardInvalidator drops cached leaderboards
type LeaderboardInvalidator interface {
	Invalidate(ctx context.Context) error
}

var _ ChallengeReconciler = (*challenges.Service)(nil)

// Dispatcher reacts to habit and entry writes. It drops cached leaderboards
// and schedules reconciliation of every open challenge the user is in: as a
// debounced queue job when a queue is configured, inline otherwise.
type Dispatcher struct {
	challenges  ChallengeReconciler
	leaderboard LeaderboardInvalidator
	jobQueue    queue.JobQueue
	debouncer   Debouncer
	debounce    time.Duration
	logger      *zap.Logger
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithJobQueue sends reconciliation through the queue instead of running it inline
func WithJobQueue(q queue.JobQueue) DispatcherOption {
	return func(d *Dispatcher) {
		d.jobQueue = q
	}
}

// WithDebouncer suppresses duplicate jobs while one is pending
func WithDebouncer(debouncer Debouncer) DispatcherOption {
	return func(d *Dispatcher) {
		d.debouncer = debouncer
	}
}

// WithDebounce sets how long queued reconcile jobs wait before running
func WithDebounce(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.debounce = delay
	}
}

// NewDispatcher creates a change dispatcher. leaderboard may be nil.
func NewDispatcher(reconciler ChallengeReconciler, leaderboard LeaderboardInvalidator, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		challenges:  reconciler,
		leaderboard: leaderboard,
		debounce:    DefaultReconcileDebounce,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnEntryChange handles a write to one of userID's habits or entries
func (d *Dispatcher) OnEntryChange(ctx context.Context, userID uuid.UUID) error {
	if d.leaderboard != nil {
		if err := d.leaderboard.Invalidate(ctx); err != nil {
			d.logger.Warn("leaderboard_invalidate_failed",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
	}

	ids, err := d.challenges.AffectedChallenges(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find affected challenges: %w", err)
	}

	var errs []error
	for _, id := range ids {
		if err := d.schedule(ctx, id, &userID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TriggerReconcile schedules reconciliation of one challenge
func (d *Dispatcher) TriggerReconcile(ctx context.Context, challengeID uuid.UUID) error {
	return d.schedule(ctx, challengeID, nil)
}

func (d *Dispatcher) schedule(ctx context.Context, challengeID uuid.UUID, triggeredBy *uuid.UUID) error {
	if d.jobQueue == nil {
		if _, err := d.challenges.Reconcile(ctx, challengeID); err != nil {
			return fmt.Errorf("failed to reconcile challenge %s: %w", challengeID, err)
		}
		return nil
	}

	if d.debouncer != nil {
		claimed, err := d.debouncer.Claim(ctx, challengeID, d.markerTTL())
		if err != nil {
			d.logger.Warn("reconcile_debounce_unavailable",
				zap.String("challenge_id", challengeID.String()),
				zap.Error(err),
			)
		} else if !claimed {
			d.logger.Debug("reconcile_already_pending", zap.String("challenge_id", challengeID.String()))
			return nil
		}
	}

	job := queue.NewReconcileJob(challengeID, triggeredBy, d.debounce)
	if err := d.jobQueue.Enqueue(ctx, job); err != nil {
		if d.debouncer != nil {
			_ = d.debouncer.Release(ctx, challengeID)
		}
		return fmt.Errorf("failed to enqueue reconcile job: %w", err)
	}

	d.logger.Info("enqueued_reconcile_job",
		zap.String("challenge_id", challengeID.String()),
		zap.String("job_id", job.ID.String()),
		zap.Duration("debounce_delay", d.debounce),
	)
	return nil
}

// markerTTL outlives the debounce delay so a slow consumer does not let duplicates through
func (d *Dispatcher) markerTTL() time.Duration {
	return d.debounce*4 + time.Minute
}
