package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/database"
	"github.com/benvon/habit-tracker/internal/metrics"
	"github.com/benvon/habit-tracker/internal/queue"
	"github.com/benvon/habit-tracker/internal/services/leaderboard"
	"github.com/benvon/habit-tracker/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	baseRetryDelay = 10 * time.Second
	maxRetryDelay  = 5 * time.Minute
)

// errPermanent marks failures that retrying cannot fix
var errPermanent = errors.New("permanent job failure")

// WindowRefresher recomputes one cached leaderboard window
type WindowRefresher interface {
	RefreshWindow(ctx context.Context, window analytics.LeaderboardWindow) error
}

var _ WindowRefresher = (*leaderboard.Service)(nil)

// Processor executes queued jobs
type Processor struct {
	challenges ChallengeReconciler
	refresher  WindowRefresher
	jobQueue   queue.JobQueue
	debouncer  Debouncer
	logger     *zap.Logger
}

// NewProcessor creates a job processor. jobQueue is used to re-enqueue
// failed jobs with a delay and may be nil, in which case they are requeued
// immediately. debouncer may be nil.
func NewProcessor(reconciler ChallengeReconciler, refresher WindowRefresher, jobQueue queue.JobQueue, debouncer Debouncer, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		challenges: reconciler,
		refresher:  refresher,
		jobQueue:   jobQueue,
		debouncer:  debouncer,
		logger:     logger,
	}
}

// ProcessJob runs msg's job and acknowledges it
func (p *Processor) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	ctx, span := telemetry.StartSpan(ctx, "job."+string(job.Type),
		attribute.String("job.id", job.ID.String()),
		attribute.Int("job.retry_count", job.RetryCount),
	)
	err := p.run(ctx, job)
	telemetry.EndSpan(span, err)
	metrics.TrackJob(string(job.Type), err)

	if err != nil {
		return p.handleJobError(ctx, msg, job, err)
	}
	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job: %w", ackErr)
	}
	return nil
}

func (p *Processor) run(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeReconcileChallenge:
		return p.reconcile(ctx, job)
	case queue.JobTypeRefreshLeaderboard:
		return p.refresh(ctx, job)
	default:
		return fmt.Errorf("%w: unknown job type %q", errPermanent, job.Type)
	}
}

func (p *Processor) reconcile(ctx context.Context, job *queue.Job) error {
	if job.ChallengeID == nil {
		return fmt.Errorf("%w: challenge_id is required for reconcile job", errPermanent)
	}
	challengeID := *job.ChallengeID

	// Release before running so changes made during the run schedule a new job
	if p.debouncer != nil {
		if err := p.debouncer.Release(ctx, challengeID); err != nil {
			p.logger.Warn("reconcile_marker_release_failed",
				zap.String("challenge_id", challengeID.String()),
				zap.Error(err),
			)
		}
	}

	report, err := p.challenges.Reconcile(ctx, challengeID)
	if errors.Is(err, database.ErrNotFound) {
		p.logger.Info("reconcile_challenge_gone", zap.String("challenge_id", challengeID.String()))
		return nil
	}
	if err != nil {
		return err
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d participant(s) could not be reconciled", len(report.Failures))
	}
	return nil
}

func (p *Processor) refresh(ctx context.Context, job *queue.Job) error {
	window, err := analytics.ParseLeaderboardWindow(job.Window)
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	if p.refresher == nil {
		return fmt.Errorf("%w: leaderboard refresh is not configured", errPermanent)
	}
	return p.refresher.RefreshWindow(ctx, window)
}

// RetryDelay is the backoff before attempt retryCount+1
func RetryDelay(retryCount int) time.Duration {
	delay := baseRetryDelay
	for i := 0; i < retryCount && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

// handleJobError retries with backoff through the queue and dead-letters the job once retries run out
func (p *Processor) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Int("retry_count", job.RetryCount),
		zap.Error(err),
	}

	if errors.Is(err, errPermanent) || !job.CanRetry() {
		p.logger.Error("job_dead_lettered", fields...)
		if nackErr := msg.Nack(false); nackErr != nil {
			p.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("job failed permanently: %w", err)
	}

	if p.jobQueue == nil {
		p.logger.Warn("job_requeued", fields...)
		if nackErr := msg.Nack(true); nackErr != nil {
			p.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	retry := *job
	retry.RetryCount++
	notBefore := time.Now().Add(RetryDelay(job.RetryCount))
	retry.NotBefore = &notBefore

	if enqueueErr := p.jobQueue.Enqueue(ctx, &retry); enqueueErr != nil {
		p.logger.Warn("job_retry_enqueue_failed", append(fields, zap.NamedError("enqueue_error", enqueueErr))...)
		if nackErr := msg.Nack(true); nackErr != nil {
			p.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("job failed, re-enqueue failed: %w", errors.Join(err, enqueueErr))
	}
	if ackErr := msg.Ack(); ackErr != nil {
		p.logger.Warn("job_ack_failed", zap.String("job_id", job.ID.String()), zap.Error(ackErr))
	}

	p.logger.Warn("job_retry_scheduled", append(fields, zap.Time("not_before", notBefore))...)
	return fmt.Errorf("job failed (retry scheduled): %w", err)
}
