package workers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/challenges"
	"github.com/benvon/habit-tracker/internal/database"
	"github.com/benvon/habit-tracker/internal/queue"
	"github.com/google/uuid"
)

func TestProcessor_ReconcileJob(t *testing.T) {
	t.Parallel()

	challengeID := uuid.New()
	tests := []struct {
		name          string
		reconcileErr  error
		failures      int
		expectErr     bool
		expectAck     bool
		expectRetries int
	}{
		{name: "success", expectAck: true},
		{name: "challenge deleted", reconcileErr: fmt.Errorf("failed to get challenge: %w", database.ErrNotFound), expectAck: true},
		{name: "store failure retried", reconcileErr: errors.New("connection reset"), expectErr: true, expectAck: true, expectRetries: 1},
		{name: "partial failure retried", failures: 1, expectErr: true, expectAck: true, expectRetries: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reconciler := &mockReconciler{reconcileFunc: func(ctx context.Context, id uuid.UUID) (*challenges.ReconcileReport, error) {
				if tt.reconcileErr != nil {
					return nil, tt.reconcileErr
				}
				report := &challenges.ReconcileReport{ChallengeID: id}
				for i := 0; i < tt.failures; i++ {
					report.Failures = append(report.Failures, challenges.ParticipantFailure{UserID: uuid.New(), Error: "timeout"})
				}
				return report, nil
			}}
			q := &mockQueue{}
			debouncer := newMemDebouncer()
			p := NewProcessor(reconciler, nil, q, debouncer, nil)

			msg := &mockMessage{job: queue.NewReconcileJob(challengeID, nil, 0)}
			err := p.ProcessJob(context.Background(), msg)

			if (err != nil) != tt.expectErr {
				t.Fatalf("ProcessJob() error = %v, expectErr %v", err, tt.expectErr)
			}
			if msg.acked != tt.expectAck {
				t.Errorf("Expected acked=%v", tt.expectAck)
			}
			if len(q.jobs) != tt.expectRetries {
				t.Fatalf("Expected %d retry jobs, got %d", tt.expectRetries, len(q.jobs))
			}
			if tt.expectRetries > 0 {
				retry := q.jobs[0]
				if retry.RetryCount != 1 || retry.NotBefore == nil {
					t.Errorf("Expected delayed retry with count 1, got %+v", retry)
				}
			}
			if len(debouncer.released) != 1 {
				t.Errorf("Expected pending marker released before reconcile")
			}
		})
	}
}

func TestProcessor_DeadLetters(t *testing.T) {
	t.Parallel()

	exhausted := queue.NewReconcileJob(uuid.New(), nil, 0)
	exhausted.RetryCount = exhausted.MaxRetries

	tests := []struct {
		name string
		job  *queue.Job
	}{
		{name: "unknown type", job: queue.NewJob("compost_habits")},
		{name: "missing challenge id", job: queue.NewJob(queue.JobTypeReconcileChallenge)},
		{name: "invalid window", job: queue.NewLeaderboardRefreshJob("decade", 0)},
		{name: "retries exhausted", job: exhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reconciler := &mockReconciler{reconcileFunc: func(ctx context.Context, id uuid.UUID) (*challenges.ReconcileReport, error) {
				return nil, errors.New("still broken")
			}}
			q := &mockQueue{}
			p := NewProcessor(reconciler, &mockRefresher{}, q, nil, nil)
			msg := &mockMessage{job: tt.job}

			if err := p.ProcessJob(context.Background(), msg); err == nil {
				t.Fatal("Expected error")
			}
			if !msg.nacked || msg.requeue {
				t.Errorf("Expected nack without requeue, got nacked=%v requeue=%v", msg.nacked, msg.requeue)
			}
			if len(q.jobs) != 0 {
				t.Errorf("Expected no retry jobs, got %d", len(q.jobs))
			}
		})
	}
}

func TestProcessor_RetryWithoutQueueRequeues(t *testing.T) {
	t.Parallel()

	refresher := &mockRefresher{err: errors.New("redis down")}
	p := NewProcessor(&mockReconciler{}, refresher, nil, nil, nil)
	msg := &mockMessage{job: queue.NewLeaderboardRefreshJob("month", time.Minute)}

	if err := p.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("Expected error")
	}
	if !msg.nacked || !msg.requeue {
		t.Error("Expected nack with requeue when no queue is available")
	}
}

func TestProcessor_RefreshJob(t *testing.T) {
	t.Parallel()

	refresher := &mockRefresher{}
	p := NewProcessor(&mockReconciler{}, refresher, nil, nil, nil)
	msg := &mockMessage{job: queue.NewLeaderboardRefreshJob("all", time.Minute)}

	if err := p.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !msg.acked {
		t.Error("Expected ack")
	}
	if len(refresher.windows) != 1 || refresher.windows[0] != analytics.LeaderboardAll {
		t.Errorf("Expected all-time window refreshed, got %v", refresher.windows)
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{3, 80 * time.Second},
		{10, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := RetryDelay(tt.retry); got != tt.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}
