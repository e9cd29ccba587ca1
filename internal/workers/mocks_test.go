package workers

import (
	"context"
	"sync"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/challenges"
	"github.com/benvon/habit-tracker/internal/queue"
	"github.com/google/uuid"
)

type mockReconciler struct {
	mu             sync.Mutex
	affected       map[uuid.UUID][]uuid.UUID
	affectedErr    error
	reconcileFunc  func(ctx context.Context, id uuid.UUID) (*challenges.ReconcileReport, error)
	reconcileCalls []uuid.UUID
}

func (m *mockReconciler) AffectedChallenges(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	if m.affectedErr != nil {
		return nil, m.affectedErr
	}
	return m.affected[userID], nil
}

func (m *mockReconciler) Reconcile(ctx context.Context, id uuid.UUID) (*challenges.ReconcileReport, error) {
	m.mu.Lock()
	m.reconcileCalls = append(m.reconcileCalls, id)
	m.mu.Unlock()
	if m.reconcileFunc != nil {
		return m.reconcileFunc(ctx, id)
	}
	return &challenges.ReconcileReport{ChallengeID: id}, nil
}

type mockInvalidator struct {
	calls int
	err   error
}

func (m *mockInvalidator) Invalidate(ctx context.Context) error {
	m.calls++
	return m.err
}

type mockQueue struct {
	mu         sync.Mutex
	jobs       []*queue.Job
	enqueueErr error
}

func (m *mockQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mockQueue) Consume(ctx context.Context, prefetchCount int) (<-chan queue.MessageInterface, <-chan error, error) {
	return nil, nil, nil
}

func (m *mockQueue) Close() error { return nil }

func (m *mockQueue) HealthCheck(ctx context.Context) error { return nil }

type memDebouncer struct {
	mu       sync.Mutex
	pending  map[uuid.UUID]bool
	released []uuid.UUID
}

func newMemDebouncer() *memDebouncer {
	return &memDebouncer{pending: make(map[uuid.UUID]bool)}
}

func (d *memDebouncer) Claim(ctx context.Context, id uuid.UUID, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending[id] {
		return false, nil
	}
	d.pending[id] = true
	return true, nil
}

func (d *memDebouncer) Release(ctx context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, id)
	d.released = append(d.released, id)
	return nil
}

type mockMessage struct {
	job     *queue.Job
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockMessage) Ack() error { m.acked = true; return nil }

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job { return m.job }

type mockRefresher struct {
	mu      sync.Mutex
	windows []analytics.LeaderboardWindow
	err     error
}

func (m *mockRefresher) RefreshWindow(ctx context.Context, window analytics.LeaderboardWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows = append(m.windows, window)
	return m.err
}

var (
	_ ChallengeReconciler    = (*mockReconciler)(nil)
	_ LeaderboardInvalidator = (*mockInvalidator)(nil)
	_ queue.JobQueue         = (*mockQueue)(nil)
	_ Debouncer              = (*memDebouncer)(nil)
	_ queue.MessageInterface = (*mockMessage)(nil)
	_ WindowRefresher        = (*mockRefresher)(nil)
)
