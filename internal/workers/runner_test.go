package workers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/benvon/habit-tracker/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingProcessor struct {
	mu   sync.Mutex
	seen []uuid.UUID
	err  error
}

func (p *recordingProcessor) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, msg.GetJob().ID)
	return p.err
}

func TestRun(t *testing.T) {
	t.Parallel()

	msgs := make(chan queue.MessageInterface, 2)
	errs := make(chan error, 1)
	first := &mockMessage{job: queue.NewJob(queue.JobTypeRefreshLeaderboard)}
	second := &mockMessage{job: queue.NewJob(queue.JobTypeReconcileChallenge)}
	msgs <- first
	msgs <- second
	errs <- errors.New("channel hiccup")
	close(errs)
	close(msgs)

	core, logs := observer.New(zapcore.InfoLevel)
	processor := &recordingProcessor{err: errors.New("boom")}
	Run(context.Background(), msgs, errs, processor, zap.New(core))

	if len(processor.seen) != 2 {
		t.Fatalf("Expected both messages processed, got %d", len(processor.seen))
	}
	if logs.FilterMessage("job_processing_failed").Len() != 2 {
		t.Errorf("Expected processing failures logged")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Run(ctx, make(chan queue.MessageInterface), make(chan error), &recordingProcessor{}, zap.NewNop())
}
