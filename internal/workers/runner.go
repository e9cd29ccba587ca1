package workers

import (
	"context"

	"github.com/benvon/habit-tracker/internal/queue"
	"go.uber.org/zap"
)

// JobProcessor handles one delivered message
type JobProcessor interface {
	ProcessJob(ctx context.Context, msg queue.MessageInterface) error
}

var _ JobProcessor = (*Processor)(nil)

// Run drains msgs and errs until ctx is cancelled or msgs is closed
func Run(ctx context.Context, msgs <-chan queue.MessageInterface, errs <-chan error, processor JobProcessor, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("message_channel_closed")
				return
			}
			if err := processor.ProcessJob(ctx, msg); err != nil {
				job := msg.GetJob()
				logger.Error("job_processing_failed",
					zap.String("job_id", job.ID.String()),
					zap.String("job_type", string(job.Type)),
					zap.Error(err),
				)
			}
		}
	}
}
