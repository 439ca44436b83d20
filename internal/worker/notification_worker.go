package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/queue"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

// Notifier persists one notification.
type Notifier interface {
	Notify(ctx context.Context, userID int64, requestID *int64, text string) (*domain.Notification, error)
}

// NotificationWorker drains the notification queue into the database.
// Delivery is at least once: a job is acknowledged only after the
// notification row exists, and failures are retried up to maxAttempts.
type NotificationWorker struct {
	queue        queue.NotificationQueue
	notifier     Notifier
	maxAttempts  int
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewNotificationWorker builds the worker.
func NewNotificationWorker(q queue.NotificationQueue, notifier Notifier, maxAttempts int, pollInterval time.Duration, logger *zap.Logger) *NotificationWorker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		queue:        q,
		notifier:     notifier,
		maxAttempts:  maxAttempts,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run consumes jobs until ctx is cancelled.
func (w *NotificationWorker) Run(ctx context.Context) {
	w.logger.Info("notification worker started", zap.Int("max_attempts", w.maxAttempts))
	for {
		if ctx.Err() != nil {
			w.logger.Info("notification worker stopped")
			return
		}
		if _, err := w.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("notification queue unavailable", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// ProcessOne handles at most one job. It reports whether a job was taken.
func (w *NotificationWorker) ProcessOne(ctx context.Context) (bool, error) {
	delivery, err := w.queue.Dequeue(ctx, w.pollInterval)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	w.handle(ctx, delivery)
	return true, nil
}

func (w *NotificationWorker) handle(ctx context.Context, d *queue.Delivery) {
	job := d.Job
	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.Int64("user_id", job.UserID),
		zap.Int("attempt", job.Attempt+1),
	}
	if job.RequestID != nil {
		fields = append(fields, zap.Int64("request_id", *job.RequestID))
	}

	_, err := w.notifier.Notify(ctx, job.UserID, job.RequestID, job.Text)
	if err == nil {
		if ackErr := w.queue.Ack(ctx, d); ackErr != nil {
			w.logger.Warn("notification ack failed; job may be delivered again", append(fields, zap.Error(ackErr))...)
		}
		return
	}

	w.logger.Error("notification delivery failed", append(fields, zap.Error(err))...)
	if apperrors.HasCode(err, apperrors.CodeValidation) || job.Attempt+1 >= w.maxAttempts {
		if dlErr := w.queue.DeadLetter(ctx, d, err.Error()); dlErr != nil {
			w.logger.Error("dead-letter failed", append(fields, zap.Error(dlErr))...)
		}
		return
	}

	retry := job
	retry.Attempt++
	if enqErr := w.queue.Enqueue(ctx, retry); enqErr != nil {
		// Leave the job unacknowledged so queue recovery can pick it up.
		w.logger.Error("notification requeue failed", append(fields, zap.Error(enqErr))...)
		return
	}
	if ackErr := w.queue.Ack(ctx, d); ackErr != nil {
		w.logger.Warn("notification ack failed after requeue", append(fields, zap.Error(ackErr))...)
	}
}
