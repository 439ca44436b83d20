package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/facility-desk/internal/events"
	"github.com/spec-kit/facility-desk/internal/repository"
)

// OutboxRelay publishes committed request events to the dispatcher. A
// message is deleted only after every handler accepted it; otherwise its
// lease runs out and a later pass retries it.
type OutboxRelay struct {
	outbox     repository.OutboxRepository
	dispatcher events.Dispatcher
	batchSize  int
	interval   time.Duration
	lease      time.Duration
	logger     *zap.Logger
}

// NewOutboxRelay builds the relay.
func NewOutboxRelay(outbox repository.OutboxRepository, dispatcher events.Dispatcher, batchSize int, interval, lease time.Duration, logger *zap.Logger) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxRelay{
		outbox:     outbox,
		dispatcher: dispatcher,
		batchSize:  batchSize,
		interval:   interval,
		lease:      lease,
		logger:     logger,
	}
}

// Run relays until ctx is cancelled. A full batch is followed immediately
// by the next one.
func (r *OutboxRelay) Run(ctx context.Context) {
	r.logger.Info("outbox relay started", zap.Duration("interval", r.interval), zap.Int("batch_size", r.batchSize))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		claimed, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("outbox relay pass failed", zap.Error(err))
		}
		if err == nil && claimed == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
		}
	}
}

// RelayOnce claims one batch and publishes it. It returns how many messages
// were claimed.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	messages, err := r.outbox.Claim(ctx, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	done := make([]int64, 0, len(messages))
	for _, msg := range messages {
		fields := []zap.Field{
			zap.Int64("outbox_id", msg.ID),
			zap.String("event_id", msg.EventID),
			zap.String("event_type", msg.EventType),
			zap.Int64("request_id", msg.RequestID),
			zap.Int("attempt", msg.Attempts),
		}
		payload, err := events.DecodePayload(events.EventType(msg.EventType), msg.Payload)
		if err != nil {
			r.logger.Error("dropping undecodable outbox message",
				append(fields, zap.ByteString("payload", msg.Payload), zap.Error(err))...)
			done = append(done, msg.ID)
			continue
		}
		err = r.dispatcher.Publish(ctx, events.Event{
			ID:        msg.EventID,
			Type:      events.EventType(msg.EventType),
			RequestID: msg.RequestID,
			ActorID:   msg.ActorID,
			Timestamp: msg.CreatedAt,
			Payload:   payload,
		})
		if err != nil {
			r.logger.Warn("outbox message kept for retry", append(fields, zap.Error(err))...)
			continue
		}
		done = append(done, msg.ID)
	}
	if err := r.outbox.Delete(ctx, done); err != nil {
		return len(messages), err
	}
	return len(messages), nil
}
