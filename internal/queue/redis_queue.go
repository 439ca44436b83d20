package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisQueue is a reliable list queue: jobs move atomically from the
// pending list to a processing list and are removed only on Ack, so a
// crashed worker leaves them recoverable.
type RedisQueue struct {
	client        *redis.Client
	pendingKey    string
	processingKey string
	deadKey       string
	logger        *zap.Logger
}

// NewRedisQueue builds a queue rooted at key.
func NewRedisQueue(client *redis.Client, key string, logger *zap.Logger) *RedisQueue {
	return &RedisQueue{
		client:        client,
		pendingKey:    key + ":pending",
		processingKey: key + ":processing",
		deadKey:       key + ":dead",
		logger:        logger,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job NotificationJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return q.client.LPush(ctx, q.pendingKey, payload).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	raw, err := q.client.BLMove(ctx, q.pendingKey, q.processingKey, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var job NotificationJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.logger.Error("dead-lettering undecodable notification job", zap.String("payload", raw), zap.Error(err))
		if err := q.park(ctx, raw); err != nil {
			q.logger.Error("dead-letter of undecodable job failed; left in processing list",
				zap.String("payload", raw), zap.Error(err))
		}
		return nil, nil
	}
	return &Delivery{Job: job, raw: raw}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	return q.client.LRem(ctx, q.processingKey, 1, d.raw).Err()
}

func (q *RedisQueue) DeadLetter(ctx context.Context, d *Delivery, reason string) error {
	q.logger.Warn("notification job dead-lettered",
		zap.String("job_id", d.Job.ID),
		zap.Int64("user_id", d.Job.UserID),
		zap.String("reason", reason))
	return q.park(ctx, d.raw)
}

// park moves raw from the processing list to the dead list atomically.
func (q *RedisQueue) park(ctx context.Context, raw string) error {
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.deadKey, raw)
	pipe.LRem(ctx, q.processingKey, 1, raw)
	_, err := pipe.Exec(ctx)
	return err
}

// Recover returns jobs left in the processing list by a previous run to the
// pending list. Call it before starting workers.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processingKey, q.pendingKey, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}
