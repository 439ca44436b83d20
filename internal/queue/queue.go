// Package queue holds notification jobs between a lifecycle change and
// the worker that persists the notification.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrQueueClosed is returned once a queue no longer accepts work.
var ErrQueueClosed = errors.New("queue closed")

// NotificationJob asks the worker to create one notification.
type NotificationJob struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	RequestID  *int64    `json:"request_id,omitempty"`
	Text       string    `json:"text"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Delivery is a dequeued job that must be acknowledged once handled.
type Delivery struct {
	Job NotificationJob
	raw string
}

// NotificationQueue is an at-least-once job queue.
type NotificationQueue interface {
	Enqueue(ctx context.Context, job NotificationJob) error
	// Dequeue waits up to timeout for a job. It returns nil, nil when the
	// wait expired without work.
	Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// DeadLetter parks a job that exhausted its retries.
	DeadLetter(ctx context.Context, d *Delivery, reason string) error
}
