package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is a process-local queue used when Redis is not configured
// and in tests. Jobs do not survive a restart.
type MemoryQueue struct {
	mu     sync.Mutex
	items  []NotificationJob
	dead   []NotificationJob
	signal chan struct{}
}

// NewMemoryQueue returns an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{signal: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job NotificationJob) error {
	q.mu.Lock()
	q.items = append(q.items, job)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			job := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return &Delivery{Job: job}, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-q.signal:
		}
	}
}

func (q *MemoryQueue) Ack(context.Context, *Delivery) error {
	return nil
}

func (q *MemoryQueue) DeadLetter(_ context.Context, d *Delivery, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, d.Job)
	return nil
}

// Len reports the number of pending jobs.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dead returns a copy of dead-lettered jobs.
func (q *MemoryQueue) Dead() []NotificationJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]NotificationJob(nil), q.dead...)
}
