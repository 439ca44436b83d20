package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, NotificationJob{ID: "a", UserID: 1}))
	require.NoError(t, q.Enqueue(ctx, NotificationJob{ID: "b", UserID: 2}))
	assert.Equal(t, 2, q.Len())

	first, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "a", first.Job.ID)

	second, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "b", second.Job.ID)
}

func TestMemoryQueueDequeueTimesOut(t *testing.T) {
	q := NewMemoryQueue()
	d, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestMemoryQueueWakesWaitingConsumer(t *testing.T) {
	q := NewMemoryQueue()
	got := make(chan *Delivery, 1)
	go func() {
		d, _ := q.Dequeue(context.Background(), 2*time.Second)
		got <- d
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), NotificationJob{ID: "late"}))

	select {
	case d := <-got:
		require.NotNil(t, d)
		assert.Equal(t, "late", d.Job.ID)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken")
	}
}

func TestMemoryQueueDequeueHonoursContext(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueueDeadLetter(t *testing.T) {
	q := NewMemoryQueue()
	d := &Delivery{Job: NotificationJob{ID: "x"}}
	require.NoError(t, q.DeadLetter(context.Background(), d, "boom"))
	dead := q.Dead()
	require.Len(t, dead, 1)
	assert.Equal(t, "x", dead[0].ID)
}
