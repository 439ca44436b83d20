package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/facility-desk/internal/domain"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

func TestNotifyAlwaysCreatesNewUnreadNotification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.notifier.Notify(ctx, employeeID, nil, "Same text")
	require.NoError(t, err)
	second, err := env.notifier.Notify(ctx, employeeID, nil, "Same text")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, second.IsRead)
	assert.Len(t, env.notifications.forUser(employeeID), 2)

	_, err = env.notifier.Notify(ctx, employeeID, nil, "   ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestMarkReadIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	n, err := env.notifier.Notify(ctx, employeeID, nil, "hello")
	require.NoError(t, err)

	got, err := env.notifier.MarkRead(ctx, employee, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)

	got, err = env.notifier.MarkRead(ctx, employee, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)

	stored, err := env.notifications.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRead)
}

func TestMarkReadRejectsOtherUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	n, err := env.notifier.Notify(ctx, employeeID, nil, "hello")
	require.NoError(t, err)

	_, err = env.notifier.MarkRead(ctx, otherEmp, n.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	stored, _ := env.notifications.GetByID(ctx, n.ID)
	assert.False(t, stored.IsRead)

	_, err = env.notifier.MarkRead(ctx, employee, 999)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestFeedSplitsByReadStateNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	var ids []int64
	for _, text := range []string{"one", "two", "three", "four"} {
		n, err := env.notifier.Notify(ctx, employeeID, nil, text)
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}
	_, err := env.notifier.Notify(ctx, otherEmpID, nil, "not mine")
	require.NoError(t, err)
	_, err = env.notifier.MarkRead(ctx, employee, ids[1])
	require.NoError(t, err)

	feed, err := env.notifier.FeedFor(ctx, employeeID)
	require.NoError(t, err)
	require.Len(t, feed.Unread, 3)
	require.Len(t, feed.Read, 1)
	assert.Equal(t, "four", feed.Unread[0].Text)
	assert.Equal(t, "one", feed.Unread[2].Text)
	assert.Equal(t, "two", feed.Read[0].Text)
}

func TestUnreadCountMatchesStoredUnread(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	var last *domain.Notification
	for i := 0; i < 120; i++ {
		n, err := env.notifier.Notify(ctx, employeeID, nil, "ping")
		require.NoError(t, err)
		last = n
	}
	_, err := env.notifier.MarkRead(ctx, employee, last.ID)
	require.NoError(t, err)

	count, err := env.notifier.UnreadCount(ctx, employeeID)
	require.NoError(t, err)
	feed, err := env.notifier.FeedFor(ctx, employeeID)
	require.NoError(t, err)
	assert.Equal(t, len(feed.Unread), count)
	assert.Equal(t, 119, count)
	assert.Equal(t, "99+", DisplayCount(count))
}

func TestDisplayCount(t *testing.T) {
	assert.Equal(t, "0", DisplayCount(0))
	assert.Equal(t, "7", DisplayCount(7))
	assert.Equal(t, "99", DisplayCount(99))
	assert.Equal(t, "99+", DisplayCount(100))
	assert.Equal(t, "0", DisplayCount(-1))
}

func TestStatusTextPerStatus(t *testing.T) {
	assert.Equal(t, "Your request #3 has been completed!", statusText(3, domain.StatusCompleted, true))
	assert.Equal(t, "Your request #3 has been sent back for revision.", statusText(3, domain.StatusRevision, true))
	assert.Equal(t, "Your request #3 is awaiting purchase.", statusText(3, domain.StatusAwaitingPurchase, true))
	assert.Equal(t, "Request #3 has been resubmitted after revision.", statusText(3, domain.StatusNew, false))
}
