package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/queue"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

var allStatuses = []domain.RequestStatus{
	domain.StatusNew,
	domain.StatusRevision,
	domain.StatusInProgress,
	domain.StatusAwaitingPurchase,
	domain.StatusCompleted,
	domain.StatusArchived,
}

func TestCheckTransitionFollowsLifecycleGraph(t *testing.T) {
	allowed := map[domain.RequestStatus][]domain.RequestStatus{
		domain.StatusNew:              {domain.StatusInProgress, domain.StatusRevision, domain.StatusAwaitingPurchase, domain.StatusCompleted},
		domain.StatusRevision:         {domain.StatusNew, domain.StatusInProgress},
		domain.StatusInProgress:       {domain.StatusCompleted, domain.StatusAwaitingPurchase, domain.StatusRevision},
		domain.StatusAwaitingPurchase: {domain.StatusInProgress, domain.StatusCompleted},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			from, to := from, to
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				req := &domain.Request{ID: 1, UserID: employeeID, Status: from}
				noop, err := CheckTransition(aho, req, to)
				switch {
				case from == to:
					require.NoError(t, err)
					assert.True(t, noop)
				case containsStatus(allowed[from], to):
					require.NoError(t, err)
					assert.False(t, noop)
				default:
					require.Error(t, err)
					assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "got %v", err)
				}
			})
		}
	}
}

func TestCheckTransitionRoles(t *testing.T) {
	cases := []struct {
		name   string
		caller domain.Caller
		from   domain.RequestStatus
		to     domain.RequestStatus
		code   string
	}{
		{"creator resubmits revision", employee, domain.StatusRevision, domain.StatusNew, ""},
		{"creator cannot start work", employee, domain.StatusNew, domain.StatusInProgress, apperrors.CodeForbidden},
		{"creator cannot complete", employee, domain.StatusInProgress, domain.StatusCompleted, apperrors.CodeForbidden},
		{"creator cannot send to revision", employee, domain.StatusNew, domain.StatusRevision, apperrors.CodeForbidden},
		{"stranger cannot move", otherEmp, domain.StatusNew, domain.StatusInProgress, apperrors.CodeForbidden},
		{"supervisor cannot move", supervisor, domain.StatusNew, domain.StatusInProgress, apperrors.CodeForbidden},
		{"aho completes", aho, domain.StatusAwaitingPurchase, domain.StatusCompleted, ""},
		{"unknown status", aho, domain.StatusNew, domain.RequestStatus("done"), apperrors.CodeValidation},
		{"terminal for creator", employee, domain.StatusCompleted, domain.StatusNew, apperrors.CodeInvalidTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := &domain.Request{ID: 1, UserID: employeeID, Status: tc.from}
			_, err := CheckTransition(tc.caller, req, tc.to)
			if tc.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.HasCode(err, tc.code), "want %s, got %v", tc.code, err)
		})
	}
}

func TestTransitionRejectedLeavesRecordUnchanged(t *testing.T) {
	env := newTestEnv(t)
	env.requestsRepo.set(&domain.Request{ID: 7, UserID: employeeID, Status: domain.StatusRevision, PerformerID: int64Ptr(ahoID)})

	_, err := env.requests.Transition(context.Background(), aho, 7, domain.StatusCompleted)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))

	stored, err := env.requestsRepo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRevision, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
	assert.Zero(t, env.requestsRepo.updates)
	assert.Zero(t, env.outbox.pending())
}

func TestTransitionToCurrentStatusIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.requestsRepo.set(&domain.Request{ID: 7, UserID: employeeID, Status: domain.StatusCompleted})

	req, err := env.requests.Transition(context.Background(), aho, 7, domain.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, req.Status)
	assert.Zero(t, env.requestsRepo.updates)
	assert.Zero(t, env.outbox.pending())
}

func TestTransitionUnknownRequest(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.requests.Transition(context.Background(), aho, 404, domain.StatusInProgress)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestTransitionNotifiesCreatorWhenStaffActs(t *testing.T) {
	env := newTestEnv(t)
	env.requestsRepo.set(&domain.Request{ID: 7, UserID: employeeID, Status: domain.StatusNew})

	req, err := env.requests.Transition(context.Background(), aho, 7, domain.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, req.Status)
	require.NotNil(t, req.PerformerID, "accepting work assigns the acting staff member")
	assert.Equal(t, ahoID, *req.PerformerID)

	env.deliver(t)
	got := env.notifications.forUser(employeeID)
	require.Len(t, got, 1)
	assert.Equal(t, "Your request #7 has been taken into work.", got[0].Text)
	assert.Empty(t, env.notifications.forUser(ahoID))

	history, err := env.requestsRepo.ListByRequest(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.ChangeTypeStatus, history[0].ChangeType)
	assert.Equal(t, domain.ChangeTypePerformer, history[1].ChangeType)
}

func TestTransitionNotifiesPerformerWhenCreatorResubmits(t *testing.T) {
	env := newTestEnv(t)
	env.requestsRepo.set(&domain.Request{ID: 8, UserID: employeeID, Status: domain.StatusRevision, PerformerID: int64Ptr(secondAhoID)})

	_, err := env.requests.Transition(context.Background(), employee, 8, domain.StatusNew)
	require.NoError(t, err)

	env.deliver(t)
	got := env.notifications.forUser(secondAhoID)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Text, "#8")
	assert.Empty(t, env.notifications.forUser(employeeID))
}

func TestTransitionSetsCompletedAt(t *testing.T) {
	env := newTestEnv(t)
	env.requestsRepo.set(&domain.Request{ID: 9, UserID: employeeID, Status: domain.StatusInProgress, PerformerID: int64Ptr(ahoID)})

	req, err := env.requests.Transition(context.Background(), aho, 9, domain.StatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, req.CompletedAt)
	assert.Equal(t, env.now, *req.CompletedAt)
}

func TestTransitionRetriesOnVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	env.requestsRepo.set(&domain.Request{ID: 7, UserID: employeeID, Status: domain.StatusNew, PerformerID: int64Ptr(ahoID)})
	env.requestsRepo.conflicts = 2

	req, err := env.requests.Transition(context.Background(), aho, 7, domain.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, req.Status)
	assert.Equal(t, 1, env.requestsRepo.updates)
	assert.Equal(t, 1, env.outbox.pending(), "exactly one event per accepted transition")
}

func TestTransitionGivesUpAfterPersistentConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.requestsRepo.set(&domain.Request{ID: 7, UserID: employeeID, Status: domain.StatusNew})
	env.requestsRepo.conflicts = maxWriteAttempts

	_, err := env.requests.Transition(context.Background(), aho, 7, domain.StatusInProgress)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	assert.Zero(t, env.outbox.pending())
}

func TestTransitionRevalidatesAgainstLatestStatus(t *testing.T) {
	env := newTestEnv(t)
	env.requestsRepo.set(&domain.Request{ID: 7, UserID: employeeID, Status: domain.StatusInProgress, PerformerID: int64Ptr(ahoID)})

	_, err := env.requests.Transition(context.Background(), aho, 7, domain.StatusCompleted)
	require.NoError(t, err)

	// A second staff member still looking at "in_progress" drags it to revision.
	_, err = env.requests.Transition(context.Background(), domain.Caller{UserID: secondAhoID, Role: domain.RoleAHO}, 7, domain.StatusRevision)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
}

func TestTransitionNotificationSurvivesQueueOutage(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyQueue{MemoryQueue: queue.NewMemoryQueue(), failures: 1}
	env := newTestEnvWithQueue(t, flaky)
	env.requestsRepo.set(&domain.Request{ID: 7, UserID: employeeID, Status: domain.StatusNew})

	req, err := env.requests.Transition(ctx, aho, 7, domain.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, req.Status)
	assert.Equal(t, 1, env.outbox.pending())

	claimed, err := env.relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, 1, env.outbox.pending(), "event stays in the outbox while the queue is down")
	assert.Zero(t, flaky.Len())

	// Lease runs out; the queue is back.
	env.now = env.now.Add(time.Minute)
	env.deliver(t)

	got := env.notifications.forUser(employeeID)
	require.Len(t, got, 1)
	assert.Equal(t, "Your request #7 has been taken into work.", got[0].Text)
	assert.Zero(t, env.outbox.pending())
}

func TestRelayLeaseHidesClaimedEvents(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWithQueue(t, &flakyQueue{MemoryQueue: queue.NewMemoryQueue(), failures: 1})
	env.requestsRepo.set(&domain.Request{ID: 7, UserID: employeeID, Status: domain.StatusNew})

	_, err := env.requests.Transition(ctx, aho, 7, domain.StatusInProgress)
	require.NoError(t, err)

	claimed, err := env.relay.RelayOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, claimed)

	claimed, err = env.relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, claimed, "a leased event is not claimed twice")
	assert.Empty(t, env.notifications.forUser(employeeID))
}
