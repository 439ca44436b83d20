package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/events"
	"github.com/spec-kit/facility-desk/internal/queue"
	"github.com/spec-kit/facility-desk/internal/repository"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

// NotificationService turns relayed lifecycle events into queued
// notification jobs and serves per-user feeds.
type NotificationService struct {
	notifications repository.NotificationRepository
	queue         queue.NotificationQueue
	dispatcher    events.Dispatcher
	logger        *zap.Logger
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	NotificationRepo repository.NotificationRepository
	Queue            queue.NotificationQueue
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		notifications: deps.NotificationRepo,
		queue:         deps.Queue,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventRequestCreated, n.handleRequestCreated)
	n.dispatcher.Subscribe(events.EventRequestStatusChanged, n.handleRequestStatusChanged)
	n.dispatcher.Subscribe(events.EventRequestAssigned, n.handleRequestAssigned)
	n.dispatcher.Subscribe(events.EventRequestCommented, n.handleRequestCommented)
}

// Notify creates one unread notification. It never merges with existing ones.
func (n *NotificationService) Notify(ctx context.Context, userID int64, requestID *int64, text string) (*domain.Notification, error) {
	text = strings.TrimSpace(text)
	if userID <= 0 {
		return nil, apperrors.NewValidationError("recipient is required", nil)
	}
	if text == "" {
		return nil, apperrors.NewValidationError("notification text is required", nil)
	}
	notification := &domain.Notification{UserID: userID, RequestID: requestID, Text: text}
	if err := n.notifications.Create(ctx, notification); err != nil {
		return nil, apperrors.MapError(err)
	}
	return notification, nil
}

// MarkRead flips a notification to read. Repeating the call is a no-op.
func (n *NotificationService) MarkRead(ctx context.Context, caller domain.Caller, notificationID int64) (*domain.Notification, error) {
	notification, err := n.notifications.GetByID(ctx, notificationID)
	if err != nil {
		return nil, mapRepoError(err, "notification", map[string]any{"notification_id": notificationID})
	}
	if notification.UserID != caller.UserID {
		return nil, apperrors.NewForbidden("notification belongs to another user")
	}
	if notification.IsRead {
		return notification, nil
	}
	if err := n.notifications.MarkRead(ctx, notificationID); err != nil {
		return nil, apperrors.MapError(err)
	}
	notification.IsRead = true
	return notification, nil
}

// FeedFor splits a user's notifications into unread and read, newest first.
func (n *NotificationService) FeedFor(ctx context.Context, userID int64) (*domain.NotificationFeed, error) {
	items, err := n.notifications.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	feed := &domain.NotificationFeed{Unread: []domain.Notification{}, Read: []domain.Notification{}}
	for _, item := range items {
		if item.IsRead {
			feed.Read = append(feed.Read, item)
		} else {
			feed.Unread = append(feed.Unread, item)
		}
	}
	return feed, nil
}

// UnreadCount returns the stored, uncapped unread count.
func (n *NotificationService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	count, err := n.notifications.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return count, nil
}

// DisplayCount renders an unread count for badges, capping at "99+".
func DisplayCount(count int) string {
	if count > domain.UnreadDisplayCap {
		return strconv.Itoa(domain.UnreadDisplayCap) + "+"
	}
	if count < 0 {
		return "0"
	}
	return strconv.Itoa(count)
}

// Enqueue hands a notification to the durable queue. Failures are logged
// and returned, which keeps the originating outbox message for a retry.
func (n *NotificationService) Enqueue(ctx context.Context, userID int64, requestID *int64, text string) error {
	if n.queue == nil {
		return errors.New("notification queue not configured")
	}
	job := queue.NotificationJob{
		ID:         uuid.NewString(),
		UserID:     userID,
		RequestID:  requestID,
		Text:       text,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := n.queue.Enqueue(ctx, job); err != nil {
		fields := []zap.Field{
			zap.String("job_id", job.ID),
			zap.Int64("user_id", userID),
			zap.String("text", text),
			zap.Error(err),
		}
		if requestID != nil {
			fields = append(fields, zap.Int64("request_id", *requestID))
		}
		n.logger.Error("notification enqueue failed", fields...)
		return err
	}
	return nil
}

func (n *NotificationService) handleRequestCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RequestCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	requestID := int64Ptr(event.RequestID)
	var errs []error
	if err := n.Enqueue(ctx, payload.CreatorID, requestID, createdText(event.RequestID)); err != nil {
		errs = append(errs, err)
	}
	if payload.PerformerID != nil && *payload.PerformerID != payload.CreatorID {
		if err := n.Enqueue(ctx, *payload.PerformerID, requestID, assignedText(event.RequestID)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *NotificationService) handleRequestStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RequestStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	toCreator := payload.Audience == events.AudienceCreator
	text := statusText(event.RequestID, payload.NewStatus, toCreator)
	return n.Enqueue(ctx, payload.RecipientID, int64Ptr(event.RequestID), text)
}

func (n *NotificationService) handleRequestAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RequestAssignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	return n.Enqueue(ctx, payload.PerformerID, int64Ptr(event.RequestID), assignedText(event.RequestID))
}

func (n *NotificationService) handleRequestCommented(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RequestCommentedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	text := fmt.Sprintf("New comment on your request #%d: %s", event.RequestID, payload.Preview)
	return n.Enqueue(ctx, payload.RecipientID, int64Ptr(event.RequestID), text)
}

func createdText(requestID int64) string {
	return fmt.Sprintf("Your request #%d has been created.", requestID)
}

func assignedText(requestID int64) string {
	return fmt.Sprintf("Request #%d has been assigned to you.", requestID)
}

func statusText(requestID int64, status domain.RequestStatus, toCreator bool) string {
	if !toCreator {
		if status == domain.StatusNew {
			return fmt.Sprintf("Request #%d has been resubmitted after revision.", requestID)
		}
		return fmt.Sprintf("Request #%d status changed to %s.", requestID, status)
	}
	switch status {
	case domain.StatusCompleted:
		return fmt.Sprintf("Your request #%d has been completed!", requestID)
	case domain.StatusRevision:
		return fmt.Sprintf("Your request #%d has been sent back for revision.", requestID)
	case domain.StatusInProgress:
		return fmt.Sprintf("Your request #%d has been taken into work.", requestID)
	case domain.StatusNew:
		return fmt.Sprintf("Your request #%d has been created.", requestID)
	case domain.StatusAwaitingPurchase:
		return fmt.Sprintf("Your request #%d is awaiting purchase.", requestID)
	}
	return fmt.Sprintf("Status of request #%d changed to %q.", requestID, status)
}

func preview(text string, limit int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "…"
}
