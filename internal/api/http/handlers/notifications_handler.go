package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/facility-desk/internal/api/dto"
	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/service"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

// NotificationsHandler exposes the notification feed.
type NotificationsHandler struct {
	notifications *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{notifications: notificationService}
}

// Feed handles GET /api/notifications/:userId/. Unread entries come first,
// each group newest first.
func (h *NotificationsHandler) Feed(c *fiber.Ctx) error {
	userID, err := h.ownUserID(c)
	if err != nil {
		return err
	}
	feed, err := h.notifications.FeedFor(c.UserContext(), userID)
	if err != nil {
		return err
	}
	items := make([]dto.NotificationResponse, 0, len(feed.Unread)+len(feed.Read))
	for _, group := range [][]domain.Notification{feed.Unread, feed.Read} {
		for _, n := range group {
			items = append(items, notificationResponse(n))
		}
	}
	return c.JSON(dto.NotificationFeedResponse{
		Success:       true,
		Notifications: items,
		UnreadCount:   len(feed.Unread),
		UnreadDisplay: service.DisplayCount(len(feed.Unread)),
	})
}

// UnreadCount handles GET /api/notifications/:userId/unread-count/.
func (h *NotificationsHandler) UnreadCount(c *fiber.Ctx) error {
	userID, err := h.ownUserID(c)
	if err != nil {
		return err
	}
	count, err := h.notifications.UnreadCount(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "unreadCount": count, "unreadDisplay": service.DisplayCount(count)})
}

// MarkRead handles PATCH /api/notifications/:id/read/.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var body dto.MarkReadRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	if err := ensureSelf(caller, body.UserID); err != nil {
		return err
	}
	n, err := h.notifications.MarkRead(c.UserContext(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "notification": notificationResponse(*n)})
}

func (h *NotificationsHandler) ownUserID(c *fiber.Ctx) (int64, error) {
	caller, err := callerFrom(c)
	if err != nil {
		return 0, err
	}
	userID, err := paramID(c, "userId")
	if err != nil {
		return 0, err
	}
	if err := ensureSelf(caller, &userID); err != nil {
		return 0, err
	}
	return userID, nil
}

func notificationResponse(n domain.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:        n.ID,
		RequestID: n.RequestID,
		Text:      n.Text,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
