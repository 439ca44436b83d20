package dto

import "time"

// NotificationResponse is one in-app notification.
type NotificationResponse struct {
	ID        int64     `json:"id"`
	RequestID *int64    `json:"requestId"`
	Text      string    `json:"text"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationFeedResponse lists unread notifications first, then read.
type NotificationFeedResponse struct {
	Success       bool                   `json:"success"`
	Notifications []NotificationResponse `json:"notifications"`
	UnreadCount   int                    `json:"unreadCount"`
	UnreadDisplay string                 `json:"unreadDisplay"`
}

// MarkReadRequest payload for PATCH /api/notifications/:id/read/.
type MarkReadRequest struct {
	UserID *int64 `json:"user_id"`
}
