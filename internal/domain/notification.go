package domain

import "time"

// Notification is an in-app message for a single recipient. Only IsRead
// ever changes after creation, and only from false to true.
type Notification struct {
	ID        int64
	UserID    int64
	RequestID *int64
	Text      string
	IsRead    bool
	CreatedAt time.Time
}

// NotificationFeed splits a user's notifications by read state.
type NotificationFeed struct {
	Unread []Notification
	Read   []Notification
}

// UnreadDisplayCap is the largest unread count rendered verbatim.
const UnreadDisplayCap = 99
