package events

import (
	"time"

	"github.com/spec-kit/facility-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated       EventType = "request_created"
	EventRequestStatusChanged EventType = "request_status_changed"
	EventRequestAssigned      EventType = "request_assigned"
	EventRequestCommented     EventType = "request_commented"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	RequestID int64     `json:"request_id"`
	ActorID   *int64    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// RequestCreatedPayload payload.
type RequestCreatedPayload struct {
	CreatorID   int64                  `json:"creator_id"`
	PerformerID *int64                 `json:"performer_id,omitempty"`
	Priority    domain.RequestPriority `json:"priority"`
	IssueType   domain.IssueType       `json:"issue_type"`
}

// Audience tells a recipient's relationship to the request.
type Audience string

const (
	AudienceCreator   Audience = "creator"
	AudiencePerformer Audience = "performer"
)

// RequestStatusChangedPayload names the single counterpart to notify.
type RequestStatusChangedPayload struct {
	OldStatus   domain.RequestStatus `json:"old_status"`
	NewStatus   domain.RequestStatus `json:"new_status"`
	RecipientID int64                `json:"recipient_id"`
	Audience    Audience             `json:"audience"`
}

// RequestAssignedPayload payload.
type RequestAssignedPayload struct {
	OldPerformerID *int64 `json:"old_performer_id,omitempty"`
	PerformerID    int64  `json:"performer_id"`
}

// RequestCommentedPayload payload.
type RequestCommentedPayload struct {
	RecipientID int64  `json:"recipient_id"`
	Preview     string `json:"preview"`
}
