package dto

import (
	"time"

	"github.com/spec-kit/facility-desk/internal/domain"
)

// StatusChangeRequest payload for PATCH /api/requests/:id/status/.
type StatusChangeRequest struct {
	UserID *int64               `json:"user_id"`
	Status domain.RequestStatus `json:"status"`
}

// UpdateRequestPayload carries a role-dependent subset of request fields.
// Absent fields are left untouched.
type UpdateRequestPayload struct {
	UserID              *int64                  `json:"user_id"`
	IssueType           *domain.IssueType       `json:"issueType"`
	Priority            *domain.RequestPriority `json:"priority"`
	Address             *string                 `json:"address"`
	OfficeID            *int64                  `json:"office_id"`
	LocationDescription *string                 `json:"locationDescription"`
	EmployeeLocation    *string                 `json:"employeeLocation"`
	ProblemDescription  *string                 `json:"problemDescription"`
	Expenses            *[]domain.Expense       `json:"expenses"`
	Comment             *string                 `json:"comment"`
	PerformerID         *int64                  `json:"performerId"`
}

// RequestResponse is the request shape shared by lists and detail.
type RequestResponse struct {
	ID                  int64                  `json:"id"`
	UserID              int64                  `json:"userId"`
	Status              domain.RequestStatus   `json:"status"`
	Priority            domain.RequestPriority `json:"priority"`
	IssueType           domain.IssueType       `json:"issueType"`
	Address             string                 `json:"address"`
	Office              *OfficeResponse        `json:"office"`
	EmployeeLocation    string                 `json:"employeeLocation"`
	LocationDescription string                 `json:"locationDescription"`
	ProblemDescription  string                 `json:"problemDescription"`
	PerformerID         *int64                 `json:"performerId"`
	Expenses            []domain.Expense       `json:"expenses"`
	Comments            []CommentResponse      `json:"comments"`
	Attachments         []AttachmentResponse   `json:"attachments"`
	CreatedAt           time.Time              `json:"createdAt"`
	UpdatedAt           time.Time              `json:"updatedAt"`
	CompletedAt         *time.Time             `json:"completedAt"`
}

// CommentResponse represents one comment.
type CommentResponse struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID        int64  `json:"id"`
	FileName  string `json:"fileName"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
	URL       string `json:"url"`
}

// HistoryResponse is one audit trail entry.
type HistoryResponse struct {
	ID          int64          `json:"id"`
	ChangedByID *int64         `json:"changedById"`
	ChangeType  string         `json:"changeType"`
	OldValue    map[string]any `json:"oldValue"`
	NewValue    map[string]any `json:"newValue"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// RequestDetailResponse adds the audit trail to a request.
type RequestDetailResponse struct {
	RequestResponse
	History []HistoryResponse `json:"history"`
}
