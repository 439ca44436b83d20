package domain

import "time"

// RequestStatus enumerates lifecycle states for requests.
type RequestStatus string

const (
	StatusNew              RequestStatus = "new"
	StatusRevision         RequestStatus = "revision"
	StatusInProgress       RequestStatus = "in_progress"
	StatusAwaitingPurchase RequestStatus = "awaiting_purchase"
	StatusCompleted        RequestStatus = "completed"
	StatusArchived         RequestStatus = "archived"
)

// RequestPriority enumerates urgency levels.
type RequestPriority string

const (
	PriorityLow    RequestPriority = "low"
	PriorityMedium RequestPriority = "medium"
	PriorityHigh   RequestPriority = "high"
	PriorityUrgent RequestPriority = "urgent"
)

// IssueType classifies the reported problem.
type IssueType string

const (
	IssueFurniture IssueType = "furniture"
	IssueHardware  IssueType = "hardware"
	IssueSoftware  IssueType = "software"
	IssueNetwork   IssueType = "network"
	IssueAccess    IssueType = "access"
	IssueOther     IssueType = "other"
)

// Request is the aggregate for a facilities ticket.
type Request struct {
	ID                  int64
	UserID              int64
	OfficeID            *int64
	Office              *Office
	Status              RequestStatus
	Priority            RequestPriority
	IssueType           IssueType
	Address             string
	EmployeeLocation    string
	LocationDescription string
	ProblemDescription  string
	PerformerID         *int64
	Expenses            []Expense
	Attachments         []Attachment
	Comments            []Comment
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

// Expense is a single AHO cost line.
type Expense struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Comment is an append-only note on a request.
type Comment struct {
	ID        int64
	RequestID int64
	AuthorID  int64
	Content   string
	CreatedAt time.Time
}

// Attachment references a stored image belonging to a request.
type Attachment struct {
	ID         int64
	RequestID  int64
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	CreatedAt  time.Time
}

// IsEditableByCreator reports whether content fields may still change.
func (r *Request) IsEditableByCreator() bool {
	return r.Status == StatusNew || r.Status == StatusRevision
}

// IsTerminal reports whether the request is closed for all mutations.
func (r *Request) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// LastComment returns the most recent comment, if any.
func (r *Request) LastComment() *Comment {
	if len(r.Comments) == 0 {
		return nil
	}
	return &r.Comments[len(r.Comments)-1]
}

func (p RequestPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func (t IssueType) Valid() bool {
	switch t {
	case IssueFurniture, IssueHardware, IssueSoftware, IssueNetwork, IssueAccess, IssueOther:
		return true
	}
	return false
}
