package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/events"
	"github.com/spec-kit/facility-desk/internal/repository"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

// ListScope selects which side of a request the listed user is on.
type ListScope string

const (
	ScopeMyRequests   ListScope = "my_requests"
	ScopeIAmPerformer ListScope = "i_am_performer"
)

// RequestService owns request records: creation, reads, edits and status
// transitions.
type RequestService struct {
	requests    repository.RequestRepository
	history     repository.RequestHistoryRepository
	offices     repository.OfficeRepository
	attachments *AttachmentService
	assignment  *AssignmentService
	validate    *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// RequestDependencies bundles collaborators for RequestService.
type RequestDependencies struct {
	RequestRepo repository.RequestRepository
	HistoryRepo repository.RequestHistoryRepository
	OfficeRepo  repository.OfficeRepository
	Attachments *AttachmentService
	Assignment  *AssignmentService
	Logger      *zap.Logger
	Clock       func() time.Time
}

// NewRequestService constructs the service.
func NewRequestService(deps RequestDependencies) *RequestService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &RequestService{
		requests:    deps.RequestRepo,
		history:     deps.HistoryRepo,
		offices:     deps.OfficeRepo,
		attachments: deps.Attachments,
		assignment:  deps.Assignment,
		validate:    newValidator(),
		logger:      logger,
		now:         func() time.Time { return clock().UTC() },
	}
}

// CreateRequestInput describes a new request.
type CreateRequestInput struct {
	IssueType           domain.IssueType       `json:"issueType" validate:"required,oneof=furniture hardware software network access other"`
	Priority            domain.RequestPriority `json:"priority" validate:"required,oneof=low medium high urgent"`
	Address             string                 `json:"address" validate:"required,max=255"`
	OfficeID            *int64                 `json:"office_id"`
	LocationDescription string                 `json:"locationDescription" validate:"required,min=3,max=255"`
	EmployeeLocation    string                 `json:"employeeLocation" validate:"max=255"`
	ProblemDescription  string                 `json:"problemDescription" validate:"required,min=10,max=5000"`
	Files               []UploadFile           `json:"-" validate:"-"`
}

// RequestPatch carries the fields of an edit. Nil means untouched.
type RequestPatch struct {
	IssueType           *domain.IssueType
	Priority            *domain.RequestPriority
	Address             *string
	OfficeID            *int64
	LocationDescription *string
	EmployeeLocation    *string
	ProblemDescription  *string
	Expenses            *[]domain.Expense
	Comment             *string
	PerformerID         *int64
}

func (p RequestPatch) hasContent() bool {
	return p.IssueType != nil || p.Priority != nil || p.Address != nil || p.OfficeID != nil ||
		p.LocationDescription != nil || p.EmployeeLocation != nil || p.ProblemDescription != nil
}

func (p RequestPatch) hasStaffFields() bool {
	return p.Expenses != nil || p.Comment != nil || p.PerformerID != nil
}

// ListOptions narrows ListFor.
type ListOptions struct {
	Scope      ListScope
	ActiveOnly bool
}

// ArchiveFilter narrows the archive listing.
type ArchiveFilter struct {
	Period   string
	Region   string
	City     string
	OfficeID *int64
}

// RequestDetail is a request with its audit trail.
type RequestDetail struct {
	Request *domain.Request
	History []domain.RequestHistory
}

// Create files a new request in status new. Attachments are uploaded
// before the insert and removed again if the insert fails.
func (s *RequestService) Create(ctx context.Context, caller domain.Caller, input CreateRequestInput) (*domain.Request, error) {
	ctx, span := tracer.Start(ctx, "RequestService.Create")
	defer span.End()

	input.Address = strings.TrimSpace(input.Address)
	input.LocationDescription = strings.TrimSpace(input.LocationDescription)
	input.EmployeeLocation = strings.TrimSpace(input.EmployeeLocation)
	input.ProblemDescription = strings.TrimSpace(input.ProblemDescription)
	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}
	if input.OfficeID != nil {
		if _, err := s.offices.GetByID(ctx, *input.OfficeID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NewValidationError("office does not exist",
					map[string]any{"office_id": *input.OfficeID})
			}
			return nil, apperrors.MapError(err)
		}
	}
	if len(input.Files) > 0 {
		if err := s.attachments.Validate(input.Files); err != nil {
			return nil, err
		}
	}

	performerID, err := s.assignment.PickPerformer(ctx, input.OfficeID)
	if err != nil {
		return nil, err
	}

	req := &domain.Request{
		UserID:              caller.UserID,
		OfficeID:            input.OfficeID,
		Status:              domain.StatusNew,
		Priority:            input.Priority,
		IssueType:           input.IssueType,
		Address:             input.Address,
		EmployeeLocation:    input.EmployeeLocation,
		LocationDescription: input.LocationDescription,
		ProblemDescription:  input.ProblemDescription,
		PerformerID:         performerID,
		Expenses:            []domain.Expense{},
	}
	if len(input.Files) > 0 {
		stored, err := s.attachments.Store(ctx, requestPrefix(0), input.Files)
		if err != nil {
			return nil, err
		}
		req.Attachments = stored
	}
	outbox, err := outboxMessages(events.Event{
		Type:    events.EventRequestCreated,
		ActorID: int64Ptr(caller.UserID),
		Payload: events.RequestCreatedPayload{
			CreatorID:   req.UserID,
			PerformerID: req.PerformerID,
			Priority:    req.Priority,
			IssueType:   req.IssueType,
		},
	})
	if err != nil {
		s.attachments.Discard(ctx, req.Attachments)
		return nil, apperrors.MapError(err)
	}
	if err := s.requests.Create(ctx, req, outbox); err != nil {
		s.attachments.Discard(ctx, req.Attachments)
		return nil, apperrors.MapError(err)
	}
	span.SetAttributes(attribute.Int64("request.id", req.ID))

	s.logger.Info("request created",
		zap.Int64("request_id", req.ID),
		zap.Int64("user_id", req.UserID),
		zap.String("priority", string(req.Priority)))
	return req, nil
}

// Get returns a request visible to the caller.
func (s *RequestService) Get(ctx context.Context, caller domain.Caller, id int64) (*domain.Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "request", map[string]any{"request_id": id})
	}
	if !canView(caller, req) {
		return nil, apperrors.NewForbidden("request is not visible to this user")
	}
	return req, nil
}

// GetDetail returns a request together with its history.
func (s *RequestService) GetDetail(ctx context.Context, caller domain.Caller, id int64) (*RequestDetail, error) {
	req, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	history, err := s.history.ListByRequest(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &RequestDetail{Request: req, History: history}, nil
}

// ListFor lists the requests userID created or performs. Users list their
// own requests; supervisors and managers may list anyone's.
func (s *RequestService) ListFor(ctx context.Context, caller domain.Caller, userID int64, opts ListOptions) ([]domain.Request, error) {
	if userID != caller.UserID && !caller.Role.CanReadArchive() {
		return nil, apperrors.NewForbidden("cannot list requests of another user")
	}
	filter := repository.RequestFilter{}
	switch opts.Scope {
	case "", ScopeMyRequests:
		filter.CreatorID = &userID
	case ScopeIAmPerformer:
		filter.PerformerID = &userID
	default:
		return nil, apperrors.NewValidationError("unknown filter",
			map[string]any{"filter": opts.Scope, "allowed": []ListScope{ScopeMyRequests, ScopeIAmPerformer}})
	}
	if opts.ActiveOnly {
		filter.Statuses = domain.ActiveStatuses()
	}
	items, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if items == nil {
		items = []domain.Request{}
	}
	return items, nil
}

// ListArchive returns terminal requests for supervisors and managers.
func (s *RequestService) ListArchive(ctx context.Context, caller domain.Caller, f ArchiveFilter) ([]domain.Request, error) {
	if !caller.Role.CanReadArchive() {
		return nil, apperrors.NewForbidden("archive is available to supervisors and managers only")
	}
	now := s.now()
	cutoff, err := PeriodCutoff(f.Period, now)
	if err != nil {
		return nil, err
	}
	filter := repository.RequestFilter{
		Statuses:    domain.TerminalStatuses(),
		OfficeID:    f.OfficeID,
		CreatedFrom: cutoff,
	}
	if cutoff != nil {
		filter.CreatedTo = &now
	}
	if region := strings.TrimSpace(f.Region); region != "" {
		filter.Region = &region
	}
	if city := strings.TrimSpace(f.City); city != "" {
		filter.City = &city
	}
	items, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	archived := make([]domain.Request, 0, len(items))
	for _, item := range items {
		if item.Status.IsTerminal() {
			archived = append(archived, item)
		}
	}
	return archived, nil
}

// PeriodCutoff computes the lower bound of an archive period in UTC. An
// empty period or "all" has no bound.
func PeriodCutoff(period string, now time.Time) (*time.Time, error) {
	now = now.UTC()
	var cutoff time.Time
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "", "all":
		return nil, nil
	case "week":
		cutoff = now.AddDate(0, 0, -7)
	case "month":
		cutoff = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	case "quarter":
		firstMonth := time.Month((int(now.Month())-1)/3*3 + 1)
		cutoff = time.Date(now.Year(), firstMonth, 1, 0, 0, 0, 0, time.UTC)
	case "year":
		cutoff = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return nil, apperrors.NewValidationError("unknown period",
			map[string]any{"period": period, "allowed": []string{"week", "month", "quarter", "year", "all"}})
	}
	return &cutoff, nil
}

// Update applies a patch. Content fields belong to the creator while the
// request is new or in revision; expenses, comments and the performer
// belong to AHO staff. Closed requests reject every edit.
func (s *RequestService) Update(ctx context.Context, caller domain.Caller, id int64, patch RequestPatch) (*domain.Request, error) {
	ctx, span := tracer.Start(ctx, "RequestService.Update")
	defer span.End()
	span.SetAttributes(attribute.Int64("request.id", id))

	if !patch.hasContent() && !patch.hasStaffFields() {
		return nil, apperrors.NewValidationError("nothing to update", nil)
	}
	if patch.hasStaffFields() && !caller.IsAHO() {
		return nil, apperrors.NewForbidden("only AHO staff may change expenses, comments or the performer")
	}
	if err := s.validatePatch(patch); err != nil {
		return nil, err
	}
	var performer *domain.User
	if patch.PerformerID != nil {
		p, err := s.assignment.ResolvePerformer(ctx, *patch.PerformerID)
		if err != nil {
			return nil, err
		}
		performer = p
	}
	if patch.OfficeID != nil {
		if _, err := s.offices.GetByID(ctx, *patch.OfficeID); err != nil {
			return nil, mapRepoError(err, "office", map[string]any{"office_id": *patch.OfficeID})
		}
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		req, err := s.requests.GetByID(ctx, id)
		if err != nil {
			return nil, mapRepoError(err, "request", map[string]any{"request_id": id})
		}
		if req.IsTerminal() {
			return nil, apperrors.NewForbidden("request is closed and can no longer be edited")
		}
		if patch.hasContent() && (caller.UserID != req.UserID || !req.IsEditableByCreator()) {
			return nil, apperrors.NewForbidden("only the creator may edit a request while it is new or in revision")
		}

		change, oldPerformer, comment := s.applyPatch(caller, req, patch)
		if len(change.History) == 0 && len(change.Comments) == 0 {
			return req, nil
		}
		var raised []events.Event
		if performer != nil && !sameInt64(oldPerformer, req.PerformerID) {
			raised = append(raised, events.Event{
				Type:      events.EventRequestAssigned,
				RequestID: req.ID,
				ActorID:   int64Ptr(caller.UserID),
				Payload:   events.RequestAssignedPayload{OldPerformerID: oldPerformer, PerformerID: performer.ID},
			})
		}
		if comment != nil {
			raised = append(raised, events.Event{
				Type:      events.EventRequestCommented,
				RequestID: req.ID,
				ActorID:   int64Ptr(caller.UserID),
				Payload: events.RequestCommentedPayload{
					RecipientID: req.UserID,
					Preview:     preview(comment.Content, 80),
				},
			})
		}
		if change.Outbox, err = outboxMessages(raised...); err != nil {
			return nil, apperrors.MapError(err)
		}

		if err := s.requests.Update(ctx, req, change); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				s.logger.Debug("update lost a race, retrying", zap.Int64("request_id", id), zap.Int("attempt", attempt+1))
				continue
			}
			return nil, mapRepoError(err, "request", map[string]any{"request_id": id})
		}
		return req, nil
	}
	return nil, concurrentModification(id)
}

type patchContent struct {
	IssueType           *domain.IssueType       `json:"issueType" validate:"omitnil,oneof=furniture hardware software network access other"`
	Priority            *domain.RequestPriority `json:"priority" validate:"omitnil,oneof=low medium high urgent"`
	Address             *string                 `json:"address" validate:"omitnil,min=1,max=255"`
	LocationDescription *string                 `json:"locationDescription" validate:"omitnil,min=3,max=255"`
	EmployeeLocation    *string                 `json:"employeeLocation" validate:"omitnil,max=255"`
	ProblemDescription  *string                 `json:"problemDescription" validate:"omitnil,min=10,max=5000"`
	Comment             *string                 `json:"comment" validate:"omitnil,min=1,max=5000"`
	Expenses            []expenseInput          `json:"expenses" validate:"dive"`
}

type expenseInput struct {
	Name   string  `json:"name" validate:"required,max=255"`
	Amount float64 `json:"amount" validate:"gte=0"`
}

func (s *RequestService) validatePatch(patch RequestPatch) error {
	check := patchContent{
		IssueType:           patch.IssueType,
		Priority:            patch.Priority,
		Address:             trimmedPtr(patch.Address),
		LocationDescription: trimmedPtr(patch.LocationDescription),
		EmployeeLocation:    trimmedPtr(patch.EmployeeLocation),
		ProblemDescription:  trimmedPtr(patch.ProblemDescription),
		Comment:             trimmedPtr(patch.Comment),
	}
	if patch.Expenses != nil {
		for _, e := range *patch.Expenses {
			check.Expenses = append(check.Expenses, expenseInput{Name: strings.TrimSpace(e.Name), Amount: e.Amount})
		}
	}
	if err := s.validate.Struct(check); err != nil {
		return validationError(err)
	}
	return nil
}

// applyPatch mutates req and returns the rows to append with it.
func (s *RequestService) applyPatch(caller domain.Caller, req *domain.Request, patch RequestPatch) (repository.RequestChange, *int64, *domain.Comment) {
	var change repository.RequestChange
	actor := int64Ptr(caller.UserID)

	oldContent := map[string]any{}
	newContent := map[string]any{}
	setString := func(field string, target *string, value *string) {
		if value == nil {
			return
		}
		v := strings.TrimSpace(*value)
		if *target == v {
			return
		}
		oldContent[field] = *target
		newContent[field] = v
		*target = v
	}
	if patch.IssueType != nil && *patch.IssueType != req.IssueType {
		oldContent["issueType"] = req.IssueType
		newContent["issueType"] = *patch.IssueType
		req.IssueType = *patch.IssueType
	}
	if patch.Priority != nil && *patch.Priority != req.Priority {
		oldContent["priority"] = req.Priority
		newContent["priority"] = *patch.Priority
		req.Priority = *patch.Priority
	}
	if patch.OfficeID != nil && !sameInt64(req.OfficeID, patch.OfficeID) {
		oldContent["office_id"] = req.OfficeID
		newContent["office_id"] = *patch.OfficeID
		req.OfficeID = int64Ptr(*patch.OfficeID)
	}
	setString("address", &req.Address, patch.Address)
	setString("locationDescription", &req.LocationDescription, patch.LocationDescription)
	setString("employeeLocation", &req.EmployeeLocation, patch.EmployeeLocation)
	setString("problemDescription", &req.ProblemDescription, patch.ProblemDescription)
	if len(newContent) > 0 {
		change.History = append(change.History, domain.RequestHistory{
			ChangedByID: actor,
			ChangeType:  domain.ChangeTypeContent,
			OldValue:    oldContent,
			NewValue:    newContent,
		})
	}

	if patch.Expenses != nil {
		expenses := make([]domain.Expense, 0, len(*patch.Expenses))
		for _, e := range *patch.Expenses {
			expenses = append(expenses, domain.Expense{Name: strings.TrimSpace(e.Name), Amount: e.Amount})
		}
		change.History = append(change.History, domain.RequestHistory{
			ChangedByID: actor,
			ChangeType:  domain.ChangeTypeExpenses,
			OldValue:    map[string]any{"expenses": req.Expenses},
			NewValue:    map[string]any{"expenses": expenses},
		})
		req.Expenses = expenses
	}

	oldPerformer := req.PerformerID
	if patch.PerformerID != nil && !sameInt64(req.PerformerID, patch.PerformerID) {
		change.History = append(change.History, domain.RequestHistory{
			ChangedByID: actor,
			ChangeType:  domain.ChangeTypePerformer,
			OldValue:    map[string]any{"performerId": req.PerformerID},
			NewValue:    map[string]any{"performerId": *patch.PerformerID},
		})
		req.PerformerID = int64Ptr(*patch.PerformerID)
	}

	var comment *domain.Comment
	if patch.Comment != nil {
		content := strings.TrimSpace(*patch.Comment)
		last := req.LastComment()
		if last == nil || strings.TrimSpace(last.Content) != content {
			change.Comments = append(change.Comments, domain.Comment{AuthorID: caller.UserID, Content: content})
			comment = &change.Comments[len(change.Comments)-1]
		}
	}
	return change, oldPerformer, comment
}

// ArchiveCompleted moves requests completed before olderThan ago to
// archived. This is the only way into the archived status.
func (s *RequestService) ArchiveCompleted(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "RequestService.ArchiveCompleted")
	defer span.End()

	cutoff := s.now().Add(-olderThan)
	ids, err := s.requests.ArchiveCompletedBefore(ctx, cutoff)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	span.SetAttributes(attribute.Int("archived", len(ids)))
	return ids, nil
}

func canView(caller domain.Caller, req *domain.Request) bool {
	if caller.IsAHO() || caller.Role.CanReadArchive() {
		return true
	}
	if caller.UserID == req.UserID {
		return true
	}
	return req.PerformerID != nil && *req.PerformerID == caller.UserID
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
