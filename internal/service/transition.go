package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/events"
	"github.com/spec-kit/facility-desk/internal/repository"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

// CheckTransition decides whether caller may move req to target. noop is
// true when target equals the current status; such a request succeeds
// without writing anything.
func CheckTransition(caller domain.Caller, req *domain.Request, target domain.RequestStatus) (noop bool, err error) {
	if !target.Valid() {
		return false, apperrors.NewValidationError("unknown status", map[string]any{"status": target})
	}
	if !caller.IsAHO() && caller.UserID != req.UserID {
		return false, apperrors.NewForbidden("only AHO staff or the creator may change the status")
	}
	if target == req.Status {
		return true, nil
	}
	if req.Status.IsTerminal() || !domain.CanTransition(req.Status, target) {
		return false, apperrors.NewInvalidTransition(string(req.Status), string(target))
	}
	if !caller.IsAHO() && !(req.Status == domain.StatusRevision && target == domain.StatusNew) {
		return false, apperrors.NewForbidden("only AHO staff may move a request to " + string(target))
	}
	return false, nil
}

// Transition moves a request to target. Validation runs against the latest
// committed row; a lost race re-reads and re-checks. The counterpart's
// notification event commits in the same transaction as the status.
func (s *RequestService) Transition(ctx context.Context, caller domain.Caller, id int64, target domain.RequestStatus) (*domain.Request, error) {
	ctx, span := tracer.Start(ctx, "RequestService.Transition")
	defer span.End()
	span.SetAttributes(attribute.Int64("request.id", id), attribute.String("request.target_status", string(target)))

	if !target.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": target})
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		req, err := s.requests.GetByID(ctx, id)
		if err != nil {
			return nil, mapRepoError(err, "request", map[string]any{"request_id": id})
		}
		noop, err := CheckTransition(caller, req, target)
		if err != nil {
			return nil, err
		}
		if noop {
			return req, nil
		}

		from := req.Status
		actor := int64Ptr(caller.UserID)
		change := repository.RequestChange{History: []domain.RequestHistory{{
			ChangedByID: actor,
			ChangeType:  domain.ChangeTypeStatus,
			OldValue:    map[string]any{"status": from},
			NewValue:    map[string]any{"status": target},
		}}}
		req.Status = target
		if target == domain.StatusCompleted {
			completedAt := s.now()
			req.CompletedAt = &completedAt
		}
		if caller.IsAHO() && target == domain.StatusInProgress && req.PerformerID == nil {
			req.PerformerID = actor
			change.History = append(change.History, domain.RequestHistory{
				ChangedByID: actor,
				ChangeType:  domain.ChangeTypePerformer,
				OldValue:    map[string]any{"performerId": nil},
				NewValue:    map[string]any{"performerId": caller.UserID},
			})
		}

		if event, ok := s.counterpartEvent(caller, req, from); ok {
			if change.Outbox, err = outboxMessages(event); err != nil {
				return nil, apperrors.MapError(err)
			}
		}

		if err := s.requests.Update(ctx, req, change); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				s.logger.Debug("transition lost a race, retrying", zap.Int64("request_id", id), zap.Int("attempt", attempt+1))
				continue
			}
			return nil, mapRepoError(err, "request", map[string]any{"request_id": id})
		}

		s.logger.Info("request status changed",
			zap.Int64("request_id", req.ID),
			zap.String("from", string(from)),
			zap.String("to", string(target)),
			zap.Int64("actor_id", caller.UserID))
		return req, nil
	}
	return nil, concurrentModification(id)
}

// counterpartEvent names the one user to notify: the creator when staff
// acted, the performer when the creator did.
func (s *RequestService) counterpartEvent(caller domain.Caller, req *domain.Request, from domain.RequestStatus) (events.Event, bool) {
	payload := events.RequestStatusChangedPayload{OldStatus: from, NewStatus: req.Status}
	if caller.IsAHO() {
		payload.RecipientID = req.UserID
		payload.Audience = events.AudienceCreator
	} else {
		if req.PerformerID == nil {
			s.logger.Warn("no performer to notify about status change", zap.Int64("request_id", req.ID))
			return events.Event{}, false
		}
		payload.RecipientID = *req.PerformerID
		payload.Audience = events.AudiencePerformer
	}
	return events.Event{
		Type:      events.EventRequestStatusChanged,
		RequestID: req.ID,
		ActorID:   int64Ptr(caller.UserID),
		Payload:   payload,
	}, true
}
