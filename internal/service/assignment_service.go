package service

import (
	"context"
	"errors"
	"sort"

	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/repository"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

// AssignmentService selects and validates request performers.
type AssignmentService struct {
	users    repository.UserRepository
	requests repository.RequestRepository
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	UserRepo    repository.UserRepository
	RequestRepo repository.RequestRepository
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		users:    deps.UserRepo,
		requests: deps.RequestRepo,
	}
}

// Candidates returns every user who may be set as a performer.
func (s *AssignmentService) Candidates(ctx context.Context) ([]domain.User, error) {
	role := domain.RoleAHO
	users, err := s.users.ListByRole(ctx, &role)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// ResolvePerformer loads the user behind performerID and checks that the
// role is exactly AHO.
func (s *AssignmentService) ResolvePerformer(ctx context.Context, performerID int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, performerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewValidationError("performer does not exist",
				map[string]any{"performerId": performerID})
		}
		return nil, apperrors.MapError(err)
	}
	if user.Role != domain.RoleAHO {
		return nil, apperrors.NewValidationError("performer must be an AHO user",
			map[string]any{"performerId": performerID, "role": user.Role})
	}
	return user, nil
}

// PickPerformer chooses an AHO user for a new request: staff of the same
// office first, then the lightest open workload, then the lowest id. It
// returns nil when no AHO user exists.
func (s *AssignmentService) PickPerformer(ctx context.Context, officeID *int64) (*int64, error) {
	candidates, err := s.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if officeID != nil {
		var local []domain.User
		for _, u := range candidates {
			if u.OfficeID != nil && *u.OfficeID == *officeID {
				local = append(local, u)
			}
		}
		if len(local) > 0 {
			candidates = local
		}
	}

	ids := make([]int64, len(candidates))
	for i, u := range candidates {
		ids[i] = u.ID
	}
	loads, err := s.requests.CountOpenByPerformer(ctx, ids)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	sort.Slice(ids, func(i, j int) bool {
		if loads[ids[i]] != loads[ids[j]] {
			return loads[ids[i]] < loads[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return int64Ptr(ids[0]), nil
}
