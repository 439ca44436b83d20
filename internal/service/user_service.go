package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/repository"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

// UserService serves profiles, avatars and user directories.
type UserService struct {
	users       repository.UserRepository
	attachments *AttachmentService
	logger      *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(users repository.UserRepository, attachments *AttachmentService, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, attachments: attachments, logger: logger}
}

// Profile returns a user's profile. Users see their own; staff, supervisors
// and managers see anyone's.
func (s *UserService) Profile(ctx context.Context, caller domain.Caller, id int64) (*domain.User, error) {
	if caller.UserID != id && caller.Role == domain.RoleEmployee {
		return nil, apperrors.NewForbidden("cannot view another user's profile")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "user", map[string]any{"user_id": id})
	}
	return user, nil
}

// UploadAvatar stores a new avatar image for the caller. Previous avatar
// objects are kept so URLs already handed out stay valid.
func (s *UserService) UploadAvatar(ctx context.Context, caller domain.Caller, id int64, file UploadFile) (*domain.User, error) {
	if caller.UserID != id {
		return nil, apperrors.NewForbidden("cannot change another user's avatar")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "user", map[string]any{"user_id": id})
	}
	stored, err := s.attachments.Store(ctx, fmt.Sprintf("avatars/%d", id), []UploadFile{file})
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateAvatar(ctx, id, stored[0].StorageKey); err != nil {
		s.attachments.Discard(ctx, stored)
		return nil, mapRepoError(err, "user", map[string]any{"user_id": id})
	}
	user.AvatarKey = stored[0].StorageKey
	s.logger.Info("avatar updated", zap.Int64("user_id", id), zap.String("key", user.AvatarKey))
	return user, nil
}

// List returns users, optionally restricted to one role. The filter accepts
// role aliases and is canonicalised before it reaches the store.
func (s *UserService) List(ctx context.Context, rawRole string) ([]domain.User, error) {
	var role *domain.Role
	if strings.TrimSpace(rawRole) != "" {
		parsed, err := domain.ParseRole(rawRole)
		if err != nil {
			return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": rawRole})
		}
		role = &parsed
	}
	users, err := s.users.ListByRole(ctx, role)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// AvatarURL returns the public URL of a user's avatar, or "".
func (s *UserService) AvatarURL(user *domain.User) string {
	return s.attachments.URL(user.AvatarKey)
}
