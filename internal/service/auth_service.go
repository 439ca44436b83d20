package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/facility-desk/internal/auth"
	"github.com/spec-kit/facility-desk/internal/config"
	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/repository"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

// LoginInput is the credential pair submitted at login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthService coordinates login.
type AuthService struct {
	users     repository.UserRepository
	tokenMgr  *auth.TokenManager
	validate  *validator.Validate
	dummyHash string
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, users repository.UserRepository) (*AuthService, error) {
	// Compared against when the email is unknown so both paths cost a bcrypt round.
	dummy, err := auth.HashPassword("facility-desk-unknown-user", cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	return &AuthService{
		users:     users,
		tokenMgr:  auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		validate:  newValidator(),
		dummyHash: dummy,
	}, nil
}

// Login authenticates by email and password and issues a token carrying
// the canonical role.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.User, *domain.Token, error) {
	input.Email = strings.TrimSpace(input.Email)
	if err := s.validate.Struct(input); err != nil {
		return nil, nil, validationError(err)
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = auth.ComparePassword(s.dummyHash, input.Password)
			return nil, nil, apperrors.NewUnauthorized("invalid email or password")
		}
		return nil, nil, apperrors.MapError(err)
	}
	if user.PasswordHash == "" {
		return nil, nil, apperrors.NewUnauthorized("invalid email or password")
	}
	if err := auth.ComparePassword(user.PasswordHash, input.Password); err != nil {
		return nil, nil, apperrors.NewUnauthorized("invalid email or password")
	}

	token, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, nil, apperrors.NewInternalError(err)
	}
	return user, token, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
