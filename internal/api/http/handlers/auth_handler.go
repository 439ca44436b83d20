package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/facility-desk/internal/api/dto"
	"github.com/spec-kit/facility-desk/internal/service"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

// AuthHandler exposes the login endpoint.
type AuthHandler struct {
	auth  *service.AuthService
	users *service.UserService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, userService *service.UserService) *AuthHandler {
	return &AuthHandler{auth: authService, users: userService}
}

// Login handles POST /api/auth/login/.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, token, err := h.auth.Login(c.UserContext(), service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}

	return c.JSON(dto.LoginResponse{
		Success:   true,
		User:      userResponse(user, token.Role, h.users),
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
	})
}
