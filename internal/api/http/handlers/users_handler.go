package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/facility-desk/internal/api/dto"
	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/service"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

// UsersHandler exposes profile, avatar and directory endpoints.
type UsersHandler struct {
	users       *service.UserService
	attachments *service.AttachmentService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(userService *service.UserService, attachmentService *service.AttachmentService) *UsersHandler {
	return &UsersHandler{users: userService, attachments: attachmentService}
}

// Profile handles GET /api/user/profile/:id/.
func (h *UsersHandler) Profile(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	user, err := h.users.Profile(c.UserContext(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "user": userResponse(user, user.Role, h.users)})
}

// UploadAvatar handles POST /api/user/avatar/:id/ (multipart field "avatar").
func (h *UsersHandler) UploadAvatar(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		return apperrors.NewValidationError("multipart form expected", nil)
	}
	files, err := readUploads(form, h.attachments.MaxUploadBytes(), "avatar")
	if err != nil {
		return err
	}
	if len(files) != 1 {
		return apperrors.NewValidationError("exactly one avatar file is required", map[string]any{"field": "avatar"})
	}
	user, err := h.users.UploadAvatar(c.UserContext(), caller, id, files[0])
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "avatarUrl": h.users.AvatarURL(user)})
}

// List handles GET /api/users/?role=.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	if _, err := callerFrom(c); err != nil {
		return err
	}
	users, err := h.users.List(c.UserContext(), c.Query("role"))
	if err != nil {
		return err
	}
	items := make([]dto.UserSummary, 0, len(users))
	for _, u := range users {
		items = append(items, dto.UserSummary{
			ID:         u.ID,
			FirstName:  u.FirstName,
			LastName:   u.LastName,
			MiddleName: u.MiddleName,
			Role:       string(u.Role),
			OfficeID:   u.OfficeID,
		})
	}
	return c.JSON(fiber.Map{"success": true, "users": items})
}

func userResponse(u *domain.User, role domain.Role, users *service.UserService) dto.UserResponse {
	resp := dto.UserResponse{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName(),
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		MiddleName: u.MiddleName,
		Position:   u.Position,
		DeskNumber: u.DeskNumber,
		AvatarURL:  users.AvatarURL(u),
		Role:       string(role),
	}
	if u.Office != nil {
		resp.City = u.Office.City
		resp.OfficeAddress = u.Office.Address
	}
	if u.BirthDate != nil {
		resp.BirthDate = u.BirthDate.Format("2006-01-02")
	}
	return resp
}
