package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/facility-desk/internal/service"
)

// FilesHandler streams stored attachments and avatars.
type FilesHandler struct {
	attachments *service.AttachmentService
}

// NewFilesHandler constructs handler.
func NewFilesHandler(attachmentService *service.AttachmentService) *FilesHandler {
	return &FilesHandler{attachments: attachmentService}
}

// Serve handles GET /api/files/*.
func (h *FilesHandler) Serve(c *fiber.Ctx) error {
	body, info, err := h.attachments.Open(c.UserContext(), c.Params("*"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, info.ContentType)
	c.Set(fiber.HeaderCacheControl, "private, max-age=86400")
	c.Set("X-Content-Type-Options", "nosniff")
	c.Set(fiber.HeaderContentLength, strconv.FormatInt(info.Size, 10))
	return c.SendStream(body, int(info.Size))
}
