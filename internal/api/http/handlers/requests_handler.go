package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/facility-desk/internal/api/dto"
	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/service"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

// attachmentFields are the multipart field names accepted for request files.
var attachmentFields = []string{"attachments", "attachments[]"}

// RequestsHandler manages request endpoints.
type RequestsHandler struct {
	requests    *service.RequestService
	attachments *service.AttachmentService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requestService *service.RequestService, attachmentService *service.AttachmentService) *RequestsHandler {
	return &RequestsHandler{requests: requestService, attachments: attachmentService}
}

// List handles GET /api/requests/:userId/?filter=my_requests|i_am_performer&active=true.
func (h *RequestsHandler) List(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	userID, err := paramID(c, "userId")
	if err != nil {
		return err
	}
	opts := service.ListOptions{Scope: service.ListScope(c.Query("filter"))}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return apperrors.NewValidationError("invalid active flag", map[string]any{"active": raw})
		}
		opts.ActiveOnly = active
	}
	items, err := h.requests.ListFor(c.UserContext(), caller, userID, opts)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "requests": requestList(items, h.attachments)})
}

// Create handles POST /api/requests/create/. Multipart bodies may carry
// attachments; JSON bodies may not.
func (h *RequestsHandler) Create(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}

	var input service.CreateRequestInput
	var claimed *int64
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return apperrors.NewValidationError("invalid multipart form", nil)
		}
		if claimed, err = optionalInt64(formValue(form, "user_id"), "user_id"); err != nil {
			return err
		}
		officeID, err := optionalInt64(formValue(form, "office_id"), "office_id")
		if err != nil {
			return err
		}
		input = service.CreateRequestInput{
			IssueType:           domain.IssueType(formValue(form, "issueType")),
			Priority:            domain.RequestPriority(formValue(form, "priority")),
			Address:             formValue(form, "address"),
			OfficeID:            officeID,
			LocationDescription: formValue(form, "locationDescription"),
			EmployeeLocation:    formValue(form, "employeeLocation"),
			ProblemDescription:  formValue(form, "problemDescription"),
		}
		if input.Files, err = readUploads(form, h.attachments.MaxUploadBytes(), attachmentFields...); err != nil {
			return err
		}
	} else {
		var body struct {
			service.CreateRequestInput
			UserID *int64 `json:"user_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		input = body.CreateRequestInput
		input.Files = nil
		claimed = body.UserID
	}
	if err := ensureSelf(caller, claimed); err != nil {
		return err
	}

	req, err := h.requests.Create(c.UserContext(), caller, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"message":  "request created",
		"requests": requestResponse(req, h.attachments),
	})
}

// Detail handles GET /api/requests/detail/:id/.
func (h *RequestsHandler) Detail(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	detail, err := h.requests.GetDetail(c.UserContext(), caller, id)
	if err != nil {
		return err
	}
	resp := dto.RequestDetailResponse{
		RequestResponse: requestResponse(detail.Request, h.attachments),
		History:         make([]dto.HistoryResponse, 0, len(detail.History)),
	}
	for _, entry := range detail.History {
		resp.History = append(resp.History, dto.HistoryResponse{
			ID:          entry.ID,
			ChangedByID: entry.ChangedByID,
			ChangeType:  string(entry.ChangeType),
			OldValue:    entry.OldValue,
			NewValue:    entry.NewValue,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"success": true, "request": resp})
}

// ChangeStatus handles PATCH /api/requests/:id/status/.
func (h *RequestsHandler) ChangeStatus(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var body dto.StatusChangeRequest
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := ensureSelf(caller, body.UserID); err != nil {
		return err
	}
	req, err := h.requests.Transition(c.UserContext(), caller, id, body.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "request": requestResponse(req, h.attachments)})
}

// Update handles PATCH /api/requests/:id/update/.
func (h *RequestsHandler) Update(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var body dto.UpdateRequestPayload
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := ensureSelf(caller, body.UserID); err != nil {
		return err
	}
	req, err := h.requests.Update(c.UserContext(), caller, id, service.RequestPatch{
		IssueType:           body.IssueType,
		Priority:            body.Priority,
		Address:             body.Address,
		OfficeID:            body.OfficeID,
		LocationDescription: body.LocationDescription,
		EmployeeLocation:    body.EmployeeLocation,
		ProblemDescription:  body.ProblemDescription,
		Expenses:            body.Expenses,
		Comment:             body.Comment,
		PerformerID:         body.PerformerID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "request": requestResponse(req, h.attachments)})
}

// AddAttachments handles POST /api/requests/:id/attachments/.
func (h *RequestsHandler) AddAttachments(c *fiber.Ctx) error {
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
	files, err := readUploads(form, h.attachments.MaxUploadBytes(), attachmentFields...)
	if err != nil {
		return err
	}
	saved, err := h.attachments.AttachToRequest(c.UserContext(), caller, id, files)
	if err != nil {
		return err
	}
	items := make([]dto.AttachmentResponse, 0, len(saved))
	for _, a := range saved {
		items = append(items, attachmentResponse(a, h.attachments))
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"success": true, "attachments": items})
}

// Archive handles GET /api/requests/archive/?period=&region=&city=&office=.
func (h *RequestsHandler) Archive(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	officeID, err := optionalInt64(c.Query("office"), "office")
	if err != nil {
		return err
	}
	items, err := h.requests.ListArchive(c.UserContext(), caller, service.ArchiveFilter{
		Period:   c.Query("period"),
		Region:   c.Query("region"),
		City:     c.Query("city"),
		OfficeID: officeID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "requests": requestList(items, h.attachments)})
}
