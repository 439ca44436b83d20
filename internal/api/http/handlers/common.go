package handlers

import (
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/facility-desk/internal/api/dto"
	"github.com/spec-kit/facility-desk/internal/auth"
	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/service"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

func callerFrom(c *fiber.Ctx) (domain.Caller, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return domain.Caller{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal.Caller, nil
}

func paramID(c *fiber.Ctx, name string) (int64, error) {
	raw := c.Params(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid "+name, map[string]any{name: raw})
	}
	return id, nil
}

func optionalInt64(raw, name string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, apperrors.NewValidationError("invalid "+name, map[string]any{name: raw})
	}
	return &v, nil
}

// ensureSelf rejects a client-supplied user id that differs from the
// authenticated caller. An absent id is accepted.
func ensureSelf(caller domain.Caller, claimed *int64) error {
	if claimed != nil && *claimed != caller.UserID {
		return apperrors.NewForbidden("user_id does not match the authenticated user")
	}
	return nil
}

// readUpload copies at most limit+1 bytes of a part so oversized files are
// detected without buffering them whole.
func readUpload(fh *multipart.FileHeader, limit int64) (service.UploadFile, error) {
	f, err := fh.Open()
	if err != nil {
		return service.UploadFile{}, apperrors.NewValidationError("unreadable upload", map[string]any{"file": fh.Filename})
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return service.UploadFile{}, apperrors.NewValidationError("unreadable upload", map[string]any{"file": fh.Filename})
	}
	return service.UploadFile{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
		Data:        data,
	}, nil
}

func readUploads(form *multipart.Form, limit int64, fields ...string) ([]service.UploadFile, error) {
	var files []service.UploadFile
	for _, field := range fields {
		for _, fh := range form.File[field] {
			file, err := readUpload(fh, limit)
			if err != nil {
				return nil, err
			}
			files = append(files, file)
		}
	}
	return files, nil
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func officeResponse(o *domain.Office) *dto.OfficeResponse {
	if o == nil {
		return nil
	}
	return &dto.OfficeResponse{ID: o.ID, Name: o.Name, Address: o.Address, City: o.City, Region: o.Region}
}

func requestResponse(r *domain.Request, attachments *service.AttachmentService) dto.RequestResponse {
	resp := dto.RequestResponse{
		ID:                  r.ID,
		UserID:              r.UserID,
		Status:              r.Status,
		Priority:            r.Priority,
		IssueType:           r.IssueType,
		Address:             r.Address,
		Office:              officeResponse(r.Office),
		EmployeeLocation:    r.EmployeeLocation,
		LocationDescription: r.LocationDescription,
		ProblemDescription:  r.ProblemDescription,
		PerformerID:         r.PerformerID,
		Expenses:            r.Expenses,
		Comments:            make([]dto.CommentResponse, 0, len(r.Comments)),
		Attachments:         make([]dto.AttachmentResponse, 0, len(r.Attachments)),
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		CompletedAt:         r.CompletedAt,
	}
	if resp.Expenses == nil {
		resp.Expenses = []domain.Expense{}
	}
	for _, cm := range r.Comments {
		resp.Comments = append(resp.Comments, dto.CommentResponse{
			ID:        cm.ID,
			AuthorID:  cm.AuthorID,
			Content:   cm.Content,
			CreatedAt: cm.CreatedAt,
		})
	}
	for _, a := range r.Attachments {
		resp.Attachments = append(resp.Attachments, attachmentResponse(a, attachments))
	}
	return resp
}

func attachmentResponse(a domain.Attachment, attachments *service.AttachmentService) dto.AttachmentResponse {
	return dto.AttachmentResponse{
		ID:        a.ID,
		FileName:  a.FileName,
		MimeType:  a.MimeType,
		SizeBytes: a.SizeBytes,
		URL:       attachments.URL(a.StorageKey),
	}
}

func requestList(items []domain.Request, attachments *service.AttachmentService) []dto.RequestResponse {
	out := make([]dto.RequestResponse, 0, len(items))
	for i := range items {
		out = append(out, requestResponse(&items[i], attachments))
	}
	return out
}
