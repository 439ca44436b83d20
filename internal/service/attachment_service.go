package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/persistence"
	"github.com/spec-kit/facility-desk/internal/repository"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

// FilesRoutePrefix is the public path under which stored objects are served.
const FilesRoutePrefix = "/api/files/"

// ObjectStorage is the subset of the object store used by uploads.
type ObjectStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, persistence.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// UploadFile is one uploaded part. Data holds at most limit+1 bytes so an
// oversized upload is detectable without buffering all of it.
type UploadFile struct {
	FileName    string
	ContentType string
	Size        int64
	Data        []byte
}

// RejectedFile explains why a single upload was refused.
type RejectedFile struct {
	FileName string `json:"fileName"`
	Reason   string `json:"reason"`
	Code     string `json:"code"`
}

// AttachmentService validates and stores request attachments and avatars.
type AttachmentService struct {
	objects     ObjectStorage
	attachments repository.AttachmentRepository
	requests    repository.RequestRepository
	maxBytes    int64
	baseURL     string
	logger      *zap.Logger
}

// AttachmentDependencies bundles collaborators for AttachmentService.
type AttachmentDependencies struct {
	Objects        ObjectStorage
	AttachmentRepo repository.AttachmentRepository
	RequestRepo    repository.RequestRepository
	MaxUploadBytes int64
	PublicBaseURL  string
	Logger         *zap.Logger
}

// NewAttachmentService constructs the service.
func NewAttachmentService(deps AttachmentDependencies) *AttachmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentService{
		objects:     deps.Objects,
		attachments: deps.AttachmentRepo,
		requests:    deps.RequestRepo,
		maxBytes:    deps.MaxUploadBytes,
		baseURL:     strings.TrimRight(deps.PublicBaseURL, "/"),
		logger:      logger,
	}
}

// MaxUploadBytes returns the per-file ceiling.
func (s *AttachmentService) MaxUploadBytes() int64 {
	return s.maxBytes
}

// URL returns the durable public URL of a stored object.
func (s *AttachmentService) URL(key string) string {
	if key == "" {
		return ""
	}
	return s.baseURL + FilesRoutePrefix + key
}

// Validate checks every file independently and reports all rejections at
// once. Unsupported types take precedence over size in the error kind.
func (s *AttachmentService) Validate(files []UploadFile) error {
	var rejected []RejectedFile
	unsupported := false
	for _, f := range files {
		if reason, code := s.check(f); reason != "" {
			rejected = append(rejected, RejectedFile{FileName: f.FileName, Reason: reason, Code: code})
			if code == apperrors.CodeUnsupportedMedia {
				unsupported = true
			}
		}
	}
	if len(rejected) == 0 {
		return nil
	}
	details := map[string]any{"rejected": rejected, "maxBytes": s.maxBytes}
	if unsupported {
		return apperrors.NewUnsupportedMediaType("only image uploads are accepted", details)
	}
	return apperrors.NewPayloadTooLarge(fmt.Sprintf("files must not exceed %d bytes", s.maxBytes), details)
}

func (s *AttachmentService) check(f UploadFile) (string, string) {
	declared := strings.ToLower(strings.TrimSpace(f.ContentType))
	if declared != "" && !strings.HasPrefix(declared, "image/") {
		return fmt.Sprintf("declared type %s is not an image", declared), apperrors.CodeUnsupportedMedia
	}
	if len(f.Data) == 0 {
		return "file is empty", apperrors.CodeUnsupportedMedia
	}
	if sniffed := mimetype.Detect(f.Data); !strings.HasPrefix(sniffed.String(), "image/") {
		return fmt.Sprintf("content type %s is not an image", sniffed.String()), apperrors.CodeUnsupportedMedia
	}
	if f.Size > s.maxBytes || int64(len(f.Data)) > s.maxBytes {
		return fmt.Sprintf("file exceeds %d bytes", s.maxBytes), apperrors.CodePayloadTooLarge
	}
	return "", ""
}

// Store validates files and writes them to object storage under prefix.
// Either every file is stored or none is.
func (s *AttachmentService) Store(ctx context.Context, prefix string, files []UploadFile) ([]domain.Attachment, error) {
	ctx, span := tracer.Start(ctx, "AttachmentService.Store")
	defer span.End()
	span.SetAttributes(attribute.Int("files", len(files)))

	if err := s.Validate(files); err != nil {
		return nil, err
	}
	stored := make([]domain.Attachment, 0, len(files))
	for _, f := range files {
		mt := mimetype.Detect(f.Data)
		key := path.Join(prefix, uuid.NewString()+mt.Extension())
		if err := s.objects.Put(ctx, key, bytes.NewReader(f.Data), int64(len(f.Data)), mt.String()); err != nil {
			s.Discard(ctx, stored)
			return nil, apperrors.NewInternalError(fmt.Errorf("store %s: %w", f.FileName, err))
		}
		stored = append(stored, domain.Attachment{
			StorageKey: key,
			FileName:   sanitizeFileName(f.FileName),
			MimeType:   mt.String(),
			SizeBytes:  int64(len(f.Data)),
		})
	}
	return stored, nil
}

// Discard removes objects whose metadata never made it into the database.
func (s *AttachmentService) Discard(ctx context.Context, attachments []domain.Attachment) {
	for _, att := range attachments {
		if err := s.objects.Delete(ctx, att.StorageKey); err != nil {
			s.logger.Warn("failed to remove orphaned object", zap.String("key", att.StorageKey), zap.Error(err))
		}
	}
}

// AttachToRequest stores files and links them to an existing request. The
// creator may attach while the request is editable, AHO staff until it
// reaches a terminal status.
func (s *AttachmentService) AttachToRequest(ctx context.Context, caller domain.Caller, requestID int64, files []UploadFile) ([]domain.Attachment, error) {
	if len(files) == 0 {
		return nil, apperrors.NewValidationError("no files provided", nil)
	}
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, mapRepoError(err, "request", map[string]any{"request_id": requestID})
	}
	if req.IsTerminal() {
		return nil, apperrors.NewForbidden("request is closed")
	}
	if !caller.IsAHO() && !(caller.UserID == req.UserID && req.IsEditableByCreator()) {
		return nil, apperrors.NewForbidden("not allowed to attach files to this request")
	}

	stored, err := s.Store(ctx, requestPrefix(requestID), files)
	if err != nil {
		return nil, err
	}
	saved, err := s.attachments.AddToRequest(ctx, requestID, stored)
	if err != nil {
		s.Discard(ctx, stored)
		return nil, apperrors.MapError(err)
	}
	return saved, nil
}

// Open streams a stored object. Only keys referenced by a request or an
// avatar are served.
func (s *AttachmentService) Open(ctx context.Context, key string) (io.ReadCloser, persistence.ObjectInfo, error) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return nil, persistence.ObjectInfo{}, apperrors.NewNotFound("file", nil)
	}
	known, err := s.attachments.ExistsByKey(ctx, key)
	if err != nil {
		return nil, persistence.ObjectInfo{}, apperrors.MapError(err)
	}
	if !known {
		return nil, persistence.ObjectInfo{}, apperrors.NewNotFound("file", map[string]any{"key": key})
	}
	body, info, err := s.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, persistence.ErrObjectNotFound) {
			return nil, persistence.ObjectInfo{}, apperrors.NewNotFound("file", map[string]any{"key": key})
		}
		return nil, persistence.ObjectInfo{}, apperrors.MapError(err)
	}
	return body, info, nil
}

func requestPrefix(requestID int64) string {
	if requestID == 0 {
		return "requests/pending"
	}
	return fmt.Sprintf("requests/%d", requestID)
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return "file"
	}
	return name
}
