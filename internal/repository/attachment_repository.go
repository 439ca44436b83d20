package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/facility-desk/internal/domain"
)

// AttachmentRepository persists attachment metadata.
type AttachmentRepository interface {
	AddToRequest(ctx context.Context, requestID int64, attachments []domain.Attachment) ([]domain.Attachment, error)
	ListByRequest(ctx context.Context, requestID int64) ([]domain.Attachment, error)
	ExistsByKey(ctx context.Context, storageKey string) (bool, error)
}

type attachmentRepository struct {
	pool *pgxpool.Pool
}

// NewAttachmentRepository constructs repository.
func NewAttachmentRepository(pool *pgxpool.Pool) AttachmentRepository {
	return &attachmentRepository{pool: pool}
}

func (r *attachmentRepository) AddToRequest(ctx context.Context, requestID int64, attachments []domain.Attachment) ([]domain.Attachment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	saved := make([]domain.Attachment, 0, len(attachments))
	for _, att := range attachments {
		att.RequestID = requestID
		if err := insertAttachment(ctx, tx, &att); err != nil {
			return nil, err
		}
		saved = append(saved, att)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *attachmentRepository) ListByRequest(ctx context.Context, requestID int64) ([]domain.Attachment, error) {
	return listAttachmentsByRequests(ctx, r.pool, []int64{requestID})
}

func (r *attachmentRepository) ExistsByKey(ctx context.Context, storageKey string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
        SELECT EXISTS(SELECT 1 FROM request_attachments WHERE storage_key=$1)
            OR EXISTS(SELECT 1 FROM users WHERE avatar_key=$1)`, storageKey).Scan(&exists)
	return exists, err
}

func insertAttachment(ctx context.Context, q querier, attachment *domain.Attachment) error {
	const query = `
        INSERT INTO request_attachments (request_id, storage_key, file_name, mime_type, size_bytes)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return q.QueryRow(ctx, query,
		attachment.RequestID,
		attachment.StorageKey,
		attachment.FileName,
		attachment.MimeType,
		attachment.SizeBytes,
	).Scan(&attachment.ID, &attachment.CreatedAt)
}

func listAttachmentsByRequests(ctx context.Context, q querier, requestIDs []int64) ([]domain.Attachment, error) {
	const query = `
        SELECT id, request_id, storage_key, file_name, mime_type, size_bytes, created_at
        FROM request_attachments WHERE request_id = ANY($1) ORDER BY created_at ASC, id ASC`
	rows, err := q.Query(ctx, query, requestIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Attachment
	for rows.Next() {
		var attachment domain.Attachment
		if err := rows.Scan(
			&attachment.ID,
			&attachment.RequestID,
			&attachment.StorageKey,
			&attachment.FileName,
			&attachment.MimeType,
			&attachment.SizeBytes,
			&attachment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attachment)
	}
	return result, rows.Err()
}
