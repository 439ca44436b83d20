package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/facility-desk/internal/domain"
)

// RequestFilter captures listing parameters.
type RequestFilter struct {
	CreatorID   *int64
	PerformerID *int64
	Statuses    []domain.RequestStatus
	Region      *string
	City        *string
	OfficeID    *int64
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// RequestChange carries rows appended together with an update.
type RequestChange struct {
	Comments []domain.Comment
	History  []domain.RequestHistory
	Outbox   []OutboxMessage
}

// RequestRepository encapsulates request persistence.
type RequestRepository interface {
	// Create inserts req with its attachments and outbox messages in one
	// transaction.
	Create(ctx context.Context, req *domain.Request, outbox []OutboxMessage) error
	GetByID(ctx context.Context, id int64) (*domain.Request, error)
	List(ctx context.Context, filter RequestFilter) ([]domain.Request, error)
	// Update writes req if its Version still matches the stored row and
	// bumps req.Version. It returns ErrVersionConflict otherwise.
	Update(ctx context.Context, req *domain.Request, change RequestChange) error
	CountOpenByPerformer(ctx context.Context, performerIDs []int64) (map[int64]int, error)
	ArchiveCompletedBefore(ctx context.Context, cutoff time.Time) ([]int64, error)
}

type requestRepository struct {
	pool *pgxpool.Pool
}

// NewRequestRepository instantiates repository.
func NewRequestRepository(pool *pgxpool.Pool) RequestRepository {
	return &requestRepository{pool: pool}
}

const requestColumns = `
        r.id, r.user_id, r.office_id, r.status, r.priority, r.issue_type, r.address,
        r.employee_location, r.location_description, r.problem_description, r.performer_id,
        r.expenses, r.version, r.created_at, r.updated_at, r.completed_at,
        o.name, o.address, o.city, o.region`

const requestFrom = `FROM requests r LEFT JOIN offices o ON o.id = r.office_id`

func (r *requestRepository) Create(ctx context.Context, req *domain.Request, outbox []OutboxMessage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if req.Expenses == nil {
		req.Expenses = []domain.Expense{}
	}
	const query = `
        INSERT INTO requests (user_id, office_id, status, priority, issue_type, address, employee_location,
            location_description, problem_description, performer_id, expenses)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, version, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		req.UserID,
		req.OfficeID,
		req.Status,
		req.Priority,
		req.IssueType,
		req.Address,
		req.EmployeeLocation,
		req.LocationDescription,
		req.ProblemDescription,
		req.PerformerID,
		req.Expenses,
	).Scan(&req.ID, &req.Version, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return err
	}

	for i := range req.Attachments {
		req.Attachments[i].RequestID = req.ID
		if err := insertAttachment(ctx, tx, &req.Attachments[i]); err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
	}
	if err := insertOutbox(ctx, tx, req.ID, outbox); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *requestRepository) GetByID(ctx context.Context, id int64) (*domain.Request, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE r.id=$1`, requestColumns, requestFrom)
	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	items := []domain.Request{*req}
	if err := r.hydrate(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]domain.Request, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatorID != nil {
		args = append(args, *filter.CreatorID)
		clauses = append(clauses, fmt.Sprintf("r.user_id=$%d", len(args)))
	}
	if filter.PerformerID != nil {
		args = append(args, *filter.PerformerID)
		clauses = append(clauses, fmt.Sprintf("r.performer_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		args = append(args, statuses)
		clauses = append(clauses, fmt.Sprintf("r.status = ANY($%d)", len(args)))
	}
	if filter.Region != nil {
		args = append(args, *filter.Region)
		clauses = append(clauses, fmt.Sprintf("o.region=$%d", len(args)))
	}
	if filter.City != nil {
		args = append(args, *filter.City)
		clauses = append(clauses, fmt.Sprintf("o.city=$%d", len(args)))
	}
	if filter.OfficeID != nil {
		args = append(args, *filter.OfficeID)
		clauses = append(clauses, fmt.Sprintf("r.office_id=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("r.created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("r.created_at <= $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY r.created_at DESC, r.id DESC`,
		requestColumns, requestFrom, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	result, err := scanRequests(rows)
	if err != nil {
		return nil, err
	}
	if err := r.hydrate(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *requestRepository) Update(ctx context.Context, req *domain.Request, change RequestChange) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        UPDATE requests SET office_id=$1, status=$2, priority=$3, issue_type=$4, address=$5,
            employee_location=$6, location_description=$7, problem_description=$8, performer_id=$9,
            expenses=$10, completed_at=$11, version=version+1, updated_at=NOW()
        WHERE id=$12 AND version=$13
        RETURNING version, updated_at`
	err = tx.QueryRow(ctx, query,
		req.OfficeID,
		req.Status,
		req.Priority,
		req.IssueType,
		req.Address,
		req.EmployeeLocation,
		req.LocationDescription,
		req.ProblemDescription,
		req.PerformerID,
		req.Expenses,
		req.CompletedAt,
		req.ID,
		req.Version,
	).Scan(&req.Version, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM requests WHERE id=$1)`, req.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrVersionConflict
		}
		return err
	}

	for i := range change.Comments {
		comment := &change.Comments[i]
		comment.RequestID = req.ID
		if err := tx.QueryRow(ctx, `
            INSERT INTO request_comments (request_id, author_id, content)
            VALUES ($1,$2,$3)
            RETURNING id, created_at`,
			comment.RequestID, comment.AuthorID, comment.Content,
		).Scan(&comment.ID, &comment.CreatedAt); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		req.Comments = append(req.Comments, *comment)
	}
	for i := range change.History {
		change.History[i].RequestID = req.ID
		if err := insertHistory(ctx, tx, &change.History[i]); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
	}
	if err := insertOutbox(ctx, tx, req.ID, change.Outbox); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *requestRepository) CountOpenByPerformer(ctx context.Context, performerIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(performerIDs))
	if len(performerIDs) == 0 {
		return counts, nil
	}
	active := make([]string, 0, 4)
	for _, status := range domain.ActiveStatuses() {
		active = append(active, string(status))
	}
	rows, err := r.pool.Query(ctx, `
        SELECT performer_id, COUNT(*) FROM requests
        WHERE performer_id = ANY($1) AND status = ANY($2)
        GROUP BY performer_id`, performerIDs, active)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

func (r *requestRepository) ArchiveCompletedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
        UPDATE requests SET status=$1, version=version+1, updated_at=NOW()
        WHERE status=$2 AND completed_at IS NOT NULL AND completed_at < $3
        RETURNING id`, domain.StatusArchived, domain.StatusCompleted, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// hydrate loads comments and attachments for a batch of requests.
func (r *requestRepository) hydrate(ctx context.Context, items []domain.Request) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]int64, len(items))
	index := make(map[int64]int, len(items))
	for i := range items {
		ids[i] = items[i].ID
		index[items[i].ID] = i
	}

	rows, err := r.pool.Query(ctx, `
        SELECT id, request_id, author_id, content, created_at
        FROM request_comments WHERE request_id = ANY($1) ORDER BY created_at ASC, id ASC`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var comment domain.Comment
		if err := rows.Scan(&comment.ID, &comment.RequestID, &comment.AuthorID, &comment.Content, &comment.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		i := index[comment.RequestID]
		items[i].Comments = append(items[i].Comments, comment)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	attachments, err := listAttachmentsByRequests(ctx, r.pool, ids)
	if err != nil {
		return err
	}
	for _, att := range attachments {
		i := index[att.RequestID]
		items[i].Attachments = append(items[i].Attachments, att)
	}
	return nil
}

func scanRequest(row pgx.Row) (*domain.Request, error) {
	var req domain.Request
	var officeName, officeAddress, officeCity, officeRegion *string
	if err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.OfficeID,
		&req.Status,
		&req.Priority,
		&req.IssueType,
		&req.Address,
		&req.EmployeeLocation,
		&req.LocationDescription,
		&req.ProblemDescription,
		&req.PerformerID,
		&req.Expenses,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.CompletedAt,
		&officeName,
		&officeAddress,
		&officeCity,
		&officeRegion,
	); err != nil {
		return nil, err
	}
	if req.OfficeID != nil {
		req.Office = &domain.Office{
			ID:      *req.OfficeID,
			Name:    deref(officeName),
			Address: deref(officeAddress),
			City:    deref(officeCity),
			Region:  deref(officeRegion),
		}
	}
	return &req, nil
}

func scanRequests(rows pgx.Rows) ([]domain.Request, error) {
	defer rows.Close()
	var result []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
