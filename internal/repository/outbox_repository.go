package repository

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxMessage is a request event stored in the same transaction as the
// change that raised it. Payload holds the JSON-encoded event payload.
type OutboxMessage struct {
	ID        int64
	EventID   string
	EventType string
	RequestID int64
	ActorID   *int64
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

// OutboxRepository hands stored events to the relay.
type OutboxRepository interface {
	// Claim leases up to limit unclaimed or expired messages, oldest first,
	// and counts the attempt. A leased message is invisible to other
	// claimers until the lease ends.
	Claim(ctx context.Context, limit int, lease time.Duration) ([]OutboxMessage, error)
	// Delete removes relayed messages.
	Delete(ctx context.Context, ids []int64) error
}

type outboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository builds a Postgres-backed outbox.
func NewOutboxRepository(pool *pgxpool.Pool) OutboxRepository {
	return &outboxRepository{pool: pool}
}

func (r *outboxRepository) Claim(ctx context.Context, limit int, lease time.Duration) ([]OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
        UPDATE notification_outbox
        SET attempts = attempts + 1, claimed_until = NOW() + make_interval(secs => $2)
        WHERE id IN (
            SELECT id FROM notification_outbox
            WHERE claimed_until IS NULL OR claimed_until < NOW()
            ORDER BY id
            LIMIT $1
            FOR UPDATE SKIP LOCKED)
        RETURNING id, event_id, event_type, request_id, actor_id, payload, attempts, created_at`,
		limit, lease.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []OutboxMessage
	for rows.Next() {
		var msg OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.EventID, &msg.EventType, &msg.RequestID, &msg.ActorID,
			&msg.Payload, &msg.Attempts, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	return messages, nil
}

func (r *outboxRepository) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM notification_outbox WHERE id = ANY($1)`, ids)
	return err
}

func insertOutbox(ctx context.Context, q querier, requestID int64, messages []OutboxMessage) error {
	for i := range messages {
		msg := &messages[i]
		msg.RequestID = requestID
		if err := q.QueryRow(ctx, `
            INSERT INTO notification_outbox (event_id, event_type, request_id, actor_id, payload)
            VALUES ($1,$2,$3,$4,$5)
            RETURNING id, created_at`,
			msg.EventID, msg.EventType, msg.RequestID, msg.ActorID, msg.Payload,
		).Scan(&msg.ID, &msg.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}
