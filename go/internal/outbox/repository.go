package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/showdownhq/showdown/go/internal/events"
	"github.com/sqlc-dev/pqtype"
)

// Repository persists outbox events in the vote_outbox table. An insert
// trigger NOTIFYs the outbox channel with the new row's id so the listener
// can relay it without polling.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a Postgres-backed outbox repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertSessionCreated(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.insert(ctx, sessionID, events.TypeSessionCreated, payload)
}

func (r *Repository) InsertSessionUpdated(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.insert(ctx, sessionID, events.TypeSessionUpdated, payload)
}

func (r *Repository) InsertSessionDeleted(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.insert(ctx, sessionID, events.TypeSessionDeleted, payload)
}

func (r *Repository) InsertVoteCast(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.insert(ctx, sessionID, events.TypeVoteCast, payload)
}

func (r *Repository) InsertVotesReset(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.insert(ctx, sessionID, events.TypeVotesReset, payload)
}

func (r *Repository) insert(ctx context.Context, sessionID uuid.UUID, eventType string, payload []byte) error {
	query := `
		INSERT INTO vote_outbox (id, session_id, event_type, payload)
		VALUES ($1, $2, $3, $4)`
	raw := pqtype.NullRawMessage{RawMessage: payload, Valid: len(payload) > 0}
	if _, err := r.db.ExecContext(ctx, query, uuid.New(), sessionID, eventType, raw); err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return nil
}

func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	query := `
		SELECT id, session_id, event_type, payload, created_at
		FROM vote_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		ev, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return out, nil
}

func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	query := `
		SELECT id, session_id, event_type, payload, created_at
		FROM vote_outbox
		WHERE id = $1 AND sent_at IS NULL`
	ev, err := scanOutboxEvent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("outbox event not found or already sent")
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return ev, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE vote_outbox SET sent_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxEvent(row rowScanner) (*OutboxEvent, error) {
	var (
		ev      OutboxEvent
		payload pqtype.NullRawMessage
	)
	if err := row.Scan(&ev.ID, &ev.SessionID, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
		return nil, err
	}
	if payload.Valid {
		ev.Payload = payload.RawMessage
	}
	return &ev, nil
}
