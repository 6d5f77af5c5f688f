package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/showdownhq/showdown/go/internal/models"
	"github.com/showdownhq/showdown/go/internal/sqlutil"
)

// PostgresRepository persists sessions in the voting_sessions table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a Postgres-backed session repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, code, question, voting_active, show_results, end_time, created_at, updated_at`

func (r *PostgresRepository) FetchSessionByCode(ctx context.Context, code string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM voting_sessions WHERE code = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to fetch session by code: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM voting_sessions WHERE id = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) CreateSession(ctx context.Context, id uuid.UUID, code string) (*models.Session, error) {
	query := `
		INSERT INTO voting_sessions (id, code, question, voting_active, show_results)
		VALUES ($1, $2, $3, false, false)
		RETURNING ` + sessionColumns
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id, code, models.DefaultQuestion))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) UpdateSessionStatus(ctx context.Context, id uuid.UUID, req UpdateStatusRequest) (*models.Session, error) {
	var endTime sql.NullTime
	if req.EndTime != nil {
		endTime = sql.NullTime{Time: *req.EndTime, Valid: true}
	}

	query := `
		UPDATE voting_sessions
		SET voting_active = $2, show_results = $3, end_time = $4, updated_at = now()
		WHERE id = $1
		RETURNING ` + sessionColumns
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id, req.VotingActive, req.ShowResults, endTime))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}
	return s, nil
}

// DeleteSession removes a session and all of its votes in one transaction.
func (r *PostgresRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE session_id = $1`, id); err != nil {
			return fmt.Errorf("delete votes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM voting_sessions WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s       models.Session
		endTime sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.Code, &s.Question, &s.VotingActive, &s.ShowResults, &endTime, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if endTime.Valid {
		s.EndTime = &endTime.Time
	}
	return &s, nil
}
