package vote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/showdownhq/showdown/go/internal/models"
)

// PostgresRepository persists ballots in the votes table. The table carries
// a unique constraint on (session_id, participant_id); UpsertVote leans on
// it so two racing first casts can never produce two rows.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a Postgres-backed vote repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const voteColumns = `id, session_id, participant_id, team, vote, created_at, updated_at`

func (r *PostgresRepository) FetchVotes(ctx context.Context, sessionID uuid.UUID) ([]models.Vote, error) {
	query := `SELECT ` + voteColumns + ` FROM votes WHERE session_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch votes: %w", err)
	}
	defer rows.Close()

	votes := make([]models.Vote, 0)
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.ID, &v.SessionID, &v.ParticipantID, &v.Team, &v.Value, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate votes: %w", err)
	}
	return votes, nil
}

func (r *PostgresRepository) FindVote(ctx context.Context, sessionID uuid.UUID, participantID string) (*models.Vote, error) {
	query := `SELECT ` + voteColumns + ` FROM votes WHERE session_id = $1 AND participant_id = $2`
	var v models.Vote
	err := r.db.QueryRowContext(ctx, query, sessionID, participantID).
		Scan(&v.ID, &v.SessionID, &v.ParticipantID, &v.Team, &v.Value, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVoteNotFound
		}
		return nil, fmt.Errorf("failed to find vote: %w", err)
	}
	return &v, nil
}

// UpsertVote atomically inserts or updates the participant's ballot.
func (r *PostgresRepository) UpsertVote(ctx context.Context, req UpsertVoteRequest) (*models.Vote, error) {
	query := `
		INSERT INTO votes (id, session_id, participant_id, team, vote)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, participant_id)
		DO UPDATE SET team = EXCLUDED.team, vote = EXCLUDED.vote, updated_at = now()
		RETURNING ` + voteColumns
	var v models.Vote
	err := r.db.QueryRowContext(ctx, query, uuid.New(), req.SessionID, req.ParticipantID, req.Team, req.Value).
		Scan(&v.ID, &v.SessionID, &v.ParticipantID, &v.Team, &v.Value, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert vote: %w", err)
	}
	return &v, nil
}

func (r *PostgresRepository) DeleteAllVotes(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM votes WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete votes: %w", err)
	}
	return nil
}
