package vote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/showdownhq/showdown/go/internal/events"
	"github.com/showdownhq/showdown/go/internal/models"
)

// Repository defines what the vote app layer needs from storage.
type Repository interface {
	FetchVotes(ctx context.Context, sessionID uuid.UUID) ([]models.Vote, error)
	FindVote(ctx context.Context, sessionID uuid.UUID, participantID string) (*models.Vote, error)
	UpsertVote(ctx context.Context, req UpsertVoteRequest) (*models.Vote, error)
	DeleteAllVotes(ctx context.Context, sessionID uuid.UUID) error
}

// Outbox defines what the vote app needs from the outbox.
type Outbox interface {
	InsertVoteCast(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	InsertVotesReset(ctx context.Context, sessionID uuid.UUID, payload []byte) error
}

// App handles ballot business logic and change-event emission.
type App struct {
	repo   Repository
	outbox Outbox
}

// NewApp creates a new vote App.
func NewApp(repo Repository, outbox Outbox) *App {
	return &App{
		repo:   repo,
		outbox: outbox,
	}
}

// FetchVotes returns all ballots of a session.
func (a *App) FetchVotes(ctx context.Context, sessionID uuid.UUID) ([]models.Vote, error) {
	votes, err := a.repo.FetchVotes(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch votes: %w", err)
	}
	return votes, nil
}

// FindVote returns the participant's ballot or ErrVoteNotFound.
func (a *App) FindVote(ctx context.Context, sessionID uuid.UUID, participantID string) (*models.Vote, error) {
	return a.repo.FindVote(ctx, sessionID, participantID)
}

// UpsertVote validates and writes a ballot. The store performs the
// insert-or-update atomically on the (session, participant) key.
func (a *App) UpsertVote(ctx context.Context, req UpsertVoteRequest) (*models.Vote, error) {
	if req.ParticipantID == "" {
		return nil, fmt.Errorf("participant id cannot be empty")
	}
	if !req.Team.Valid() {
		return nil, fmt.Errorf("invalid team: %s", req.Team)
	}
	if !req.Value.Valid() {
		return nil, fmt.Errorf("invalid vote value: %s", req.Value)
	}

	v, err := a.repo.UpsertVote(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert vote: %w", err)
	}

	a.emitVoteCast(ctx, v)

	log.Info().
		Str("session_id", v.SessionID.String()).
		Str("team", string(v.Team)).
		Str("vote", string(v.Value)).
		Msg("vote recorded")
	return v, nil
}

// DeleteAllVotes removes every ballot of a session.
func (a *App) DeleteAllVotes(ctx context.Context, sessionID uuid.UUID) error {
	if err := a.repo.DeleteAllVotes(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete votes: %w", err)
	}

	a.emitVotesReset(ctx, sessionID)

	log.Info().Str("session_id", sessionID.String()).Msg("votes reset")
	return nil
}

func (a *App) emitVoteCast(ctx context.Context, v *models.Vote) {
	payload, err := json.Marshal(events.VoteCastPayload{
		ParticipantID: v.ParticipantID,
		Team:          v.Team,
		Value:         v.Value,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal VoteCast payload")
		return
	}
	if err := a.outbox.InsertVoteCast(ctx, v.SessionID, payload); err != nil {
		log.Error().Err(err).Str("session_id", v.SessionID.String()).Msg("failed to emit VoteCast event")
	}
}

func (a *App) emitVotesReset(ctx context.Context, sessionID uuid.UUID) {
	payload, err := json.Marshal(events.VotesResetPayload{})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal VotesReset payload")
		return
	}
	if err := a.outbox.InsertVotesReset(ctx, sessionID, payload); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to emit VotesReset event")
	}
}
