package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/showdownhq/showdown/go/internal/events"
	"github.com/showdownhq/showdown/go/internal/models"
)

// Repository defines what the session app layer needs from storage.
type Repository interface {
	FetchSessionByCode(ctx context.Context, code string) (*models.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	CreateSession(ctx context.Context, id uuid.UUID, code string) (*models.Session, error)
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, req UpdateStatusRequest) (*models.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

// Outbox defines what the session app needs from the outbox.
type Outbox interface {
	InsertSessionCreated(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	InsertSessionUpdated(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	InsertSessionDeleted(ctx context.Context, sessionID uuid.UUID, payload []byte) error
}

// App handles session business logic and change-event emission.
type App struct {
	repo   Repository
	outbox Outbox
}

// NewApp creates a new session App.
func NewApp(repo Repository, outbox Outbox) *App {
	return &App{
		repo:   repo,
		outbox: outbox,
	}
}

// FetchSessionByCode looks a session up by its human-entered code.
// Returns ErrSessionNotFound on a miss; the caller decides whether a miss
// means "create one".
func (a *App) FetchSessionByCode(ctx context.Context, code string) (*models.Session, error) {
	if code == "" {
		return nil, fmt.Errorf("code cannot be empty")
	}
	return a.repo.FetchSessionByCode(ctx, code)
}

// GetSession retrieves a session by id.
func (a *App) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return a.repo.GetSession(ctx, id)
}

// CreateSession creates a fresh session under code with the default question
// and inactive flags.
func (a *App) CreateSession(ctx context.Context, code string) (*models.Session, error) {
	if code == "" {
		return nil, fmt.Errorf("code cannot be empty")
	}

	s, err := a.repo.CreateSession(ctx, uuid.New(), code)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	a.emitSessionCreated(ctx, s)

	log.Info().Str("session_id", s.ID.String()).Str("code", s.Code).Msg("session created")
	return s, nil
}

// UpdateSessionStatus writes the active/results flags and end time. The
// write is idempotent: ending an already-ended session changes nothing, so
// multiple clients may race to finalize a round safely.
func (a *App) UpdateSessionStatus(ctx context.Context, id uuid.UUID, active, showResults bool, endTime *time.Time) (*models.Session, error) {
	if !active && endTime != nil {
		return nil, fmt.Errorf("end time is only meaningful while voting is active")
	}

	s, err := a.repo.UpdateSessionStatus(ctx, id, UpdateStatusRequest{
		VotingActive: active,
		ShowResults:  showResults,
		EndTime:      endTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}

	a.emitSessionUpdated(ctx, s)

	log.Info().
		Str("session_id", s.ID.String()).
		Bool("voting_active", s.VotingActive).
		Bool("show_results", s.ShowResults).
		Msg("session status updated")
	return s, nil
}

// DeleteSession removes a session and its votes.
func (a *App) DeleteSession(ctx context.Context, id uuid.UUID) error {
	s, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("session not found: %w", err)
	}

	if err := a.repo.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	a.emitSessionDeleted(ctx, s)

	log.Info().Str("session_id", id.String()).Str("code", s.Code).Msg("session deleted")
	return nil
}

func (a *App) emitSessionCreated(ctx context.Context, s *models.Session) {
	payload, err := json.Marshal(events.SessionCreatedPayload{
		Code:      s.Code,
		Question:  s.Question,
		CreatedAt: s.CreatedAt,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal SessionCreated payload")
		return
	}
	if err := a.outbox.InsertSessionCreated(ctx, s.ID, payload); err != nil {
		log.Error().Err(err).Str("session_id", s.ID.String()).Msg("failed to emit SessionCreated event")
	}
}

func (a *App) emitSessionUpdated(ctx context.Context, s *models.Session) {
	payload, err := json.Marshal(events.SessionUpdatedPayload{
		Code:         s.Code,
		VotingActive: s.VotingActive,
		ShowResults:  s.ShowResults,
		EndTime:      s.EndTime,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal SessionUpdated payload")
		return
	}
	if err := a.outbox.InsertSessionUpdated(ctx, s.ID, payload); err != nil {
		log.Error().Err(err).Str("session_id", s.ID.String()).Msg("failed to emit SessionUpdated event")
	}
}

func (a *App) emitSessionDeleted(ctx context.Context, s *models.Session) {
	payload, err := json.Marshal(events.SessionDeletedPayload{Code: s.Code})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal SessionDeleted payload")
		return
	}
	if err := a.outbox.InsertSessionDeleted(ctx, s.ID, payload); err != nil {
		log.Error().Err(err).Str("session_id", s.ID.String()).Msg("failed to emit SessionDeleted event")
	}
}
