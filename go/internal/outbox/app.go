package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/showdownhq/showdown/go/internal/events"
)

// OutboxRepository defines what the app layer needs from the repository.
type OutboxRepository interface {
	InsertSessionCreated(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	InsertSessionUpdated(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	InsertSessionDeleted(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	InsertVoteCast(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	InsertVotesReset(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
}

// App handles outbox business logic.
type App struct {
	repo OutboxRepository
}

// NewApp creates a new outbox App.
func NewApp(repo OutboxRepository) *App {
	return &App{
		repo: repo,
	}
}

// InsertSessionCreated inserts a SessionCreated event into the outbox.
func (a *App) InsertSessionCreated(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return a.insert(ctx, sessionID, events.TypeSessionCreated, payload, a.repo.InsertSessionCreated)
}

// InsertSessionUpdated inserts a SessionUpdated event into the outbox.
func (a *App) InsertSessionUpdated(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return a.insert(ctx, sessionID, events.TypeSessionUpdated, payload, a.repo.InsertSessionUpdated)
}

// InsertSessionDeleted inserts a SessionDeleted event into the outbox.
func (a *App) InsertSessionDeleted(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return a.insert(ctx, sessionID, events.TypeSessionDeleted, payload, a.repo.InsertSessionDeleted)
}

// InsertVoteCast inserts a VoteCast event into the outbox.
func (a *App) InsertVoteCast(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return a.insert(ctx, sessionID, events.TypeVoteCast, payload, a.repo.InsertVoteCast)
}

// InsertVotesReset inserts a VotesReset event into the outbox.
func (a *App) InsertVotesReset(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return a.insert(ctx, sessionID, events.TypeVotesReset, payload, a.repo.InsertVotesReset)
}

func (a *App) insert(ctx context.Context, sessionID uuid.UUID, eventType string, payload []byte,
	insertFn func(context.Context, uuid.UUID, []byte) error) error {
	if err := a.validateEventPayload(payload); err != nil {
		return fmt.Errorf("invalid %s payload: %w", eventType, err)
	}

	if err := insertFn(ctx, sessionID, payload); err != nil {
		return fmt.Errorf("failed to insert %s event: %w", eventType, err)
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("event_type", eventType).
		Msg("outbox event inserted")

	return nil
}

// FetchUnsentEvents fetches unsent outbox events.
func (a *App) FetchUnsentEvents(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}

	evs, err := a.repo.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent events: %w", err)
	}

	if len(evs) > 0 {
		log.Debug().
			Int("count", len(evs)).
			Msg("fetched unsent outbox events")
	}

	return evs, nil
}

// MarkEventSent marks an outbox event as sent.
func (a *App) MarkEventSent(ctx context.Context, eventID uuid.UUID) error {
	if err := a.repo.MarkOutboxSent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to mark event as sent: %w", err)
	}

	log.Debug().
		Str("event_id", eventID.String()).
		Msg("marked outbox event as sent")

	return nil
}

// GetEventByID fetches a specific outbox event by ID.
func (a *App) GetEventByID(ctx context.Context, eventID uuid.UUID) (*OutboxEvent, error) {
	event, err := a.repo.FetchOutboxByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event by ID: %w", err)
	}
	return event, nil
}

// validateEventPayload validates that the event payload is not empty.
func (a *App) validateEventPayload(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("event payload cannot be empty")
	}
	return nil
}
