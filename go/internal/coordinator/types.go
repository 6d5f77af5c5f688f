package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/showdownhq/showdown/go/internal/models"
	"github.com/showdownhq/showdown/go/internal/vote"
)

// SessionStore defines what the coordinator needs from the session layer.
type SessionStore interface {
	FetchSessionByCode(ctx context.Context, code string) (*models.Session, error)
	CreateSession(ctx context.Context, code string) (*models.Session, error)
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, active, showResults bool, endTime *time.Time) (*models.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

// VoteStore defines what the coordinator needs from the vote layer.
type VoteStore interface {
	FetchVotes(ctx context.Context, sessionID uuid.UUID) ([]models.Vote, error)
	FindVote(ctx context.Context, sessionID uuid.UUID, participantID string) (*models.Vote, error)
	UpsertVote(ctx context.Context, req vote.UpsertVoteRequest) (*models.Vote, error)
	DeleteAllVotes(ctx context.Context, sessionID uuid.UUID) error
}

// Preferences is a small key-value store for per-participant settings that
// survive rejoining, such as the last-chosen team. A miss returns "" with a
// nil error.
type Preferences interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
}

// Alerter surfaces operation outcomes to the participant. Store failures are
// reported here and never retried automatically.
type Alerter interface {
	Info(msg string)
	Error(msg string)
}

// Snapshot is the unified state view handed to the presentation layer after
// every change.
type Snapshot struct {
	Loading       bool             `json:"loading"`
	Session       *models.Session  `json:"session,omitempty"`
	ParticipantID string           `json:"participantId"`
	Team          models.Team      `json:"team,omitempty"`
	MyVote        *models.Vote     `json:"myVote,omitempty"`
	Votes         models.TeamVotes `json:"votes"`
	Team1Tally    models.Tally     `json:"team1Tally"`
	Team2Tally    models.Tally     `json:"team2Tally"`
	Remaining     int              `json:"remaining"`
}
