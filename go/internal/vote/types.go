package vote

import (
	"errors"

	"github.com/google/uuid"
	"github.com/showdownhq/showdown/go/internal/models"
)

// ErrVoteNotFound is returned when a participant has no ballot in a session.
var ErrVoteNotFound = errors.New("vote not found")

// UpsertVoteRequest carries a ballot write. The (SessionID, ParticipantID)
// pair is the upsert key: a first cast inserts, a revote updates in place.
type UpsertVoteRequest struct {
	SessionID     uuid.UUID
	ParticipantID string
	Team          models.Team
	Value         models.VoteValue
}
