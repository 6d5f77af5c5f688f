// Package events defines the domain event types and payloads that flow from
// the session/vote stores through the outbox to every subscribed client.
package events

import (
	"time"

	"github.com/showdownhq/showdown/go/internal/models"
)

// Event type names as stored in the outbox and published on the bus.
const (
	TypeSessionCreated = "SessionCreated"
	TypeSessionUpdated = "SessionUpdated"
	TypeSessionDeleted = "SessionDeleted"
	TypeVoteCast       = "VoteCast"
	TypeVotesReset     = "VotesReset"
)

// SessionCreatedPayload announces a new session under a code.
type SessionCreatedPayload struct {
	Code      string    `json:"code"`
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionUpdatedPayload carries the full updated record so subscribers can
// filter by code and read the new flags without a round trip.
type SessionUpdatedPayload struct {
	Code         string     `json:"code"`
	VotingActive bool       `json:"voting_active"`
	ShowResults  bool       `json:"show_results"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}

// SessionDeletedPayload announces a session removal (part of a replace).
type SessionDeletedPayload struct {
	Code string `json:"code"`
}

// VoteCastPayload announces a created or updated ballot. Subscribers re-fetch
// rather than applying the payload, so it carries identifiers only.
type VoteCastPayload struct {
	ParticipantID string           `json:"participant_id"`
	Team          models.Team      `json:"team"`
	Value         models.VoteValue `json:"vote"`
}

// VotesResetPayload announces that all ballots for a session were deleted.
// The session id travels on the envelope; the payload is intentionally empty
// because subscribers respond by re-fetching, not by applying a diff.
type VotesResetPayload struct{}
