package session

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned when no session exists for a code or id.
var ErrSessionNotFound = errors.New("session not found")

// VotingWindow is the fixed length of one voting round.
const VotingWindow = 15 * time.Second

// UpdateStatusRequest carries a session status write. EndTime must be set
// iff VotingActive is true: the end timestamp is only meaningful while a
// countdown is in progress.
type UpdateStatusRequest struct {
	VotingActive bool
	ShowResults  bool
	EndTime      *time.Time
}
