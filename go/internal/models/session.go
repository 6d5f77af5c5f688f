package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQuestion is assigned to every session created on a lookup miss.
const DefaultQuestion = "Do you agree with the proposal?"

// Session represents one voting round, shared by everyone who joined the
// same code. EndTime is set iff a countdown is in progress; a past EndTime
// with VotingActive still true means the session must be treated as ended
// and reconciled by whichever client notices first.
type Session struct {
	ID           uuid.UUID  `json:"id"`
	Code         string     `json:"code"`
	Question     string     `json:"question"`
	VotingActive bool       `json:"voting_active"`
	ShowResults  bool       `json:"show_results"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Ended reports whether the session's voting window has already passed at
// the given instant, regardless of what VotingActive still says.
func (s *Session) Ended(now time.Time) bool {
	return s.VotingActive && s.EndTime != nil && !s.EndTime.After(now)
}
