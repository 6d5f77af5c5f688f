package models

import (
	"time"

	"github.com/google/uuid"
)

// Team identifies one of the two fixed sides of a session.
type Team string

const (
	TeamOne Team = "team1"
	TeamTwo Team = "team2"
)

// Valid reports whether t is one of the two known teams.
func (t Team) Valid() bool {
	return t == TeamOne || t == TeamTwo
}

// VoteValue is a participant's yes/no choice. There is no stored
// "undecided": the absence of a Vote row means the participant has not voted.
type VoteValue string

const (
	VoteYes VoteValue = "yes"
	VoteNo  VoteValue = "no"
)

// Valid reports whether v is one of the two known vote values.
func (v VoteValue) Valid() bool {
	return v == VoteYes || v == VoteNo
}

// Vote is a participant's ballot within one session. At most one live row
// exists per (SessionID, ParticipantID) pair; revotes update in place.
type Vote struct {
	ID            uuid.UUID `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	ParticipantID string    `json:"participant_id"`
	Team          Team      `json:"team"`
	Value         VoteValue `json:"vote"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Tally counts yes/no ballots.
type Tally struct {
	Yes int `json:"yes"`
	No  int `json:"no"`
}

// TeamVotes partitions a session's votes by team. It is recomputed from the
// full vote list, never persisted.
type TeamVotes struct {
	Team1 []Vote `json:"team1"`
	Team2 []Vote `json:"team2"`
}

// PartitionVotes splits votes into the two team sequences. Every vote lands
// in exactly one side; the split is exhaustive because Team is validated on
// write.
func PartitionVotes(votes []Vote) TeamVotes {
	tv := TeamVotes{
		Team1: make([]Vote, 0, len(votes)),
		Team2: make([]Vote, 0, len(votes)),
	}
	for _, v := range votes {
		if v.Team == TeamTwo {
			tv.Team2 = append(tv.Team2, v)
		} else {
			tv.Team1 = append(tv.Team1, v)
		}
	}
	return tv
}

// TallyVotes counts yes/no ballots in a vote sequence.
func TallyVotes(votes []Vote) Tally {
	var t Tally
	for _, v := range votes {
		if v.Value == VoteYes {
			t.Yes++
		} else {
			t.No++
		}
	}
	return t
}
