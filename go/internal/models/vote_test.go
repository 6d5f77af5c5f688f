package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPartitionVotesIsExhaustiveAndDisjoint(t *testing.T) {
	tests := []struct {
		name  string
		teams []Team
		team1 int
		team2 int
	}{
		{name: "empty", teams: nil, team1: 0, team2: 0},
		{name: "all team1", teams: []Team{TeamOne, TeamOne}, team1: 2, team2: 0},
		{name: "all team2", teams: []Team{TeamTwo, TeamTwo, TeamTwo}, team1: 0, team2: 3},
		{name: "mixed", teams: []Team{TeamOne, TeamTwo, TeamOne, TeamTwo, TeamOne}, team1: 3, team2: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			votes := make([]Vote, len(tt.teams))
			for i, team := range tt.teams {
				votes[i] = Vote{ID: uuid.New(), Team: team, Value: VoteYes}
			}

			tv := PartitionVotes(votes)
			require.Len(t, tv.Team1, tt.team1)
			require.Len(t, tv.Team2, tt.team2)
			require.Equal(t, len(votes), len(tv.Team1)+len(tv.Team2))

			seen := make(map[uuid.UUID]bool)
			for _, v := range append(tv.Team1, tv.Team2...) {
				require.False(t, seen[v.ID], "vote assigned to both teams")
				seen[v.ID] = true
			}
		})
	}
}

func TestTallyVotes(t *testing.T) {
	votes := []Vote{
		{Value: VoteYes},
		{Value: VoteYes},
		{Value: VoteNo},
	}
	require.Equal(t, Tally{Yes: 2, No: 1}, TallyVotes(votes))
	require.Equal(t, Tally{}, TallyVotes(nil))
}

func TestTeamAndVoteValueValidation(t *testing.T) {
	require.True(t, TeamOne.Valid())
	require.True(t, TeamTwo.Valid())
	require.False(t, Team("purple").Valid())
	require.False(t, Team("").Valid())

	require.True(t, VoteYes.Valid())
	require.True(t, VoteNo.Valid())
	require.False(t, VoteValue("maybe").Valid())
}
