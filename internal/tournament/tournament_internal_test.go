package tournament

import "testing"

func TestComputeLeaderboardKeepsOrderOnTies(t *testing.T) {
	teams := []*Team{
		{ID: 1, Name: "Team Alpha", TotalReturn: 2.5},
		{ID: 2, Name: "Team Beta", TotalReturn: 4.0},
		{ID: 3, Name: "Team Gamma", TotalReturn: 2.5},
	}

	board := computeLeaderboard(teams)

	wantOrder := []string{"Team Beta", "Team Alpha", "Team Gamma"}
	for i, name := range wantOrder {
		if board[i].Name != name {
			t.Errorf("board[%d] = %s, want %s", i, board[i].Name, name)
		}
		if board[i].Rank != i+1 {
			t.Errorf("board[%d].Rank = %d, want %d", i, board[i].Rank, i+1)
		}
	}

	// Ranking never mutates the source teams.
	for _, team := range teams {
		if team.Rank != 0 {
			t.Errorf("%s rank mutated to %d", team.Name, team.Rank)
		}
	}
}

func TestNewTeamUnknownID(t *testing.T) {
	if _, err := NewTeam(42); err == nil {
		t.Fatal("expected error for unknown team id")
	}
}
