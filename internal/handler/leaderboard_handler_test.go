package handler

import (
	"testing"

	"github.com/google/uuid"
	"github.com/openfantasy/leagueserver/internal/leaderboard"
	"github.com/stretchr/testify/require"
)

func snap(leagueID uuid.UUID, gameweek int, rows []leaderboard.Row) leaderboard.Snapshot {
	return leaderboard.Snapshot{LeagueID: leagueID, Gameweek: gameweek, Rows: rows}
}

func TestBuildStateMessage(t *testing.T) {
	leagueA := uuid.New()
	leagueB := uuid.New()
	k1 := uuid.New()
	k2 := uuid.New()

	rowsV1 := []leaderboard.Row{
		{Key: k1, Rank: 1, Username: "alice"},
		{Key: k2, Rank: 2, Username: "bob"},
	}
	rowsV2 := []leaderboard.Row{
		{Key: k2, Rank: 1, Username: "bob"},
		{Key: k1, Rank: 2, Username: "alice"},
	}

	t.Run("first emit is a full snapshot", func(t *testing.T) {
		msg := buildStateMessage(nil, snap(leagueA, 0, rowsV1))
		require.NotNil(t, msg)
		require.Equal(t, "snapshot", msg.Type)
		require.NotNil(t, msg.Snapshot)
	})

	t.Run("league switch resends a full snapshot", func(t *testing.T) {
		last := snap(leagueA, 0, rowsV1)
		msg := buildStateMessage(&last, snap(leagueB, 0, nil))
		require.NotNil(t, msg)
		require.Equal(t, "snapshot", msg.Type)
	})

	t.Run("gameweek switch resends a full snapshot", func(t *testing.T) {
		last := snap(leagueA, 0, rowsV1)
		msg := buildStateMessage(&last, snap(leagueA, 3, rowsV1))
		require.NotNil(t, msg)
		require.Equal(t, "snapshot", msg.Type)
	})

	t.Run("rank shuffle within a view is a patch of updates", func(t *testing.T) {
		last := snap(leagueA, 0, rowsV1)
		msg := buildStateMessage(&last, snap(leagueA, 0, rowsV2))
		require.NotNil(t, msg)
		require.Equal(t, "patch", msg.Type)
		require.Len(t, msg.Ops, 2)
		for _, op := range msg.Ops {
			require.Equal(t, leaderboard.OpUpdate, op.Kind)
		}
	})

	t.Run("identical state produces nothing", func(t *testing.T) {
		last := snap(leagueA, 0, rowsV1)
		msg := buildStateMessage(&last, snap(leagueA, 0, rowsV1))
		require.Nil(t, msg)
	})

	t.Run("error indicator alone still patches", func(t *testing.T) {
		last := snap(leagueA, 0, rowsV1)
		next := snap(leagueA, 0, rowsV1)
		next.Err = "upstream unavailable"
		msg := buildStateMessage(&last, next)
		require.NotNil(t, msg)
		require.Equal(t, "patch", msg.Type)
		require.Empty(t, msg.Ops)
		require.Equal(t, "upstream unavailable", msg.Err)
	})
}
