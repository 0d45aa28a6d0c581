package database

import (
	"context"
	"testing"

	"github.com/jason-s-yu/arcade/internal/auth"
	"github.com/jason-s-yu/arcade/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every Store implementation shares.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	gomoku := &models.Game{DevID: "dev1", Name: "gomoku", Version: "1.2.0", MinPlayers: 2, MaxPlayers: 4, FilePath: "7_gomoku"}
	require.NoError(t, s.CreateGame(ctx, gomoku))
	require.NotZero(t, gomoku.ID)
	retired := &models.Game{DevID: "dev1", Name: "old", Version: "0.1", MinPlayers: 1, MaxPlayers: 1, FilePath: "old", Status: models.GameInactive}
	require.NoError(t, s.CreateGame(ctx, retired))

	t.Run("games", func(t *testing.T) {
		g, err := s.GetGame(ctx, gomoku.ID)
		require.NoError(t, err)
		assert.Equal(t, "gomoku", g.Name)
		assert.True(t, g.Active())

		_, err = s.GetGame(ctx, 999999)
		assert.ErrorIs(t, err, ErrNotFound)

		games, err := s.ListActiveGames(ctx)
		require.NoError(t, err)
		require.Len(t, games, 1)
		assert.Equal(t, gomoku.ID, games[0].ID)
	})

	t.Run("accounts", func(t *testing.T) {
		u := &models.User{Username: "alice", Password: "pw", Role: models.RolePlayer}
		require.NoError(t, s.RegisterUser(ctx, u))
		assert.NotEqual(t, "pw", u.Password)

		err := s.RegisterUser(ctx, &models.User{Username: "alice", Password: "other", Role: models.RolePlayer})
		assert.ErrorIs(t, err, ErrAlreadyExists)

		// the developer table is separate
		require.NoError(t, s.RegisterUser(ctx, &models.User{Username: "alice", Password: "dev", Role: models.RoleDeveloper}))

		ok, err := s.VerifyUser(ctx, models.RolePlayer, "alice", "pw")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.VerifyUser(ctx, models.RolePlayer, "alice", "dev")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.VerifyUser(ctx, models.RolePlayer, "nobody", "pw")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("reviews require a play", func(t *testing.T) {
		err := s.AddReview(ctx, &models.Review{GameID: gomoku.ID, Player: "alice", Score: 4})
		assert.ErrorIs(t, err, ErrNotPlayed)

		require.NoError(t, s.RecordPlays(ctx, gomoku.ID, []string{"alice", "bob"}))

		for i, score := range []int{4, 5, 5} {
			player := "alice"
			if i == 2 {
				player = "bob"
			}
			require.NoError(t, s.AddReview(ctx, &models.Review{GameID: gomoku.ID, Player: player, Score: score, Comment: "gg"}))
		}

		r, err := s.GetRating(ctx, gomoku.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, r.Count)
		assert.InDelta(t, 14.0/3.0, r.Average, 1e-9)

		revs, err := s.RecentReviews(ctx, gomoku.ID, 2)
		require.NoError(t, err)
		require.Len(t, revs, 2)
		assert.Equal(t, "bob", revs[0].Player)

		empty, err := s.GetRating(ctx, retired.ID)
		require.NoError(t, err)
		assert.Zero(t, empty.Count)
		assert.Zero(t, empty.Average)
	})

	t.Run("record plays with nobody", func(t *testing.T) {
		assert.NoError(t, s.RecordPlays(ctx, gomoku.ID, nil))
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory(auth.LightParams))
}

func TestMemory_CreateGameWithID(t *testing.T) {
	m := NewMemory(auth.LightParams)
	ctx := context.Background()

	require.NoError(t, m.CreateGame(ctx, &models.Game{ID: 7, Name: "gomoku"}))
	assert.ErrorIs(t, m.CreateGame(ctx, &models.Game{ID: 7}), ErrAlreadyExists)

	next := &models.Game{Name: "tetris"}
	require.NoError(t, m.CreateGame(ctx, next))
	assert.Equal(t, 8, next.ID)
}

func TestMemory_RoomEventsDeduplicated(t *testing.T) {
	m := NewMemory(auth.LightParams)
	ev := models.NewRoomEvent(models.RoomCreated, "123456", 7, []string{"alice"})

	require.NoError(t, m.InsertRoomEvents(context.Background(), []models.RoomEvent{ev, ev}))
	require.NoError(t, m.InsertRoomEvents(context.Background(), []models.RoomEvent{ev}))
	assert.Len(t, m.RoomEvents(), 1)
}
