package game

import (
	"errors"
	"testing"
	"time"

	"squash/domain"
	"squash/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateLobby(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		cfg     LobbyConfig
		wantErr error
	}{
		{name: "defaults", cfg: LobbyConfig{Rules: Rules{BossKind: "dummy"}}},
		{name: "too many players", cfg: LobbyConfig{MaxPlayers: 9, Rules: Rules{BossKind: "dummy"}}, wantErr: domain.ErrInvalidConfig},
		{name: "unknown boss", cfg: LobbyConfig{Rules: Rules{BossKind: "kraken"}}, wantErr: domain.ErrInvalidConfig},
		{name: "unknown mode", cfg: LobbyConfig{Rules: Rules{Mode: "chaos", BossKind: "dummy"}}, wantErr: domain.ErrInvalidConfig},
		{name: "unknown mini-boss", cfg: LobbyConfig{Rules: Rules{BossKind: "dummy", MiniBossKinds: []string{"nope"}}}, wantErr: domain.ErrInvalidConfig},
		{name: "unknown spawn weight", cfg: LobbyConfig{Rules: Rules{BossKind: "dummy", SpawnWeights: map[string]int{"nope": 1}}}, wantErr: domain.ErrInvalidConfig},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			id, err := f.reg.CreateLobby(tc.cfg)
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				assert.Equal(t, 0, f.reg.Len())
				return
			}
			require.NoError(t, err)

			l, ok := f.reg.Lobby(id)
			require.True(t, ok)
			assert.Equal(t, PhaseLobby, l.Ctx.State.Phase)
			assert.Equal(t, 3, l.Config.MaxPlayers)
			assert.Equal(t, "Lobby 1", l.Config.Name)
			assert.Equal(t, ModeClassic, l.Config.Rules.Mode)
		})
	}
}

func TestCreateLobbyCap(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for range 3 {
		f.createLobby(t)
	}
	_, err := f.reg.CreateLobby(LobbyConfig{Rules: testRules()})
	assert.ErrorIs(t, err, domain.ErrTooManyLobbies)
	assert.Equal(t, 3, f.reg.Len())
}

func TestJoinLobby(t *testing.T) {
	t.Parallel()

	t.Run("first player hosts", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		l := f.createLobby(t)
		msgs := capture(l.Ctx)

		f.join(t, l.Id, "p1", "p2")

		assert.Equal(t, RoleHost, l.Ctx.State.Players["p1"].Role)
		assert.Equal(t, RolePlayer, l.Ctx.State.Players["p2"].Role)
		assert.Equal(t, []string{"player-joined", "player-joined"}, msgs.types())
		for _, m := range msgs.msgs {
			assert.Equal(t, l.Id, m.LobbyId)
		}
		id, ok := f.reg.LobbyForPlayer("p2")
		assert.True(t, ok)
		assert.Equal(t, l.Id, id)
		assertConsistent(t, f.reg)
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		open := f.createLobby(t)
		other := f.createLobby(t)
		started := f.playing(t)
		f.join(t, open.Id, "a", "b", "c")

		testCases := []struct {
			name    string
			lobbyId int
			player  string
			wantErr error
		}{
			{name: "missing lobby", lobbyId: 99, player: "x", wantErr: domain.ErrLobbyNotFound},
			{name: "full", lobbyId: open.Id, player: "x", wantErr: domain.ErrLobbyFull},
			{name: "game running", lobbyId: started.Id, player: "x", wantErr: domain.ErrLobbyNotAccepting},
			{name: "already in this lobby", lobbyId: open.Id, player: "a", wantErr: domain.ErrAlreadyInLobby},
			{name: "already in another lobby", lobbyId: other.Id, player: "a", wantErr: domain.ErrAlreadyInLobby},
		}
		for _, tc := range testCases {
			err := f.reg.JoinLobby(tc.lobbyId, domain.PlayerInfo{Id: tc.player})
			assert.ErrorIs(t, err, tc.wantErr, tc.name)
		}

		id, _ := f.reg.LobbyForPlayer("a")
		assert.Equal(t, open.Id, id)
		assert.Empty(t, other.Ctx.State.Players)
		assertConsistent(t, f.reg)
	})
}

func TestLeaveLobby(t *testing.T) {
	t.Parallel()

	t.Run("host hands over in join order", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		l := f.createLobby(t)
		f.join(t, l.Id, "p1", "p2", "p3")
		msgs := capture(l.Ctx)

		require.NoError(t, f.reg.LeaveLobby(l.Id, "p1"))

		assert.Equal(t, RoleHost, l.Ctx.State.Players["p2"].Role)
		assert.Equal(t, RolePlayer, l.Ctx.State.Players["p3"].Role)
		assert.Equal(t, []string{"player-left", "host-changed"}, msgs.types())
		_, ok := f.reg.LobbyForPlayer("p1")
		assert.False(t, ok)
		assertConsistent(t, f.reg)
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		l := f.createLobby(t)
		other := f.createLobby(t)
		f.join(t, l.Id, "p1")
		f.join(t, other.Id, "p2")

		assert.ErrorIs(t, f.reg.LeaveLobby(99, "p1"), domain.ErrLobbyNotFound)
		assert.ErrorIs(t, f.reg.LeaveLobby(l.Id, "p2"), domain.ErrNotInLobby)
		assert.ErrorIs(t, f.reg.LeaveLobby(l.Id, "ghost"), domain.ErrNotInLobby)
		assertConsistent(t, f.reg)
	})

	t.Run("last player out destroys the lobby", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		l := f.playing(t)
		l.Ctx.SpawnBug("gnat", 0.5, 0.5)
		require.NotZero(t, f.sched.Pending())

		require.NoError(t, f.reg.LeaveLobby(l.Id, "p1"))
		require.NoError(t, f.reg.LeaveLobby(l.Id, "p2"))

		_, ok := f.reg.Lobby(l.Id)
		assert.False(t, ok)
		assert.True(t, l.Ctx.Lifecycle.Destroyed())
		assert.Zero(t, f.sched.Pending())
		assert.Empty(t, l.Ctx.State.Bugs)
		assertConsistent(t, f.reg)
	})

	t.Run("remove player by id", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		l := f.createLobby(t)
		f.join(t, l.Id, "p1", "p2")

		assert.True(t, f.reg.RemovePlayer("p2"))
		assert.False(t, f.reg.RemovePlayer("p2"))
		ctx, ok := f.reg.CtxForPlayer("p1")
		assert.True(t, ok)
		assert.Same(t, l.Ctx, ctx)
		_, ok = f.reg.CtxForPlayer("p2")
		assert.False(t, ok)
	})
}

func TestDestroyLobbyLeavesNothingBehind(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	l := f.playing(t)
	ctx := l.Ctx

	for range 3 {
		ctx.SpawnBug("gnat", 0.5, 0.5)
	}
	ctx.Timers.Lobby.After(time.Minute, func() { t.Error("lobby timer fired after destroy") })
	ctx.Timers.Boss.Every(time.Second, func() { t.Error("boss timer fired after destroy") })
	bugs := make([]*Bug, 0, len(ctx.State.Bugs))
	for _, b := range ctx.State.Bugs {
		bugs = append(bugs, b)
	}

	assert.True(t, f.reg.DestroyLobby(l.Id))
	assert.False(t, f.reg.DestroyLobby(l.Id))

	assert.Zero(t, f.sched.Pending())
	for _, b := range bugs {
		assert.Zero(t, b.Timers.Len())
	}
	assert.Zero(t, ctx.Timers.Lobby.Len())
	assert.Zero(t, ctx.Timers.Boss.Len())

	// a stale reference cannot schedule into the dead scope
	ctx.Timers.Lobby.After(time.Second, func() { t.Error("timer scheduled on a destroyed lobby fired") })
	bugs[0].Timers.After(time.Second, func() { t.Error("timer scheduled on a removed bug fired") })
	assert.Zero(t, f.sched.Pending())
	f.sched.Advance(time.Hour)

	_, ok := f.reg.LobbyForPlayer("p1")
	assert.False(t, ok)
	assertConsistent(t, f.reg)
}

func TestSweep(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	empty := f.createLobby(t)
	busy := f.createLobby(t)
	f.join(t, busy.Id, "p1")

	assert.Equal(t, 1, f.reg.Sweep())
	assert.Equal(t, 0, f.reg.Sweep())

	_, ok := f.reg.Lobby(empty.Id)
	assert.False(t, ok)
	assert.True(t, empty.Ctx.Lifecycle.Destroyed())
	_, ok = f.reg.Lobby(busy.Id)
	assert.True(t, ok)
}

func TestLobbiesListsPublicOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	pub := f.createLobby(t)
	f.join(t, pub.Id, "p1")
	_, err := f.reg.CreateLobby(LobbyConfig{Private: true, Rules: testRules()})
	require.NoError(t, err)

	assert.Equal(t, []LobbySummary{{
		Id:         pub.Id,
		Name:       "test",
		Mode:       ModeClassic,
		Phase:      PhaseLobby,
		Players:    1,
		MaxPlayers: 3,
	}}, f.reg.Lobbies())
}

func TestOnCreateRunsBeforeAnyEmit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var seen []string
	f.reg.OnCreate(func(l *Lobby) {
		assert.Equal(t, 2, len(l.Ctx.Lifecycle.hooks))
		l.Ctx.Events.On(func(m events.Message) { seen = append(seen, m.Type) })
	})
	l := f.createLobby(t)
	f.join(t, l.Id, "p1")

	assert.Equal(t, []string{"player-joined"}, seen)
}

func TestPersistenceFailureKeepsMembership(t *testing.T) {
	t.Parallel()
	store := &MockStore{}
	store.On("CreateLobby", mock.Anything, mock.Anything).Return(nil)
	store.On("AddMember", mock.Anything, mock.Anything, "p1", (*string)(nil)).Return(errors.New("connection refused"))
	store.On("RemoveMember", mock.Anything, mock.Anything, "p1").Return(errors.New("connection refused"))
	store.On("DeleteLobby", mock.Anything, mock.Anything).Return(nil)
	f := newFixture(t, withStore(store))

	l := f.createLobby(t)
	f.join(t, l.Id, "p1")
	assert.Contains(t, l.Ctx.State.Players, "p1")
	assertConsistent(t, f.reg)

	require.NoError(t, f.reg.LeaveLobby(l.Id, "p1"))
	_, ok := f.reg.Lobby(l.Id)
	assert.False(t, ok)
	store.AssertExpectations(t)
}

func TestReconcileSyncsLiveLobbies(t *testing.T) {
	t.Parallel()
	store := &MockStore{}
	store.On("CreateLobby", mock.Anything, mock.Anything).Return(nil)
	f := newFixture(t, withStore(store))
	a := f.createLobby(t)
	b := f.createLobby(t)

	store.On("AddMember", mock.Anything, a.Key, mock.Anything, (*string)(nil)).Return(nil)
	f.join(t, a.Id, "p1", "p2")

	store.On("SyncLobby", mock.Anything, mock.MatchedBy(func(rec LobbyRecord) bool {
		return rec.Key == a.Key && rec.LobbyId == a.Id
	}), []MemberRecord{{PlayerId: "p1"}, {PlayerId: "p2"}}).Return(nil).Once()
	store.On("SyncLobby", mock.Anything, mock.MatchedBy(func(rec LobbyRecord) bool {
		return rec.Key == b.Key
	}), []MemberRecord{}).Return(nil).Once()
	store.On("ReconcileLobbies", mock.Anything, []uuid.UUID{a.Key, b.Key}, f.sched.Now()).Return(int64(2), nil).Once()
	f.reg.Reconcile()

	store.AssertExpectations(t)
}

// The full journey of one lobby, from creation through two games to the
// moment the last player leaves.
func TestLobbyLifecycleScenario(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	l := f.createLobby(t)
	f.join(t, l.Id, "p1", "p2")
	msgs := capture(l.Ctx)
	ctx := l.Ctx

	require.NoError(t, StartGame(ctx, "p1"))
	assert.Equal(t, PhasePlaying, ctx.State.Phase)

	b := ctx.SpawnBug("gnat", 0.5, 0.5)
	HandleClick(ctx, "p2", b.Id, Click{X: 0.5, Y: 0.5})
	assert.Equal(t, 1, ctx.State.Players["p2"].Score)

	ctx.LoseLife(ctx.State.Lives, "test")
	assert.Equal(t, PhaseGameOver, ctx.State.Phase)

	require.NoError(t, StartGame(ctx, "p1"))
	assert.Equal(t, PhasePlaying, ctx.State.Phase)
	assert.Zero(t, ctx.State.Players["p2"].Score)
	require.NoError(t, ResetToLobby(ctx, "p1"))
	assert.Equal(t, PhaseLobby, ctx.State.Phase)
	assert.Equal(t, 1, ctx.MatchLog().Games())

	require.NoError(t, f.reg.LeaveLobby(l.Id, "p1"))
	require.NoError(t, f.reg.LeaveLobby(l.Id, "p2"))

	assert.Zero(t, f.reg.Len())
	assert.Zero(t, f.sched.Pending())
	assert.Empty(t, f.warnings())
	assert.Equal(t, []string{
		"game-started", "bug-spawned", "bug-squashed", "lives-changed", "game-over",
		"game-started", "returned-to-lobby", "player-left", "host-changed",
	}, msgs.types())
}
