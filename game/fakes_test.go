package game

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"squash/domain"
	"squash/events"
	"squash/timer/timertest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gnat is the plain bug: one click squashes it, it escapes after gnatEscape.
type gnat struct{}

const gnatEscape = 5 * time.Second

func (gnat) Kind() string { return "gnat" }

func (gnat) Spawn(ctx *GameContext, b *Bug) {
	b.Timers.Every(time.Second, func() { ctx.MoveBug(b, b.X+0.01, b.Y) })
	b.Timers.After(gnatEscape, func() { ctx.Escape(b) })
}

func (gnat) OnClick(ctx *GameContext, b *Bug, playerId string, _ Click) {
	ctx.Squash(b, playerId, 1)
}

// tank needs two clicks.
type tank struct{}

func (tank) Kind() string { return "tank" }

func (tank) Spawn(_ *GameContext, b *Bug) { b.HP = 2 }

func (tank) OnClick(ctx *GameContext, b *Bug, playerId string, _ Click) {
	if ctx.HitBug(b, playerId, 1) {
		ctx.Squash(b, playerId, 5)
	}
}

// rock has no capabilities besides existing.
type rock struct{}

func (rock) Kind() string { return "rock" }

func (rock) Spawn(*GameContext, *Bug) {}

// shy removes itself, and the bug named in its variant, when a cursor comes
// close.
type shy struct{ seen *[]int }

func (shy) Kind() string { return "shy" }

func (shy) Spawn(*GameContext, *Bug) {}

func (s shy) OnCursorNear(ctx *GameContext, b *Bug, _ string, _, _ float64) {
	*s.seen = append(*s.seen, b.Id)
	if victim, ok := b.Variant.(int); ok {
		ctx.RemoveBug(victim)
	}
}

type dummyBoss struct{}

type dummyState struct{ ticks int }

func (dummyBoss) Kind() string { return "dummy" }

func (dummyBoss) Init(*GameContext) *BossSnapshot {
	return &BossSnapshot{HP: 3, Stage: 1, Data: &dummyState{}}
}

func (dummyBoss) OnClick(ctx *GameContext, _ *BossSnapshot, playerId string, _ Click) {
	ctx.DamageBoss(playerId, 1)
}

func (dummyBoss) OnTick(_ *GameContext, boss *BossSnapshot) {
	boss.Data.(*dummyState).ticks++
}

// pack spawns two gnats and is won when both are gone.
type pack struct{ ticks *int }

func (pack) Kind() string { return "pack" }

func (pack) Init(ctx *GameContext, enc *Encounter) []*Bug {
	return []*Bug{
		ctx.SpawnEncounterBug(enc, "gnat", 0.2, 0.2),
		ctx.SpawnEncounterBug(enc, "gnat", 0.8, 0.8),
	}
}

func (pack) CheckVictory(ctx *GameContext, enc *Encounter) bool {
	for _, b := range ctx.State.Bugs {
		if b.Encounter == enc.Id {
			return false
		}
	}
	return true
}

func (p pack) OnTick(*GameContext, *Encounter) {
	*p.ticks++
}

type directory map[string]domain.PlayerInfo

func (d directory) Player(id string) (domain.PlayerInfo, bool) {
	p, ok := d[id]
	return p, ok
}

type fixture struct {
	sched   *timertest.Scheduler
	reg     *Registry
	catalog *Catalog
	logs    *bytes.Buffer

	shySeen     []int
	packTicks   int
	persister   *Persister
	registryCfg RegistryConfig
	directory   directory
}

type fixtureOption func(f *fixture)

func withStore(store Store) fixtureOption {
	return func(f *fixture) {
		f.persister = NewInlinePersister(store, zerolog.Nop())
	}
}

func withPersister(p *Persister) fixtureOption {
	return func(f *fixture) {
		f.persister = p
	}
}

func strict() fixtureOption {
	return func(f *fixture) {
		f.registryCfg.StrictTransitions = true
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		sched:       timertest.New(),
		logs:        &bytes.Buffer{},
		registryCfg: RegistryConfig{MaxLobbies: 3, MaxPlayersPerLobby: 3},
		directory:   directory{},
	}
	for _, opt := range opts {
		opt(f)
	}
	log := zerolog.New(f.logs)
	if f.persister == nil {
		f.persister = NewInlinePersister(NopStore{}, log)
	}

	f.catalog = NewCatalog()
	require.NoError(t, f.catalog.RegisterBug(gnat{}, 1))
	require.NoError(t, f.catalog.RegisterBug(tank{}, 0))
	require.NoError(t, f.catalog.RegisterBug(rock{}, 0))
	require.NoError(t, f.catalog.RegisterBug(shy{seen: &f.shySeen}, 0))
	require.NoError(t, f.catalog.RegisterBoss(dummyBoss{}))
	require.NoError(t, f.catalog.RegisterMiniBoss(pack{ticks: &f.packTicks}))

	f.reg = NewRegistry(f.registryCfg, Deps{
		Scheduler: f.sched,
		Catalog:   f.catalog,
		Players:   f.directory,
		Persister: f.persister,
		Log:       log,
	})
	return f
}

func testRules() Rules {
	return Rules{
		Lives:            3,
		SpawnInterval:    time.Hour,
		MaxBugs:          5,
		BugsToBoss:       6,
		MiniBossEvery:    3,
		EncounterTick:    100 * time.Millisecond,
		EncounterTimeout: 2 * time.Second,
		BossTick:         time.Second,
		BossKind:         "dummy",
		Seed:             1,
	}
}

func (f *fixture) createLobby(t *testing.T) *Lobby {
	t.Helper()
	id, err := f.reg.CreateLobby(LobbyConfig{Name: "test", Rules: testRules()})
	require.NoError(t, err)
	l, ok := f.reg.Lobby(id)
	require.True(t, ok)
	return l
}

func (f *fixture) join(t *testing.T, lobbyId int, ids ...string) {
	t.Helper()
	for _, id := range ids {
		info := domain.PlayerInfo{Id: id, Name: strings.ToUpper(id)}
		f.directory[id] = info
		require.NoError(t, f.reg.JoinLobby(lobbyId, info))
	}
}

// playing returns a lobby with p1 (host) and p2 in a started game.
func (f *fixture) playing(t *testing.T) *Lobby {
	t.Helper()
	l := f.createLobby(t)
	f.join(t, l.Id, "p1", "p2")
	require.NoError(t, StartGame(l.Ctx, "p1"))
	return l
}

func (f *fixture) warnings() []string {
	var out []string
	for _, line := range strings.Split(f.logs.String(), "\n") {
		if strings.Contains(line, `"level":"warn"`) || strings.Contains(line, `"level":"error"`) {
			out = append(out, line)
		}
	}
	return out
}

type captured struct {
	msgs []events.Message
}

func capture(ctx *GameContext) *captured {
	c := &captured{}
	ctx.Events.On(func(m events.Message) { c.msgs = append(c.msgs, m) })
	return c
}

func (c *captured) types() []string {
	out := make([]string, 0, len(c.msgs))
	for _, m := range c.msgs {
		out = append(out, m.Type)
	}
	return out
}

func (c *captured) count(msgType string) int {
	n := 0
	for _, m := range c.msgs {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

// assertConsistent checks that the player index and the lobbies agree in both
// directions.
func assertConsistent(t *testing.T, r *Registry) {
	t.Helper()
	for playerId, lobbyId := range r.byPlayer {
		l, ok := r.lobbies[lobbyId]
		if assert.True(t, ok, "player %s mapped to missing lobby %d", playerId, lobbyId) {
			assert.Contains(t, l.Ctx.State.Players, playerId)
		}
	}
	for lobbyId, l := range r.lobbies {
		for playerId := range l.Ctx.State.Players {
			assert.Equal(t, lobbyId, r.byPlayer[playerId])
		}
	}
}
