package game

import (
	"fmt"
	"math/rand/v2"
	"time"

	"squash/domain"
	"squash/events"
	"squash/timer"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Mode string

const (
	ModeClassic   Mode = "classic"
	ModeRoguelike Mode = "roguelike"
)

// Rules tune one lobby's games. Zero fields take the defaults.
type Rules struct {
	Mode             Mode           `json:"mode" msgpack:"mode"`
	Lives            int            `json:"lives" msgpack:"lives"`
	SpawnInterval    time.Duration  `json:"-" msgpack:"-"`
	MaxBugs          int            `json:"maxBugs" msgpack:"maxBugs"`
	BugsToBoss       int            `json:"bugsToBoss" msgpack:"bugsToBoss"`
	MiniBossEvery    int            `json:"miniBossEvery" msgpack:"miniBossEvery"`
	EncounterTick    time.Duration  `json:"-" msgpack:"-"`
	EncounterTimeout time.Duration  `json:"-" msgpack:"-"`
	BossTick         time.Duration  `json:"-" msgpack:"-"`
	BossKind         string         `json:"bossKind" msgpack:"bossKind"`
	MiniBossKinds    []string       `json:"miniBossKinds" msgpack:"miniBossKinds"`
	SpawnWeights     map[string]int `json:"-" msgpack:"-"`
	NodeSquashes     int            `json:"nodeSquashes" msgpack:"nodeSquashes"`
	MapLength        int            `json:"mapLength" msgpack:"mapLength"`
	Seed             uint64         `json:"-" msgpack:"-"`
}

func DefaultRules() Rules {
	return Rules{
		Mode:             ModeClassic,
		Lives:            5,
		SpawnInterval:    1200 * time.Millisecond,
		MaxBugs:          12,
		BugsToBoss:       40,
		MiniBossEvery:    15,
		EncounterTick:    500 * time.Millisecond,
		EncounterTimeout: 30 * time.Second,
		BossTick:         time.Second,
		BossKind:         "hive-queen",
		NodeSquashes:     10,
		MapLength:        6,
	}
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.Mode == "" {
		r.Mode = d.Mode
	}
	if r.Lives <= 0 {
		r.Lives = d.Lives
	}
	if r.SpawnInterval <= 0 {
		r.SpawnInterval = d.SpawnInterval
	}
	if r.MaxBugs <= 0 {
		r.MaxBugs = d.MaxBugs
	}
	if r.BugsToBoss <= 0 {
		r.BugsToBoss = d.BugsToBoss
	}
	if r.MiniBossEvery <= 0 {
		r.MiniBossEvery = d.MiniBossEvery
	}
	if r.EncounterTick <= 0 {
		r.EncounterTick = d.EncounterTick
	}
	if r.EncounterTimeout <= 0 {
		r.EncounterTimeout = d.EncounterTimeout
	}
	if r.BossTick <= 0 {
		r.BossTick = d.BossTick
	}
	if r.BossKind == "" {
		r.BossKind = d.BossKind
	}
	if r.NodeSquashes <= 0 {
		r.NodeSquashes = d.NodeSquashes
	}
	if r.MapLength < 2 {
		r.MapLength = d.MapLength
	}
	return r
}

type LobbyConfig struct {
	Name       string `json:"name" msgpack:"name"`
	MaxPlayers int    `json:"maxPlayers" msgpack:"maxPlayers"`
	Private    bool   `json:"private" msgpack:"private"`
	Rules      Rules  `json:"rules" msgpack:"rules"`
}

// PlayerDirectory is the read-only view of player identities.
type PlayerDirectory interface {
	Player(id string) (domain.PlayerInfo, bool)
}

type GameTimers struct {
	Lobby *timer.Bag
	Boss  *timer.Bag
}

// GameContext is the handle every piece of gameplay code receives. Nothing in
// gameplay reaches a lobby any other way.
type GameContext struct {
	LobbyId   int
	LobbyKey  uuid.UUID
	Config    LobbyConfig
	State     *GameState
	Counters  *Counters
	Timers    GameTimers
	Events    *events.Bus
	Lifecycle *Lifecycle
	Players   PlayerDirectory
	Catalog   *Catalog
	Log       zerolog.Logger
	Rand      *rand.Rand

	sched    timer.Scheduler
	persist  *Persister
	matchLog *MatchLog
	progress progress
}

func (ctx *GameContext) Rules() Rules {
	return ctx.Config.Rules
}

func (ctx *GameContext) Now() time.Time {
	return ctx.sched.Now()
}

func (ctx *GameContext) Scheduler() timer.Scheduler {
	return ctx.sched
}

func (ctx *GameContext) Persister() *Persister {
	return ctx.persist
}

func (ctx *GameContext) Emit(msgType string, data any) {
	ctx.Events.Emit(events.Message{Type: msgType, Data: data})
}

// Alive is false once the lobby has been torn down. Results arriving from
// background work check it before touching state.
func (ctx *GameContext) Alive() bool {
	return !ctx.Lifecycle.Destroyed()
}

// MatchLog returns the lobby's match log, opening it on first use.
func (ctx *GameContext) MatchLog() *MatchLog {
	if ctx.matchLog == nil {
		ctx.matchLog = openMatchLog(ctx.LobbyKey, ctx.persist, ctx.Now)
	}
	return ctx.matchLog
}

func (ctx *GameContext) HasMatchLog() bool {
	return ctx.matchLog != nil
}

func (ctx *GameContext) Bug(id int) (*Bug, bool) {
	b, ok := ctx.State.Bugs[id]
	return b, ok
}

func (ctx *GameContext) SpawnBug(kind string, x, y float64) *Bug {
	return ctx.spawn(kind, x, y, 0)
}

func (ctx *GameContext) SpawnEncounterBug(enc *Encounter, kind string, x, y float64) *Bug {
	return ctx.spawn(kind, x, y, enc.Id)
}

func (ctx *GameContext) spawn(kind string, x, y float64, encounter int) *Bug {
	if !ctx.State.Phase.InGame() {
		return nil
	}
	e, ok := ctx.Catalog.bugs[kind]
	if !ok {
		ctx.Log.Warn().Str("kind", kind).Msg("spawn of unknown bug kind")
		return nil
	}

	id := ctx.Counters.NextBugId()
	b := &Bug{
		Id:        id,
		Kind:      kind,
		X:         clamp01(x),
		Y:         clamp01(y),
		HP:        1,
		MaxHP:     1,
		Encounter: encounter,
		SpawnedAt: ctx.Now(),
		Timers:    timer.NewBag(fmt.Sprintf("bug:%d", id), ctx.sched),
		entry:     e,
	}
	ctx.State.Bugs[id] = b
	e.kind.Spawn(ctx, b)
	b.MaxHP = max(b.MaxHP, b.HP)

	ctx.Emit("bug-spawned", b.View())
	return b
}

// RemoveBug deletes the bug and drains its private timers.
func (ctx *GameContext) RemoveBug(id int) (*Bug, bool) {
	b, ok := ctx.State.Bugs[id]
	if !ok {
		return nil, false
	}
	delete(ctx.State.Bugs, id)
	b.Timers.Close()
	return b, true
}

func (ctx *GameContext) ClearBugs() {
	for id, b := range ctx.State.Bugs {
		b.Timers.Close()
		delete(ctx.State.Bugs, id)
	}
}

func (ctx *GameContext) MoveBug(b *Bug, x, y float64) {
	b.X, b.Y = clamp01(x), clamp01(y)
	ctx.Emit("bug-moved", map[string]any{"id": b.Id, "x": b.X, "y": b.Y})
}

// HitBug applies damage that did not finish the bug off and reports whether
// it did.
func (ctx *GameContext) HitBug(b *Bug, playerId string, damage int) (killed bool) {
	b.HP -= damage
	if b.HP <= 0 {
		return true
	}
	ctx.Emit("bug-hit", map[string]any{"id": b.Id, "hp": b.HP, "by": playerId})
	return false
}

// Squash removes a bug on behalf of a player and advances the game.
func (ctx *GameContext) Squash(b *Bug, playerId string, points int) {
	if _, ok := ctx.RemoveBug(b.Id); !ok {
		return
	}
	ctx.State.Squashed++
	score := ctx.AddScore(playerId, points)
	if p, ok := ctx.State.Players[playerId]; ok {
		p.Squashes++
	}
	ctx.Emit("bug-squashed", map[string]any{
		"id": b.Id, "kind": b.Kind, "by": playerId, "points": points, "score": score,
	})

	if b.Encounter != 0 {
		ctx.checkEncounter()
		return
	}
	ctx.advance()
}

// Escape removes a bug that got away and costs the team a life.
func (ctx *GameContext) Escape(b *Bug) {
	if _, ok := ctx.RemoveBug(b.Id); !ok {
		return
	}
	ctx.Emit("bug-escaped", map[string]any{"id": b.Id, "kind": b.Kind})
	ctx.LoseLife(1, "escape")
}

func (ctx *GameContext) AddScore(playerId string, points int) int {
	p, ok := ctx.State.Players[playerId]
	if !ok {
		return 0
	}
	p.Score = max(p.Score+points, 0)
	return p.Score
}

func (ctx *GameContext) LoseLife(n int, reason string) {
	if !ctx.State.Phase.InGame() {
		return
	}
	ctx.State.Lives = max(ctx.State.Lives-n, 0)
	ctx.Emit("lives-changed", map[string]any{"lives": ctx.State.Lives, "reason": reason})
	if ctx.State.Lives == 0 {
		ctx.GameOver()
	}
}

func (ctx *GameContext) RandomPosition() (float64, float64) {
	return 0.05 + ctx.Rand.Float64()*0.9, 0.05 + ctx.Rand.Float64()*0.9
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
