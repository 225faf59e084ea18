package game

import (
	"fmt"

	"squash/domain"
)

// progress tracks how far the current game is towards its next milestone.
type progress struct {
	ambient       int
	nextEncounter int
	miniBossTurn  int
}

// StartGame begins a new game from the lobby or from a finished game. Only the
// host may start.
func StartGame(ctx *GameContext, playerId string) error {
	if err := requireHost(ctx, playerId); err != nil {
		return err
	}
	switch ctx.State.Phase {
	case PhaseLobby, PhaseGameOver, PhaseWin:
	default:
		return fmt.Errorf("%w: cannot start a game in phase %s", domain.ErrInvalidTransition, ctx.State.Phase)
	}

	if err := ctx.Lifecycle.Transition(ctx.State, PhasePlaying); err != nil {
		return err
	}
	ctx.stopGameplay()

	rules := ctx.Rules()
	s := ctx.State
	s.Lives = rules.Lives
	s.Squashed = 0
	s.Level = 1
	s.StartedAt = ctx.Now()
	s.Map = nil
	if rules.Mode == ModeRoguelike {
		s.Map = ctx.generateMap()
	}
	ctx.progress = progress{nextEncounter: rules.MiniBossEvery}

	game := ctx.Counters.nextGame()
	log := ctx.MatchLog()
	players := s.PlayerList()
	for _, p := range players {
		p.Score = 0
		p.Squashes = 0
		part := Participant{PlayerId: p.Id, Name: p.Name}
		if ctx.Players != nil {
			if info, ok := ctx.Players.Player(p.Id); ok {
				part.UserId = info.UserId
			}
		}
		log.AddParticipant(part)
	}

	ctx.Timers.Lobby.Every(rules.SpawnInterval, ctx.spawnTick)
	ctx.Emit("game-started", map[string]any{
		"game":    game,
		"mode":    rules.Mode,
		"lives":   s.Lives,
		"players": players,
		"map":     s.Map,
	})
	return nil
}

// ResetToLobby abandons whatever is running and returns everyone to the lobby.
func ResetToLobby(ctx *GameContext, playerId string) error {
	if err := requireHost(ctx, playerId); err != nil {
		return err
	}
	if ctx.State.Phase == PhaseLobby {
		return nil
	}
	if err := ctx.Lifecycle.Transition(ctx.State, PhaseLobby); err != nil {
		return err
	}
	ctx.stopGameplay()
	ctx.State.Map = nil
	ctx.Emit("returned-to-lobby", map[string]any{"by": playerId})
	return nil
}

func requireHost(ctx *GameContext, playerId string) error {
	p, ok := ctx.State.Players[playerId]
	if !ok {
		return domain.ErrNotInLobby
	}
	if p.Role != RoleHost {
		return domain.ErrNotHost
	}
	return nil
}

func (ctx *GameContext) spawnTick() {
	s := ctx.State
	if s.Phase != PhasePlaying || s.MiniBoss != nil {
		return
	}
	if len(s.Bugs) >= ctx.Rules().MaxBugs {
		return
	}
	kind, ok := ctx.Catalog.pickSpawn(ctx.Rand.IntN, ctx.Rules().SpawnWeights)
	if !ok {
		return
	}
	x, y := ctx.RandomPosition()
	ctx.SpawnBug(kind, x, y)
}

// advance runs after every squash of a bug that does not belong to an
// encounter.
func (ctx *GameContext) advance() {
	s := ctx.State
	if s.Phase != PhasePlaying || s.MiniBoss != nil {
		return
	}
	ctx.progress.ambient++
	rules := ctx.Rules()

	if s.Map != nil {
		s.Map.Progress++
		if s.Map.Node() != NodeElite && s.Map.Progress >= rules.NodeSquashes {
			ctx.advanceNode()
		}
		return
	}

	if ctx.progress.ambient >= rules.BugsToBoss {
		ctx.EnterBoss()
		return
	}
	if ctx.progress.ambient >= ctx.progress.nextEncounter {
		ctx.progress.nextEncounter = ctx.progress.ambient + rules.MiniBossEvery
		if kind, ok := ctx.nextMiniBoss(); ok {
			ctx.StartEncounter(kind)
		}
	}
}

func (ctx *GameContext) advanceNode() {
	m := ctx.State.Map
	m.Current++
	m.Progress = 0
	ctx.Emit("map-advanced", map[string]any{"current": m.Current, "node": m.Node()})

	switch m.Node() {
	case NodeBoss:
		ctx.EnterBoss()
	case NodeElite:
		kind, ok := ctx.nextMiniBoss()
		if !ok || !ctx.StartEncounter(kind) {
			ctx.advanceNode()
		}
	}
}

func (ctx *GameContext) generateMap() *RunMap {
	n := ctx.Rules().MapLength
	elites := len(ctx.miniBossKinds()) > 0
	nodes := make([]NodeKind, n)
	for i := range nodes {
		switch {
		case i == n-1:
			nodes[i] = NodeBoss
		case i > 0 && elites && ctx.Rand.IntN(3) == 0:
			nodes[i] = NodeElite
		default:
			nodes[i] = NodeBugs
		}
	}
	return &RunMap{Nodes: nodes}
}

func (ctx *GameContext) miniBossKinds() []string {
	if kinds := ctx.Rules().MiniBossKinds; len(kinds) > 0 {
		return kinds
	}
	return ctx.Catalog.MiniBossKinds()
}

// nextMiniBoss rotates through the configured mini-boss kinds.
func (ctx *GameContext) nextMiniBoss() (string, bool) {
	kinds := ctx.miniBossKinds()
	if len(kinds) == 0 {
		return "", false
	}
	kind := kinds[ctx.progress.miniBossTurn%len(kinds)]
	ctx.progress.miniBossTurn++
	return kind, true
}

// StartEncounter opens a mini-boss encounter inside the playing phase. It
// reports false when one cannot start right now.
func (ctx *GameContext) StartEncounter(kind string) bool {
	s := ctx.State
	if s.Phase != PhasePlaying || s.MiniBoss != nil || s.Boss != nil {
		return false
	}
	e, ok := ctx.Catalog.miniBoss[kind]
	if !ok {
		ctx.Log.Warn().Str("kind", kind).Msg("unknown mini-boss kind")
		return false
	}

	rules := ctx.Rules()
	now := ctx.Now()
	enc := &Encounter{
		Id:        ctx.Counters.NextEncounterId(),
		Kind:      kind,
		StartedAt: now,
		Deadline:  now.Add(rules.EncounterTimeout),
		entry:     e,
	}
	s.MiniBoss = enc
	ctx.Emit("miniboss-started", map[string]any{
		"id":        enc.Id,
		"kind":      kind,
		"timeoutMs": rules.EncounterTimeout.Milliseconds(),
	})

	spawned := 0
	for _, b := range e.kind.Init(ctx, enc) {
		if b != nil {
			spawned++
		}
	}
	if spawned == 0 {
		// Nothing to fight: drop the encounter without costing a life.
		ctx.Log.Warn().Str("kind", kind).Msg("mini-boss spawned no bugs")
		s.MiniBoss = nil
		ctx.Emit("miniboss-failed", map[string]any{"id": enc.Id, "kind": kind, "reason": "no-bugs"})
		return false
	}
	ctx.Timers.Boss.Every(rules.EncounterTick, func() { ctx.encounterTick(enc) })
	return true
}

func (ctx *GameContext) encounterTick(enc *Encounter) {
	if ctx.State.MiniBoss != enc {
		return
	}
	if t := enc.entry.ticker; t != nil {
		t.OnTick(ctx, enc)
		if ctx.State.MiniBoss != enc {
			return
		}
	}
	if enc.entry.kind.CheckVictory(ctx, enc) {
		ctx.EndEncounter(true)
		return
	}
	if !ctx.Now().Before(enc.Deadline) {
		ctx.EndEncounter(false)
	}
}

func (ctx *GameContext) checkEncounter() {
	enc := ctx.State.MiniBoss
	if enc == nil {
		return
	}
	if enc.entry.kind.CheckVictory(ctx, enc) {
		ctx.EndEncounter(true)
	}
}

// EndEncounter closes the running encounter and removes whatever is left of
// its bugs.
func (ctx *GameContext) EndEncounter(victory bool) {
	s := ctx.State
	enc := s.MiniBoss
	if enc == nil {
		return
	}
	s.MiniBoss = nil
	ctx.Timers.Boss.ClearAll()
	for id, b := range s.Bugs {
		if b.Encounter == enc.Id {
			ctx.RemoveBug(id)
		}
	}

	if victory {
		s.Level++
		ctx.Emit("miniboss-defeated", map[string]any{"id": enc.Id, "kind": enc.Kind, "level": s.Level})
	} else {
		ctx.Emit("miniboss-failed", map[string]any{"id": enc.Id, "kind": enc.Kind})
		ctx.LoseLife(1, "miniboss")
		if s.Phase != PhasePlaying {
			return
		}
	}

	if s.Map != nil && s.Map.Node() == NodeElite {
		ctx.advanceNode()
	}
}

// EnterBoss clears the board and starts the boss fight.
func (ctx *GameContext) EnterBoss() {
	s := ctx.State
	if s.Phase != PhasePlaying {
		return
	}
	kind, ok := ctx.Catalog.bosses[ctx.Rules().BossKind]
	if !ok {
		ctx.Log.Error().Str("kind", ctx.Rules().BossKind).Msg("unknown boss kind")
		return
	}

	if err := ctx.Lifecycle.Transition(s, PhaseBoss); err != nil {
		return
	}
	ctx.stopGameplay()

	boss := kind.Init(ctx)
	boss.kind = kind
	boss.Kind = kind.Kind()
	boss.StartedAt = ctx.Now()
	boss.MaxHP = max(boss.MaxHP, boss.HP)
	s.Boss = boss
	ctx.Emit("boss-started", boss)

	ctx.Timers.Boss.Every(ctx.Rules().BossTick, func() {
		if ctx.State.Boss != boss {
			return
		}
		kind.OnTick(ctx, boss)
	})
}

// DamageBoss applies a player's hit to the boss. Reaching zero HP wins the
// game.
func (ctx *GameContext) DamageBoss(playerId string, damage int) {
	boss := ctx.State.Boss
	if boss == nil || ctx.State.Phase != PhaseBoss || damage <= 0 {
		return
	}
	boss.HP = max(boss.HP-damage, 0)
	ctx.AddScore(playerId, damage)
	ctx.Emit("boss-hit", map[string]any{"hp": boss.HP, "maxHp": boss.MaxHP, "by": playerId, "damage": damage})
	if boss.HP == 0 {
		ctx.Win()
	}
}

func (ctx *GameContext) HealBoss(amount int) {
	boss := ctx.State.Boss
	if boss == nil || amount <= 0 || boss.HP == boss.MaxHP {
		return
	}
	boss.HP = min(boss.HP+amount, boss.MaxHP)
	ctx.Emit("boss-regen", map[string]any{"hp": boss.HP, "maxHp": boss.MaxHP})
}

func (ctx *GameContext) SetBossStage(stage int, enraged bool) {
	boss := ctx.State.Boss
	if boss == nil || (boss.Stage == stage && boss.Enraged == enraged) {
		return
	}
	boss.Stage = stage
	boss.Enraged = enraged
	ctx.Emit("boss-phase", map[string]any{"stage": stage, "enraged": enraged})
}

func (ctx *GameContext) Win() {
	ctx.finishGame(PhaseWin, "game-won")
}

func (ctx *GameContext) GameOver() {
	ctx.finishGame(PhaseGameOver, "game-over")
}

func (ctx *GameContext) finishGame(outcome Phase, msgType string) {
	s := ctx.State
	if !s.Phase.InGame() {
		return
	}
	if err := ctx.Lifecycle.Transition(s, outcome); err != nil {
		return
	}
	ctx.stopGameplay()

	scores := make(map[string]int, len(s.Players))
	for id, p := range s.Players {
		scores[id] = p.Score
	}
	res := GameResult{
		Outcome:  outcome,
		Squashed: s.Squashed,
		Duration: ctx.Now().Sub(s.StartedAt),
		Scores:   scores,
	}
	ctx.MatchLog().RecordGame(res)
	ctx.Emit(msgType, map[string]any{
		"outcome":    outcome,
		"squashed":   res.Squashed,
		"level":      s.Level,
		"durationMs": res.Duration.Milliseconds(),
		"scores":     scores,
	})
}

// stopGameplay cancels every gameplay timer and removes every bug.
func (ctx *GameContext) stopGameplay() {
	ctx.Timers.Lobby.ClearAll()
	ctx.Timers.Boss.ClearAll()
	ctx.ClearBugs()
	ctx.State.Boss = nil
	ctx.State.MiniBoss = nil
}
