package hazards

import (
	"time"

	"squash/game"
)

type Ant struct{}

func (Ant) Kind() string { return "ant" }

func (Ant) Spawn(ctx *game.GameContext, b *game.Bug) {
	wander(ctx, b, 700*time.Millisecond, 0.05)
	escapeAfter(ctx, b, 6*time.Second)
}

func (Ant) OnClick(ctx *game.GameContext, b *game.Bug, playerId string, click game.Click) {
	if hits(b, click) {
		ctx.Squash(b, playerId, 10)
	}
}

// Beetle takes several hits.
type Beetle struct{}

func (Beetle) Kind() string { return "beetle" }

func (Beetle) Spawn(ctx *game.GameContext, b *game.Bug) {
	b.HP = 3
	wander(ctx, b, time.Second, 0.03)
	escapeAfter(ctx, b, 9*time.Second)
}

func (Beetle) OnClick(ctx *game.GameContext, b *game.Bug, playerId string, click game.Click) {
	if !hits(b, click) {
		return
	}
	if ctx.HitBug(b, playerId, 1) {
		ctx.Squash(b, playerId, 30)
	}
}

type roachState struct {
	lastFlee time.Time
}

// Roach runs away from cursors that come close.
type Roach struct{}

const (
	roachSight    = 0.12
	roachFlee     = 0.15
	roachCooldown = 300 * time.Millisecond
)

func (Roach) Kind() string { return "roach" }

func (Roach) Spawn(ctx *game.GameContext, b *game.Bug) {
	b.Variant = &roachState{}
	escapeAfter(ctx, b, 7*time.Second)
}

func (Roach) OnClick(ctx *game.GameContext, b *game.Bug, playerId string, click game.Click) {
	if hits(b, click) {
		ctx.Squash(b, playerId, 20)
	}
}

func (Roach) OnCursorNear(ctx *game.GameContext, b *game.Bug, _ string, x, y float64) {
	st := b.Variant.(*roachState)
	d := distance(x, y, b.X, b.Y)
	if d > roachSight || ctx.Now().Sub(st.lastFlee) < roachCooldown {
		return
	}
	st.lastFlee = ctx.Now()

	dx, dy := b.X-x, b.Y-y
	if d == 0 {
		dx, dy, d = 1, 0, 1
	}
	ctx.MoveBug(b, b.X+dx/d*roachFlee, b.Y+dy/d*roachFlee)
}

// Mother splits into larvae when squashed.
type Mother struct{}

const motherBrood = 2

func (Mother) Kind() string { return "mother" }

func (Mother) Spawn(ctx *game.GameContext, b *game.Bug) {
	b.HP = 2
	wander(ctx, b, 1200*time.Millisecond, 0.02)
	if b.Encounter == 0 {
		escapeAfter(ctx, b, 10*time.Second)
	}
}

func (Mother) OnClick(ctx *game.GameContext, b *game.Bug, playerId string, click game.Click) {
	if !hits(b, click) || !ctx.HitBug(b, playerId, 1) {
		return
	}

	children := make([]int, 0, motherBrood)
	for i := range motherBrood {
		offset := 0.04 * float64(2*i-1)
		if child := spawnLike(ctx, b, Larva{}.Kind(), b.X+offset, b.Y+offset); child != nil {
			children = append(children, child.Id)
		}
	}
	ctx.Emit("bug-split", map[string]any{"id": b.Id, "children": children})
	ctx.Squash(b, playerId, 40)
}

type Larva struct{}

func (Larva) Kind() string { return "larva" }

func (Larva) Spawn(ctx *game.GameContext, b *game.Bug) {
	wander(ctx, b, 400*time.Millisecond, 0.04)
	escapeAfter(ctx, b, 5*time.Second)
}

func (Larva) OnClick(ctx *game.GameContext, b *game.Bug, playerId string, click game.Click) {
	if hits(b, click) {
		ctx.Squash(b, playerId, 5)
	}
}

// Bomb must not be clicked. Left alone it fizzles out.
type Bomb struct{}

const bombFuse = 4 * time.Second

func (Bomb) Kind() string { return "bomb" }

func (Bomb) Spawn(ctx *game.GameContext, b *game.Bug) {
	b.Timers.After(bombFuse, func() {
		if _, ok := ctx.RemoveBug(b.Id); ok {
			ctx.Emit("bug-expired", map[string]any{"id": b.Id, "kind": b.Kind})
		}
	})
}

func (Bomb) OnClick(ctx *game.GameContext, b *game.Bug, playerId string, click game.Click) {
	if !hits(b, click) {
		return
	}
	if _, ok := ctx.RemoveBug(b.Id); !ok {
		return
	}
	ctx.AddScore(playerId, -15)
	ctx.Emit("bomb-exploded", map[string]any{"id": b.Id, "by": playerId})
	ctx.LoseLife(1, "bomb")
}
