// Package hazards holds the concrete bugs, bosses and mini-bosses. The engine
// only knows them through the catalog.
package hazards

import (
	"math"
	"time"

	"squash/game"
)

const hitRadius = 0.08

// RegisterAll adds every kind in this package to c with its default spawn
// weight.
func RegisterAll(c *game.Catalog) error {
	bugs := []struct {
		kind   game.BugKind
		weight int
	}{
		{Ant{}, 10},
		{Beetle{}, 4},
		{Roach{}, 4},
		{Mother{}, 2},
		{Bomb{}, 2},
		{Larva{}, 0},
	}
	for _, b := range bugs {
		if err := c.RegisterBug(b.kind, b.weight); err != nil {
			return err
		}
	}
	if err := c.RegisterBoss(HiveQueen{}); err != nil {
		return err
	}
	if err := c.RegisterMiniBoss(Swarm{}); err != nil {
		return err
	}
	return c.RegisterMiniBoss(Matriarch{})
}

func distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

func hits(b *game.Bug, click game.Click) bool {
	return distance(b.X, b.Y, click.X, click.Y) <= hitRadius
}

// wander moves b a little every interval until it is removed.
func wander(ctx *game.GameContext, b *game.Bug, interval time.Duration, step float64) {
	b.Timers.Every(interval, func() {
		dx := (ctx.Rand.Float64()*2 - 1) * step
		dy := (ctx.Rand.Float64()*2 - 1) * step
		ctx.MoveBug(b, b.X+dx, b.Y+dy)
	})
}

// escapeAfter makes b get away if it is still around after d.
func escapeAfter(ctx *game.GameContext, b *game.Bug, d time.Duration) {
	b.Timers.After(d, func() { ctx.Escape(b) })
}

// spawnLike spawns a bug in the same scope as parent: inside its encounter if
// it has one that is still running.
func spawnLike(ctx *game.GameContext, parent *game.Bug, kind string, x, y float64) *game.Bug {
	if enc := ctx.State.MiniBoss; enc != nil && parent.Encounter == enc.Id {
		return ctx.SpawnEncounterBug(enc, kind, x, y)
	}
	return ctx.SpawnBug(kind, x, y)
}

func countEncounterBugs(ctx *game.GameContext, enc *game.Encounter, kind string) int {
	n := 0
	for _, b := range ctx.State.Bugs {
		if b.Encounter == enc.Id && (kind == "" || b.Kind == kind) {
			n++
		}
	}
	return n
}
