package game

import "sort"

// HandleClick routes a click to the bug's kind. A bug that is already gone is
// the normal outcome of two players racing for it and is ignored.
func HandleClick(ctx *GameContext, playerId string, bugId int, click Click) {
	if !ctx.State.Phase.InGame() {
		return
	}
	if _, ok := ctx.State.Players[playerId]; !ok {
		return
	}
	b, ok := ctx.State.Bugs[bugId]
	if !ok || b.entry.clicker == nil {
		return
	}
	b.entry.clicker.OnClick(ctx, b, playerId, click)
	ctx.checkEncounter()
}

func HandleBossClick(ctx *GameContext, playerId string, click Click) {
	boss := ctx.State.Boss
	if boss == nil || ctx.State.Phase != PhaseBoss {
		return
	}
	if _, ok := ctx.State.Players[playerId]; !ok {
		return
	}
	boss.kind.OnClick(ctx, boss, playerId, click)
}

// HandleCursor records the player's pointer and lets cursor-aware bugs react
// to it.
func HandleCursor(ctx *GameContext, playerId string, x, y float64) {
	p, ok := ctx.State.Players[playerId]
	if !ok {
		return
	}
	p.X, p.Y = clamp01(x), clamp01(y)
	ctx.Emit("cursor", map[string]any{"id": playerId, "x": p.X, "y": p.Y})

	if !ctx.State.Phase.InGame() {
		return
	}
	var watchers []int
	for id, b := range ctx.State.Bugs {
		if b.entry.cursor != nil {
			watchers = append(watchers, id)
		}
	}
	sort.Ints(watchers)
	for _, id := range watchers {
		// an earlier watcher may have removed this one
		b, ok := ctx.State.Bugs[id]
		if !ok {
			continue
		}
		b.entry.cursor.OnCursorNear(ctx, b, playerId, p.X, p.Y)
		if !ctx.State.Phase.InGame() {
			return
		}
	}
}
