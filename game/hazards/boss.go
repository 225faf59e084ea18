package hazards

import "squash/game"

type queenState struct {
	ticks int
}

// HiveQueen regenerates, grows angrier as she loses health and calls larvae
// to defend her.
type HiveQueen struct{}

const (
	queenBaseHP      = 60
	queenHPPerPlayer = 20
	queenMaxMinions  = 4
)

func (HiveQueen) Kind() string { return "hive-queen" }

func (HiveQueen) Init(ctx *game.GameContext) *game.BossSnapshot {
	hp := queenBaseHP + queenHPPerPlayer*len(ctx.State.Players)
	return &game.BossSnapshot{HP: hp, MaxHP: hp, Stage: 1, Data: &queenState{}}
}

func (HiveQueen) OnClick(ctx *game.GameContext, boss *game.BossSnapshot, playerId string, _ game.Click) {
	damage := 1
	if boss.Enraged {
		damage = 2
	}
	ctx.DamageBoss(playerId, damage)
	if ctx.State.Boss != boss {
		return
	}
	queenStage(ctx, boss)
}

func (HiveQueen) OnTick(ctx *game.GameContext, boss *game.BossSnapshot) {
	st := boss.Data.(*queenState)
	st.ticks++

	if !boss.Enraged {
		ctx.HealBoss(boss.Stage)
	}
	if boss.Stage >= 2 && st.ticks%2 == 0 && len(ctx.State.Bugs) < queenMaxMinions {
		x, y := ctx.RandomPosition()
		ctx.SpawnBug(Larva{}.Kind(), x, y)
	}
}

func queenStage(ctx *game.GameContext, boss *game.BossSnapshot) {
	switch {
	case boss.HP*3 <= boss.MaxHP:
		ctx.SetBossStage(3, true)
	case boss.HP*3 <= boss.MaxHP*2:
		ctx.SetBossStage(2, false)
	}
}
