package hazards

import "squash/game"

// Swarm floods the board with ants. It is over once none of them are left,
// whether squashed or escaped.
type Swarm struct{}

const swarmSize = 6

func (Swarm) Kind() string { return "swarm" }

func (Swarm) Init(ctx *game.GameContext, enc *game.Encounter) []*game.Bug {
	bugs := make([]*game.Bug, 0, swarmSize)
	for range swarmSize {
		x, y := ctx.RandomPosition()
		if b := ctx.SpawnEncounterBug(enc, Ant{}.Kind(), x, y); b != nil {
			bugs = append(bugs, b)
		}
	}
	return bugs
}

func (Swarm) CheckVictory(ctx *game.GameContext, enc *game.Encounter) bool {
	return countEncounterBugs(ctx, enc, "") == 0
}

// Matriarch is a tough mother that keeps laying larvae until she is squashed.
type Matriarch struct{}

const (
	matriarchHP     = 6
	matriarchBrood  = 3
	matriarchCenter = 0.5
)

func (Matriarch) Kind() string { return "matriarch" }

func (Matriarch) Init(ctx *game.GameContext, enc *game.Encounter) []*game.Bug {
	b := ctx.SpawnEncounterBug(enc, Mother{}.Kind(), matriarchCenter, matriarchCenter)
	if b == nil {
		return nil
	}
	b.HP, b.MaxHP = matriarchHP, matriarchHP
	return []*game.Bug{b}
}

func (Matriarch) OnTick(ctx *game.GameContext, enc *game.Encounter) {
	if countEncounterBugs(ctx, enc, Larva{}.Kind()) >= matriarchBrood {
		return
	}
	for _, b := range ctx.State.Bugs {
		if b.Encounter == enc.Id && b.Kind == (Mother{}).Kind() {
			ctx.SpawnEncounterBug(enc, Larva{}.Kind(), b.X, b.Y)
			return
		}
	}
}

func (Matriarch) CheckVictory(ctx *game.GameContext, enc *game.Encounter) bool {
	return countEncounterBugs(ctx, enc, Mother{}.Kind()) == 0
}
