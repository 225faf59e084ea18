package game

type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhasePlaying  Phase = "playing"
	PhaseBoss     Phase = "boss"
	PhaseGameOver Phase = "gameover"
	PhaseWin      Phase = "win"
)

var Phases = []Phase{PhaseLobby, PhasePlaying, PhaseBoss, PhaseGameOver, PhaseWin}

// There is no terminal phase: a finished game goes back to playing or lobby.
// Instances end through Lifecycle.Destroy, not through the table.
var transitions = map[Phase]map[Phase]bool{
	PhaseLobby:    {PhasePlaying: true},
	PhasePlaying:  {PhaseBoss: true, PhaseGameOver: true, PhaseLobby: true},
	PhaseBoss:     {PhaseGameOver: true, PhaseWin: true, PhaseLobby: true},
	PhaseGameOver: {PhasePlaying: true, PhaseLobby: true},
	PhaseWin:      {PhasePlaying: true, PhaseLobby: true},
}

func CanTransition(from, to Phase) bool {
	return transitions[from][to]
}

// InGame reports whether bugs, bosses and encounters are live in this phase.
func (p Phase) InGame() bool {
	return p == PhasePlaying || p == PhaseBoss
}
