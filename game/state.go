package game

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"squash/timer"
)

type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

type PlayerData struct {
	Id       string  `msgpack:"id"`
	Name     string  `msgpack:"name"`
	Icon     string  `msgpack:"icon,omitempty"`
	Color    string  `msgpack:"color,omitempty"`
	Role     Role    `msgpack:"role"`
	X        float64 `msgpack:"x"`
	Y        float64 `msgpack:"y"`
	Score    int     `msgpack:"score"`
	Squashes int     `msgpack:"squashes"`
	order    int
	userId   *string
}

// Bug is any spawned clickable or hazardous entity. Variant holds the fields
// only its kind understands; the engine never looks inside it.
type Bug struct {
	Id        int
	Kind      string
	X, Y      float64
	HP        int
	MaxHP     int
	Encounter int
	SpawnedAt time.Time
	Variant   any
	Timers    *timer.Bag

	entry *bugEntry
}

type BugView struct {
	Id        int     `msgpack:"id"`
	Kind      string  `msgpack:"kind"`
	X         float64 `msgpack:"x"`
	Y         float64 `msgpack:"y"`
	HP        int     `msgpack:"hp"`
	Encounter int     `msgpack:"encounter,omitempty"`
}

func (b *Bug) View() BugView {
	return BugView{Id: b.Id, Kind: b.Kind, X: b.X, Y: b.Y, HP: b.HP, Encounter: b.Encounter}
}

func (b *Bug) Clickable() bool {
	return b.entry != nil && b.entry.clicker != nil
}

type BossSnapshot struct {
	Kind      string    `msgpack:"kind"`
	HP        int       `msgpack:"hp"`
	MaxHP     int       `msgpack:"maxHp"`
	Stage     int       `msgpack:"stage"`
	Enraged   bool      `msgpack:"enraged"`
	StartedAt time.Time `msgpack:"-"`
	Data      any       `msgpack:"-"`

	kind BossKind
}

type Encounter struct {
	Id        int       `msgpack:"id"`
	Kind      string    `msgpack:"kind"`
	StartedAt time.Time `msgpack:"-"`
	Deadline  time.Time `msgpack:"-"`
	Data      any       `msgpack:"-"`

	entry *miniBossEntry
}

type NodeKind string

const (
	NodeBugs  NodeKind = "bugs"
	NodeElite NodeKind = "elite"
	NodeBoss  NodeKind = "boss"
)

// RunMap is the roguelike route through one game.
type RunMap struct {
	Nodes    []NodeKind `msgpack:"nodes"`
	Current  int        `msgpack:"current"`
	Progress int        `msgpack:"progress"`
}

func (m *RunMap) Node() NodeKind {
	if m.Current >= len(m.Nodes) {
		return NodeBoss
	}
	return m.Nodes[m.Current]
}

type GameState struct {
	Phase     Phase
	Players   map[string]*PlayerData
	Bugs      map[int]*Bug
	Boss      *BossSnapshot
	MiniBoss  *Encounter
	Map       *RunMap
	Lives     int
	Squashed  int
	Level     int
	StartedAt time.Time
}

func NewGameState() *GameState {
	return &GameState{
		Phase:   PhaseLobby,
		Players: make(map[string]*PlayerData),
		Bugs:    make(map[int]*Bug),
	}
}

// PlayerList returns the players in join order.
func (s *GameState) PlayerList() []*PlayerData {
	list := make([]*PlayerData, 0, len(s.Players))
	for _, p := range s.Players {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].order < list[j].order })
	return list
}

var ErrStateMismatch = errors.New("state-mismatch")

// Validate checks that the phase and the optional substructures agree.
func (s *GameState) Validate(mode Mode) error {
	if s.Boss != nil && s.MiniBoss != nil {
		return fmt.Errorf("%w: boss and mini-boss both active", ErrStateMismatch)
	}
	if s.Boss != nil && s.Phase != PhaseBoss {
		return fmt.Errorf("%w: boss present in phase %s", ErrStateMismatch, s.Phase)
	}
	if s.MiniBoss != nil && s.Phase != PhasePlaying {
		return fmt.Errorf("%w: mini-boss present in phase %s", ErrStateMismatch, s.Phase)
	}
	if s.Map != nil && mode != ModeRoguelike {
		return fmt.Errorf("%w: run map outside roguelike mode", ErrStateMismatch)
	}
	if !s.Phase.InGame() && len(s.Bugs) > 0 {
		return fmt.Errorf("%w: %d bugs alive in phase %s", ErrStateMismatch, len(s.Bugs), s.Phase)
	}
	return nil
}

// Counters hands out monotonic ids for one lobby.
type Counters struct {
	bug       int
	encounter int
	join      int
	games     int
}

func (c *Counters) NextBugId() int {
	c.bug++
	return c.bug
}

func (c *Counters) NextEncounterId() int {
	c.encounter++
	return c.encounter
}

func (c *Counters) nextJoin() int {
	c.join++
	return c.join
}

func (c *Counters) nextGame() int {
	c.games++
	return c.games
}

func (c *Counters) Games() int {
	return c.games
}
