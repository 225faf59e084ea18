package game

import (
	"fmt"
	"sort"
)

// Click is the part of a click message gameplay cares about.
type Click struct {
	X, Y float64
}

// BugKind is the one capability every bug variant has: setting itself up when
// spawned. Spawn fills in Variant/HP and schedules the bug's own timers on
// b.Timers.
type BugKind interface {
	Kind() string
	Spawn(ctx *GameContext, b *Bug)
}

// Clicker is implemented by clickable bugs. OnClick must either remove the bug
// (ctx.Squash, ctx.RemoveBug) or record partial progress on it.
type Clicker interface {
	OnClick(ctx *GameContext, b *Bug, playerId string, click Click)
}

// CursorWatcher is called for every cursor update, so it has to be cheap.
type CursorWatcher interface {
	OnCursorNear(ctx *GameContext, b *Bug, playerId string, x, y float64)
}

type BossKind interface {
	Kind() string
	Init(ctx *GameContext) *BossSnapshot
	OnClick(ctx *GameContext, boss *BossSnapshot, playerId string, click Click)
	OnTick(ctx *GameContext, boss *BossSnapshot)
}

// MiniBossKind drives an encounter inside the playing phase. Init spawns the
// encounter's bugs with ctx.SpawnEncounterBug and returns them; CheckVictory is
// the only thing the engine asks to decide when the encounter is over.
type MiniBossKind interface {
	Kind() string
	Init(ctx *GameContext, enc *Encounter) []*Bug
	CheckVictory(ctx *GameContext, enc *Encounter) bool
}

type EncounterTicker interface {
	OnTick(ctx *GameContext, enc *Encounter)
}

type bugEntry struct {
	kind    BugKind
	clicker Clicker
	cursor  CursorWatcher
	weight  int
}

type miniBossEntry struct {
	kind   MiniBossKind
	ticker EncounterTicker
}

// Catalog maps kind keys to plugins. Capabilities are resolved once here, the
// engine only ever calls through the resolved entries.
type Catalog struct {
	bugs      map[string]*bugEntry
	bosses    map[string]BossKind
	miniBoss  map[string]*miniBossEntry
	bugKinds  []string
}

func NewCatalog() *Catalog {
	return &Catalog{
		bugs:     make(map[string]*bugEntry),
		bosses:   make(map[string]BossKind),
		miniBoss: make(map[string]*miniBossEntry),
	}
}

// RegisterBug adds a bug kind. A positive spawnWeight puts it in the random
// spawn rotation; zero keeps it out unless a lobby's SpawnWeights names it.
func (c *Catalog) RegisterBug(k BugKind, spawnWeight int) error {
	if _, exists := c.bugs[k.Kind()]; exists {
		return fmt.Errorf("bug kind %q registered twice", k.Kind())
	}
	e := &bugEntry{kind: k, weight: spawnWeight}
	e.clicker, _ = k.(Clicker)
	e.cursor, _ = k.(CursorWatcher)
	c.bugs[k.Kind()] = e
	c.bugKinds = append(c.bugKinds, k.Kind())
	sort.Strings(c.bugKinds)
	return nil
}

func (c *Catalog) RegisterBoss(k BossKind) error {
	if _, exists := c.bosses[k.Kind()]; exists {
		return fmt.Errorf("boss kind %q registered twice", k.Kind())
	}
	c.bosses[k.Kind()] = k
	return nil
}

func (c *Catalog) RegisterMiniBoss(k MiniBossKind) error {
	if _, exists := c.miniBoss[k.Kind()]; exists {
		return fmt.Errorf("mini-boss kind %q registered twice", k.Kind())
	}
	e := &miniBossEntry{kind: k}
	e.ticker, _ = k.(EncounterTicker)
	c.miniBoss[k.Kind()] = e
	return nil
}

func (c *Catalog) HasBug(kind string) bool {
	_, ok := c.bugs[kind]
	return ok
}

func (c *Catalog) HasBoss(kind string) bool {
	_, ok := c.bosses[kind]
	return ok
}

func (c *Catalog) MiniBossKinds() []string {
	kinds := make([]string, 0, len(c.miniBoss))
	for k := range c.miniBoss {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// pickSpawn draws a spawnable kind by weight. weights overrides the registered
// weights for the kinds it names.
func (c *Catalog) pickSpawn(roll func(n int) int, weights map[string]int) (string, bool) {
	total := 0
	for _, k := range c.bugKinds {
		total += c.weightOf(k, weights)
	}
	if total == 0 {
		return "", false
	}
	n := roll(total)
	for _, k := range c.bugKinds {
		w := c.weightOf(k, weights)
		if n < w {
			return k, true
		}
		n -= w
	}
	return "", false
}

func (c *Catalog) weightOf(kind string, weights map[string]int) int {
	if w, ok := weights[kind]; ok {
		return max(w, 0)
	}
	return c.bugs[kind].weight
}
