package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"squash/domain"
	"squash/events"
	"squash/timer"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Lobby is one live game instance.
type Lobby struct {
	Id        int
	Key       uuid.UUID
	Config    LobbyConfig
	CreatedAt time.Time
	Ctx       *GameContext
}

type LobbySummary struct {
	Id         int    `json:"id" msgpack:"id"`
	Name       string `json:"name" msgpack:"name"`
	Mode       Mode   `json:"mode" msgpack:"mode"`
	Phase      Phase  `json:"phase" msgpack:"phase"`
	Players    int    `json:"players" msgpack:"players"`
	MaxPlayers int    `json:"maxPlayers" msgpack:"maxPlayers"`
}

type RegistryConfig struct {
	MaxLobbies         int
	MaxPlayersPerLobby int
	StrictTransitions  bool
}

// Deps are the collaborators every lobby context is built from.
type Deps struct {
	Scheduler timer.Scheduler
	Catalog   *Catalog
	Players   PlayerDirectory
	Persister *Persister
	Log       zerolog.Logger
}

// Registry owns every live lobby and the player to lobby index. It is not
// safe for concurrent use; the Engine loop is its only caller.
type Registry struct {
	cfg  RegistryConfig
	deps Deps

	lobbies  map[int]*Lobby
	byPlayer map[string]int
	lastId   int
	onCreate []func(*Lobby)
}

func NewRegistry(cfg RegistryConfig, deps Deps) *Registry {
	if deps.Persister == nil {
		deps.Persister = NewInlinePersister(NopStore{}, deps.Log)
	}
	if deps.Catalog == nil {
		deps.Catalog = NewCatalog()
	}
	return &Registry{
		cfg:      cfg,
		deps:     deps,
		lobbies:  make(map[int]*Lobby),
		byPlayer: make(map[string]int),
	}
}

// OnCreate registers fn to run for every new lobby, after its cleanup hooks
// are in place and before anything is emitted on its bus.
func (r *Registry) OnCreate(fn func(*Lobby)) {
	r.onCreate = append(r.onCreate, fn)
}

func (r *Registry) CreateLobby(cfg LobbyConfig) (int, error) {
	if len(r.lobbies) >= r.cfg.MaxLobbies {
		return 0, domain.ErrTooManyLobbies
	}
	cfg, err := r.normalize(cfg)
	if err != nil {
		return 0, err
	}

	r.lastId++
	id := r.lastId
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("Lobby %d", id)
	}

	log := r.deps.Log.With().Int("lobby", id).Logger()
	sched := r.deps.Scheduler
	seed := cfg.Rules.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	ctx := &GameContext{
		LobbyId:  id,
		LobbyKey: uuid.New(),
		Config:   cfg,
		State:    NewGameState(),
		Counters: &Counters{},
		Timers: GameTimers{
			Lobby: timer.NewBag("lobby", sched),
			Boss:  timer.NewBag("boss", sched),
		},
		Events:    events.NewBus(id, log),
		Lifecycle: NewLifecycle(log, r.cfg.StrictTransitions),
		Players:   r.deps.Players,
		Catalog:   r.deps.Catalog,
		Log:       log,
		Rand:      rand.New(rand.NewPCG(seed, uint64(id))),
		sched:     sched,
		persist:   r.deps.Persister,
	}
	l := &Lobby{Id: id, Key: ctx.LobbyKey, Config: cfg, CreatedAt: sched.Now(), Ctx: ctx}

	ctx.Lifecycle.OnCleanup("gameplay", func() error {
		ctx.stopGameplay()
		ctx.Timers.Lobby.Close()
		ctx.Timers.Boss.Close()
		return nil
	})
	ctx.Lifecycle.OnCleanup("match-log", func() error {
		if ctx.matchLog != nil {
			ctx.matchLog.Close()
		}
		return nil
	})
	r.lobbies[id] = l

	rec := l.record()
	r.deps.Persister.Go(l.Key, "create-lobby", func(c context.Context, store Store) error {
		return store.CreateLobby(c, rec)
	}, nil)

	for _, fn := range r.onCreate {
		fn(l)
	}
	log.Info().Str("name", cfg.Name).Str("mode", string(cfg.Rules.Mode)).Msg("lobby created")
	return id, nil
}

func (r *Registry) normalize(cfg LobbyConfig) (LobbyConfig, error) {
	switch {
	case cfg.MaxPlayers <= 0:
		cfg.MaxPlayers = r.cfg.MaxPlayersPerLobby
	case cfg.MaxPlayers > r.cfg.MaxPlayersPerLobby:
		return cfg, fmt.Errorf("%w: at most %d players per lobby", domain.ErrInvalidConfig, r.cfg.MaxPlayersPerLobby)
	}

	cfg.Rules = cfg.Rules.withDefaults()
	if cfg.Rules.Mode != ModeClassic && cfg.Rules.Mode != ModeRoguelike {
		return cfg, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidConfig, cfg.Rules.Mode)
	}
	if !r.deps.Catalog.HasBoss(cfg.Rules.BossKind) {
		return cfg, fmt.Errorf("%w: unknown boss %q", domain.ErrInvalidConfig, cfg.Rules.BossKind)
	}
	for _, kind := range cfg.Rules.MiniBossKinds {
		if _, ok := r.deps.Catalog.miniBoss[kind]; !ok {
			return cfg, fmt.Errorf("%w: unknown mini-boss %q", domain.ErrInvalidConfig, kind)
		}
	}
	for kind := range cfg.Rules.SpawnWeights {
		if !r.deps.Catalog.HasBug(kind) {
			return cfg, fmt.Errorf("%w: unknown bug %q", domain.ErrInvalidConfig, kind)
		}
	}
	return cfg, nil
}

// JoinLobby adds a player to a lobby that is still gathering players. The
// first player in becomes the host.
func (r *Registry) JoinLobby(lobbyId int, info domain.PlayerInfo) error {
	if _, ok := r.byPlayer[info.Id]; ok {
		return domain.ErrAlreadyInLobby
	}
	l, ok := r.lobbies[lobbyId]
	if !ok {
		return domain.ErrLobbyNotFound
	}
	s := l.Ctx.State
	if s.Phase != PhaseLobby {
		return domain.ErrLobbyNotAccepting
	}
	if len(s.Players) >= l.Config.MaxPlayers {
		return domain.ErrLobbyFull
	}

	role := RolePlayer
	if len(s.Players) == 0 {
		role = RoleHost
	}
	p := &PlayerData{
		Id:    info.Id,
		Name:  info.Name,
		Icon:  info.Icon,
		Color: info.Color,
		Role:  role,
		X:     0.5,
		Y:     0.5,
		order:  l.Ctx.Counters.nextJoin(),
		userId: info.UserId,
	}
	s.Players[p.Id] = p
	r.byPlayer[p.Id] = lobbyId

	key, userId := l.Key, info.UserId
	r.deps.Persister.Go(key, "add-member", func(c context.Context, store Store) error {
		return store.AddMember(c, key, p.Id, userId)
	}, nil)

	l.Ctx.Emit("player-joined", p)
	return nil
}

// LeaveLobby removes a player. An empty lobby is destroyed before this
// returns; otherwise a departing host hands over to the longest-standing
// player.
func (r *Registry) LeaveLobby(lobbyId int, playerId string) error {
	l, ok := r.lobbies[lobbyId]
	if !ok {
		return domain.ErrLobbyNotFound
	}
	s := l.Ctx.State
	p, ok := s.Players[playerId]
	if !ok || r.byPlayer[playerId] != lobbyId {
		return domain.ErrNotInLobby
	}
	delete(s.Players, playerId)
	delete(r.byPlayer, playerId)

	key := l.Key
	r.deps.Persister.Go(key, "remove-member", func(c context.Context, store Store) error {
		return store.RemoveMember(c, key, playerId)
	}, nil)

	if len(s.Players) == 0 {
		r.DestroyLobby(lobbyId)
		return nil
	}

	l.Ctx.Emit("player-left", map[string]any{"id": playerId})
	if p.Role == RoleHost {
		next := s.PlayerList()[0]
		next.Role = RoleHost
		l.Ctx.Emit("host-changed", map[string]any{"id": next.Id})
	}
	return nil
}

// RemovePlayer takes a player out of whatever lobby holds them. It reports
// false when the player was in none.
func (r *Registry) RemovePlayer(playerId string) bool {
	lobbyId, ok := r.byPlayer[playerId]
	if !ok {
		return false
	}
	return r.LeaveLobby(lobbyId, playerId) == nil
}

func (r *Registry) LobbyForPlayer(playerId string) (int, bool) {
	id, ok := r.byPlayer[playerId]
	return id, ok
}

func (r *Registry) Lobby(lobbyId int) (*Lobby, bool) {
	l, ok := r.lobbies[lobbyId]
	return l, ok
}

func (r *Registry) CtxForPlayer(playerId string) (*GameContext, bool) {
	id, ok := r.byPlayer[playerId]
	if !ok {
		return nil, false
	}
	l, ok := r.lobbies[id]
	if !ok {
		return nil, false
	}
	return l.Ctx, true
}

// DestroyLobby unmaps the lobby and its players, then tears it down.
func (r *Registry) DestroyLobby(lobbyId int) bool {
	l, ok := r.lobbies[lobbyId]
	if !ok {
		return false
	}
	delete(r.lobbies, lobbyId)
	for id := range l.Ctx.State.Players {
		delete(r.byPlayer, id)
	}

	l.Ctx.Lifecycle.Destroy()

	key := l.Key
	r.deps.Persister.Go(key, "delete-lobby", func(c context.Context, store Store) error {
		return store.DeleteLobby(c, key)
	}, nil)
	l.Ctx.Log.Info().Msg("lobby destroyed")
	return true
}

func (r *Registry) DestroyAll() {
	for _, id := range r.ids() {
		r.DestroyLobby(id)
	}
}

// Sweep destroys every lobby that has no players left and returns how many it
// removed.
func (r *Registry) Sweep() int {
	n := 0
	for _, id := range r.ids() {
		if len(r.lobbies[id].Ctx.State.Players) == 0 && r.DestroyLobby(id) {
			n++
		}
	}
	return n
}

// Reconcile rewrites every live lobby with its current members, then deletes
// persisted lobbies that are no longer live. Each rewrite is queued behind
// that lobby's earlier writes. Rows created after the snapshot are left alone,
// since the lobby may have been created while the delete was queued.
func (r *Registry) Reconcile() {
	live := r.LiveKeys()
	snapshot := r.deps.Scheduler.Now()
	for _, id := range r.ids() {
		l := r.lobbies[id]
		rec, members := l.record(), l.memberRecords()
		r.deps.Persister.Go(l.Key, "sync-lobby", func(c context.Context, store Store) error {
			return store.SyncLobby(c, rec, members)
		}, nil)
	}

	log := r.deps.Log
	r.deps.Persister.Go(uuid.Nil, "reconcile-lobbies", func(c context.Context, store Store) error {
		n, err := store.ReconcileLobbies(c, live, snapshot)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info().Int64("removed", n).Msg("stale lobbies reconciled")
		}
		return nil
	}, nil)
}

func (l *Lobby) record() LobbyRecord {
	return LobbyRecord{
		Key:        l.Key,
		LobbyId:    l.Id,
		Name:       l.Config.Name,
		Mode:       l.Config.Rules.Mode,
		MaxPlayers: l.Config.MaxPlayers,
		Private:    l.Config.Private,
		CreatedAt:  l.CreatedAt,
	}
}

func (l *Lobby) memberRecords() []MemberRecord {
	players := l.Ctx.State.PlayerList()
	members := make([]MemberRecord, 0, len(players))
	for _, p := range players {
		members = append(members, MemberRecord{PlayerId: p.Id, UserId: p.userId})
	}
	return members
}

func (r *Registry) LiveKeys() []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(r.lobbies))
	for _, id := range r.ids() {
		keys = append(keys, r.lobbies[id].Key)
	}
	return keys
}

// Lobbies lists the public lobbies by id.
func (r *Registry) Lobbies() []LobbySummary {
	list := make([]LobbySummary, 0, len(r.lobbies))
	for _, id := range r.ids() {
		l := r.lobbies[id]
		if l.Config.Private {
			continue
		}
		list = append(list, LobbySummary{
			Id:         l.Id,
			Name:       l.Config.Name,
			Mode:       l.Config.Rules.Mode,
			Phase:      l.Ctx.State.Phase,
			Players:    len(l.Ctx.State.Players),
			MaxPlayers: l.Config.MaxPlayers,
		})
	}
	return list
}

func (r *Registry) Len() int {
	return len(r.lobbies)
}

func (r *Registry) ids() []int {
	ids := make([]int, 0, len(r.lobbies))
	for id := range r.lobbies {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
