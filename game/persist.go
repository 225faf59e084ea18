package game

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type LobbyRecord struct {
	Key        uuid.UUID
	LobbyId    int
	Name       string
	Mode       Mode
	MaxPlayers int
	Private    bool
	CreatedAt  time.Time
}

type MemberRecord struct {
	PlayerId string
	UserId   *string
}

type MatchRecord struct {
	Key          uuid.UUID
	LobbyKey     uuid.UUID
	StartedAt    time.Time
	EndedAt      time.Time
	Games        int
	Wins         int
	BestScore    int
	Participants []Participant
}

type Participant struct {
	PlayerId string
	UserId   *string
	Name     string
}

type ReplayRecord struct {
	Id         string
	MatchKey   uuid.UUID
	LobbyKey   uuid.UUID
	Outcome    Phase
	FrameCount int
	Data       []byte
	RecordedAt time.Time
}

// Store is the durable side of lobbies and matches. In-memory state is the
// source of truth for gameplay; nothing here is ever awaited by a handler.
type Store interface {
	CreateLobby(ctx context.Context, rec LobbyRecord) error
	AddMember(ctx context.Context, lobbyKey uuid.UUID, playerId string, userId *string) error
	RemoveMember(ctx context.Context, lobbyKey uuid.UUID, playerId string) error
	DeleteLobby(ctx context.Context, lobbyKey uuid.UUID) error
	// SyncLobby upserts the lobby row and makes its member rows exactly members.
	SyncLobby(ctx context.Context, rec LobbyRecord, members []MemberRecord) error
	// ReconcileLobbies deletes lobbies created before the cutoff that are not
	// in live.
	ReconcileLobbies(ctx context.Context, live []uuid.UUID, before time.Time) (int64, error)
	OpenMatch(ctx context.Context, rec MatchRecord) error
	CloseMatch(ctx context.Context, rec MatchRecord) error
	SaveReplay(ctx context.Context, rec ReplayRecord) error
}

// NopStore is used when no database is configured.
type NopStore struct{}

func (NopStore) CreateLobby(context.Context, LobbyRecord) error { return nil }
func (NopStore) AddMember(context.Context, uuid.UUID, string, *string) error { return nil }
func (NopStore) RemoveMember(context.Context, uuid.UUID, string) error { return nil }
func (NopStore) DeleteLobby(context.Context, uuid.UUID) error { return nil }
func (NopStore) SyncLobby(context.Context, LobbyRecord, []MemberRecord) error { return nil }
func (NopStore) ReconcileLobbies(context.Context, []uuid.UUID, time.Time) (int64, error) {
	return 0, nil
}
func (NopStore) OpenMatch(context.Context, MatchRecord) error { return nil }
func (NopStore) CloseMatch(context.Context, MatchRecord) error { return nil }
func (NopStore) SaveReplay(context.Context, ReplayRecord) error { return nil }

type persistTask struct {
	name string
	run  func(ctx context.Context, store Store) error
	done func(err error)
}

// Persister runs store calls on background workers. Tasks for one key always
// land on the same worker, so a lobby's writes reach the store in the order
// they were issued. Results are handed back through post, which puts them on
// the engine loop, so they are applied like any other gameplay event.
type Persister struct {
	store   Store
	post    func(fn func())
	timeout time.Duration
	log     zerolog.Logger
	inline  bool

	shards []chan persistTask
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPersister starts workers goroutines, each with its own queue of the given
// size.
func NewPersister(store Store, workers, queue int, timeout time.Duration, post func(fn func()), log zerolog.Logger) *Persister {
	p := &Persister{
		store:   store,
		post:    post,
		timeout: timeout,
		log:     log,
		shards:  make([]chan persistTask, max(workers, 1)),
	}
	for i := range p.shards {
		p.shards[i] = make(chan persistTask, queue)
		p.wg.Add(1)
		go p.worker(p.shards[i])
	}
	return p
}

// NewInlinePersister runs every task synchronously on the caller. Tests use it
// to make persistence deterministic.
func NewInlinePersister(store Store, log zerolog.Logger) *Persister {
	return &Persister{
		store:   store,
		post:    func(fn func()) { fn() },
		timeout: time.Second,
		log:     log,
		inline:  true,
	}
}

// Go queues a store call behind every earlier call for the same key. done, if
// set, runs on the engine loop with the result. A full queue drops the task:
// gameplay never waits on the database, and the next reconciliation repairs
// what was lost.
func (p *Persister) Go(key uuid.UUID, name string, run func(ctx context.Context, store Store) error, done func(err error)) {
	t := persistTask{name: name, run: run, done: done}
	if p.inline {
		p.exec(t)
		return
	}
	select {
	case p.shards[p.shard(key)] <- t:
	default:
		p.log.Warn().Str("task", name).Str("key", key.String()).Msg("persistence queue full, dropping task")
	}
}

func (p *Persister) shard(key uuid.UUID) int {
	return int(binary.BigEndian.Uint64(key[8:]) % uint64(len(p.shards)))
}

// Close stops accepting work and waits for queued tasks to finish.
func (p *Persister) Close() {
	if p.inline {
		return
	}
	p.once.Do(func() {
		for _, tasks := range p.shards {
			close(tasks)
		}
	})
	p.wg.Wait()
}

func (p *Persister) worker(tasks <-chan persistTask) {
	defer p.wg.Done()
	for t := range tasks {
		p.exec(t)
	}
}

func (p *Persister) exec(t persistTask) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err := t.run(ctx, p.store)
	if err != nil {
		p.log.Error().Err(err).Str("task", t.name).Msg("persistence failed")
	}
	if t.done != nil {
		p.post(func() { t.done(err) })
	}
}
