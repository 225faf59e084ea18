package game

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type GameResult struct {
	Outcome  Phase
	Squashed int
	Duration time.Duration
	Scores   map[string]int
}

// MatchLog summarises every game played in one lobby. It is opened lazily by
// the first game and closed exactly once when the lobby is torn down.
type MatchLog struct {
	Key       uuid.UUID
	lobbyKey  uuid.UUID
	persist   *Persister
	startedAt time.Time
	now       func() time.Time

	games        int
	wins         int
	bestScore    int
	participants map[string]Participant
	order        []string

	closeOnce sync.Once
}

func openMatchLog(lobbyKey uuid.UUID, persist *Persister, now func() time.Time) *MatchLog {
	m := &MatchLog{
		Key:          uuid.New(),
		lobbyKey:     lobbyKey,
		persist:      persist,
		startedAt:    now(),
		now:          now,
		participants: make(map[string]Participant),
	}
	rec := m.record()
	persist.Go(lobbyKey, "open-match", func(ctx context.Context, store Store) error {
		return store.OpenMatch(ctx, rec)
	}, nil)
	return m
}

func (m *MatchLog) AddParticipant(p Participant) {
	if _, seen := m.participants[p.PlayerId]; seen {
		return
	}
	m.participants[p.PlayerId] = p
	m.order = append(m.order, p.PlayerId)
}

func (m *MatchLog) RecordGame(res GameResult) {
	m.games++
	if res.Outcome == PhaseWin {
		m.wins++
	}
	for _, s := range res.Scores {
		m.bestScore = max(m.bestScore, s)
	}
}

func (m *MatchLog) Games() int {
	return m.games
}

// Close persists the final summary. Later calls do nothing.
func (m *MatchLog) Close() {
	m.closeOnce.Do(func() {
		rec := m.record()
		rec.EndedAt = m.now()
		m.persist.Go(m.lobbyKey, "close-match", func(ctx context.Context, store Store) error {
			return store.CloseMatch(ctx, rec)
		}, nil)
	})
}

func (m *MatchLog) record() MatchRecord {
	rec := MatchRecord{
		Key:       m.Key,
		LobbyKey:  m.lobbyKey,
		StartedAt: m.startedAt,
		Games:     m.games,
		Wins:      m.wins,
		BestScore: m.bestScore,
	}
	for _, id := range m.order {
		rec.Participants = append(rec.Participants, m.participants[id])
	}
	return rec
}
