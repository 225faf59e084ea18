package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// --- Store ---

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateLobby(ctx context.Context, rec LobbyRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStore) AddMember(ctx context.Context, lobbyKey uuid.UUID, playerId string, userId *string) error {
	args := m.Called(ctx, lobbyKey, playerId, userId)
	return args.Error(0)
}

func (m *MockStore) RemoveMember(ctx context.Context, lobbyKey uuid.UUID, playerId string) error {
	args := m.Called(ctx, lobbyKey, playerId)
	return args.Error(0)
}

func (m *MockStore) DeleteLobby(ctx context.Context, lobbyKey uuid.UUID) error {
	args := m.Called(ctx, lobbyKey)
	return args.Error(0)
}

func (m *MockStore) SyncLobby(ctx context.Context, rec LobbyRecord, members []MemberRecord) error {
	args := m.Called(ctx, rec, members)
	return args.Error(0)
}

func (m *MockStore) ReconcileLobbies(ctx context.Context, live []uuid.UUID, before time.Time) (int64, error) {
	args := m.Called(ctx, live, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) OpenMatch(ctx context.Context, rec MatchRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStore) CloseMatch(ctx context.Context, rec MatchRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStore) SaveReplay(ctx context.Context, rec ReplayRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// --- PeriodicTickerChannelCreator ---

type MockPeriodicTickerChannelCreator struct {
	mock.Mock
}

func (m *MockPeriodicTickerChannelCreator) Create(duration time.Duration) <-chan time.Time {
	args := m.Called(duration)
	return args.Get(0).(chan time.Time)
}
