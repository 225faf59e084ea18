package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"squash/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine *Engine
	sweep  chan time.Time
	cancel context.CancelFunc
	exited chan struct{}
}

func startEngine(t *testing.T) *engineFixture {
	t.Helper()

	sweep := make(chan time.Time)
	tickers := &MockPeriodicTickerChannelCreator{}
	tickers.On("Create", time.Minute).Return(sweep)

	e := NewEngine(tickers, time.Minute, zerolog.Nop())
	catalog := NewCatalog()
	require.NoError(t, catalog.RegisterBug(gnat{}, 1))
	require.NoError(t, catalog.RegisterBoss(dummyBoss{}))
	e.SetRegistry(NewRegistry(RegistryConfig{MaxLobbies: 4, MaxPlayersPerLobby: 4}, Deps{
		Scheduler: e.Scheduler(),
		Catalog:   catalog,
		Players:   directory{},
		Log:       zerolog.Nop(),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		e.Run(ctx, started)
		close(exited)
	}()
	<-started

	f := &engineFixture{engine: e, sweep: sweep, cancel: cancel, exited: exited}
	t.Cleanup(f.stop)
	return f
}

func (f *engineFixture) stop() {
	f.cancel()
	<-f.exited
}

func createOn(t *testing.T, e *Engine) *Lobby {
	t.Helper()
	var l *Lobby
	err := e.Call(context.Background(), func(r *Registry) error {
		id, err := r.CreateLobby(LobbyConfig{Rules: Rules{BossKind: "dummy"}})
		if err != nil {
			return err
		}
		l, _ = r.Lobby(id)
		return nil
	})
	require.NoError(t, err)
	return l
}

func TestEngineCall(t *testing.T) {
	t.Parallel()
	f := startEngine(t)

	l := createOn(t, f.engine)
	assert.Equal(t, 1, l.Id)

	err := f.engine.Call(context.Background(), func(r *Registry) error {
		return r.JoinLobby(99, domain.PlayerInfo{Id: "p1"})
	})
	assert.ErrorIs(t, err, domain.ErrLobbyNotFound)
}

func TestEngineCallPanicIsIsolated(t *testing.T) {
	t.Parallel()
	f := startEngine(t)

	err := f.engine.Call(context.Background(), func(*Registry) error {
		var m map[string]int
		m["boom"]++
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrInternal)

	l := createOn(t, f.engine)
	assert.NotNil(t, l)
}

func TestEnginePostedPanicKeepsLoopAlive(t *testing.T) {
	t.Parallel()
	f := startEngine(t)

	f.engine.Post(func() { panic("timer callback failed") })

	assert.NoError(t, f.engine.Call(context.Background(), func(*Registry) error { return nil }))
}

func TestEngineSweep(t *testing.T) {
	t.Parallel()
	f := startEngine(t)
	createOn(t, f.engine)

	f.sweep <- time.Now()

	var n int
	require.NoError(t, f.engine.Call(context.Background(), func(r *Registry) error {
		n = r.Len()
		return nil
	}))
	assert.Zero(t, n)
}

func TestEngineRunsTimersOnTheLoop(t *testing.T) {
	t.Parallel()
	f := startEngine(t)
	l := createOn(t, f.engine)

	fired := make(chan int, 1)
	require.NoError(t, f.engine.Call(context.Background(), func(r *Registry) error {
		l.Ctx.Timers.Lobby.After(time.Millisecond, func() { fired <- r.Len() })
		return nil
	}))

	select {
	case n := <-fired:
		assert.Equal(t, 1, n)
	case <-time.After(5 * time.Second):
		t.Fatal("timer callback never ran")
	}
}

func TestEngineStop(t *testing.T) {
	t.Parallel()
	f := startEngine(t)
	l := createOn(t, f.engine)

	f.stop()

	assert.True(t, l.Ctx.Lifecycle.Destroyed())
	err := f.engine.Call(context.Background(), func(*Registry) error { return nil })
	assert.ErrorIs(t, err, domain.ErrEngineStopped)
	f.engine.Post(func() { t.Error("posted work ran after stop") })
}

func TestEngineCallRespectsContext(t *testing.T) {
	t.Parallel()
	f := startEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	f.engine.Post(func() { <-release })
	cancel()

	err := f.engine.Call(ctx, func(*Registry) error { return nil })
	close(release)
	assert.True(t, errors.Is(err, context.Canceled))
}
