package network

import (
	"context"
	"testing"

	"squash/domain"
	"squash/game"
	"squash/game/hazards"
	"squash/timer/timertest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type inbound struct {
	Type    string             `msgpack:"type"`
	LobbyId int                `msgpack:"lobbyId"`
	Data    msgpack.RawMessage `msgpack:"data"`
}

// drain returns every frame queued on c so far.
func drain(t *testing.T, c *Client) []inbound {
	t.Helper()
	var out []inbound
	for {
		select {
		case data := <-c.outbox:
			var msg inbound
			require.NoError(t, msgpack.Unmarshal(data, &msg))
			out = append(out, msg)
		default:
			return out
		}
	}
}

func types(msgs []inbound) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type)
	}
	return out
}

func errorCode(t *testing.T, msg inbound) string {
	t.Helper()
	var data struct {
		Code string `msgpack:"code"`
	}
	require.NoError(t, msgpack.Unmarshal(msg.Data, &data))
	return data.Code
}

func frame(t *testing.T, msgType string, data any) []byte {
	t.Helper()
	env := map[string]any{"type": msgType}
	if data != nil {
		env["data"] = data
	}
	b, err := msgpack.Marshal(env)
	require.NoError(t, err)
	return b
}

// syncEngine runs calls inline, standing in for the engine loop.
type syncEngine struct {
	registry *game.Registry
}

func (e *syncEngine) Call(_ context.Context, fn func(r *game.Registry) error) error {
	return fn(e.registry)
}

type testWorld struct {
	sched      *timertest.Scheduler
	hub        *Hub
	registry   *game.Registry
	dispatcher *Dispatcher
}

func newWorld(t *testing.T) *testWorld {
	t.Helper()
	log := zerolog.Nop()

	catalog := game.NewCatalog()
	require.NoError(t, hazards.RegisterAll(catalog))

	w := &testWorld{sched: timertest.New(), hub: NewHub(log)}
	w.registry = game.NewRegistry(game.RegistryConfig{MaxLobbies: 2, MaxPlayersPerLobby: 2}, game.Deps{
		Scheduler: w.sched,
		Catalog:   catalog,
		Players:   w.hub,
		Log:       log,
	})
	w.registry.OnCreate(w.hub.Attach)
	w.dispatcher = NewDispatcher(&syncEngine{registry: w.registry}, w.hub, log)
	t.Cleanup(w.registry.DestroyAll)
	return w
}

// connect registers a client whose socket is never driven; tests read its
// outbox directly.
func (w *testWorld) connect(id, name string) *Client {
	c := NewClient(id, &MockConnection{}, zerolog.Nop())
	w.hub.Register(domain.PlayerInfo{Id: id, Name: name}, c)
	return c
}
