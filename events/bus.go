package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Message is a semantic notification emitted by gameplay code. LobbyId is
// filled in by the lobby's bus, emitters only set Type and Data.
type Message struct {
	Type    string `msgpack:"type" json:"type"`
	LobbyId int    `msgpack:"lobbyId" json:"lobbyId"`
	Data    any    `msgpack:"data,omitempty" json:"data,omitempty"`
}

type Listener func(Message)

type subscription struct {
	fn     Listener
	active atomic.Bool
}

// Bus delivers every emitted message synchronously to its listeners in the order
// they subscribed. Listeners must not block; a listener that needs slow work
// hands it off and returns.
type Bus struct {
	lobbyId int
	log     zerolog.Logger

	mu        sync.Mutex
	listeners []*subscription
}

func NewBus(lobbyId int, log zerolog.Logger) *Bus {
	return &Bus{lobbyId: lobbyId, log: log}
}

// On subscribes fn and returns its unsubscribe function. Unsubscribing is
// idempotent and safe from inside a listener.
func (b *Bus) On(fn Listener) func() {
	sub := &subscription{fn: fn}
	sub.active.Store(true)

	b.mu.Lock()
	b.listeners = append(b.listeners, sub)
	b.mu.Unlock()

	return func() {
		if !sub.active.Swap(false) {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.listeners {
			if s == sub {
				b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

func (b *Bus) Emit(msg Message) {
	msg.LobbyId = b.lobbyId

	b.mu.Lock()
	snapshot := make([]*subscription, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.Unlock()

	for _, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		b.deliver(sub, msg)
	}
}

// Len is the number of subscribed listeners.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *Bus) deliver(sub *subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Int("lobby", b.lobbyId).
				Str("type", msg.Type).
				Str("panic", fmt.Sprint(r)).
				Msg("event listener failed")
		}
	}()
	sub.fn(msg)
}
