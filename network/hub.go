package network

import (
	"sync"

	"squash/domain"
	"squash/events"
	"squash/game"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

type member struct {
	info   domain.PlayerInfo
	client *Client
}

// Hub tracks connected players. It is the identity directory gameplay reads
// and the fan-out that pushes lobby traffic to sockets.
type Hub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	members map[string]*member
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{log: log, members: make(map[string]*member)}
}

// Register makes c the live connection for info.Id. A previous connection for
// the same player is returned so the caller can close it.
func (h *Hub) Register(info domain.PlayerInfo, c *Client) (replaced *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.members[info.Id]; ok {
		replaced = old.client
	}
	h.members[info.Id] = &member{info: info, client: c}
	return replaced
}

// Unregister drops c if it is still the player's live connection.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.members[c.Id()]
	if !ok || m.client != c {
		return false
	}
	delete(h.members, c.Id())
	return true
}

func (h *Hub) Player(id string) (domain.PlayerInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.members[id]
	if !ok {
		return domain.PlayerInfo{}, false
	}
	return m.info, true
}

func (h *Hub) Rename(id, name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.members[id]
	if !ok {
		return false
	}
	m.info.Name = name
	return true
}

func (h *Hub) client(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.members[id]
	if !ok {
		return nil, false
	}
	return m.client, true
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// Attach subscribes the lobby's bus once. Each message is encoded a single
// time and queued to every current member.
func (h *Hub) Attach(l *game.Lobby) {
	state := l.Ctx.State
	log := h.log.With().Int("lobby", l.Id).Logger()

	unsubscribe := l.Ctx.Events.On(func(msg events.Message) {
		data, err := msgpack.Marshal(&msg)
		if err != nil {
			log.Error().Err(err).Str("type", msg.Type).Msg("encode failed")
			return
		}
		for id := range state.Players {
			if c, ok := h.client(id); ok {
				c.Send(data)
			}
		}
	})
	l.Ctx.Lifecycle.OnCleanup("fanout", func() error {
		unsubscribe()
		return nil
	})
}
