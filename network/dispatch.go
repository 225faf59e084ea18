package network

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"squash/domain"
	"squash/events"
	"squash/game"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Engine is the part of game.Engine the network layer needs.
type Engine interface {
	Call(ctx context.Context, fn func(r *game.Registry) error) error
}

type envelope struct {
	Type string             `msgpack:"type"`
	Data msgpack.RawMessage `msgpack:"data"`
}

type createLobbyRequest struct {
	Name       string    `msgpack:"name"`
	MaxPlayers int       `msgpack:"maxPlayers"`
	Private    bool      `msgpack:"private"`
	Mode       game.Mode `msgpack:"mode"`
}

type joinLobbyRequest struct {
	Id int `msgpack:"id"`
}

type clickRequest struct {
	BugId int     `msgpack:"bugId"`
	X     float64 `msgpack:"x"`
	Y     float64 `msgpack:"y"`
}

type pointRequest struct {
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
}

type renameRequest struct {
	Name string `msgpack:"name"`
}

type lobbySnapshot struct {
	Id         int                `msgpack:"id"`
	Name       string             `msgpack:"name"`
	Mode       game.Mode          `msgpack:"mode"`
	Phase      game.Phase         `msgpack:"phase"`
	MaxPlayers int                `msgpack:"maxPlayers"`
	Lives      int                `msgpack:"lives"`
	Players    []*game.PlayerData `msgpack:"players"`
	Bugs       []game.BugView     `msgpack:"bugs"`
	Boss       *game.BossSnapshot `msgpack:"boss,omitempty"`
}

const maxNameLength = 24

func validName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	return name, n > 0 && n <= maxNameLength
}

// Dispatcher turns inbound frames into registry and gameplay calls on the
// engine loop.
type Dispatcher struct {
	engine  Engine
	hub     *Hub
	log     zerolog.Logger
	timeout time.Duration
}

func NewDispatcher(engine Engine, hub *Hub, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{engine: engine, hub: hub, log: log, timeout: 5 * time.Second}
}

// Handle processes one frame from c. Failures go back to c alone.
func (d *Dispatcher) Handle(c *Client, data []byte) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil || env.Type == "" {
		c.SendError(domain.ErrBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.engine.Call(ctx, func(r *game.Registry) error {
		return d.route(r, c, env)
	})
	if err != nil {
		d.log.Debug().Err(err).Str("player", c.Id()).Str("type", env.Type).Msg("request failed")
		c.SendError(err)
	}
}

// Disconnect removes the player from any lobby once its connection is gone.
func (d *Dispatcher) Disconnect(c *Client) {
	if !d.hub.Unregister(c) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	err := d.engine.Call(ctx, func(r *game.Registry) error {
		r.RemovePlayer(c.Id())
		return nil
	})
	if err != nil {
		d.log.Warn().Err(err).Str("player", c.Id()).Msg("disconnect cleanup failed")
	}
}

func (d *Dispatcher) route(r *game.Registry, c *Client, env envelope) error {
	playerId := c.Id()

	switch env.Type {
	case "create-lobby":
		var req createLobbyRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		info, ok := d.hub.Player(playerId)
		if !ok {
			return nil
		}
		if _, in := r.LobbyForPlayer(playerId); in {
			return domain.ErrAlreadyInLobby
		}
		id, err := r.CreateLobby(game.LobbyConfig{
			Name:       req.Name,
			MaxPlayers: req.MaxPlayers,
			Private:    req.Private,
			Rules:      game.Rules{Mode: req.Mode},
		})
		if err != nil {
			return err
		}
		if err := r.JoinLobby(id, info); err != nil {
			r.DestroyLobby(id)
			return err
		}
		d.sendSnapshot(r, c, id)
		return nil

	case "join-lobby":
		var req joinLobbyRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		info, ok := d.hub.Player(playerId)
		if !ok {
			return nil
		}
		if err := r.JoinLobby(req.Id, info); err != nil {
			return err
		}
		d.sendSnapshot(r, c, req.Id)
		return nil

	case "leave-lobby":
		id, ok := r.LobbyForPlayer(playerId)
		if !ok {
			return nil
		}
		if err := r.LeaveLobby(id, playerId); err != nil {
			return err
		}
		c.SendMessage(events.Message{Type: "lobby-left", LobbyId: id})
		return nil

	case "rename":
		var req renameRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		name, ok := validName(req.Name)
		if !ok {
			return fmt.Errorf("%w: invalid name", domain.ErrBadRequest)
		}
		if _, in := r.LobbyForPlayer(playerId); in {
			return domain.ErrAlreadyInLobby
		}
		d.hub.Rename(playerId, name)
		return nil
	}

	ctx, ok := r.CtxForPlayer(playerId)
	if !ok {
		return nil
	}

	switch env.Type {
	case "start-game":
		return game.StartGame(ctx, playerId)

	case "reset":
		return game.ResetToLobby(ctx, playerId)

	case "click":
		var req clickRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		game.HandleClick(ctx, playerId, req.BugId, game.Click{X: req.X, Y: req.Y})

	case "boss-click":
		var req pointRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		game.HandleBossClick(ctx, playerId, game.Click{X: req.X, Y: req.Y})

	case "cursor":
		var req pointRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		game.HandleCursor(ctx, playerId, req.X, req.Y)

	default:
		return fmt.Errorf("%w: unknown message type %q", domain.ErrBadRequest, env.Type)
	}
	return nil
}

func (d *Dispatcher) sendSnapshot(r *game.Registry, c *Client, lobbyId int) {
	l, ok := r.Lobby(lobbyId)
	if !ok {
		return
	}
	s := l.Ctx.State
	snap := lobbySnapshot{
		Id:         l.Id,
		Name:       l.Config.Name,
		Mode:       l.Config.Rules.Mode,
		Phase:      s.Phase,
		MaxPlayers: l.Config.MaxPlayers,
		Lives:      s.Lives,
		Players:    s.PlayerList(),
		Bugs:       make([]game.BugView, 0, len(s.Bugs)),
		Boss:       s.Boss,
	}
	for _, b := range s.Bugs {
		snap.Bugs = append(snap.Bugs, b.View())
	}
	c.SendMessage(events.Message{Type: "lobby-joined", LobbyId: l.Id, Data: snap})
}

func decode(raw msgpack.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing data", domain.ErrBadRequest)
	}
	if err := msgpack.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}
	return nil
}
