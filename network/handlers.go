package network

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"squash/crypto"
	"squash/domain"
	"squash/game"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	tokenCookie = "token"
	sessionKey  = "session"
)

var (
	ErrorMissingTokenJson         = gin.H{"error": "missing-token"}
	ErrorInvalidTokenJson         = gin.H{"error": "invalid-token"}
	ErrorExpiredTokenJson         = gin.H{"error": "expired-token"}
	ErrorInvalidRequestFormatJson = gin.H{"error": "bad-request-format"}
	ErrorInvalidNameJson          = gin.H{"error": "invalid-name"}
	ErrorUnknownErrorJson         = gin.H{"error": "unknown-error"}
	ErrorUnavailableJson          = gin.H{"error": "engine-stopped"}
)

type Handler struct {
	tokens     *crypto.JWTManager
	engine     Engine
	hub        *Hub
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	log        zerolog.Logger
	now        func() time.Time
}

func NewHandler(tokens *crypto.JWTManager, engine Engine, hub *Hub, allowedOrigins []string, log zerolog.Logger) *Handler {
	return &Handler{
		tokens:     tokens,
		engine:     engine,
		hub:        hub,
		dispatcher: NewDispatcher(engine, hub, log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
		log: log,
		now: time.Now,
	}
}

// GuestHandler issues a session token for a fresh guest identity.
func (h *Handler) GuestHandler(ctx *gin.Context) {
	var body struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, ErrorInvalidRequestFormatJson)
		return
	}
	name, ok := validName(body.Name)
	if !ok {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, ErrorInvalidNameJson)
		return
	}

	session := crypto.Session{PlayerId: uuid.NewString(), Name: name, Color: body.Color}
	token, err := h.tokens.Generate(session, h.now())
	if err != nil {
		h.log.Error().Err(err).Msg("guest token generation failed")
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, ErrorUnknownErrorJson)
		return
	}

	ctx.SetSameSite(http.SameSiteNoneMode)
	ctx.SetCookie(tokenCookie, token, int(h.tokens.MaxAge().Seconds()), "/", "", true, true)
	ctx.JSON(http.StatusCreated, gin.H{"id": session.PlayerId, "name": session.Name})
}

func (h *Handler) RequireSession(ctx *gin.Context) {
	token, err := ctx.Cookie(tokenCookie)
	if err != nil || token == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, ErrorMissingTokenJson)
		return
	}
	session, err := h.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, domain.ErrExpiredToken) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, ErrorExpiredTokenJson)
			return
		}
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, ErrorInvalidTokenJson)
		return
	}
	ctx.Set(sessionKey, session)
	ctx.Next()
}

func (h *Handler) LobbiesHandler(ctx *gin.Context) {
	var lobbies []game.LobbySummary
	err := h.engine.Call(ctx.Request.Context(), func(r *game.Registry) error {
		lobbies = r.Lobbies()
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrEngineStopped) {
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorUnavailableJson)
			return
		}
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, ErrorUnknownErrorJson)
		return
	}
	if lobbies == nil {
		lobbies = []game.LobbySummary{}
	}
	ctx.JSON(http.StatusOK, gin.H{"lobbies": lobbies})
}

// WebsocketHandler upgrades the request and serves the player's session until
// the socket closes. A second connection for the same player replaces the first.
func (h *Handler) WebsocketHandler(ctx *gin.Context) {
	session, ok := ctx.MustGet(sessionKey).(crypto.Session)
	if !ok {
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, ErrorUnknownErrorJson)
		return
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.log.Debug().Err(err).Str("ip", ctx.ClientIP()).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(session.PlayerId, NewWebsocketConnection(conn), h.log)
	info := domain.PlayerInfo{Id: session.PlayerId, Name: session.Name, Color: session.Color}
	if replaced := h.hub.Register(info, client); replaced != nil {
		replaced.Close("replaced")
	}
	h.log.Debug().Str("player", session.PlayerId).Msg("player connected")

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	go client.WritePump(ping.C)

	client.ReadPump(h.dispatcher.Handle)
	client.Close("closed")
	h.dispatcher.Disconnect(client)
	h.log.Debug().Str("player", session.PlayerId).Msg("player disconnected")
}
