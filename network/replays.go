package network

import (
	"context"
	"errors"
	"net/http"

	"squash/domain"
	"squash/game"
	"squash/replay"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type ReplayLoader interface {
	Replay(ctx context.Context, id string) (game.ReplayRecord, error)
}

type replayFrame struct {
	OffsetMs int64  `json:"offsetMs"`
	Type     string `json:"type"`
	Data     any    `json:"data,omitempty"`
}

type ReplayHandler struct {
	loader ReplayLoader
	log    zerolog.Logger
}

func NewReplayHandler(loader ReplayLoader, log zerolog.Logger) *ReplayHandler {
	return &ReplayHandler{loader: loader, log: log}
}

// GetReplayHandler serves a stored recording as JSON frames.
func (h *ReplayHandler) GetReplayHandler(ctx *gin.Context) {
	rec, err := h.loader.Replay(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrReplayNotFound) {
			ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "replay-not-found"})
			return
		}
		h.log.Error().Err(err).Str("replay", ctx.Param("id")).Msg("replay load failed")
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, ErrorUnknownErrorJson)
		return
	}

	recording, err := replay.Decode(rec.Data)
	if err != nil {
		h.log.Error().Err(err).Str("replay", rec.Id).Msg("stored replay is corrupted")
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "corrupted-replay"})
		return
	}

	frames := make([]replayFrame, 0, len(recording.Frames))
	for _, f := range recording.Frames {
		frame := replayFrame{OffsetMs: f.Offset.Milliseconds(), Type: f.Type}
		if err := f.Decode(&frame.Data); err != nil {
			h.log.Warn().Err(err).Str("replay", rec.Id).Str("type", f.Type).Msg("undecodable frame payload")
		}
		frames = append(frames, frame)
	}

	ctx.JSON(http.StatusOK, gin.H{
		"id":        recording.Id.String(),
		"lobbyId":   recording.LobbyId,
		"outcome":   recording.Outcome,
		"startedAt": recording.StartedAt,
		"dropped":   recording.Dropped,
		"frames":    frames,
	})
}
