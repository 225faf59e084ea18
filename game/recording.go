package game

import (
	"context"
	"time"

	"squash/events"
	"squash/replay"
)

type RecorderConfig struct {
	Skip      []string
	MaxFrames int
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{Skip: []string{"cursor", "replay-saved"}, MaxFrames: 20000}
}

// Recorder buffers one game's traffic off the lobby bus and stores it as a
// replay when the game ends.
type Recorder struct {
	ctx       *GameContext
	skip      map[string]bool
	maxFrames int

	startedAt time.Time
	frames    []replay.Frame
	dropped   int
}

// AttachRecorder subscribes a recorder to the lobby. It unsubscribes itself
// when the lobby is torn down.
func AttachRecorder(l *Lobby, cfg RecorderConfig) *Recorder {
	r := &Recorder{
		ctx:       l.Ctx,
		skip:      make(map[string]bool, len(cfg.Skip)),
		maxFrames: cfg.MaxFrames,
		startedAt: l.Ctx.Now(),
	}
	for _, t := range cfg.Skip {
		r.skip[t] = true
	}

	unsubscribe := l.Ctx.Events.On(r.handle)
	l.Ctx.Lifecycle.OnCleanup("recorder", func() error {
		unsubscribe()
		r.frames = nil
		return nil
	})
	return r
}

func (r *Recorder) Len() int {
	return len(r.frames)
}

func (r *Recorder) handle(msg events.Message) {
	if msg.Type == "game-started" {
		r.startedAt = r.ctx.Now()
		r.frames = nil
		r.dropped = 0
	}
	if r.skip[msg.Type] {
		return
	}

	terminal := msg.Type == "game-over" || msg.Type == "game-won"
	if r.maxFrames > 0 && len(r.frames) >= r.maxFrames && !terminal {
		r.dropped++
		return
	}
	f, err := replay.NewFrame(r.ctx.Now().Sub(r.startedAt), msg.Type, msg.Data)
	if err != nil {
		r.ctx.Log.Error().Err(err).Str("type", msg.Type).Msg("frame not recorded")
		return
	}
	r.frames = append(r.frames, f)

	if terminal {
		r.flush(r.ctx.State.Phase)
	}
}

func (r *Recorder) flush(outcome Phase) {
	ctx := r.ctx
	now := ctx.Now()
	rec := replay.Recording{
		Id:        replay.NewId(now),
		LobbyId:   ctx.LobbyId,
		Outcome:   string(outcome),
		StartedAt: r.startedAt,
		Dropped:   r.dropped,
		Frames:    r.frames,
	}
	r.frames = nil
	r.dropped = 0

	row := ReplayRecord{
		Id:         rec.Id.String(),
		MatchKey:   ctx.MatchLog().Key,
		LobbyKey:   ctx.LobbyKey,
		Outcome:    outcome,
		FrameCount: len(rec.Frames),
		Data:       replay.Encode(rec),
		RecordedAt: now,
	}
	ctx.persist.Go(ctx.LobbyKey, "save-replay", func(c context.Context, store Store) error {
		return store.SaveReplay(c, row)
	}, func(err error) {
		if err != nil || !ctx.Alive() {
			return
		}
		ctx.Emit("replay-saved", map[string]any{"id": row.Id, "frames": row.FrameCount})
	})
}
