package game

import (
	"fmt"
	"sync"

	"squash/domain"

	"github.com/rs/zerolog"
)

type cleanupHook struct {
	name string
	fn   func() error
}

// Lifecycle is the only thing allowed to change a lobby's phase or tear it
// down.
type Lifecycle struct {
	log    zerolog.Logger
	strict bool

	mu    sync.Mutex
	hooks []*cleanupHook
	dead  bool
}

func NewLifecycle(log zerolog.Logger, strict bool) *Lifecycle {
	return &Lifecycle{log: log, strict: strict}
}

// Transition moves state to the target phase. An edge that is not in the
// transition table is reported and, unless the lifecycle is strict, applied
// anyway so one malformed event cannot wedge a lobby.
func (l *Lifecycle) Transition(state *GameState, to Phase) error {
	from := state.Phase
	if !CanTransition(from, to) {
		if l.strict {
			l.log.Warn().Str("from", string(from)).Str("to", string(to)).Msg("invalid phase transition rejected")
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
		}
		l.log.Warn().Str("from", string(from)).Str("to", string(to)).Msg("invalid phase transition")
	} else {
		l.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("phase transition")
	}
	state.Phase = to
	return nil
}

// OnCleanup registers fn to run at teardown and returns a function that
// removes just that hook again.
func (l *Lifecycle) OnCleanup(name string, fn func() error) func() {
	h := &cleanupHook{name: name, fn: fn}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dead {
		l.log.Warn().Str("hook", name).Msg("cleanup hook registered on a destroyed lobby")
		return func() {}
	}
	l.hooks = append(l.hooks, h)

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, other := range l.hooks {
			if other == h {
				l.hooks = append(l.hooks[:i:i], l.hooks[i+1:]...)
				return
			}
		}
	}
}

// Teardown runs every hook in registration order. A failing hook is logged and
// does not stop the ones after it.
func (l *Lifecycle) Teardown() {
	l.mu.Lock()
	hooks := make([]*cleanupHook, len(l.hooks))
	copy(hooks, l.hooks)
	l.mu.Unlock()

	for _, h := range hooks {
		if err := l.run(h); err != nil {
			l.log.Error().Err(err).Str("hook", h.name).Msg("cleanup hook failed")
		}
	}
}

// Destroy tears down once and leaves the lifecycle inert.
func (l *Lifecycle) Destroy() {
	l.mu.Lock()
	if l.dead {
		l.mu.Unlock()
		return
	}
	l.dead = true
	l.mu.Unlock()

	l.Teardown()

	l.mu.Lock()
	l.hooks = nil
	l.mu.Unlock()
}

func (l *Lifecycle) Destroyed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dead
}

func (l *Lifecycle) run(h *cleanupHook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.fn()
}
