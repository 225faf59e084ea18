package game

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"squash/domain"
	"squash/timer"

	"github.com/rs/zerolog"
)

type PeriodicTickerChannelCreator interface {
	Create(duration time.Duration) <-chan time.Time
}

type ticker struct{}

func (ticker) Create(duration time.Duration) <-chan time.Time {
	return time.NewTicker(duration).C
}

func NewTickerGen() PeriodicTickerChannelCreator {
	return ticker{}
}

// Engine is the single goroutine that owns the registry and every lobby.
// Network handlers, timer callbacks and persistence results all reach game
// state by being posted onto it.
type Engine struct {
	inbox         chan func()
	done          chan struct{}
	tickerCreator PeriodicTickerChannelCreator
	sweepInterval time.Duration
	registry      *Registry
	log           zerolog.Logger
}

func NewEngine(tickerCreator PeriodicTickerChannelCreator, sweepInterval time.Duration, log zerolog.Logger) *Engine {
	return &Engine{
		inbox:         make(chan func(), 1024),
		done:          make(chan struct{}),
		tickerCreator: tickerCreator,
		sweepInterval: sweepInterval,
		log:           log,
	}
}

// SetRegistry must be called before Run.
func (e *Engine) SetRegistry(r *Registry) {
	e.registry = r
}

// Scheduler returns a timer scheduler whose callbacks run on the loop.
func (e *Engine) Scheduler() timer.Scheduler {
	return timer.NewLoopScheduler(e.Post)
}

// Post queues fn to run on the loop. Work posted after the engine stopped is
// dropped.
func (e *Engine) Post(fn func()) {
	select {
	case e.inbox <- fn:
	case <-e.done:
	}
}

// Call runs fn on the loop and waits for its result. A panic inside fn is
// reported to this caller only, as ErrInternal.
func (e *Engine) Call(ctx context.Context, fn func(r *Registry) error) error {
	errc := make(chan error, 1)
	task := func() { errc <- e.protect(fn) }

	select {
	case e.inbox <- task:
	case <-e.done:
		return domain.ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		select {
		case err := <-errc:
			return err
		default:
			return domain.ErrEngineStopped
		}
	}
}

// Run processes posted work until ctx is cancelled, then destroys every lobby.
func (e *Engine) Run(ctx context.Context, started chan struct{}) {
	sweep := e.tickerCreator.Create(e.sweepInterval)
	defer close(e.done)

	close(started)

	for {
		select {
		case <-ctx.Done():
			e.registry.DestroyAll()
			e.log.Info().Msg("engine stopped")
			return

		case fn := <-e.inbox:
			e.run(fn)

		case <-sweep:
			if n := e.registry.Sweep(); n > 0 {
				e.log.Info().Int("lobbies", n).Msg("swept empty lobbies")
			}
			e.registry.Reconcile()
		}
	}
}

func (e *Engine) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("panic", fmt.Sprint(r)).Bytes("stack", debug.Stack()).Msg("engine task panicked")
		}
	}()
	fn()
}

func (e *Engine) protect(fn func(r *Registry) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("panic", fmt.Sprint(r)).Bytes("stack", debug.Stack()).Msg("engine call panicked")
			err = fmt.Errorf("%w: %v", domain.ErrInternal, r)
		}
	}()
	return fn(e.registry)
}
