package timer

import "time"

// Handle is a scheduled callback that can still be stopped. *time.Timer
// satisfies it.
type Handle interface {
	Stop() bool
}

type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Handle
	Now() time.Time
}

type loopScheduler struct {
	post func(fn func())
}

// NewLoopScheduler returns a wall clock scheduler whose callbacks are not run on
// the timer goroutine but handed to post, which is expected to queue them on
// the goroutine that owns the game state.
func NewLoopScheduler(post func(fn func())) Scheduler {
	return loopScheduler{post: post}
}

func (s loopScheduler) AfterFunc(d time.Duration, fn func()) Handle {
	return time.AfterFunc(d, func() { s.post(fn) })
}

func (s loopScheduler) Now() time.Time {
	return time.Now()
}
