package timer

import (
	"sync"
	"time"
)

type entry struct {
	handle    Handle
	cancelled bool
}

// Bag owns every timer scheduled for one scope (a lobby, a boss fight, a
// single bug). Timers can only be cancelled as a group.
type Bag struct {
	name  string
	sched Scheduler

	mu      sync.Mutex
	entries map[*entry]struct{}
	closed  bool
}

func NewBag(name string, sched Scheduler) *Bag {
	return &Bag{
		name:    name,
		sched:   sched,
		entries: make(map[*entry]struct{}),
	}
}

func (b *Bag) Name() string {
	return b.name
}

// After runs fn once after delay unless the bag is cleared first.
func (b *Bag) After(delay time.Duration, fn func()) {
	e := &entry{}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.entries[e] = struct{}{}
	e.handle = b.sched.AfterFunc(delay, func() {
		if !b.take(e) {
			return
		}
		fn()
	})
}

// Every runs fn each interval until the bag is cleared. The next run is armed
// after fn returns, so a slow callback never overlaps itself.
func (b *Bag) Every(interval time.Duration, fn func()) {
	e := &entry{}

	var tick func()
	tick = func() {
		if !b.live(e) {
			return
		}
		fn()

		b.mu.Lock()
		defer b.mu.Unlock()
		if e.cancelled {
			return
		}
		e.handle = b.sched.AfterFunc(interval, tick)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.entries[e] = struct{}{}
	e.handle = b.sched.AfterFunc(interval, tick)
}

// ClearAll stops every timer in the bag. Callbacks that were already queued
// for execution see the cancelled flag and do nothing.
func (b *Bag) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
}

// Close clears the bag and makes later After/Every calls no-ops.
func (b *Bag) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
	b.closed = true
}

// Len is the number of timers that may still fire.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Bag) clearLocked() {
	for e := range b.entries {
		e.cancelled = true
		if e.handle != nil {
			e.handle.Stop()
		}
	}
	clear(b.entries)
}

// take removes a one-shot entry right before it runs.
func (b *Bag) take(e *entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e.cancelled {
		return false
	}
	e.cancelled = true
	delete(b.entries, e)
	return true
}

func (b *Bag) live(e *entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !e.cancelled
}
