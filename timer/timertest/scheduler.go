// Package timertest provides a virtual clock for driving timer.Bag based code
// deterministically in tests.
package timertest

import (
	"sort"
	"sync"
	"time"

	"squash/timer"
)

type Scheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*Timer
}

type Timer struct {
	s    *Scheduler
	due  time.Time
	seq  uint64
	fn   func()
	done bool
}

func New() *Scheduler {
	return &Scheduler{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (s *Scheduler) AfterFunc(d time.Duration, fn func()) timer.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &Timer{s: s, due: s.now.Add(d), seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending is the number of timers that are neither stopped nor fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Advance moves the clock forward by d, running every timer that comes due on
// the calling goroutine in due order. Timers scheduled by those callbacks run
// too if they fall inside the window.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.popDue(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = next.due
		s.mu.Unlock()

		next.fn()
	}
}

func (s *Scheduler) popDue(target time.Time) *Timer {
	if len(s.timers) == 0 {
		return nil
	}
	sort.SliceStable(s.timers, func(i, j int) bool {
		if s.timers[i].due.Equal(s.timers[j].due) {
			return s.timers[i].seq < s.timers[j].seq
		}
		return s.timers[i].due.Before(s.timers[j].due)
	})
	first := s.timers[0]
	if first.due.After(target) {
		return nil
	}
	s.timers = s.timers[1:]
	first.done = true
	return first
}

func (t *Timer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	for i, other := range t.s.timers {
		if other == t {
			t.s.timers = append(t.s.timers[:i], t.s.timers[i+1:]...)
			break
		}
	}
	return true
}
