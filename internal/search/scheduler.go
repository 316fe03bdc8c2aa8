package search

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs fire once after delay unless the token is cancelled first.
// Scheduling a token that is already armed replaces the earlier timer.
type Scheduler interface {
	Schedule(delay time.Duration, token uint64, fire func())
	Cancel(token uint64)
}

// TimerScheduler is the wall-clock Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[uint64]*time.Timer
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[uint64]*time.Timer)}
}

func (s *TimerScheduler) Schedule(delay time.Duration, token uint64, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timers[token]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		live := s.timers[token] == t
		if live {
			delete(s.timers, token)
		}
		s.mu.Unlock()
		if live {
			fire()
		}
	})
	s.timers[token] = t
}

func (s *TimerScheduler) Cancel(token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[token]; ok {
		t.Stop()
		delete(s.timers, token)
	}
}

// ManualScheduler is a Scheduler driven by Advance instead of the wall
// clock. Tests use it to step through debounce windows deterministically.
type ManualScheduler struct {
	mu      sync.Mutex
	now     time.Duration
	pending map[uint64]manualTimer
}

type manualTimer struct {
	at   time.Duration
	fire func()
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{pending: make(map[uint64]manualTimer)}
}

func (s *ManualScheduler) Schedule(delay time.Duration, token uint64, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[token] = manualTimer{at: s.now + delay, fire: fire}
}

func (s *ManualScheduler) Cancel(token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, token)
}

// Advance moves the clock forward by d and runs every timer that became due,
// earliest first. Callbacks run on the caller's goroutine.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	type due struct {
		token uint64
		manualTimer
	}
	var ready []due
	for token, t := range s.pending {
		if t.at <= s.now {
			ready = append(ready, due{token, t})
			delete(s.pending, token)
		}
	}
	s.mu.Unlock()

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].at == ready[j].at {
			return ready[i].token < ready[j].token
		}
		return ready[i].at < ready[j].at
	})
	for _, r := range ready {
		r.fire()
	}
}

// Pending returns the number of armed timers.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
