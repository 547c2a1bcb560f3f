package batch

import (
	"sync"
	"time"
)

// Scheduler arranges for fn to run once, later, on some goroutine.
type Scheduler interface {
	Schedule(fn func())
}

// TimerScheduler runs fn after Delay on a timer goroutine.
type TimerScheduler struct {
	Delay time.Duration
}

func (s TimerScheduler) Schedule(fn func()) {
	time.AfterFunc(s.Delay, fn)
}

// ManualScheduler holds scheduled functions until RunPending is called.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []func()
}

func (s *ManualScheduler) Schedule(fn func()) {
	s.mu.Lock()
	s.pending = append(s.pending, fn)
	s.mu.Unlock()
}

func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// RunPending runs everything scheduled so far on the calling goroutine. Functions
// scheduled while running wait for the next call.
func (s *ManualScheduler) RunPending() int {
	s.mu.Lock()
	fns := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}
