package audio

import (
	"sync"
	"time"
)

// stopwatch accumulates running time across pause/resume cycles so reported
// duration excludes paused intervals.
type stopwatch struct {
	now func() time.Time

	mu          sync.Mutex
	accumulated time.Duration
	startedAt   time.Time
	running     bool
}

func newStopwatch(now func() time.Time) *stopwatch {
	if now == nil {
		now = time.Now
	}
	return &stopwatch{now: now}
}

func (s *stopwatch) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.startedAt = s.now()
	s.running = true
}

func (s *stopwatch) pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.accumulated += s.now().Sub(s.startedAt)
	s.running = false
}

func (s *stopwatch) elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return s.accumulated
	}
	return s.accumulated + s.now().Sub(s.startedAt)
}
