package debounce

import (
	"sync"
	"time"
)

// DefaultWindow quiet period after an accepted trigger
const DefaultWindow = 15 * time.Second

// Service service interface
type Service interface {
	TryTrigger(now time.Time) bool
	LastAccepted() (time.Time, bool)
}

type service struct {
	window time.Duration

	mu             sync.Mutex
	lastAcceptedAt time.Time
	accepted       bool
}

// NewService new debouncer
func NewService(window time.Duration) Service {
	if window <= 0 {
		window = DefaultWindow
	}

	return &service{window: window}
}

// TryTrigger accept the trigger unless one was accepted less than window before now.
// A suppressed trigger does not extend the window.
func (s *service) TryTrigger(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accepted && now.Sub(s.lastAcceptedAt) < s.window {
		return false
	}
	s.lastAcceptedAt = now
	s.accepted = true

	return true
}

// LastAccepted time of the last accepted trigger
func (s *service) LastAccepted() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastAcceptedAt, s.accepted
}
