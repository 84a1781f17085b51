package tokens

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/saveblush/sismo-relay/core/utils/logger"
	"github.com/saveblush/sismo-relay/pgk/metrics"
)

// DefaultWindow rolling window the call budget is counted over
const DefaultWindow = time.Hour

var (
	ErrEmptyPool    = errors.New("tokens: credential pool is empty")
	ErrInvalidLimit = errors.New("tokens: rate limit must be positive")
)

// Service service interface
type Service interface {
	Acquire(ctx context.Context) (string, error)
	Stats() Stats
}

// Stats snapshot of the shared call budget
type Stats struct {
	Size        int
	Calls       int
	Limit       int
	WindowStart time.Time
	WindowEnd   time.Time
	Stalled     bool
}

type service struct {
	clock  clockwork.Clock
	tokens []string
	limit  int
	window time.Duration

	// one-slot semaphore serializing Acquire; a channel so waiters can give up on ctx
	sem chan struct{}
	// mu guards the fields below for Stats readers
	mu          sync.Mutex
	index       int
	calls       int
	windowStart time.Time
	stalled     bool
}

// NewService new token rotator over a fixed pool, sharing one budget of limit calls per window
func NewService(clock clockwork.Clock, tokens []string, limit int, window time.Duration) (Service, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyPool
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}

	pool := make([]string, len(tokens))
	copy(pool, tokens)

	return &service{
		clock:  clock,
		tokens: pool,
		limit:  limit,
		window: window,
		sem:    make(chan struct{}, 1),
		index:  -1,
	}, nil
}

// Acquire return the next credential in rotation.
// Blocks until the window rolls over when the budget is spent; the only error is ctx's.
func (s *service) Acquire(ctx context.Context) (string, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-s.sem }()

	s.mu.Lock()
	now := s.clock.Now()
	if s.windowStart.IsZero() || now.Sub(s.windowStart) >= s.window {
		s.resetWindow(now)
	}
	exhausted := s.calls+1 > s.limit
	wait := max(0, s.window-now.Sub(s.windowStart))
	s.stalled = exhausted
	s.mu.Unlock()

	if exhausted {
		logger.Log.Warnf("hit rate limit of %d requests per %s, waiting: %s", s.limit, s.window, wait.Round(time.Second))
		metrics.TokenWaits.Inc()
		metrics.TokenStalled.Set(1)
		defer metrics.TokenStalled.Set(0)

		// sem stays held, every worker stalls until the window rolls over
		select {
		case <-s.clock.After(wait):
		case <-ctx.Done():
			s.setStalled(false)
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if exhausted {
		s.stalled = false
		s.resetWindow(s.clock.Now())
	}
	s.calls++
	metrics.TokenCallsInWindow.Set(float64(s.calls))

	s.index = (s.index + 1) % len(s.tokens)
	return s.tokens[s.index], nil
}

// Stats snapshot of the budget
func (s *service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Size:        len(s.tokens),
		Calls:       s.calls,
		Limit:       s.limit,
		WindowStart: s.windowStart,
		Stalled:     s.stalled,
	}
	if !s.windowStart.IsZero() {
		st.WindowEnd = s.windowStart.Add(s.window)
	}

	return st
}

func (s *service) setStalled(v bool) {
	s.mu.Lock()
	s.stalled = v
	s.mu.Unlock()
}

// resetWindow caller holds mu
func (s *service) resetWindow(now time.Time) {
	s.windowStart = now
	s.calls = 0
}
