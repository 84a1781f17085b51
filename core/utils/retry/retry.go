package retry

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrExited op returned without an error, which a run-forever task must never do
var ErrExited = errors.New("task exited unexpectedly")

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, wait Delay and start again
)

type Policy struct {
	Delay   time.Duration
	OnRetry func(attempt int, err error, delay time.Duration)
}

type Classify func(err error) Action
type Operation func(ctx context.Context) error

// Forever runs op until it fails permanently or ctx is done.
// There is no attempt limit; every restart waits at least p.Delay.
func Forever(ctx context.Context, clock clockwork.Clock, p Policy, classify Classify, op Operation) error {
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			err = ErrExited
		}

		if classify(err) == Stop {
			return &PermanentError{Err: err}
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, p.Delay)
		}

		select {
		case <-clock.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
