package recovery

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
)

const (
	DefaultBackoffBase     = 1 * time.Second
	DefaultBackoffMax      = 5 * time.Second
	DefaultBackoffAttempts = 5
)

// Backoff is a bounded exponential retry: Attempts tries, waiting Base, 2*Base, ...
// (capped at Max) between them. It never retries indefinitely.
type Backoff struct {
	Base     time.Duration
	Max      time.Duration
	Attempts int

	// Wait blocks for d or until ctx is done. Nil means a real timer.
	Wait func(ctx context.Context, d time.Duration) error
}

// DefaultBackoff is base 1s, doubling, capped at 5s, five attempts.
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBackoffBase, Max: DefaultBackoffMax, Attempts: DefaultBackoffAttempts}
}

// Delay returns the wait that follows the attempt with the given zero-based index.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Retry calls fn until it reports done, returns an error, the attempts run out or
// ctx is cancelled. fn receives the zero-based attempt index.
func (b Backoff) Retry(ctx context.Context, fn func(ctx context.Context, attempt int) (done bool, err error)) error {
	attempts := b.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	wait := b.Wait
	if wait == nil {
		wait = sleep
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		if err := wait(ctx, b.Delay(attempt)); err != nil {
			return err
		}
	}
	return apperrors.ErrRetryBudgetExceeded
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
