package util

import (
	"context"
	"errors"
	"time"
)

// Backoff retries an operation with doubling delays.
type Backoff struct {
	Attempts int           // total tries, at least one
	Base     time.Duration // delay after the first failure
	Max      time.Duration // cap on a single delay; zero means no cap
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts are
// used up, or ctx ends. The last error from fn is returned, unwrapped from
// Permanent.
func (b Backoff) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(b.Attempts, 1)
	delay := b.Base

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		var p permanentError
		if errors.As(err, &p) {
			return p.err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
	return err
}
