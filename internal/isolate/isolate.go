// Package isolate runs blocking broker routines on a dedicated execution
// context so that a hang or panic inside them cannot take down the
// orchestrator.
package isolate

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
)

// Fault is returned when the isolated routine panicked.
type Fault struct {
	Name  string
	Value any
	Stack []byte
}

func (f *Fault) Error() string {
	return fmt.Sprintf("isolated %s did not complete: panic: %v", f.Name, f.Value)
}

// Isolator runs at most one isolated context at a time.
type Isolator struct {
	slot chan struct{}
	log  *slog.Logger
}

// New creates an Isolator.
func New(log *slog.Logger) *Isolator {
	return &Isolator{
		slot: make(chan struct{}, 1),
		log:  log.With("component", "isolate"),
	}
}

// Run starts fn on its own goroutine locked to a dedicated OS thread, waits
// for it to finish and returns its result. A panic inside fn is returned as a
// *Fault. ctx is forwarded to fn; cancellation is cooperative, Run always
// waits for fn to return.
func (iso *Isolator) Run(ctx context.Context, name string, fn func(context.Context) (any, error)) (any, error) {
	select {
	case iso.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-iso.slot }()

	type result struct {
		val any
		err error
	}
	done := make(chan result, 1)

	go func() {
		// The thread is discarded when the goroutine exits still locked, so
		// thread-local state left behind by the routine dies with it.
		runtime.LockOSThread()

		var res result
		defer func() {
			if r := recover(); r != nil {
				res = result{err: &Fault{Name: name, Value: r, Stack: debug.Stack()}}
			}
			done <- res
		}()
		res.val, res.err = fn(ctx)
	}()

	iso.log.Debug("isolated context started", "name", name)
	res := <-done
	if res.err != nil {
		return nil, res.err
	}
	return res.val, nil
}

// Do is a typed wrapper around Isolator.Run.
func Do[T any](ctx context.Context, iso *Isolator, name string, fn func(context.Context) (T, error)) (T, error) {
	v, err := iso.Run(ctx, name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}
