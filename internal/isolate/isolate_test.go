package isolate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestIsolator() *Isolator {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunReturnsValue(t *testing.T) {
	iso := newTestIsolator()
	v, err := iso.Run(context.Background(), "ok", func(context.Context) (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if v != 42 {
		t.Errorf("Run value = %v, want 42", v)
	}
}

func TestRunReturnsError(t *testing.T) {
	iso := newTestIsolator()
	want := errors.New("login failed")
	v, err := iso.Run(context.Background(), "err", func(context.Context) (any, error) {
		return "ignored", want
	})
	if !errors.Is(err, want) {
		t.Errorf("Run error = %v, want %v", err, want)
	}
	if v != nil {
		t.Errorf("Run value = %v, want nil on error", v)
	}
}

func TestRunContainsPanic(t *testing.T) {
	iso := newTestIsolator()
	v, err := iso.Run(context.Background(), "chase", func(context.Context) (any, error) {
		panic("browser crashed")
	})
	if v != nil {
		t.Errorf("Run value = %v, want nil", v)
	}
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("Run error = %v, want *Fault", err)
	}
	if f.Name != "chase" || f.Value != "browser crashed" {
		t.Errorf("Fault = %+v", f)
	}
	if len(f.Stack) == 0 {
		t.Error("Fault should capture a stack trace")
	}

	// The isolator is still usable afterwards.
	if _, err := iso.Run(context.Background(), "again", func(context.Context) (any, error) { return nil, nil }); err != nil {
		t.Errorf("Run after panic: %v", err)
	}
}

func TestRunOneAtATime(t *testing.T) {
	iso := newTestIsolator()
	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			iso.Run(context.Background(), "slow", func(context.Context) (any, error) {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil, nil
			})
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent isolated contexts = %d, want 1", maxActive)
	}
}

func TestRunCancelledWhileWaitingForSlot(t *testing.T) {
	iso := newTestIsolator()
	release := make(chan struct{})
	started := make(chan struct{})
	go iso.Run(context.Background(), "holder", func(context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := iso.Run(ctx, "waiter", func(context.Context) (any, error) {
		t.Error("waiter should never run")
		return nil, nil
	})
	close(release)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run error = %v, want context.DeadlineExceeded", err)
	}
}

func TestDoTyped(t *testing.T) {
	iso := newTestIsolator()
	s, err := Do(context.Background(), iso, "typed", func(context.Context) (string, error) {
		return "session", nil
	})
	if err != nil || s != "session" {
		t.Errorf("Do = %q, %v; want %q, nil", s, err, "session")
	}

	_, err = Do(context.Background(), iso, "typed-panic", func(context.Context) (string, error) {
		var m map[string]int
		m["boom"] = 1
		return "", nil
	})
	var f *Fault
	if !errors.As(err, &f) {
		t.Errorf("Do error = %v, want *Fault", err)
	}
}
