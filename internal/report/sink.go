// Package report delivers human-readable progress and result messages from
// the dispatcher to consoles, chat webhooks and WebSocket clients.
package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Sink receives progress messages. Implementations must tolerate sequential
// reentrant calls and must not block the caller beyond a bounded delivery
// attempt.
type Sink interface {
	Report(ctx context.Context, msg string)
}

// Func adapts an ordinary function to a Sink.
type Func func(ctx context.Context, msg string)

// Report calls f(ctx, msg).
func (f Func) Report(ctx context.Context, msg string) { f(ctx, msg) }

// Discard is a Sink that drops every message.
var Discard Sink = Func(func(context.Context, string) {})

// Multi fans a message out to every sink in order.
type Multi []Sink

// Report delivers msg to each sink sequentially.
func (m Multi) Report(ctx context.Context, msg string) {
	for _, s := range m {
		if s != nil {
			s.Report(ctx, msg)
		}
	}
}

// Console writes each message on its own line and mirrors it to the logger
// at debug level.
type Console struct {
	mu  sync.Mutex
	w   io.Writer
	log *slog.Logger
}

// NewConsole creates a Console sink writing to w.
func NewConsole(w io.Writer, log *slog.Logger) *Console {
	return &Console{w: w, log: log}
}

// Report prints msg.
func (c *Console) Report(_ context.Context, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, msg)
	if c.log != nil {
		c.log.Debug("report", "message", msg)
	}
}

// Recorder keeps every reported message in memory.
type Recorder struct {
	mu   sync.Mutex
	msgs []string
}

// Report appends msg.
func (r *Recorder) Report(_ context.Context, msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	copy(out, r.msgs)
	return out
}
