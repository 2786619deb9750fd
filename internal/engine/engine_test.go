package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"autorsa/internal/broker"
	"autorsa/internal/domain"
	"autorsa/internal/isolate"
	"autorsa/internal/report"
	"autorsa/internal/util"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type fakeSession struct {
	totals map[string]domain.Account
}

func (s *fakeSession) AccountTotals() map[string]domain.Account { return s.totals }

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(format string, args ...any) {
	c.mu.Lock()
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
	c.mu.Unlock()
}

func (c *callLog) forBroker(name string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, call := range c.calls {
		if strings.HasPrefix(call, name+":") {
			out = append(out, call)
		}
	}
	return out
}

type fake struct {
	name        string
	total       string // account total reported after login
	loginErr    error
	nilSession  bool
	holdingsErr error
	panicIn     string // "login", "holdings" or "transaction"
	convention  broker.Convention
	envs        []broker.LoginEnv
}

func (f *fake) descriptor(calls *callLog) broker.Descriptor {
	return broker.Descriptor{
		Name:       f.name,
		Convention: f.convention,
		Login: func(_ context.Context, env broker.LoginEnv) (domain.Session, error) {
			calls.add("%s:login", f.name)
			f.envs = append(f.envs, env)
			if f.panicIn == "login" {
				panic("login exploded")
			}
			if f.loginErr != nil {
				return nil, f.loginErr
			}
			if f.nilSession {
				return nil, nil
			}
			return f.session(), nil
		},
		Holdings: func(context.Context, domain.Session, report.Sink) error {
			calls.add("%s:holdings", f.name)
			if f.panicIn == "holdings" {
				panic("holdings exploded")
			}
			return f.holdingsErr
		},
		Transaction: func(_ context.Context, _ domain.Session, o *domain.Order, _ report.Sink) error {
			calls.add("%s:transaction:%s:%s", f.name, o.Action, o.Ticker)
			if f.panicIn == "transaction" {
				panic("transaction exploded")
			}
			return nil
		},
	}
}

func (f *fake) session() *fakeSession {
	total := decimal.Zero
	if f.total != "" {
		total = decimal.RequireFromString(f.total)
	}
	return &fakeSession{totals: map[string]domain.Account{
		f.name + "-1": {Total: total},
	}}
}

type recordingJournal struct {
	outcomes []*domain.Outcome
	err      error
}

func (j *recordingJournal) Record(_ context.Context, _ *domain.Order, out *domain.Outcome) error {
	j.outcomes = append(j.outcomes, out)
	return j.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	registry *broker.Registry
	calls    *callLog
	sink     *report.Recorder
}

func newHarness(t *testing.T, fakes ...*fake) *harness {
	t.Helper()
	h := &harness{registry: broker.NewRegistry(), calls: &callLog{}, sink: &report.Recorder{}}
	for _, f := range fakes {
		if err := h.registry.Register(f.descriptor(h.calls)); err != nil {
			t.Fatalf("Register(%s): %v", f.name, err)
		}
	}
	return h
}

func (h *harness) dispatcher(opts Options) *Dispatcher {
	return NewDispatcher(h.registry, isolate.New(testLogger()), h.sink, testLogger(), opts)
}

func newOrder(brokers ...string) *domain.Order {
	return domain.NewOrder(domain.ActionBuy, decimal.NewFromInt(10), "ABC", brokers, true)
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestValidateOrder(t *testing.T) {
	known := func(name string) bool { return broker.IsSupported(name) }

	tests := []struct {
		name      string
		mutate    func(o *domain.Order)
		wantField string
	}{
		{"valid", func(*domain.Order) {}, ""},
		{"alias broker", func(o *domain.Order) { o.Brokers = []string{"rh", "fido"} }, ""},
		{"zero amount", func(o *domain.Order) { o.Amount = decimal.Zero }, "amount"},
		{"negative amount", func(o *domain.Order) { o.Amount = decimal.NewFromInt(-1) }, "amount"},
		{"empty ticker", func(o *domain.Order) { o.Ticker = "  " }, "ticker"},
		{"bad action", func(o *domain.Order) { o.Action = "hold" }, "action"},
		{"no brokers", func(o *domain.Order) { o.Brokers = nil }, "brokers"},
		{"unknown broker", func(o *domain.Order) { o.Brokers = []string{"etrade"} }, "brokers"},
	}
	for _, tt := range tests {
		for _, cp := range []domain.Checkpoint{domain.PreLogin, domain.PostLogin} {
			t.Run(tt.name+"/"+string(cp), func(t *testing.T) {
				o := newOrder("robinhood")
				tt.mutate(o)
				err := ValidateOrder(o, cp, known)

				if tt.wantField == "" {
					if err != nil {
						t.Fatalf("ValidateOrder returned unexpected error: %v", err)
					}
					return
				}
				var ve *domain.ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("ValidateOrder error = %v, want *domain.ValidationError", err)
				}
				if ve.Field != tt.wantField {
					t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
				}
				if ve.Checkpoint != cp {
					t.Errorf("Checkpoint = %q, want %q", ve.Checkpoint, cp)
				}
			})
		}
	}
}

func TestValidateIgnoresSessions(t *testing.T) {
	o := newOrder("robinhood")
	if err := ValidateOrder(o, domain.PostLogin, broker.IsSupported); err != nil {
		t.Fatalf("post-login validation must not depend on sessions: %v", err)
	}
	o.SetLoggedIn("robinhood", nil)
	if err := ValidateOrder(o, domain.PostLogin, broker.IsSupported); err != nil {
		t.Fatalf("post-login validation must not depend on sessions: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func TestDispatchEndToEndHoldings(t *testing.T) {
	fakeA := &fake{name: "fakeA", total: "100.00"}
	fakeB := &fake{name: "fakeB", loginErr: errors.New("bad password")}
	h := newHarness(t, fakeA, fakeB)
	d := h.dispatcher(Options{})

	o := newOrder("fakeA", "fakeB")
	out, err := d.Dispatch(context.Background(), o, domain.PhaseHoldings)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}

	want := []string{
		"Total Value of Fakea Accounts: $100.00",
		"Error: fakeB not logged in, skipping...",
		"Total Value of All Accounts: $100.00",
		"All commands complete in all brokers",
	}
	got := h.sink.Messages()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("messages mismatch:\n  got  %q\n  want %q", got, want)
	}

	if !out.Total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Total = %s, want 100", out.Total)
	}
	rb, _ := out.Result("fakeB")
	if rb.Status != domain.ResultSkipped {
		t.Errorf("fakeB status = %q, want %q", rb.Status, domain.ResultSkipped)
	}
	var nl *NotLoggedInError
	if !errors.As(rb.Err, &nl) {
		t.Errorf("fakeB error = %v, want *NotLoggedInError", rb.Err)
	}
	var le *LoginError
	if !errors.As(rb.Err, &le) {
		t.Errorf("fakeB error should wrap the *LoginError, got %v", rb.Err)
	}
	if o.LoggedIn("fakeA") == nil {
		t.Error("fakeA session should be recorded on the order")
	}
}

func TestDispatchExcludedBrokersNeverCalled(t *testing.T) {
	fakeA := &fake{name: "fakeA", total: "1"}
	fakeB := &fake{name: "fakeB", total: "2"}
	rh := &fake{name: "robinhood", total: "4"}
	h := newHarness(t, fakeA, fakeB, rh)
	d := h.dispatcher(Options{})

	o := newOrder("fakeA", "fakeB", "rh")
	o.Exclude("FAKEB", "robinhood")

	for _, phase := range []domain.Phase{domain.PhaseHoldings, domain.PhaseTransaction} {
		out, err := d.Dispatch(context.Background(), o, phase)
		if err != nil {
			t.Fatalf("Dispatch(%s): %v", phase, err)
		}
		if r, _ := out.Result("fakeB"); r.Status != domain.ResultExcluded {
			t.Errorf("%s: fakeB status = %q, want excluded", phase, r.Status)
		}
		if r, _ := out.Result("robinhood"); r.Status != domain.ResultExcluded {
			t.Errorf("%s: robinhood status = %q, want excluded", phase, r.Status)
		}
		if !out.Total.Equal(decimal.NewFromInt(1)) {
			t.Errorf("%s: Total = %s, want 1", phase, out.Total)
		}
	}

	if calls := h.calls.forBroker("fakeB"); len(calls) != 0 {
		t.Errorf("excluded fakeB was called: %v", calls)
	}
	if calls := h.calls.forBroker("robinhood"); len(calls) != 0 {
		t.Errorf("excluded robinhood was called: %v", calls)
	}
}

func TestDispatchFaultIsolation(t *testing.T) {
	tests := []struct {
		name string
		bad  *fake
	}{
		{"login error", &fake{name: "bad", loginErr: errors.New("boom")}},
		{"login panic", &fake{name: "bad", panicIn: "login"}},
		{"holdings error", &fake{name: "bad", holdingsErr: errors.New("timeout")}},
		{"holdings panic", &fake{name: "bad", panicIn: "holdings"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			good := &fake{name: "good", total: "5"}
			h := newHarness(t, tt.bad, good)
			d := h.dispatcher(Options{})

			out, err := d.Dispatch(context.Background(), newOrder("bad", "good"), domain.PhaseHoldings)
			if err != nil {
				t.Fatalf("Dispatch returned error: %v", err)
			}

			calls := h.calls.forBroker("good")
			if len(calls) != 2 || calls[0] != "good:login" || calls[1] != "good:holdings" {
				t.Errorf("good broker calls = %v, want login then holdings", calls)
			}
			if r, _ := out.Result("good"); r.Status != domain.ResultOK {
				t.Errorf("good status = %q, want ok", r.Status)
			}
			if r, _ := out.Result("bad"); r.Status == domain.ResultOK {
				t.Error("bad broker should not report ok")
			}
			if !out.Total.Equal(decimal.NewFromInt(5)) {
				t.Errorf("Total = %s, want 5", out.Total)
			}
			msgs := h.sink.Messages()
			if msgs[len(msgs)-1] != "All commands complete in all brokers" {
				t.Errorf("last message = %q", msgs[len(msgs)-1])
			}
		})
	}
}

func TestDispatchPanicIsExecutionError(t *testing.T) {
	h := newHarness(t, &fake{name: "bad", panicIn: "transaction"})
	d := h.dispatcher(Options{})

	out, err := d.Dispatch(context.Background(), newOrder("bad"), domain.PhaseTransaction)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	r, _ := out.Result("bad")
	var ee *ExecutionError
	if !errors.As(r.Err, &ee) {
		t.Fatalf("error = %v, want *ExecutionError", r.Err)
	}
	var fault *isolate.Fault
	if !errors.As(r.Err, &fault) {
		t.Errorf("error should wrap the recovered *isolate.Fault, got %v", r.Err)
	}
}

func TestDispatchGrandTotal(t *testing.T) {
	fakes := []*fake{
		{name: "b1", total: "10.10"},
		{name: "b2", total: "20.20"},
		{name: "b3", total: "999", holdingsErr: errors.New("query failed")},
		{name: "b4", nilSession: true},
		{name: "b5", total: "30.30"},
	}
	h := newHarness(t, fakes...)
	d := h.dispatcher(Options{})

	out, err := d.Dispatch(context.Background(), newOrder("b1", "b2", "b3", "b4", "b5"), domain.PhaseHoldings)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if !out.Total.Equal(decimal.RequireFromString("60.60")) {
		t.Errorf("Total = %s, want 60.60", out.Total)
	}

	msgs := h.sink.Messages()
	if got := msgs[len(msgs)-2]; got != "Total Value of All Accounts: $60.60" {
		t.Errorf("grand total message = %q", got)
	}
	if got := out.Succeeded(); len(got) != 3 {
		t.Errorf("Succeeded() = %v, want 3 brokers", got)
	}
}

func TestDispatchNotLoggedInSkip(t *testing.T) {
	nilSess := &fake{name: "ghost", nilSession: true}
	h := newHarness(t, nilSess)
	d := h.dispatcher(Options{})

	out, err := d.Dispatch(context.Background(), newOrder("ghost"), domain.PhaseTransaction)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if calls := h.calls.forBroker("ghost"); len(calls) != 1 {
		t.Errorf("ghost calls = %v, want only login", calls)
	}
	r, _ := out.Result("ghost")
	if r.Status != domain.ResultSkipped || !r.Total.IsZero() {
		t.Errorf("ghost result = %+v, want skipped with zero total", r)
	}
	want := []string{
		"Error: ghost not logged in, skipping...",
		"All commands complete in all brokers",
	}
	if got := h.sink.Messages(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("messages = %q, want %q", got, want)
	}
}

func TestDispatchTransaction(t *testing.T) {
	fa := &fake{name: "fakeA", total: "1"}
	h := newHarness(t, fa)
	d := h.dispatcher(Options{})

	o := domain.NewOrder(domain.ActionSell, decimal.NewFromInt(1), "xyz", []string{"fakeA"}, true)
	out, err := d.Dispatch(context.Background(), o, domain.PhaseTransaction)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}

	calls := h.calls.forBroker("fakeA")
	if len(calls) != 2 || calls[1] != "fakeA:transaction:sell:XYZ" {
		t.Errorf("calls = %v", calls)
	}
	want := []string{
		"All Fakea transactions complete",
		"All commands complete in all brokers",
	}
	if got := h.sink.Messages(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("messages = %q, want %q", got, want)
	}
	if out.Phase != domain.PhaseTransaction {
		t.Errorf("Phase = %q", out.Phase)
	}
}

func TestDispatchInvalidPhase(t *testing.T) {
	h := newHarness(t, &fake{name: "fakeA"})
	d := h.dispatcher(Options{})

	_, err := d.Dispatch(context.Background(), newOrder("fakeA"), "_init")
	if !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("Dispatch error = %v, want ErrInvalidPhase", err)
	}
	if len(h.calls.calls) != 0 || len(h.sink.Messages()) != 0 {
		t.Error("invalid phase must not touch any broker or sink")
	}
}

func TestDispatchUnregisteredBroker(t *testing.T) {
	h := newHarness(t, &fake{name: "fakeA", total: "3"})
	d := h.dispatcher(Options{})

	out, err := d.Dispatch(context.Background(), newOrder("chase", "fakeA"), domain.PhaseHoldings)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	r, _ := out.Result("chase")
	if r.Status != domain.ResultFailed || !errors.Is(r.Err, broker.ErrNotRegistered) {
		t.Errorf("chase result = %+v, want failed with ErrNotRegistered", r)
	}
	if r, _ := out.Result("fakeA"); r.Status != domain.ResultOK {
		t.Errorf("fakeA status = %q, want ok", r.Status)
	}
}

func TestDispatchConventions(t *testing.T) {
	none := &fake{name: "none", convention: broker.ConventionNone}
	notify := &fake{name: "notify", convention: broker.ConventionNotifier}
	both := &fake{name: "both", convention: broker.ConventionContainerNotifier}
	container := &fake{name: "container", convention: broker.ConventionContainer}
	h := newHarness(t, none, notify, both, container)
	d := h.dispatcher(Options{Container: true})

	if _, err := d.Dispatch(context.Background(), newOrder("none", "notify", "both", "container"), domain.PhaseHoldings); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}

	check := func(f *fake, wantNotifier, wantContainer bool) {
		t.Helper()
		if len(f.envs) != 1 {
			t.Fatalf("%s: login called %d times", f.name, len(f.envs))
		}
		env := f.envs[0]
		if (env.Notifier != nil) != wantNotifier || env.Container != wantContainer {
			t.Errorf("%s: env = %+v, want notifier=%v container=%v", f.name, env, wantNotifier, wantContainer)
		}
	}
	check(none, false, false)
	check(notify, true, false)
	check(both, true, true)
	check(container, false, true)
}

func TestDispatchIsolatedBroker(t *testing.T) {
	calls := &callLog{}
	registry := broker.NewRegistry()
	registry.MustRegister(broker.Descriptor{
		Name:     "chase",
		Isolated: true,
		Run: func(_ context.Context, o *domain.Order, phase domain.Phase, env broker.LoginEnv) (domain.Session, error) {
			calls.add("chase:run:%s", phase)
			return &fakeSession{totals: map[string]domain.Account{
				"C1": {Total: decimal.NewFromInt(7)},
				"C2": {Total: decimal.NewFromInt(8)},
			}}, nil
		},
	})
	registry.MustRegister(broker.Descriptor{
		Name:     "fidelity",
		Isolated: true,
		Run: func(context.Context, *domain.Order, domain.Phase, broker.LoginEnv) (domain.Session, error) {
			calls.add("fidelity:run")
			panic("playwright crashed")
		},
	})
	registry.MustRegister(broker.Descriptor{
		Name:     "sofi",
		Isolated: true,
		Run: func(context.Context, *domain.Order, domain.Phase, broker.LoginEnv) (domain.Session, error) {
			calls.add("sofi:run")
			return nil, errors.New("2fa timeout")
		},
	})
	sink := &report.Recorder{}
	d := NewDispatcher(registry, isolate.New(testLogger()), sink, testLogger(), Options{})

	o := newOrder("fido", "sofi", "chase")
	out, err := d.Dispatch(context.Background(), o, domain.PhaseHoldings)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}

	if !out.Total.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Total = %s, want 15", out.Total)
	}
	if o.LoggedIn("chase") == nil {
		t.Error("isolated broker session should be recorded on the order")
	}

	r, _ := out.Result("fidelity")
	var fault *isolate.Fault
	if r.Status != domain.ResultFailed || !errors.As(r.Err, &fault) {
		t.Errorf("fidelity result = %+v, want failed with *isolate.Fault", r)
	}
	var ee *ExecutionError
	if !errors.As(r.Err, &ee) {
		t.Errorf("fidelity error should be an *ExecutionError, got %v", r.Err)
	}
	if r, _ := out.Result("sofi"); r.Status != domain.ResultFailed {
		t.Errorf("sofi status = %q, want failed", r.Status)
	}
	if got := calls.forBroker("chase"); len(got) != 1 || got[0] != "chase:run:holdings" {
		t.Errorf("chase calls = %v", got)
	}
}

func TestDispatchPostLoginFailure(t *testing.T) {
	h := newHarness(t, &fake{name: "fakeA", total: "100.00"}, &fake{name: "fakeC", total: "5.00"})
	var o *domain.Order
	h.registry.MustRegister(broker.Descriptor{
		Name: "fakeB",
		Login: func(context.Context, broker.LoginEnv) (domain.Session, error) {
			h.calls.add("fakeB:login")
			o.Ticker = ""
			return &fakeSession{}, nil
		},
		Holdings: func(context.Context, domain.Session, report.Sink) error {
			h.calls.add("fakeB:holdings")
			return nil
		},
		Transaction: func(context.Context, domain.Session, *domain.Order, report.Sink) error {
			h.calls.add("fakeB:transaction")
			return nil
		},
	})
	d := h.dispatcher(Options{})

	o = newOrder("fakeA", "fakeB", "fakeC")
	out, err := d.Dispatch(context.Background(), o, domain.PhaseTransaction)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}

	ra, _ := out.Result("fakeA")
	if ra.Status != domain.ResultOK || !ra.Total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("fakeA result = %+v, want ok with total 100", ra)
	}
	for _, name := range []string{"fakeB", "fakeC"} {
		r, _ := out.Result(name)
		var ve *domain.ValidationError
		if r.Status != domain.ResultFailed || !errors.As(r.Err, &ve) {
			t.Errorf("%s result = %+v, want failed with *domain.ValidationError", name, r)
			continue
		}
		if ve.Checkpoint != domain.PostLogin || ve.Field != "ticker" {
			t.Errorf("%s error = %+v, want post-login ticker", name, ve)
		}
	}
	if got := h.calls.forBroker("fakeB"); len(got) != 1 || got[0] != "fakeB:login" {
		t.Errorf("fakeB calls = %v, want login only", got)
	}
	if !out.Total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Total = %s, want 100", out.Total)
	}
	msgs := h.sink.Messages()
	if len(msgs) == 0 || msgs[len(msgs)-1] != "All commands complete in all brokers" {
		t.Errorf("messages = %q, want completion message last", msgs)
	}
}

func TestDispatchCancelledContext(t *testing.T) {
	h := newHarness(t, &fake{name: "fakeA"}, &fake{name: "fakeB"})
	d := h.dispatcher(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := d.Dispatch(ctx, newOrder("fakeA", "fakeB"), domain.PhaseHoldings)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if got := out.Failed(); len(got) != 2 {
		t.Errorf("Failed() = %v, want both brokers", got)
	}
	if len(h.calls.calls) != 0 {
		t.Errorf("no broker should be called after cancellation: %v", h.calls.calls)
	}
	msgs := h.sink.Messages()
	if msgs[len(msgs)-1] != "All commands complete in all brokers" {
		t.Error("completion message should still be emitted")
	}
}

func TestDispatchJournalsAndMetrics(t *testing.T) {
	h := newHarness(t, &fake{name: "fakeA", total: "12.5"}, &fake{name: "fakeB", loginErr: errors.New("x")})
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	ok := &recordingJournal{}
	broken := &recordingJournal{err: errors.New("disk full")}
	d := h.dispatcher(Options{Journals: []Journal{broken, ok}, Metrics: metrics})

	out, err := d.Dispatch(context.Background(), newOrder("fakeA", "fakeB"), domain.PhaseHoldings)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if len(ok.outcomes) != 1 || ok.outcomes[0] != out {
		t.Error("journal should receive the outcome even when an earlier journal fails")
	}

	if got := testutil.ToFloat64(metrics.results.WithLabelValues("fakeA", "holdings", "ok")); got != 1 {
		t.Errorf("fakeA ok counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.results.WithLabelValues("fakeB", "holdings", "skipped")); got != 1 {
		t.Errorf("fakeB skipped counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.total); got != 12.5 {
		t.Errorf("holdings total gauge = %v, want 12.5", got)
	}
}

func TestDispatchMarketClosedNote(t *testing.T) {
	h := newHarness(t, &fake{name: "fakeA"})
	saturday := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	d := h.dispatcher(Options{
		Calendar: util.NewTradingCalendar(),
		Now:      func() time.Time { return saturday },
	})

	o := newOrder("fakeA")
	o.DryRun = false
	if _, err := d.Dispatch(context.Background(), o, domain.PhaseTransaction); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	msgs := h.sink.Messages()
	if len(msgs) == 0 || !strings.HasPrefix(msgs[0], "Note: market is closed") {
		t.Fatalf("messages = %q, want market-closed note first", msgs)
	}
	if !strings.Contains(msgs[0], "(Mon Jun 17 09:30 ") {
		t.Errorf("note = %q, want the Monday open", msgs[0])
	}
}

// ---------------------------------------------------------------------------
// Risk
// ---------------------------------------------------------------------------

func TestRiskManagerCheckOrder(t *testing.T) {
	o := newOrder("paper")
	o.Amount = decimal.NewFromInt(500)

	capped := NewRiskManager(decimal.NewFromInt(100), false)
	var ve *domain.ValidationError
	if err := capped.CheckOrder(context.Background(), o); !errors.As(err, &ve) || ve.Field != "amount" {
		t.Errorf("CheckOrder = %v, want amount ValidationError", err)
	}

	danger := NewRiskManager(decimal.NewFromInt(100), true)
	if err := danger.CheckOrder(context.Background(), o); err != nil {
		t.Errorf("danger mode CheckOrder = %v, want nil", err)
	}

	uncapped := NewRiskManager(decimal.Zero, false)
	if err := uncapped.CheckOrder(context.Background(), o); err != nil {
		t.Errorf("zero cap CheckOrder = %v, want nil", err)
	}
}

func TestHoldingsOrder(t *testing.T) {
	o := domain.NewHoldingsOrder([]string{"fakeA"})
	if err := ValidateOrder(o, domain.PreLogin, nil); err != nil {
		t.Errorf("holdings order should skip trade field checks: %v", err)
	}
	if err := ValidateOrder(domain.NewHoldingsOrder(nil), domain.PreLogin, nil); err == nil {
		t.Error("holdings order without brokers should fail validation")
	}

	h := newHarness(t, &fake{name: "fakeA", total: "42"})
	d := h.dispatcher(Options{})

	out, err := d.Dispatch(context.Background(), o, domain.PhaseHoldings)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if r, _ := out.Result("fakeA"); r.Status != domain.ResultOK {
		t.Errorf("fakeA status = %q, want ok (post-login check must pass)", r.Status)
	}

	if _, err := d.Dispatch(context.Background(), o, domain.PhaseTransaction); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("transaction on holdings order = %v, want ErrInvalidPhase", err)
	}
}
