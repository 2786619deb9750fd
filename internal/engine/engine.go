// Package engine coordinates a single order across many brokers: it
// validates the order, logs in to each broker in turn, runs the holdings
// query or the transaction, contains each broker's failures, and aggregates
// the results.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/shopspring/decimal"

	"autorsa/internal/broker"
	"autorsa/internal/domain"
	"autorsa/internal/isolate"
	"autorsa/internal/report"
	"autorsa/internal/util"
)

// Journal persists the outcome of a dispatch. Journal failures are logged
// and never change the outcome.
type Journal interface {
	Record(ctx context.Context, o *domain.Order, out *domain.Outcome) error
}

// Options carries the explicit mode flags and optional collaborators of a
// Dispatcher.
type Options struct {
	// Container is forwarded to brokers whose login convention asks for it.
	Container bool

	// Calendar, when set, adds a market-closed note to live transactions
	// submitted outside regular hours.
	Calendar *util.TradingCalendar

	Journals []Journal
	Metrics  *Metrics
	Now      func() time.Time
}

// Dispatcher runs one order across its brokers, one broker at a time.
type Dispatcher struct {
	registry *broker.Registry
	isolator *isolate.Isolator
	sink     report.Sink
	log      *slog.Logger
	opts     Options
}

// NewDispatcher creates a Dispatcher wired with the given dependencies.
func NewDispatcher(
	registry *broker.Registry,
	isolator *isolate.Isolator,
	sink report.Sink,
	log *slog.Logger,
	opts Options,
) *Dispatcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if sink == nil {
		sink = report.Discard
	}
	return &Dispatcher{
		registry: registry,
		isolator: isolator,
		sink:     sink,
		log:      log.With("component", "dispatcher"),
		opts:     opts,
	}
}

// Validate checks the order at the given checkpoint against the brokers this
// dispatcher knows about.
func (d *Dispatcher) Validate(o *domain.Order, cp domain.Checkpoint) error {
	return ValidateOrder(o, cp, d.registry.Known)
}

// Dispatch runs phase for every broker of o in order. Broker failures are
// recorded in the outcome and never stop the remaining brokers; the only
// error returned is ErrInvalidPhase, also used when a holdings order is
// dispatched for a transaction.
func (d *Dispatcher) Dispatch(ctx context.Context, o *domain.Order, phase domain.Phase) (*domain.Outcome, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPhase, phase)
	}
	if o.Holdings && phase != domain.PhaseHoldings {
		return nil, fmt.Errorf("%w: holdings order cannot run %q", ErrInvalidPhase, phase)
	}

	out := &domain.Outcome{
		OrderID: o.ID,
		Phase:   phase,
		Total:   decimal.Zero,
		Started: d.opts.Now(),
	}
	d.log.Info("dispatch started", "order", o, "phase", phase)

	if cal := d.opts.Calendar; phase == domain.PhaseTransaction && !o.DryRun && cal != nil &&
		!cal.IsMarketOpen(out.Started) {
		next := cal.NextOpen(out.Started).Format("Mon Jan 2 15:04 MST")
		d.sink.Report(ctx, fmt.Sprintf("Note: market is closed, orders may not fill until the next session (%s)", next))
	}

	excluded := make(map[string]bool, len(o.Excluded))
	for _, b := range o.Excluded {
		excluded[broker.Key(b)] = true
	}

	for _, raw := range o.Brokers {
		res := d.dispatchOne(ctx, o, raw, phase, excluded)
		out.Results = append(out.Results, res)
		if res.Status == domain.ResultOK {
			out.Total = out.Total.Add(res.Total)
		}
	}

	if phase == domain.PhaseHoldings {
		d.sink.Report(ctx, fmt.Sprintf("Total Value of All Accounts: $%s", out.Total.StringFixed(2)))
	}
	d.sink.Report(ctx, "All commands complete in all brokers")

	out.Finished = d.opts.Now()
	d.log.Info("dispatch finished",
		"order_id", o.ID,
		"phase", phase,
		"total", out.Total.StringFixed(2),
		"succeeded", out.Succeeded(),
		"failed", out.Failed(),
		"duration", out.Finished.Sub(out.Started),
	)

	d.opts.Metrics.observe(out)
	for _, j := range d.opts.Journals {
		if err := j.Record(ctx, o, out); err != nil {
			d.log.Warn("journal record failed", "order_id", o.ID, "error", err)
		}
	}
	return out, nil
}

// dispatchOne handles a single broker. Everything that can go wrong for the
// broker, panics included, ends up in the returned result.
func (d *Dispatcher) dispatchOne(
	ctx context.Context,
	o *domain.Order,
	raw string,
	phase domain.Phase,
	excluded map[string]bool,
) (res domain.BrokerResult) {
	name := broker.Resolve(raw)
	res = domain.BrokerResult{Broker: name, Total: decimal.Zero}

	if excluded[broker.Key(raw)] {
		res.Status = domain.ResultExcluded
		return res
	}

	log := d.log.With("broker", name, "phase", phase)
	fail := func(msg string, err error) domain.BrokerResult {
		log.Error(msg, "order", o, "error", err)
		res.Status = domain.ResultFailed
		res.Err = err
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			fault := &isolate.Fault{Name: name, Value: r, Stack: debug.Stack()}
			res = fail("broker panicked", &ExecutionError{Broker: name, Phase: phase, Err: fault})
			log.Error("panic stack", "stack", string(fault.Stack))
		}
	}()

	if err := ctx.Err(); err != nil {
		return fail("dispatch cancelled", &ExecutionError{Broker: name, Phase: phase, Err: err})
	}

	desc, ok := d.registry.Lookup(name)
	if !ok {
		return fail("broker unavailable", &ExecutionError{Broker: name, Phase: phase, Err: broker.ErrNotRegistered})
	}
	env := desc.Convention.Env(d.sink, d.opts.Container)

	if desc.Isolated {
		sess, err := isolate.Do(ctx, d.isolator, name, func(ctx context.Context) (domain.Session, error) {
			return desc.Run(ctx, o, phase, env)
		})
		if err != nil {
			return fail("isolated broker failed", &ExecutionError{Broker: name, Phase: phase, Err: err})
		}
		o.SetLoggedIn(name, sess)
		if sess == nil {
			return d.skip(ctx, res, nil)
		}
		return d.settle(ctx, res, sess, phase)
	}

	var loginErr error
	sess, err := desc.Login(ctx, env)
	if err != nil {
		loginErr = &LoginError{Broker: name, Err: err}
		log.Error("login failed", "order", o, "error", loginErr)
		sess = nil
	}
	o.SetLoggedIn(name, sess)

	if err := ValidateOrder(o, domain.PostLogin, d.registry.Known); err != nil {
		return fail("order invalid after login", err)
	}

	sess = o.LoggedIn(name)
	if sess == nil {
		return d.skip(ctx, res, loginErr)
	}

	switch phase {
	case domain.PhaseHoldings:
		err = desc.Holdings(ctx, sess, d.sink)
	case domain.PhaseTransaction:
		err = desc.Transaction(ctx, sess, o, d.sink)
	}
	if err != nil {
		return fail("broker call failed", &ExecutionError{Broker: name, Phase: phase, Err: err})
	}
	if phase == domain.PhaseTransaction {
		d.sink.Report(ctx, fmt.Sprintf("All %s transactions complete", broker.DisplayName(name)))
	}
	return d.settle(ctx, res, sess, phase)
}

func (d *Dispatcher) skip(ctx context.Context, res domain.BrokerResult, cause error) domain.BrokerResult {
	d.sink.Report(ctx, fmt.Sprintf("Error: %s not logged in, skipping...", res.Broker))
	res.Status = domain.ResultSkipped
	res.Err = &NotLoggedInError{Broker: res.Broker, Cause: cause}
	return res
}

// settle adds up the broker's account totals once its phase has completed.
func (d *Dispatcher) settle(ctx context.Context, res domain.BrokerResult, sess domain.Session, phase domain.Phase) domain.BrokerResult {
	res.Total = domain.SumTotals(sess.AccountTotals())
	res.Status = domain.ResultOK
	if phase == domain.PhaseHoldings {
		d.sink.Report(ctx, fmt.Sprintf("Total Value of %s Accounts: $%s",
			broker.DisplayName(res.Broker), res.Total.StringFixed(2)))
	}
	return res
}
