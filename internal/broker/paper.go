package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"autorsa/internal/domain"
	"autorsa/internal/report"
)

// PaperConfig seeds a PaperBroker.
type PaperConfig struct {
	Accounts     []string
	StartingCash decimal.Decimal
	Prices       map[string]decimal.Decimal // ticker -> price
	DefaultPrice decimal.Decimal            // used for tickers missing from Prices

	// Isolated runs the broker through its single Run entry point on the
	// dispatcher's isolated context, the way browser-driven brokers run.
	Isolated bool
}

// PaperBroker is an in-memory brokerage for paper trading and rehearsals. It
// tracks cash and positions per account without making external calls.
type PaperBroker struct {
	mu       sync.Mutex
	accounts map[string]*paperAccount
	prices   map[string]decimal.Decimal
	fallback decimal.Decimal
	isolated bool
}

type paperAccount struct {
	cash      decimal.Decimal
	positions map[string]decimal.Decimal
}

// paperSession is the session handle returned by PaperBroker.Login.
type paperSession struct {
	mu     sync.Mutex
	totals map[string]domain.Account
}

func (s *paperSession) AccountTotals() map[string]domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

func (s *paperSession) set(totals map[string]domain.Account) {
	s.mu.Lock()
	s.totals = totals
	s.mu.Unlock()
}

// NewPaperBroker creates a PaperBroker with one funded account per entry in
// cfg.Accounts (a single "PAPER-1" account when none are given).
func NewPaperBroker(cfg PaperConfig) *PaperBroker {
	ids := cfg.Accounts
	if len(ids) == 0 {
		ids = []string{"PAPER-1"}
	}
	b := &PaperBroker{
		accounts: make(map[string]*paperAccount, len(ids)),
		prices:   make(map[string]decimal.Decimal, len(cfg.Prices)),
		fallback: cfg.DefaultPrice,
		isolated: cfg.Isolated,
	}
	for _, id := range ids {
		b.accounts[id] = &paperAccount{
			cash:      cfg.StartingCash,
			positions: make(map[string]decimal.Decimal),
		}
	}
	for t, p := range cfg.Prices {
		b.prices[strings.ToUpper(t)] = p
	}
	return b
}

// Descriptor returns the capability record for the paper broker. An
// isolated paper broker also receives the container flag.
func (b *PaperBroker) Descriptor() Descriptor {
	if b.isolated {
		return Descriptor{
			Name:       "paper",
			Convention: ConventionContainerNotifier,
			Isolated:   true,
			Run:        b.Run,
		}
	}
	return Descriptor{
		Name:        "paper",
		Convention:  ConventionNotifier,
		Login:       b.Login,
		Holdings:    b.Holdings,
		Transaction: b.Transaction,
	}
}

// Login opens a session and reports how many accounts were found.
func (b *PaperBroker) Login(ctx context.Context, env LoginEnv) (domain.Session, error) {
	s := &paperSession{}
	s.set(b.snapshot())
	if env.Notifier != nil {
		where := ""
		if env.Container {
			where = " (container)"
		}
		env.Notifier.Report(ctx, fmt.Sprintf("Logged in to Paper%s: %d account(s)", where, len(b.accountIDs())))
	}
	return s, nil
}

// Run logs in and performs phase in one call, returning the session on
// success.
func (b *PaperBroker) Run(ctx context.Context, o *domain.Order, phase domain.Phase, env LoginEnv) (domain.Session, error) {
	sink := env.Notifier
	if sink == nil {
		sink = report.Discard
	}
	s, err := b.Login(ctx, env)
	if err != nil {
		return nil, err
	}
	switch phase {
	case domain.PhaseHoldings:
		err = b.Holdings(ctx, s, sink)
	case domain.PhaseTransaction:
		if err = b.Transaction(ctx, s, o, sink); err == nil {
			sink.Report(ctx, "All Paper transactions complete")
		}
	default:
		err = fmt.Errorf("paper: unknown phase %q", phase)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Holdings refreshes the session's totals and reports each account.
func (b *PaperBroker) Holdings(ctx context.Context, s domain.Session, sink report.Sink) error {
	ps, ok := s.(*paperSession)
	if !ok {
		return fmt.Errorf("paper: unexpected session type %T", s)
	}
	totals := b.snapshot()
	ps.set(totals)

	for _, id := range sortedKeys(totals) {
		acct := totals[id]
		var parts []string
		for _, sym := range sortedKeys(acct.Positions) {
			parts = append(parts, fmt.Sprintf("%s: %s", sym, acct.Positions[sym].String()))
		}
		holdings := "no positions"
		if len(parts) > 0 {
			holdings = strings.Join(parts, ", ")
		}
		sink.Report(ctx, fmt.Sprintf("Paper %s: $%s (%s)", id, acct.Total.StringFixed(2), holdings))
	}
	return nil
}

// Transaction fills the order at the configured price in every account.
// Dry runs only report what would have happened.
func (b *PaperBroker) Transaction(ctx context.Context, s domain.Session, o *domain.Order, sink report.Sink) error {
	ps, ok := s.(*paperSession)
	if !ok {
		return fmt.Errorf("paper: unexpected session type %T", s)
	}

	price := b.price(o.Ticker)
	var errs []error
	for _, id := range b.accountIDs() {
		if o.DryRun {
			sink.Report(ctx, fmt.Sprintf("Paper %s: Running in DRY mode. Transaction would've been: %s %s of %s",
				id, o.Action, o.Amount.String(), o.Ticker))
			continue
		}
		if err := b.fill(id, o, price); err != nil {
			sink.Report(ctx, fmt.Sprintf("Paper %s: Error submitting order: %v", id, err))
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		sink.Report(ctx, fmt.Sprintf("Paper %s: %s %s of %s at $%s",
			id, o.Action, o.Amount.String(), o.Ticker, price.StringFixed(2)))
	}
	ps.set(b.snapshot())
	return errors.Join(errs...)
}

func (b *PaperBroker) fill(id string, o *domain.Order, price decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct := b.accounts[id]
	cost := price.Mul(o.Amount)
	held := acct.positions[o.Ticker]

	switch o.Action {
	case domain.ActionBuy:
		if acct.cash.LessThan(cost) {
			return fmt.Errorf("insufficient cash: need $%s, have $%s", cost.StringFixed(2), acct.cash.StringFixed(2))
		}
		acct.cash = acct.cash.Sub(cost)
		acct.positions[o.Ticker] = held.Add(o.Amount)
	case domain.ActionSell:
		if held.LessThan(o.Amount) {
			return fmt.Errorf("insufficient shares of %s: have %s", o.Ticker, held.String())
		}
		acct.cash = acct.cash.Add(cost)
		if rest := held.Sub(o.Amount); rest.IsZero() {
			delete(acct.positions, o.Ticker)
		} else {
			acct.positions[o.Ticker] = rest
		}
	default:
		return fmt.Errorf("unknown action %q", o.Action)
	}
	return nil
}

func (b *PaperBroker) price(ticker string) decimal.Decimal {
	if p, ok := b.prices[strings.ToUpper(ticker)]; ok {
		return p
	}
	return b.fallback
}

// snapshot values every account at the configured prices.
func (b *PaperBroker) snapshot() map[string]domain.Account {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]domain.Account, len(b.accounts))
	for id, acct := range b.accounts {
		total := acct.cash
		positions := make(map[string]decimal.Decimal, len(acct.positions))
		for sym, qty := range acct.positions {
			positions[sym] = qty
			total = total.Add(qty.Mul(b.price(sym)))
		}
		out[id] = domain.Account{Total: total, Positions: positions}
	}
	return out
}

func (b *PaperBroker) accountIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sortedKeys(b.accounts)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
