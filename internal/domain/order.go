// Package domain defines the core types shared across the order
// orchestration stack: orders, broker sessions, account totals and dispatch
// outcomes.
package domain

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action is the side of a trade.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Phase selects what the dispatcher does once a broker is logged in.
type Phase string

const (
	PhaseHoldings    Phase = "holdings"
	PhaseTransaction Phase = "transaction"
)

// Valid reports whether p is a known dispatch phase.
func (p Phase) Valid() bool {
	return p == PhaseHoldings || p == PhaseTransaction
}

// Session is the opaque handle a broker returns from login. The dispatcher
// only ever asks it for account totals.
type Session interface {
	AccountTotals() map[string]Account
}

// Account is one sub-account's value as reported by a broker.
type Account struct {
	Total     decimal.Decimal
	Positions map[string]decimal.Decimal // symbol -> quantity
}

// SumTotals adds up the Total of every account in totals.
func SumTotals(totals map[string]Account) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range totals {
		sum = sum.Add(a.Total)
	}
	return sum
}

// Order is a single trade request fanned out to one or more brokers. It is
// created per request, owned by one dispatch at a time, and never reused.
type Order struct {
	ID        string
	Action    Action
	Amount    decimal.Decimal
	Ticker    string
	Brokers   []string
	Excluded  []string
	DryRun    bool
	CreatedAt time.Time

	// Holdings marks a query-only order. Action, Amount and Ticker are unused
	// and not validated.
	Holdings bool

	// Sessions is populated during dispatch as brokers log in. A missing
	// entry and a nil entry both mean "not logged in".
	Sessions map[string]Session
}

// NewOrder creates an order with a fresh ID. The ticker is upper-cased.
func NewOrder(action Action, amount decimal.Decimal, ticker string, brokers []string, dryRun bool) *Order {
	return &Order{
		ID:        uuid.NewString(),
		Action:    Action(strings.ToLower(string(action))),
		Amount:    amount,
		Ticker:    strings.ToUpper(strings.TrimSpace(ticker)),
		Brokers:   brokers,
		DryRun:    dryRun,
		CreatedAt: time.Now(),
		Sessions:  make(map[string]Session),
	}
}

// NewHoldingsOrder creates a query-only order for brokers.
func NewHoldingsOrder(brokers []string) *Order {
	return &Order{
		ID:        uuid.NewString(),
		Amount:    decimal.Zero,
		Brokers:   brokers,
		CreatedAt: time.Now(),
		Holdings:  true,
		Sessions:  make(map[string]Session),
	}
}

// SetLoggedIn records the session for broker. A nil session marks the broker
// as not logged in.
func (o *Order) SetLoggedIn(broker string, s Session) {
	if o.Sessions == nil {
		o.Sessions = make(map[string]Session)
	}
	o.Sessions[broker] = s
}

// LoggedIn returns the session for broker, or nil.
func (o *Order) LoggedIn(broker string) Session {
	if o.Sessions == nil {
		return nil
	}
	return o.Sessions[broker]
}

// Exclude adds brokers to the exclusion list.
func (o *Order) Exclude(brokers ...string) {
	o.Excluded = append(o.Excluded, brokers...)
}

// String renders a one-line summary used in log and error messages.
func (o *Order) String() string {
	if o.Holdings {
		return fmt.Sprintf("Order %s: holdings brokers=%v excluded=%v", o.ID, o.Brokers, o.Excluded)
	}
	logged := make([]string, 0, len(o.Sessions))
	for b, s := range o.Sessions {
		if s != nil {
			logged = append(logged, b)
		}
	}
	sort.Strings(logged)
	return fmt.Sprintf("Order %s: %s %s %s brokers=%v excluded=%v dry=%t logged_in=%v",
		o.ID, o.Action, o.Amount.String(), o.Ticker, o.Brokers, o.Excluded, o.DryRun, logged)
}

// LogValue implements slog.LogValuer so an order can be logged as a group.
func (o *Order) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", o.ID),
		slog.Bool("holdings", o.Holdings),
		slog.String("action", string(o.Action)),
		slog.String("amount", o.Amount.String()),
		slog.String("ticker", o.Ticker),
		slog.Any("brokers", o.Brokers),
		slog.Any("excluded", o.Excluded),
		slog.Bool("dry", o.DryRun),
		slog.Int("sessions", len(o.Sessions)),
	)
}
