package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"autorsa/internal/domain"
	"autorsa/internal/report"
)

// alpacaAPI is the subset of *alpaca.Client the backend uses.
type alpacaAPI interface {
	GetAccount() (*alpaca.Account, error)
	GetPositions() ([]alpaca.Position, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
}

// AlpacaBroker implements the broker contract on the Alpaca trading API.
type AlpacaBroker struct {
	apiKey    string
	apiSecret string
	baseURL   string

	newClient func() alpacaAPI
}

// NewAlpacaBroker creates an AlpacaBroker configured with the given
// credentials and API endpoint.
func NewAlpacaBroker(apiKey, apiSecret, baseURL string) *AlpacaBroker {
	b := &AlpacaBroker{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
	}
	b.newClient = func() alpacaAPI {
		return alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    b.apiKey,
			APISecret: b.apiSecret,
			BaseURL:   b.baseURL,
		})
	}
	return b
}

// Descriptor returns the capability record for Alpaca.
func (b *AlpacaBroker) Descriptor() Descriptor {
	return Descriptor{
		Name:        "alpaca",
		Convention:  ConventionNone,
		Login:       b.Login,
		Holdings:    b.Holdings,
		Transaction: b.Transaction,
	}
}

type alpacaSession struct {
	client  alpacaAPI
	account string

	mu     sync.Mutex
	totals map[string]domain.Account
}

func (s *alpacaSession) AccountTotals() map[string]domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

func (s *alpacaSession) refresh(positions map[string]decimal.Decimal) error {
	acct, err := s.client.GetAccount()
	if err != nil {
		return fmt.Errorf("getting account: %w", err)
	}
	s.mu.Lock()
	s.totals = map[string]domain.Account{
		acct.AccountNumber: {Total: acct.Equity, Positions: positions},
	}
	s.mu.Unlock()
	return nil
}

// Login verifies the credentials by fetching the account.
func (b *AlpacaBroker) Login(_ context.Context, _ LoginEnv) (domain.Session, error) {
	if b.apiKey == "" || b.apiSecret == "" {
		return nil, errors.New("alpaca: API key and secret are required")
	}
	client := b.newClient()
	acct, err := client.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("alpaca login: %w", err)
	}
	if acct.TradingBlocked {
		return nil, fmt.Errorf("alpaca account %s is blocked from trading", acct.AccountNumber)
	}
	return &alpacaSession{
		client:  client,
		account: acct.AccountNumber,
		totals: map[string]domain.Account{
			acct.AccountNumber: {Total: acct.Equity},
		},
	}, nil
}

// Holdings reports every open position and refreshes the account equity.
func (b *AlpacaBroker) Holdings(ctx context.Context, s domain.Session, sink report.Sink) error {
	as, ok := s.(*alpacaSession)
	if !ok {
		return fmt.Errorf("alpaca: unexpected session type %T", s)
	}
	positions, err := as.client.GetPositions()
	if err != nil {
		return fmt.Errorf("getting positions: %w", err)
	}

	held := make(map[string]decimal.Decimal, len(positions))
	for _, p := range positions {
		held[p.Symbol] = p.Qty
		sink.Report(ctx, fmt.Sprintf("Alpaca %s: %s %s", as.account, p.Symbol, p.Qty.String()))
	}
	if len(positions) == 0 {
		sink.Report(ctx, fmt.Sprintf("Alpaca %s: no positions", as.account))
	}
	return as.refresh(held)
}

// Transaction places a market day order, or reports what would have been
// placed when the order is a dry run.
func (b *AlpacaBroker) Transaction(ctx context.Context, s domain.Session, o *domain.Order, sink report.Sink) error {
	as, ok := s.(*alpacaSession)
	if !ok {
		return fmt.Errorf("alpaca: unexpected session type %T", s)
	}
	if o.DryRun {
		sink.Report(ctx, fmt.Sprintf("Alpaca %s: Running in DRY mode. Transaction would've been: %s %s of %s",
			as.account, o.Action, o.Amount.String(), o.Ticker))
		return nil
	}

	qty := o.Amount
	placed, err := as.client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      o.Ticker,
		Qty:         &qty,
		Side:        alpaca.Side(o.Action),
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	})
	if err != nil {
		sink.Report(ctx, fmt.Sprintf("Alpaca %s: Error submitting order: %v", as.account, err))
		return fmt.Errorf("placing order: %w", err)
	}
	sink.Report(ctx, fmt.Sprintf("Alpaca %s: %s %s of %s: %s",
		as.account, o.Action, o.Amount.String(), o.Ticker, placed.Status))
	return as.refresh(nil)
}
