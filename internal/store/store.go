// Package store persists dispatch outcomes: an order journal for auditing
// what was sent to which broker, and a holdings archive of account values.
package store

import (
	"context"
	"time"

	"autorsa/internal/domain"
)

// OrderJournal persists one row per dispatch and reads them back.
type OrderJournal interface {
	// Record stores the order snapshot and its outcome. Recording the same
	// order and phase twice replaces the earlier entry.
	Record(ctx context.Context, o *domain.Order, out *domain.Outcome) error

	// GetOrder returns every recorded phase of the order with the given ID.
	GetOrder(ctx context.Context, id string) ([]OrderRecord, error)

	// ListOrders returns the most recent entries, newest first, up to limit.
	ListOrders(ctx context.Context, limit int) ([]OrderRecord, error)
}

// HoldingsArchive keeps account values reported by holdings dispatches.
type HoldingsArchive interface {
	// Record appends the holdings of every broker that succeeded.
	Record(ctx context.Context, o *domain.Order, out *domain.Outcome) error

	// ReadHoldings returns the rows archived on the given UTC day.
	ReadHoldings(ctx context.Context, day time.Time) ([]HoldingRecord, error)
}

// OrderRecord is the journaled form of one dispatch.
type OrderRecord struct {
	ID        string         `json:"id"`
	Phase     string         `json:"phase"`
	Action    string         `json:"action"`
	Amount    string         `json:"amount"`
	Ticker    string         `json:"ticker"`
	Brokers   []string       `json:"brokers"`
	Excluded  []string       `json:"excluded,omitempty"`
	DryRun    bool           `json:"dry"`
	Total     string         `json:"total"`
	CreatedAt time.Time      `json:"created_at"`
	Started   time.Time      `json:"started"`
	Finished  time.Time      `json:"finished"`
	Results   []ResultRecord `json:"results"`
}

// ResultRecord is the journaled form of one broker's result.
type ResultRecord struct {
	Broker string `json:"broker"`
	Status string `json:"status"`
	Total  string `json:"total"`
	Error  string `json:"error,omitempty"`
}

// NewOrderRecord snapshots an order and its outcome.
func NewOrderRecord(o *domain.Order, out *domain.Outcome) OrderRecord {
	rec := OrderRecord{
		ID:        o.ID,
		Phase:     string(out.Phase),
		Action:    string(o.Action),
		Amount:    o.Amount.String(),
		Ticker:    o.Ticker,
		Brokers:   o.Brokers,
		Excluded:  o.Excluded,
		DryRun:    o.DryRun,
		Total:     out.Total.StringFixed(2),
		CreatedAt: o.CreatedAt,
		Started:   out.Started,
		Finished:  out.Finished,
	}
	for _, r := range out.Results {
		rr := ResultRecord{
			Broker: r.Broker,
			Status: string(r.Status),
			Total:  r.Total.StringFixed(2),
		}
		if r.Err != nil {
			rr.Error = r.Err.Error()
		}
		rec.Results = append(rec.Results, rr)
	}
	return rec
}
