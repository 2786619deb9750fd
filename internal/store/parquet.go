package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"autorsa/internal/domain"
)

// Compile-time interface check.
var _ HoldingsArchive = (*ParquetStore)(nil)

// ParquetStore archives holdings snapshots as Parquet files on disk, one file
// per UTC day.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// HoldingRecord is the Parquet schema for one archived row. An account row
// has an empty Symbol and carries the account total; a position row carries
// the symbol and quantity.
type HoldingRecord struct {
	OrderID   string  `parquet:"order_id"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Broker    string  `parquet:"broker"`
	Account   string  `parquet:"account"`
	Symbol    string  `parquet:"symbol"`
	Quantity  float64 `parquet:"quantity"`
	Total     float64 `parquet:"total"`
}

// Record archives the holdings of every broker that completed a holdings
// dispatch. Transaction outcomes are ignored.
//
//	<DataDir>/holdings/<YYYY-MM-DD>.parquet
func (s *ParquetStore) Record(_ context.Context, o *domain.Order, out *domain.Outcome) error {
	if out.Phase != domain.PhaseHoldings {
		return nil
	}
	ts := out.Finished.UnixMilli()

	var records []HoldingRecord
	for _, r := range out.Results {
		if r.Status != domain.ResultOK {
			continue
		}
		sess := o.LoggedIn(r.Broker)
		if sess == nil {
			continue
		}
		for _, acct := range sortedAccounts(sess.AccountTotals()) {
			a := sess.AccountTotals()[acct]
			records = append(records, HoldingRecord{
				OrderID:   o.ID,
				Timestamp: ts,
				Broker:    r.Broker,
				Account:   acct,
				Total:     a.Total.InexactFloat64(),
			})
			for sym, qty := range a.Positions {
				records = append(records, HoldingRecord{
					OrderID:   o.ID,
					Timestamp: ts,
					Broker:    r.Broker,
					Account:   acct,
					Symbol:    sym,
					Quantity:  qty.InexactFloat64(),
				})
			}
		}
	}
	if len(records) == 0 {
		return nil
	}

	path := s.holdingsPath(out.Finished)
	existing, err := readParquetFile[HoldingRecord](path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := writeParquetFile(path, mergeHoldingRecords(existing, records)); err != nil {
		return fmt.Errorf("writing holdings for %s: %w", o.ID, err)
	}
	return nil
}

// ReadHoldings returns the rows archived on day. A day with no archive file
// yields no rows and no error.
func (s *ParquetStore) ReadHoldings(_ context.Context, day time.Time) ([]HoldingRecord, error) {
	records, err := readParquetFile[HoldingRecord](s.holdingsPath(day))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return records, err
}

// holdingsPath returns the archive file for the UTC day containing t.
func (s *ParquetStore) holdingsPath(t time.Time) string {
	return filepath.Join(s.DataDir, "holdings", t.UTC().Format("2006-01-02")+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeHoldingRecords deduplicates rows by (order, broker, account, symbol),
// preferring incoming rows. Results are sorted by timestamp, then broker.
func mergeHoldingRecords(existing, incoming []HoldingRecord) []HoldingRecord {
	type key struct {
		order, broker, account, symbol string
	}
	seen := make(map[key]HoldingRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.OrderID, r.Broker, r.Account, r.Symbol}] = r
	}
	for _, r := range incoming {
		seen[key{r.OrderID, r.Broker, r.Account, r.Symbol}] = r
	}

	merged := make([]HoldingRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.Broker != b.Broker {
			return a.Broker < b.Broker
		}
		if a.Account != b.Account {
			return a.Account < b.Account
		}
		return a.Symbol < b.Symbol
	})
	return merged
}

func sortedAccounts(totals map[string]domain.Account) []string {
	out := make([]string, 0, len(totals))
	for k := range totals {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
