package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"autorsa/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ OrderJournal = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id         TEXT    NOT NULL,
	phase      TEXT    NOT NULL,
	action     TEXT    NOT NULL,
	amount     TEXT    NOT NULL,
	ticker     TEXT    NOT NULL,
	brokers    TEXT    NOT NULL,
	excluded   TEXT    NOT NULL DEFAULT '',
	dry_run    INTEGER NOT NULL,
	total      TEXT    NOT NULL,
	created_at INTEGER NOT NULL,
	started    INTEGER NOT NULL,
	finished   INTEGER NOT NULL,
	PRIMARY KEY (id, phase)
);
CREATE INDEX IF NOT EXISTS orders_finished ON orders (finished);
CREATE TABLE IF NOT EXISTS order_results (
	order_id TEXT    NOT NULL,
	phase    TEXT    NOT NULL,
	seq      INTEGER NOT NULL,
	broker   TEXT    NOT NULL,
	status   TEXT    NOT NULL,
	total    TEXT    NOT NULL,
	error    TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (order_id, phase, seq)
);`

// SQLiteStore is the order journal backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and creates
// the journal tables if they do not exist yet.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps writers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record stores the order and its per-broker results in one transaction.
func (s *SQLiteStore) Record(ctx context.Context, o *domain.Order, out *domain.Outcome) (err error) {
	rec := NewOrderRecord(o, out)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO orders
		(id, phase, action, amount, ticker, brokers, excluded, dry_run, total, created_at, started, finished)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Phase, rec.Action, rec.Amount, rec.Ticker,
		strings.Join(rec.Brokers, ","), strings.Join(rec.Excluded, ","),
		rec.DryRun, rec.Total,
		rec.CreatedAt.UnixMilli(), rec.Started.UnixMilli(), rec.Finished.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting order %s: %w", rec.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM order_results WHERE order_id = ? AND phase = ?`,
		rec.ID, rec.Phase); err != nil {
		return fmt.Errorf("clearing results for %s: %w", rec.ID, err)
	}
	for i, r := range rec.Results {
		_, err = tx.ExecContext(ctx, `INSERT INTO order_results
			(order_id, phase, seq, broker, status, total, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Phase, i, r.Broker, r.Status, r.Total, r.Error)
		if err != nil {
			return fmt.Errorf("inserting result %s/%s: %w", rec.ID, r.Broker, err)
		}
	}
	return tx.Commit()
}

// GetOrder returns every recorded phase of an order.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) ([]OrderRecord, error) {
	recs, err := s.query(ctx, `SELECT id, phase, action, amount, ticker, brokers, excluded,
		dry_run, total, created_at, started, finished
		FROM orders WHERE id = ? ORDER BY started`, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs, nil
}

// ListOrders returns the most recent journal entries, newest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, limit int) ([]OrderRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(ctx, `SELECT id, phase, action, amount, ticker, brokers, excluded,
		dry_run, total, created_at, started, finished
		FROM orders ORDER BY finished DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]OrderRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []OrderRecord
	for rows.Next() {
		var (
			rec                        OrderRecord
			brokers, excluded          string
			created, started, finished int64
		)
		if err := rows.Scan(&rec.ID, &rec.Phase, &rec.Action, &rec.Amount, &rec.Ticker,
			&brokers, &excluded, &rec.DryRun, &rec.Total, &created, &started, &finished); err != nil {
			return nil, err
		}
		rec.Brokers = splitList(brokers)
		rec.Excluded = splitList(excluded)
		rec.CreatedAt = time.UnixMilli(created).UTC()
		rec.Started = time.UnixMilli(started).UTC()
		rec.Finished = time.UnixMilli(finished).UTC()
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range recs {
		results, err := s.results(ctx, recs[i].ID, recs[i].Phase)
		if err != nil {
			return nil, err
		}
		recs[i].Results = results
	}
	return recs, nil
}

func (s *SQLiteStore) results(ctx context.Context, id, phase string) ([]ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT broker, status, total, error
		FROM order_results WHERE order_id = ? AND phase = ? ORDER BY seq`, id, phase)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResultRecord
	for rows.Next() {
		var r ResultRecord
		if err := rows.Scan(&r.Broker, &r.Status, &r.Total, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ErrNotFound is returned by GetOrder for an order that was never journaled.
var ErrNotFound = errors.New("order not found")

// IsNotFound reports whether err means the requested order does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
