// Package app assembles the orchestrator from configuration: broker
// registry, isolator, dispatcher, risk guard, stores and metrics. Both
// binaries build on it.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"autorsa/internal/broker"
	"autorsa/internal/config"
	"autorsa/internal/engine"
	"autorsa/internal/isolate"
	"autorsa/internal/report"
	"autorsa/internal/store"
	"autorsa/internal/util"
)

// App holds the assembled components.
type App struct {
	Config     *config.Config
	Registry   *broker.Registry
	Dispatcher *engine.Dispatcher
	Risk       *engine.RiskManager
	Journal    *store.SQLiteStore // nil when storage.sqlite_path is empty
	Archive    *store.ParquetStore
	Metrics    *engine.Metrics
}

// New builds an App. sink receives every progress message; reg, when
// non-nil, receives the dispatch metrics.
func New(cfg *config.Config, sink report.Sink, reg prometheus.Registerer, log *slog.Logger) (*App, error) {
	registry, err := NewRegistry(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Registry: registry,
		Risk:     engine.NewRiskManager(decimal.NewFromFloat(cfg.Trading.MaxAmount), cfg.Mode.Danger),
	}
	if reg != nil {
		a.Metrics = engine.NewMetrics(reg)
	}

	var journals []engine.Journal
	if p := cfg.Storage.SQLitePath; p != "" {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
		a.Journal, err = store.NewSQLiteStore(p)
		if err != nil {
			return nil, fmt.Errorf("opening order journal: %w", err)
		}
		journals = append(journals, a.Journal)
	}
	if d := cfg.Storage.DataDir; d != "" {
		a.Archive = store.NewParquetStore(d)
		journals = append(journals, a.Archive)
	}

	a.Dispatcher = engine.NewDispatcher(registry, isolate.New(log), sink, log, engine.Options{
		Container: cfg.Mode.Container,
		Calendar:  util.NewTradingCalendar(),
		Journals:  journals,
		Metrics:   a.Metrics,
	})

	log.Info("orchestrator ready",
		"brokers", registry.Names(),
		"container", cfg.Mode.Container,
		"danger", cfg.Mode.Danger,
		"journal", cfg.Storage.SQLitePath,
	)
	return a, nil
}

// Close releases the stores.
func (a *App) Close() error {
	if a.Journal != nil {
		return a.Journal.Close()
	}
	return nil
}

// NewRegistry registers the integrations enabled in cfg.
func NewRegistry(cfg *config.Config, log *slog.Logger) (*broker.Registry, error) {
	r := broker.NewRegistry()

	if cfg.Paper.Enabled {
		prices := make(map[string]decimal.Decimal, len(cfg.Paper.Prices))
		for t, p := range cfg.Paper.Prices {
			prices[t] = decimal.NewFromFloat(p)
		}
		paper := broker.NewPaperBroker(broker.PaperConfig{
			Accounts:     cfg.Paper.Accounts,
			StartingCash: decimal.NewFromFloat(cfg.Paper.StartingCash),
			Prices:       prices,
			DefaultPrice: decimal.NewFromFloat(cfg.Paper.DefaultPrice),
			Isolated:     cfg.Paper.Isolated,
		})
		r.MustRegister(paper.Descriptor())
	}

	if cfg.Alpaca.Enabled() {
		alpaca := broker.NewAlpacaBroker(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
		r.MustRegister(alpaca.Descriptor())
	} else {
		log.Debug("alpaca credentials not set, alpaca disabled")
	}

	if len(r.Names()) == 0 {
		return nil, errors.New("no broker integrations enabled")
	}
	return r, nil
}
