package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"autorsa/internal/api"
	"autorsa/internal/app"
	"autorsa/internal/config"
	"autorsa/internal/engine"
	"autorsa/internal/report"
	"autorsa/internal/util"
)

func main() {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("autorsa-server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Progress messages go to stdout, connected WebSocket clients, and the
	// chat webhook when one is configured.
	hub := report.NewHub(logger)
	sinks := report.Multi{report.NewConsole(os.Stdout, logger), hub}
	if cfg.Reporting.WebhookURL != "" {
		sinks = append(sinks, report.NewWebhook(report.WebhookConfig{
			URL:        cfg.Reporting.WebhookURL,
			Timeout:    time.Duration(cfg.Reporting.WebhookTimeoutSec) * time.Second,
			RatePerMin: cfg.Reporting.WebhookRatePerMin,
		}, logger))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(cfg, sinks, reg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	queue := engine.NewQueue(a.Dispatcher, cfg.Server.QueueSize, logger)

	deps := api.Deps{
		Validator: a.Dispatcher,
		Risk:      a.Risk,
		Queue:     queue,
		Hub:       hub,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	if a.Journal != nil {
		deps.Journal = a.Journal
	}
	srv := api.NewServer(cfg, deps, logger)

	httpLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listening for HTTP: %w", err)
	}
	grpcLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("listening for gRPC: %w", err)
	}

	logger.Info("autorsa-server starting",
		"http", httpLn.Addr().String(),
		"grpc", grpcLn.Addr().String(),
		"default_brokers", cfg.Brokers.Default,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return queue.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx, httpLn) })
	g.Go(func() error { return srv.ServeGRPC(gctx, grpcLn) })

	err = g.Wait()
	logger.Info("autorsa-server stopped")
	return err
}
