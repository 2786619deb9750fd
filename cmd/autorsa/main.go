package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"autorsa/internal/app"
	"autorsa/internal/command"
	"autorsa/internal/config"
	"autorsa/internal/domain"
	"autorsa/internal/report"
	"autorsa/internal/util"
	"autorsa/pkg/autorsa"
)

const version = "0.1.0"

func main() {
	remote := flag.String("remote", "", "submit to an autorsa-server at this URL instead of running locally")
	cfgPath := flag.String("config", config.Path(), "path to the YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: autorsa [options] <command>\n\n")
		fmt.Fprintf(os.Stderr, "%s\n\n", command.Usage)
		fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}
	if args[0] == "version" {
		fmt.Printf("autorsa %s\n", version)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	if *remote != "" {
		err = runRemote(ctx, *remote, args)
	} else {
		err = runLocal(ctx, *cfgPath, args)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, command.ErrUsage) {
			flag.Usage()
		}
		os.Exit(1)
	}
}

func runLocal(ctx context.Context, cfgPath string, args []string) error {
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// Logs go to stderr so stdout carries only the report.
	logger := util.NewLoggerTo(os.Stderr, cfg.Logging.Level, "text")
	util.SetDefault(logger)

	var sink report.Sink = report.NewConsole(os.Stdout, logger)
	if os.Getenv("NO_COLOR") == "" {
		sink = &styledConsole{w: os.Stdout}
	}
	a, err := app.New(cfg, sink, nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	cmd, err := command.Parse(args, command.Options{})
	if err != nil {
		return err
	}
	if err := a.Dispatcher.Validate(cmd.Order, domain.PreLogin); err != nil {
		return err
	}
	if err := a.Risk.CheckOrder(ctx, cmd.Order); err != nil {
		return err
	}

	out, err := a.Dispatcher.Dispatch(ctx, cmd.Order, cmd.Phase)
	if err != nil {
		return err
	}
	if failed := out.Failed(); len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "failed brokers: %s\n", strings.Join(failed, ", "))
	}
	return nil
}

// runRemote submits a transaction to a server, which runs it against its own
// default broker set.
func runRemote(ctx context.Context, url string, args []string) error {
	cmd, err := command.Parse(args, command.Options{})
	if err != nil {
		return err
	}
	if cmd.Phase != domain.PhaseTransaction {
		return fmt.Errorf("%w: only buy and sell can be sent to a server", command.ErrUsage)
	}

	o := cmd.Order
	err = autorsa.NewClient(url).Submit(ctx, autorsa.Order{
		Action: string(o.Action),
		Amount: o.Amount,
		Stock:  o.Ticker,
		Dry:    o.DryRun,
	})
	if err != nil {
		return err
	}
	fmt.Printf("OK: %s %s %s queued on %s (server default brokers)\n", o.Action, o.Amount, o.Ticker, url)
	return nil
}
