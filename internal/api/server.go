// Package api exposes the order orchestrator over HTTP and gRPC. Both
// surfaces validate a request, queue it for dispatch and return at once.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"autorsa/internal/broker"
	"autorsa/internal/config"
	"autorsa/internal/domain"
	"autorsa/internal/engine"
	"autorsa/internal/store"
)

// OrderValidator checks an order at a validation checkpoint.
type OrderValidator interface {
	Validate(o *domain.Order, cp domain.Checkpoint) error
}

// Submitter queues an order for asynchronous dispatch.
type Submitter interface {
	Submit(o *domain.Order, phase domain.Phase) error
}

// Deps are the collaborators of a Server. Journal, Hub and Metrics are
// optional; their routes are not registered when nil.
type Deps struct {
	Validator OrderValidator
	Risk      *engine.RiskManager
	Queue     Submitter
	Journal   store.OrderJournal
	Hub       http.Handler
	Metrics   http.Handler
}

// Server is the control-plane endpoint.
type Server struct {
	cfg  *config.Config
	deps Deps
	log  *slog.Logger
}

// NewServer creates a new Server configured from the given Config.
func NewServer(cfg *config.Config, deps Deps, log *slog.Logger) *Server {
	return &Server{
		cfg:  cfg,
		deps: deps,
		log:  log.With("component", "api"),
	}
}

// OrderRequest is the body accepted by POST / and the gRPC Submit call.
// Dry defaults to true when omitted.
//
// An accepted request gets 200 "OK". A request that fails validation or the
// risk guard gets 422 Unprocessable Entity with the validation message as
// the body, and gRPC callers get codes.InvalidArgument. A malformed body is
// 400 and a full dispatch queue is 503 (codes.ResourceExhausted).
type OrderRequest struct {
	Action string          `json:"action"`
	Amount decimal.Decimal `json:"amount"`
	Stock  string          `json:"stock"`
	Dry    *bool           `json:"dry"`
}

// submit builds the order against the default broker set, with aliases
// resolved so journals record canonical names, validates it and
// queues a transaction dispatch. Validation failures are returned as
// *domain.ValidationError; a full queue as engine.ErrQueueFull.
func (s *Server) submit(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	dry := true
	if req.Dry != nil {
		dry = *req.Dry
	}
	o := domain.NewOrder(domain.Action(req.Action), req.Amount, req.Stock,
		broker.ResolveAll(s.cfg.Brokers.Default), dry)
	o.Exclude(broker.ResolveAll(s.cfg.Brokers.Excluded)...)

	if err := s.deps.Validator.Validate(o, domain.PreLogin); err != nil {
		return nil, err
	}
	if err := s.deps.Risk.CheckOrder(ctx, o); err != nil {
		return nil, err
	}
	if err := s.deps.Queue.Submit(o, domain.PhaseTransaction); err != nil {
		return nil, err
	}
	s.log.Info("order accepted", "order", o)
	return o, nil
}

// ListenAndServe serves the HTTP handler on ln until ctx is cancelled, then
// shuts the server down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", ln.Addr().String())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
