package engine

import (
	"context"
	"log/slog"

	"autorsa/internal/domain"
)

// OrderDispatcher is the part of *Dispatcher the queue needs.
type OrderDispatcher interface {
	Dispatch(ctx context.Context, o *domain.Order, phase domain.Phase) (*domain.Outcome, error)
}

// Job is one queued dispatch.
type Job struct {
	Order *domain.Order
	Phase domain.Phase
}

// Queue runs submitted orders one after another on a single worker, so two
// asynchronous requests never drive broker sessions at the same time.
type Queue struct {
	jobs       chan Job
	dispatcher OrderDispatcher
	log        *slog.Logger
}

// NewQueue creates a queue holding up to size pending jobs.
func NewQueue(d OrderDispatcher, size int, log *slog.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		jobs:       make(chan Job, size),
		dispatcher: d,
		log:        log.With("component", "queue"),
	}
}

// Submit enqueues a dispatch without blocking. It returns ErrQueueFull when
// the backlog is full.
func (q *Queue) Submit(o *domain.Order, phase domain.Phase) error {
	if !phase.Valid() {
		return ErrInvalidPhase
	}
	select {
	case q.jobs <- Job{Order: o, Phase: phase}:
		q.log.Info("order queued", "order_id", o.ID, "phase", phase, "pending", len(q.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Run executes queued jobs until ctx is cancelled. A job already running
// when ctx is cancelled sees the cancellation through its context.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-q.jobs:
			if _, err := q.dispatcher.Dispatch(ctx, job.Order, job.Phase); err != nil {
				q.log.Error("dispatch failed", "order_id", job.Order.ID, "error", err)
			}
		}
	}
}
