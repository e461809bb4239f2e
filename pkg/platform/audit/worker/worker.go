// Package worker relays audit outbox entries to Kafka.
package worker

import (
	"context"
	"log/slog"
	"time"

	"scholarship/pkg/platform/audit/store/postgres"
)

// Outbox is the claim-and-mark side of the transactional outbox.
type Outbox interface {
	Relay(ctx context.Context, limit int, publish func(ctx context.Context, entries []postgres.OutboxEntry) error) (int, error)
}

// Sink publishes a batch of outbox entries.
type Sink interface {
	PublishOutbox(ctx context.Context, entries []postgres.OutboxEntry) error
}

// Worker polls the outbox on an interval and forwards entries to the sink.
type Worker struct {
	outbox    Outbox
	sink      Sink
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func NewWorker(outbox Outbox, sink Sink, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		outbox:    outbox,
		sink:      sink,
		logger:    logger,
		interval:  time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled. Relay errors are logged and retried on
// the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick drains the outbox until a batch comes back short.
func (w *Worker) Tick(ctx context.Context) int {
	total := 0
	for {
		n, err := w.outbox.Relay(ctx, w.batchSize, w.sink.PublishOutbox)
		if err != nil {
			w.logger.ErrorContext(ctx, "outbox relay failed", "error", err, "relayed", total)
			return total
		}
		total += n
		if n < w.batchSize {
			return total
		}
	}
}
