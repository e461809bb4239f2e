package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"scholarship/pkg/platform/audit/store/postgres"
)

type fakeOutbox struct {
	pending []postgres.OutboxEntry
}

func (f *fakeOutbox) Relay(ctx context.Context, limit int, publish func(context.Context, []postgres.OutboxEntry) error) (int, error) {
	n := min(limit, len(f.pending))
	if n == 0 {
		return 0, nil
	}
	batch := f.pending[:n]
	if err := publish(ctx, batch); err != nil {
		return 0, err
	}
	f.pending = f.pending[n:]
	return n, nil
}

type fakeSink struct {
	published int
	err       error
}

func (s *fakeSink) PublishOutbox(_ context.Context, entries []postgres.OutboxEntry) error {
	if s.err != nil {
		return s.err
	}
	s.published += len(entries)
	return nil
}

func entries(n int) []postgres.OutboxEntry {
	out := make([]postgres.OutboxEntry, n)
	for i := range out {
		out[i] = postgres.OutboxEntry{ID: uuid.New(), EventType: "application_submitted"}
	}
	return out
}

func TestWorker_TickDrainsAllBatches(t *testing.T) {
	outbox := &fakeOutbox{pending: entries(25)}
	sink := &fakeSink{}
	w := NewWorker(outbox, sink, slog.New(slog.NewTextHandler(io.Discard, nil)), WithBatchSize(10))

	assert.Equal(t, 25, w.Tick(context.Background()))
	assert.Equal(t, 25, sink.published)
	assert.Empty(t, outbox.pending)
}

func TestWorker_TickKeepsEntriesOnSinkFailure(t *testing.T) {
	outbox := &fakeOutbox{pending: entries(3)}
	sink := &fakeSink{err: errors.New("broker down")}
	w := NewWorker(outbox, sink, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, 0, w.Tick(context.Background()))
	assert.Len(t, outbox.pending, 3)
}
