package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/prosegate/prosegate/internal/domain"
)

// QueuedEntry is a usage entry pulled off the retry queue, with the
// receipt needed to acknowledge it.
type QueuedEntry struct {
	Entry   domain.UsageEntry
	Receipt string
}

// RetrySource is the consuming side of the retry queue.
type RetrySource interface {
	Receive(ctx context.Context, maxEntries int) ([]QueuedEntry, error)
	Delete(ctx context.Context, receipt string) error
}

// RetryWorker drains the retry queue in the background, re-applying
// failed ledger writes. Entries that fail again stay on the queue and
// come back on a later poll.
type RetryWorker struct {
	finalizer *Finalizer
	source    RetrySource
	interval  time.Duration
}

func NewRetryWorker(finalizer *Finalizer, source RetrySource, interval time.Duration) *RetryWorker {
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &RetryWorker{
		finalizer: finalizer,
		source:    source,
		interval:  interval,
	}
}

// Run polls until ctx is cancelled.
func (w *RetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *RetryWorker) drain(ctx context.Context) {
	queued, err := w.source.Receive(ctx, 10)
	if err != nil {
		slog.Error("billing retry receive failed", "error", err)
		return
	}

	for _, q := range queued {
		if err := w.finalizer.Apply(ctx, q.Entry); err != nil {
			slog.Warn("billing retry failed, will retry later",
				"request_id", q.Entry.RequestID,
				"error", err,
			)
			continue
		}
		if err := w.source.Delete(ctx, q.Receipt); err != nil {
			slog.Error("billing retry ack failed", "receipt", q.Receipt, "error", err)
		}
	}
}
