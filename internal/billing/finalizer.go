// Package billing settles a completed rewrite against the caller's
// credit ledger. Finalization happens after the response has already
// been delivered, so nothing here may ever reach the caller: failures
// are logged, optionally queued for retry, and swallowed.
package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prosegate/prosegate/internal/domain"
	"github.com/prosegate/prosegate/internal/metrics"
	"github.com/prosegate/prosegate/internal/repository"
)

// RetryQueue receives usage entries whose ledger write failed, for a
// best-effort background retry.
type RetryQueue interface {
	Enqueue(ctx context.Context, entry domain.UsageEntry) error
}

// Finalizer bills completed rewrites. Cost is the word count of the
// generated output; input length and processing time do not factor in.
type Finalizer struct {
	ledger  repository.Ledger
	monitor *CreditMonitor
	retry   RetryQueue
	timeout time.Duration
}

type FinalizerConfig struct {
	Ledger  repository.Ledger
	Monitor *CreditMonitor // optional
	Retry   RetryQueue     // optional
	Timeout time.Duration
}

func NewFinalizer(cfg FinalizerConfig) *Finalizer {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Finalizer{
		ledger:  cfg.Ledger,
		monitor: cfg.Monitor,
		retry:   cfg.Retry,
		timeout: timeout,
	}
}

// Finalize settles one completed outcome. The outcome must have seen a
// clean end-of-stream; partial generations are never billed.
func (f *Finalizer) Finalize(ctx context.Context, accountID, requestID string, outcome *domain.RewriteOutcome) error {
	entry := domain.UsageEntry{
		AccountID: accountID,
		RequestID: requestID,
		ModelID:   outcome.ModelID,
		WordCount: outcome.WordCount,
		Title:     outcome.Title,
		CreatedAt: time.Now().UTC(),
	}
	return f.Apply(ctx, entry)
}

// Apply performs the ledger transaction for a usage entry. Also the
// entry point for the retry worker.
func (f *Finalizer) Apply(ctx context.Context, entry domain.UsageEntry) error {
	cost := int64(entry.WordCount)

	result, err := f.ledger.Debit(ctx, entry.AccountID, cost, entry)
	if errors.Is(err, domain.ErrAccountNotFound) {
		slog.Error("billing aborted: unknown account",
			"account_id", entry.AccountID,
			"request_id", entry.RequestID,
		)
		return err
	}
	if err != nil {
		return err
	}

	if result.Charged {
		metrics.RecordBilledWords(entry.AccountID, entry.ModelID, entry.WordCount)
		slog.Info("usage billed",
			"account_id", entry.AccountID,
			"request_id", entry.RequestID,
			"model_id", entry.ModelID,
			"word_count", entry.WordCount,
			"balance", result.NewBalance,
		)
	} else {
		metrics.RecordUnderfundedCompletion(entry.AccountID)
		slog.Warn("under-funded completion recorded",
			"account_id", entry.AccountID,
			"request_id", entry.RequestID,
			"word_count", entry.WordCount,
			"balance", result.NewBalance,
		)
	}

	if f.monitor != nil {
		f.monitor.Observe(ctx, entry.AccountID, result.NewBalance, !result.Charged)
	}

	return nil
}

// FinalizeDetached runs Finalize on its own goroutine with a fresh
// context, decoupled from the request that produced the outcome. Errors
// stop at this boundary: they are logged and, when a retry queue is
// configured, re-enqueued.
func (f *Finalizer) FinalizeDetached(accountID, requestID string, outcome *domain.RewriteOutcome) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()

		err := f.Finalize(ctx, accountID, requestID, outcome)
		if err == nil || errors.Is(err, domain.ErrAccountNotFound) {
			return
		}

		slog.Error("billing failed",
			"account_id", accountID,
			"request_id", requestID,
			"error", err,
		)

		if f.retry == nil {
			return
		}

		entry := domain.UsageEntry{
			AccountID: accountID,
			RequestID: requestID,
			ModelID:   outcome.ModelID,
			WordCount: outcome.WordCount,
			Title:     outcome.Title,
			CreatedAt: time.Now().UTC(),
		}
		if qerr := f.retry.Enqueue(ctx, entry); qerr != nil {
			slog.Error("billing retry enqueue failed",
				"request_id", requestID,
				"error", qerr,
			)
		}
	}()
}
