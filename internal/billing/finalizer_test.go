package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prosegate/prosegate/internal/domain"
	"github.com/prosegate/prosegate/internal/repository"
)

func completedOutcome(t *testing.T, text, modelID, title string) *domain.RewriteOutcome {
	t.Helper()
	outcome := domain.NewRewriteOutcome(modelID)
	outcome.Append(text)
	outcome.Complete(title)
	return outcome
}

func TestFinalize_DebitsAndLogs(t *testing.T) {
	ledger := repository.NewInMemoryLedger()
	ledger.SetBalance("acct", 40)
	f := NewFinalizer(FinalizerConfig{Ledger: ledger})

	// 25 words.
	outcome := completedOutcome(t,
		"one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty a b c d e",
		"gpt-4o-mini", "Grammar rewrite")

	if outcome.WordCount != 25 {
		t.Fatalf("fixture word count = %d, want 25", outcome.WordCount)
	}

	if err := f.Finalize(context.Background(), "acct", "req-1", outcome); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	balance, _ := ledger.Balance(context.Background(), "acct")
	if balance != 15 {
		t.Errorf("balance = %d, want 15", balance)
	}

	entries := ledger.Entries()
	if len(entries) != 1 {
		t.Fatalf("usage entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.WordCount != 25 || e.ModelID != "gpt-4o-mini" || e.Title != "Grammar rewrite" || e.Underfunded {
		t.Errorf("entry = %+v", e)
	}
}

func TestFinalize_UnderfundedCompletion(t *testing.T) {
	ledger := repository.NewInMemoryLedger()
	ledger.SetBalance("acct", 10)
	f := NewFinalizer(FinalizerConfig{Ledger: ledger})

	outcome := completedOutcome(t,
		"one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty a b c d e",
		"m", "t")

	if err := f.Finalize(context.Background(), "acct", "req-1", outcome); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	balance, _ := ledger.Balance(context.Background(), "acct")
	if balance != 10 {
		t.Errorf("balance = %d, want 10 (never driven negative)", balance)
	}

	entries := ledger.Entries()
	if len(entries) != 1 {
		t.Fatalf("usage entries = %d, want 1", len(entries))
	}
	if !entries[0].Underfunded {
		t.Error("entry should be tagged under-funded")
	}
}

func TestFinalize_UnknownAccount(t *testing.T) {
	ledger := repository.NewInMemoryLedger()
	f := NewFinalizer(FinalizerConfig{Ledger: ledger})

	outcome := completedOutcome(t, "some words here", "m", "t")

	err := f.Finalize(context.Background(), "ghost", "req-1", outcome)
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("Finalize() error = %v, want ErrAccountNotFound", err)
	}
	if len(ledger.Entries()) != 0 {
		t.Error("unknown account must leave no side effects")
	}
}

type failingLedger struct {
	repository.Ledger
}

func (failingLedger) Debit(ctx context.Context, accountID string, cost int64, entry domain.UsageEntry) (repository.DebitResult, error) {
	return repository.DebitResult{}, errors.New("ledger unreachable")
}

type recordingQueue struct {
	mu      sync.Mutex
	entries []domain.UsageEntry
}

func (q *recordingQueue) Enqueue(ctx context.Context, entry domain.UsageEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entry)
	return nil
}

func (q *recordingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func TestFinalizeDetached_EnqueuesRetryOnLedgerFailure(t *testing.T) {
	queue := &recordingQueue{}
	f := NewFinalizer(FinalizerConfig{
		Ledger: failingLedger{},
		Retry:  queue,
	})

	outcome := completedOutcome(t, "hello world", "m", "t")
	f.FinalizeDetached("acct", "req-1", outcome)

	deadline := time.Now().Add(2 * time.Second)
	for queue.len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if queue.len() != 1 {
		t.Fatalf("retry queue entries = %d, want 1", queue.len())
	}
}

func TestCreditMonitor_Thresholds(t *testing.T) {
	m := NewCreditMonitor(100)
	ctx := context.Background()

	var mu sync.Mutex
	var alerts []Alert
	m.OnAlert(func(ctx context.Context, a Alert) {
		mu.Lock()
		alerts = append(alerts, a)
		mu.Unlock()
	})

	m.Observe(ctx, "acct", 500, false) // healthy, no alert
	m.Observe(ctx, "acct", 50, false)  // low
	m.Observe(ctx, "acct", 40, false)  // still low, deduplicated
	m.Observe(ctx, "acct", 0, false)   // exhausted
	m.Observe(ctx, "acct", 5, true)    // underfunded completion

	mu.Lock()
	defer mu.Unlock()

	want := []AlertLevel{AlertLevelLow, AlertLevelExhausted, AlertLevelUnderfunded}
	if len(alerts) != len(want) {
		t.Fatalf("alerts = %d, want %d (%+v)", len(alerts), len(want), alerts)
	}
	for i, level := range want {
		if alerts[i].Level != level {
			t.Errorf("alert %d level = %s, want %s", i, alerts[i].Level, level)
		}
	}
}

func TestCreditMonitor_ReArmsAfterRecovery(t *testing.T) {
	m := NewCreditMonitor(100)
	ctx := context.Background()

	count := 0
	m.OnAlert(func(ctx context.Context, a Alert) { count++ })

	m.Observe(ctx, "acct", 50, false)  // low → alert
	m.Observe(ctx, "acct", 500, false) // recovered
	m.Observe(ctx, "acct", 50, false)  // low again → alert again

	if count != 2 {
		t.Errorf("alert count = %d, want 2", count)
	}
}

func TestRetryWorker_DrainAppliesAndAcks(t *testing.T) {
	ledger := repository.NewInMemoryLedger()
	ledger.SetBalance("acct", 100)
	f := NewFinalizer(FinalizerConfig{Ledger: ledger})

	source := &fakeSource{
		queued: []QueuedEntry{{
			Entry: domain.UsageEntry{
				AccountID: "acct",
				RequestID: "req-1",
				ModelID:   "m",
				WordCount: 30,
				CreatedAt: time.Now(),
			},
			Receipt: "r1",
		}},
	}

	w := NewRetryWorker(f, source, time.Second)
	w.drain(context.Background())

	balance, _ := ledger.Balance(context.Background(), "acct")
	if balance != 70 {
		t.Errorf("balance = %d, want 70", balance)
	}
	if len(source.deleted) != 1 || source.deleted[0] != "r1" {
		t.Errorf("deleted receipts = %v, want [r1]", source.deleted)
	}
}

type fakeSource struct {
	queued  []QueuedEntry
	deleted []string
}

func (s *fakeSource) Receive(ctx context.Context, maxEntries int) ([]QueuedEntry, error) {
	return s.queued, nil
}

func (s *fakeSource) Delete(ctx context.Context, receipt string) error {
	s.deleted = append(s.deleted, receipt)
	return nil
}
