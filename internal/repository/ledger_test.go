package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prosegate/prosegate/internal/domain"
)

func entry(accountID string, words int) domain.UsageEntry {
	return domain.UsageEntry{
		AccountID: accountID,
		RequestID: "req-1",
		ModelID:   "gpt-4o-mini",
		WordCount: words,
		Title:     "Grammar rewrite",
		CreatedAt: time.Now(),
	}
}

func TestInMemoryLedger_DebitSufficientBalance(t *testing.T) {
	ledger := NewInMemoryLedger()
	ledger.SetBalance("acct", 40)
	ctx := context.Background()

	result, err := ledger.Debit(ctx, "acct", 25, entry("acct", 25))
	if err != nil {
		t.Fatalf("Debit() error = %v", err)
	}

	if !result.Charged {
		t.Error("Debit() should have charged")
	}
	if result.NewBalance != 15 {
		t.Errorf("NewBalance = %d, want 15", result.NewBalance)
	}

	entries := ledger.Entries()
	if len(entries) != 1 {
		t.Fatalf("usage entries = %d, want 1", len(entries))
	}
	if entries[0].WordCount != 25 || entries[0].Underfunded {
		t.Errorf("entry = %+v, want wordCount=25 not underfunded", entries[0])
	}
}

func TestInMemoryLedger_DebitInsufficientBalance(t *testing.T) {
	ledger := NewInMemoryLedger()
	ledger.SetBalance("acct", 10)
	ctx := context.Background()

	result, err := ledger.Debit(ctx, "acct", 25, entry("acct", 25))
	if err != nil {
		t.Fatalf("Debit() error = %v", err)
	}

	if result.Charged {
		t.Error("Debit() must not charge past the balance")
	}
	if result.NewBalance != 10 {
		t.Errorf("NewBalance = %d, want 10 (unchanged)", result.NewBalance)
	}

	entries := ledger.Entries()
	if len(entries) != 1 {
		t.Fatalf("usage entries = %d, want 1 (audit row still written)", len(entries))
	}
	if !entries[0].Underfunded {
		t.Error("entry should be tagged under-funded")
	}
}

func TestInMemoryLedger_DebitUnknownAccount(t *testing.T) {
	ledger := NewInMemoryLedger()

	_, err := ledger.Debit(context.Background(), "ghost", 5, entry("ghost", 5))
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("Debit() error = %v, want ErrAccountNotFound", err)
	}
	if len(ledger.Entries()) != 0 {
		t.Error("unknown account must leave no side effects")
	}
}

func TestInMemoryLedger_CreditAndBalance(t *testing.T) {
	ledger := NewInMemoryLedger()
	ledger.SetBalance("acct", 5)
	ctx := context.Background()

	balance, err := ledger.Credit(ctx, "acct", 100)
	if err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if balance != 105 {
		t.Errorf("Credit() = %d, want 105", balance)
	}

	got, err := ledger.Balance(ctx, "acct")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if got != 105 {
		t.Errorf("Balance() = %d, want 105", got)
	}
}

func TestInMemoryLedger_UsageSince(t *testing.T) {
	ledger := NewInMemoryLedger()
	ledger.SetBalance("acct", 1000)
	ctx := context.Background()

	old := entry("acct", 10)
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	ledger.Debit(ctx, "acct", 10, old)
	ledger.Debit(ctx, "acct", 20, entry("acct", 20))

	entries, err := ledger.UsageSince(ctx, "acct", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("UsageSince() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("UsageSince() = %d entries, want 1", len(entries))
	}
	if entries[0].WordCount != 20 {
		t.Errorf("entry word count = %d, want 20", entries[0].WordCount)
	}
}

func TestInMemoryLedger_SharesAccountBalances(t *testing.T) {
	repo := NewInMemoryAccountRepository()
	ledger := NewInMemoryLedgerOver(repo)
	ctx := context.Background()

	if err := repo.Create(ctx, &domain.Account{
		ID:         "acct",
		Name:       "writer",
		APIKeyHash: HashAPIKey("pg-test-key"),
		Credits:    100,
		Enabled:    true,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// An account created through the repository is immediately
	// debitable; no separate ledger seeding step exists.
	balance, err := ledger.Balance(ctx, "acct")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if balance != 100 {
		t.Errorf("Balance() = %d, want 100", balance)
	}

	if _, err := ledger.Debit(ctx, "acct", 30, entry("acct", 30)); err != nil {
		t.Fatalf("Debit() error = %v", err)
	}
	if _, err := ledger.Credit(ctx, "acct", 10); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}

	// Both views read the one balance.
	got, err := repo.GetByID(ctx, "acct")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Credits != 80 {
		t.Errorf("account credits = %d, want 80", got.Credits)
	}
	balance, _ = ledger.Balance(ctx, "acct")
	if balance != 80 {
		t.Errorf("Balance() = %d, want 80", balance)
	}
}

func TestInMemoryAccountRepository_UpdatePreservesCredits(t *testing.T) {
	repo := NewInMemoryAccountRepository()
	ledger := NewInMemoryLedgerOver(repo)
	ctx := context.Background()

	repo.Create(ctx, &domain.Account{
		ID:         "acct",
		APIKeyHash: HashAPIKey("key"),
		Credits:    100,
		Enabled:    true,
	})

	stale, _ := repo.GetByID(ctx, "acct")
	ledger.Debit(ctx, "acct", 40, entry("acct", 40))

	stale.Name = "renamed"
	if err := repo.Update(ctx, stale); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	balance, _ := ledger.Balance(ctx, "acct")
	if balance != 60 {
		t.Errorf("Balance() = %d after stale update, want 60", balance)
	}
}

func TestInMemoryAccountRepository_RotateKeyRetiresOldKey(t *testing.T) {
	repo := NewInMemoryAccountRepository()
	ctx := context.Background()

	repo.Create(ctx, &domain.Account{
		ID:         "acct",
		APIKeyHash: HashAPIKey("old-key"),
		Enabled:    true,
	})

	rotated, _ := repo.GetByID(ctx, "acct")
	rotated.APIKeyHash = HashAPIKey("new-key")
	if err := repo.Update(ctx, rotated); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if _, err := repo.GetByAPIKey(ctx, "old-key"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("GetByAPIKey(old) error = %v, want ErrAccountNotFound", err)
	}
	got, err := repo.GetByAPIKey(ctx, "new-key")
	if err != nil {
		t.Fatalf("GetByAPIKey(new) error = %v", err)
	}
	if got.ID != "acct" {
		t.Errorf("GetByAPIKey(new) ID = %q, want %q", got.ID, "acct")
	}
}

func TestInMemoryAccountRepository_GetByAPIKey(t *testing.T) {
	repo := NewInMemoryAccountRepository()
	ctx := context.Background()

	account := &domain.Account{
		ID:         "acct",
		Name:       "writer",
		APIKeyHash: HashAPIKey("pg-test-key"),
		Enabled:    true,
	}
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByAPIKey(ctx, "pg-test-key")
	if err != nil {
		t.Fatalf("GetByAPIKey() error = %v", err)
	}
	if got.ID != "acct" {
		t.Errorf("GetByAPIKey().ID = %q, want acct", got.ID)
	}

	if _, err := repo.GetByAPIKey(ctx, "wrong-key"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("GetByAPIKey(wrong) error = %v, want ErrAccountNotFound", err)
	}
}

func TestInMemoryAccountRepository_DisabledAccountHidden(t *testing.T) {
	repo := NewInMemoryAccountRepository()
	ctx := context.Background()

	repo.Create(ctx, &domain.Account{
		ID:         "acct",
		APIKeyHash: HashAPIKey("key"),
		Enabled:    false,
	})

	if _, err := repo.GetByAPIKey(ctx, "key"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("disabled account should not resolve, got err = %v", err)
	}
}
