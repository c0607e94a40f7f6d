package repository

import (
	"context"
	"time"

	"github.com/prosegate/prosegate/internal/domain"
)

// DebitResult reports what a Debit actually did. Charged is false when
// the balance could not cover the cost; the usage row is written either
// way so under-funded completions stay visible in the audit trail.
type DebitResult struct {
	Charged    bool
	NewBalance int64
}

// Ledger is the transactional credit store. Debit executes
// read-balance, conditional-decrement, and usage-log insert as one
// atomic unit per account; concurrent debits rely on the store's own
// isolation, not application locks.
type Ledger interface {
	Balance(ctx context.Context, accountID string) (int64, error)
	Debit(ctx context.Context, accountID string, cost int64, entry domain.UsageEntry) (DebitResult, error)
	Credit(ctx context.Context, accountID string, amount int64) (int64, error)
	UsageSince(ctx context.Context, accountID string, since time.Time) ([]domain.UsageEntry, error)
}

// InMemoryLedger backs development and tests. Balances live on the
// account records themselves, matching the Postgres layout where
// accounts.credits is the one authoritative balance: an account created
// through the repository is immediately known to the ledger. The
// repository's lock doubles as the transaction boundary.
type InMemoryLedger struct {
	accounts *InMemoryAccountRepository
	usage    []domain.UsageEntry
}

func NewInMemoryLedger() *InMemoryLedger {
	return NewInMemoryLedgerOver(NewInMemoryAccountRepository())
}

// NewInMemoryLedgerOver shares balances with an existing account
// repository.
func NewInMemoryLedgerOver(accounts *InMemoryAccountRepository) *InMemoryLedger {
	return &InMemoryLedger{accounts: accounts}
}

// SetBalance seeds an account balance, creating a bare account record
// if none exists.
func (l *InMemoryLedger) SetBalance(accountID string, balance int64) {
	l.accounts.mu.Lock()
	defer l.accounts.mu.Unlock()

	account, ok := l.accounts.accounts[accountID]
	if !ok {
		account = &domain.Account{ID: accountID, Enabled: true}
		l.accounts.accounts[accountID] = account
	}
	account.Credits = balance
}

func (l *InMemoryLedger) Balance(ctx context.Context, accountID string) (int64, error) {
	l.accounts.mu.RLock()
	defer l.accounts.mu.RUnlock()

	account, ok := l.accounts.accounts[accountID]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	return account.Credits, nil
}

func (l *InMemoryLedger) Debit(ctx context.Context, accountID string, cost int64, entry domain.UsageEntry) (DebitResult, error) {
	l.accounts.mu.Lock()
	defer l.accounts.mu.Unlock()

	account, ok := l.accounts.accounts[accountID]
	if !ok {
		return DebitResult{}, domain.ErrAccountNotFound
	}

	if account.Credits < cost {
		entry.Underfunded = true
		l.usage = append(l.usage, entry)
		return DebitResult{Charged: false, NewBalance: account.Credits}, nil
	}

	account.Credits -= cost
	l.usage = append(l.usage, entry)
	return DebitResult{Charged: true, NewBalance: account.Credits}, nil
}

func (l *InMemoryLedger) Credit(ctx context.Context, accountID string, amount int64) (int64, error) {
	l.accounts.mu.Lock()
	defer l.accounts.mu.Unlock()

	account, ok := l.accounts.accounts[accountID]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}

	account.Credits += amount
	return account.Credits, nil
}

func (l *InMemoryLedger) UsageSince(ctx context.Context, accountID string, since time.Time) ([]domain.UsageEntry, error) {
	l.accounts.mu.RLock()
	defer l.accounts.mu.RUnlock()

	var entries []domain.UsageEntry
	for _, e := range l.usage {
		if e.AccountID == accountID && e.CreatedAt.After(since) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Entries returns every usage row, for tests.
func (l *InMemoryLedger) Entries() []domain.UsageEntry {
	l.accounts.mu.RLock()
	defer l.accounts.mu.RUnlock()

	out := make([]domain.UsageEntry, len(l.usage))
	copy(out, l.usage)
	return out
}
