package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/prosegate/prosegate/internal/domain"
)

// AccountRepository resolves and manages billed accounts. API keys are
// stored hashed; lookups hash the presented key.
type AccountRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Account, error)
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	List(ctx context.Context) ([]*domain.Account, error)
	Create(ctx context.Context, account *domain.Account) error
	Update(ctx context.Context, account *domain.Account) error
	Delete(ctx context.Context, id string) error
}

// InMemoryAccountRepository backs development and tests.
type InMemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	byKey    map[string]string
}

func NewInMemoryAccountRepository() *InMemoryAccountRepository {
	return &InMemoryAccountRepository{
		accounts: make(map[string]*domain.Account),
		byKey:    make(map[string]string),
	}
}

func (r *InMemoryAccountRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[HashAPIKey(apiKey)]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	account, ok := r.accounts[id]
	if !ok || !account.Enabled {
		return nil, domain.ErrAccountNotFound
	}

	copied := *account
	return &copied, nil
}

func (r *InMemoryAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	copied := *account
	return &copied, nil
}

func (r *InMemoryAccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]*domain.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		copied := *a
		accounts = append(accounts, &copied)
	}
	return accounts, nil
}

func (r *InMemoryAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts[account.ID] = account
	r.byKey[account.APIKeyHash] = account.ID
	return nil
}

func (r *InMemoryAccountRepository) Update(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.accounts[account.ID]
	if !ok {
		return domain.ErrAccountNotFound
	}

	// A rotated key must stop authenticating immediately.
	if existing.APIKeyHash != account.APIKeyHash {
		delete(r.byKey, existing.APIKeyHash)
	}

	account.UpdatedAt = time.Now()
	// Credits change only through the ledger, as in the SQL schema
	// where UPDATE accounts never touches the credits column.
	account.Credits = existing.Credits
	r.accounts[account.ID] = account
	r.byKey[account.APIKeyHash] = account.ID
	return nil
}

func (r *InMemoryAccountRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}

	delete(r.byKey, account.APIKeyHash)
	delete(r.accounts, id)
	return nil
}

// HashAPIKey hashes a raw API key for storage and lookup.
func HashAPIKey(apiKey string) string {
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:])
}
