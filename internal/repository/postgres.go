package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prosegate/prosegate/internal/domain"
)

// PostgresAccountRepository stores accounts in the accounts table.
// The credits column doubles as the ledger balance; see PostgresLedger.
type PostgresAccountRepository struct {
	db *sql.DB
}

func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

const accountColumns = `id, name, api_key_hash, credits, rate_limit_rpm, enabled, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.APIKeyHash,
		&a.Credits,
		&a.RateLimitRPM,
		&a.Enabled,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (r *PostgresAccountRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE api_key_hash = $1 AND enabled = true`
	return scanAccount(r.db.QueryRowContext(ctx, query, HashAPIKey(apiKey)))
}

func (r *PostgresAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresAccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *PostgresAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, name, api_key_hash, credits, rate_limit_rpm, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Name,
		account.APIKeyHash,
		account.Credits,
		account.RateLimitRPM,
		account.Enabled,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepository) Update(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET name = $2, api_key_hash = $3, rate_limit_rpm = $4, enabled = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Name,
		account.APIKeyHash,
		account.RateLimitRPM,
		account.Enabled,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// PostgresLedger implements the credit ledger against the accounts and
// usage_log tables. Debit runs as a single transaction with the
// balance row locked, so concurrent debits against one account
// serialize inside Postgres rather than in the application.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx, `SELECT credits FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

func (l *PostgresLedger) Debit(ctx context.Context, accountID string, cost int64, entry domain.UsageEntry) (DebitResult, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return DebitResult{}, fmt.Errorf("begin debit tx: %w", err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `SELECT credits FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return DebitResult{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return DebitResult{}, fmt.Errorf("lock balance: %w", err)
	}

	result := DebitResult{NewBalance: balance}
	if balance >= cost {
		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET credits = credits - $2, updated_at = now() WHERE id = $1`, accountID, cost); err != nil {
			return DebitResult{}, fmt.Errorf("decrement balance: %w", err)
		}
		result.Charged = true
		result.NewBalance = balance - cost
	} else {
		entry.Underfunded = true
	}

	insert := `
		INSERT INTO usage_log (account_id, request_id, model_id, word_count, title, underfunded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.ExecContext(ctx, insert,
		entry.AccountID,
		entry.RequestID,
		entry.ModelID,
		entry.WordCount,
		entry.Title,
		entry.Underfunded,
		entry.CreatedAt,
	); err != nil {
		return DebitResult{}, fmt.Errorf("insert usage entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return DebitResult{}, fmt.Errorf("commit debit tx: %w", err)
	}
	return result, nil
}

func (l *PostgresLedger) Credit(ctx context.Context, accountID string, amount int64) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx,
		`UPDATE accounts SET credits = credits + $2, updated_at = now() WHERE id = $1 RETURNING credits`,
		accountID, amount,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return balance, nil
}

func (l *PostgresLedger) UsageSince(ctx context.Context, accountID string, since time.Time) ([]domain.UsageEntry, error) {
	query := `
		SELECT account_id, request_id, model_id, word_count, title, underfunded, created_at
		FROM usage_log
		WHERE account_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`

	rows, err := l.db.QueryContext(ctx, query, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("query usage log: %w", err)
	}
	defer rows.Close()

	var entries []domain.UsageEntry
	for rows.Next() {
		var e domain.UsageEntry
		if err := rows.Scan(&e.AccountID, &e.RequestID, &e.ModelID, &e.WordCount, &e.Title, &e.Underfunded, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
