// Package directory provides the indexed chart-of-accounts store used by the
// matching engine, partitioned into regular and section (aggregation)
// accounts.
package directory

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgermap/internal/domain"
)

// Repository handles chart-of-accounts database operations in ledger.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new account repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounts").Logger(),
	}
}

// Upsert creates or updates an account.
func (r *Repository) Upsert(a domain.Account) error {
	query := `
		INSERT INTO accounts (account_id, name, account_type, parent_account_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			name              = excluded.name,
			account_type      = excluded.account_type,
			parent_account_id = excluded.parent_account_id`

	parent := sql.NullString{String: a.ParentID, Valid: a.ParentID != ""}
	if _, err := r.db.Exec(query, a.ID, a.Name, string(a.Type), parent); err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", a.ID, err)
	}
	return nil
}

// All returns every account ordered by id.
func (r *Repository) All() ([]domain.Account, error) {
	rows, err := r.db.Query(`
		SELECT account_id, name, account_type, parent_account_id
		FROM accounts
		ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var (
			a      domain.Account
			typ    string
			parent sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Name, &typ, &parent); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Type = domain.AccountType(typ)
		a.ParentID = parent.String
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

// HistoricalAmounts returns, per account, the amounts of transactions already
// mapped or verified against it. Feeds the historical-similarity factor.
func (r *Repository) HistoricalAmounts() (map[string][]float64, error) {
	rows, err := r.db.Query(`
		SELECT mapped_account_id, amount
		FROM transactions
		WHERE mapped_account_id IS NOT NULL
		  AND status IN ('MAPPED', 'VERIFIED')`)
	if err != nil {
		return nil, fmt.Errorf("failed to query historical amounts: %w", err)
	}
	defer rows.Close()

	history := make(map[string][]float64)
	for rows.Next() {
		var (
			accountID string
			amount    float64
		)
		if err := rows.Scan(&accountID, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan historical amount: %w", err)
		}
		history[accountID] = append(history[accountID], amount)
	}

	return history, rows.Err()
}

// DeleteAll removes every account. Refuses while any transaction still
// references an account, so mapping audit rows never dangle.
func (r *Repository) DeleteAll() (int64, error) {
	var mapped int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE mapped_account_id IS NOT NULL`).Scan(&mapped)
	if err != nil {
		return 0, fmt.Errorf("failed to count mapped transactions: %w", err)
	}
	if mapped > 0 {
		return 0, &domain.ValidationError{
			Field:  "accounts",
			Reason: "cannot delete accounts while transactions are mapped to them",
		}
	}

	res, err := r.db.Exec(`DELETE FROM accounts`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete accounts: %w", err)
	}

	count, _ := res.RowsAffected()
	r.log.Info().Int64("deleted", count).Msg("Deleted all accounts")
	return count, nil
}
