// Package ledger owns transaction persistence and the mapping lifecycle:
// ingest, claim, map, verify, reject.
package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgermap/internal/database"
	"github.com/aristath/ledgermap/internal/domain"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339
)

// execer is satisfied by both *sql.DB and *sql.Tx, so mapping writes can run
// standalone or inside a batch transaction.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// ListFilter narrows List results. Zero values mean "no constraint".
type ListFilter struct {
	Status domain.TransactionStatus
	Search string // matches description or customer name, case-insensitive
	Limit  int
	Offset int
}

// Stats summarizes the transaction table by lifecycle state.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Mapped   int `json:"mapped"`
	Verified int `json:"verified"`
	Rejected int `json:"rejected"`
}

// Repository handles transaction database operations in ledger.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new transaction repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "transactions").Logger(),
	}
}

const transactionColumns = `
	transaction_id, date, time, description, customer_name, amount,
	transaction_type, status, mapped_account_id, confidence_score,
	mapped_by, mapped_at, notes`

// Insert stores a new transaction. Fails if the id already exists.
func (r *Repository) Insert(t domain.Transaction) error {
	if t.Status == "" {
		t.Status = domain.StatusPending
	}

	query := `
		INSERT INTO transactions (
			transaction_id, date, time, description, customer_name, amount,
			transaction_type, status, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query,
		t.ID,
		t.Date.Format(dateLayout),
		nullString(t.Time),
		t.Description,
		nullString(t.CustomerName),
		t.Amount,
		string(t.Type),
		string(t.Status),
		t.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
	}
	return nil
}

// InsertBatch stores a set of transactions atomically: either every row is
// inserted or none are.
func (r *Repository) InsertBatch(txs []domain.Transaction) error {
	return database.WithTransaction(r.db, func(sqlTx *sql.Tx) error {
		stmt, err := sqlTx.Prepare(`
			INSERT INTO transactions (
				transaction_id, date, time, description, customer_name, amount,
				transaction_type, status, notes
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, t := range txs {
			status := t.Status
			if status == "" {
				status = domain.StatusPending
			}
			if _, err := stmt.Exec(
				t.ID,
				t.Date.Format(dateLayout),
				nullString(t.Time),
				t.Description,
				nullString(t.CustomerName),
				t.Amount,
				string(t.Type),
				string(status),
				t.Notes,
			); err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// Get returns a transaction by id, or a NotFoundError.
func (r *Repository) Get(id string) (domain.Transaction, error) {
	row := r.db.QueryRow(
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = ?`, id)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return domain.Transaction{}, &domain.NotFoundError{Kind: "transaction", ID: id}
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return t, nil
}

// List returns transactions matching the filter, newest first.
func (r *Repository) List(filter ListFilter) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	var (
		conds []string
		args  []interface{}
	)

	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Search != "" {
		conds = append(conds, "(LOWER(description) LIKE ? OR LOWER(customer_name) LIKE ?)")
		needle := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, needle, needle)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	query += " ORDER BY date DESC, transaction_id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// PendingPage returns up to limit unclaimed PENDING transactions in stable
// order, oldest first. Rows claimed by an in-flight run are excluded.
func (r *Repository) PendingPage(limit int) ([]domain.Transaction, error) {
	rows, err := r.db.Query(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = 'PENDING' AND claimed_by IS NULL
		ORDER BY date ASC, transaction_id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// Claim marks a transaction as owned by runID. The claim is a conditional
// update: it succeeds only when no other run holds the row, so concurrent
// batch runs never process the same transaction twice. Returns false, without
// error, when the row is already claimed or no longer PENDING.
func (r *Repository) Claim(txID, runID string, now time.Time) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE transactions
		SET claimed_by = ?, claimed_at = ?
		WHERE transaction_id = ? AND status = 'PENDING' AND claimed_by IS NULL`,
		runID, now.UTC().Format(timeLayout), txID)
	if err != nil {
		return false, fmt.Errorf("failed to claim transaction %s: %w", txID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result for %s: %w", txID, err)
	}
	return affected == 1, nil
}

// ReleaseClaims clears every claim held by runID. Called when a run finishes
// or aborts, so rows it claimed but never committed return to the pool.
func (r *Repository) ReleaseClaims(runID string) error {
	_, err := r.db.Exec(`
		UPDATE transactions
		SET claimed_by = NULL, claimed_at = NULL
		WHERE claimed_by = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to release claims for run %s: %w", runID, err)
	}
	return nil
}

// ReleaseStaleClaims clears claims older than the cutoff, recovering rows
// orphaned by a crashed run.
func (r *Repository) ReleaseStaleClaims(olderThan time.Time) (int64, error) {
	res, err := r.db.Exec(`
		UPDATE transactions
		SET claimed_by = NULL, claimed_at = NULL
		WHERE claimed_by IS NOT NULL AND claimed_at < ?`,
		olderThan.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", err)
	}
	count, _ := res.RowsAffected()
	if count > 0 {
		r.log.Warn().Int64("released", count).Msg("Released stale transaction claims")
	}
	return count, nil
}

// UpdateMapping persists the mapping fields of a transaction. A row leaving
// PENDING also drops any claim on it; a row staying PENDING (a batch
// suggestion) keeps its claim, and the run holding it releases it when the
// run ends.
func (r *Repository) UpdateMapping(t domain.Transaction) error {
	return updateMapping(r.db, t)
}

// UpdateMappingTx is UpdateMapping inside an existing transaction, used by
// the batch committer to flush a whole run atomically.
func (r *Repository) UpdateMappingTx(sqlTx *sql.Tx, t domain.Transaction) error {
	return updateMapping(sqlTx, t)
}

func updateMapping(e execer, t domain.Transaction) error {
	var mappedAt sql.NullString
	if t.MappedAt != nil {
		mappedAt = sql.NullString{String: t.MappedAt.UTC().Format(timeLayout), Valid: true}
	}

	query := `
		UPDATE transactions
		SET status            = ?,
		    mapped_account_id = ?,
		    confidence_score  = ?,
		    mapped_by         = ?,
		    mapped_at         = ?,
		    notes             = ?`
	if t.Status != domain.StatusPending {
		query += `,
		    claimed_by        = NULL,
		    claimed_at        = NULL`
	}
	query += `
		WHERE transaction_id = ?`

	res, err := e.Exec(query,
		string(t.Status),
		nullString(t.MappedAccountID),
		t.ConfidenceScore,
		nullString(t.MappedBy),
		mappedAt,
		t.Notes,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update mapping for %s: %w", t.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for %s: %w", t.ID, err)
	}
	if affected == 0 {
		return &domain.NotFoundError{Kind: "transaction", ID: t.ID}
	}
	return nil
}

// Stats returns counts per lifecycle state.
func (r *Repository) Stats() (Stats, error) {
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM transactions GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query transaction stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("failed to scan transaction stats: %w", err)
		}
		stats.Total += count
		switch domain.TransactionStatus(status) {
		case domain.StatusPending:
			stats.Pending = count
		case domain.StatusMapped:
			stats.Mapped = count
		case domain.StatusVerified:
			stats.Verified = count
		case domain.StatusRejected:
			stats.Rejected = count
		}
	}

	return stats, rows.Err()
}

// DeleteAll removes every transaction and returns the count. The HTTP layer
// requires explicit confirmation before calling this.
func (r *Repository) DeleteAll() (int64, error) {
	res, err := r.db.Exec(`DELETE FROM transactions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}

	count, _ := res.RowsAffected()
	r.log.Info().Int64("deleted", count).Msg("Deleted all transactions")
	return count, nil
}

// DB exposes the underlying connection for batch commits.
func (r *Repository) DB() *sql.DB {
	return r.db
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		t           domain.Transaction
		date        string
		timeOfDay   sql.NullString
		customer    sql.NullString
		txType      string
		status      string
		mappedAcct  sql.NullString
		mappedBy    sql.NullString
		mappedAtRaw sql.NullString
	)

	err := row.Scan(
		&t.ID, &date, &timeOfDay, &t.Description, &customer, &t.Amount,
		&txType, &status, &mappedAcct, &t.ConfidenceScore,
		&mappedBy, &mappedAtRaw, &t.Notes,
	)
	if err != nil {
		return domain.Transaction{}, err
	}

	t.Date, _ = time.Parse(dateLayout, date)
	t.Time = timeOfDay.String
	t.CustomerName = customer.String
	t.Type = domain.TransactionType(txType)
	t.Status = domain.TransactionStatus(status)
	t.MappedAccountID = mappedAcct.String
	t.MappedBy = mappedBy.String
	if mappedAtRaw.Valid {
		if parsed, err := time.Parse(timeLayout, mappedAtRaw.String); err == nil {
			t.MappedAt = &parsed
		}
	}
	return t, nil
}

func collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
