package patterns

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/ledgermap/internal/domain"
)

// Repository persists mapping patterns in patterns.db. Description vectors
// are stored as msgpack-encoded blobs.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new pattern repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "patterns").Logger(),
	}
}

// Upsert stores or overwrites a pattern by key.
func (r *Repository) Upsert(p Pattern) error {
	vector, err := msgpack.Marshal(p.DescriptionVector)
	if err != nil {
		return fmt.Errorf("failed to encode pattern vector: %w", err)
	}

	query := `
		INSERT INTO mapping_patterns
			(pattern_key, description_vector, amount, transaction_type, customer_name, target_account_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(pattern_key) DO UPDATE SET
			description_vector = excluded.description_vector,
			amount             = excluded.amount,
			transaction_type   = excluded.transaction_type,
			customer_name      = excluded.customer_name,
			target_account_id  = excluded.target_account_id,
			updated_at         = datetime('now')`

	customer := sql.NullString{String: p.CustomerName, Valid: p.CustomerName != ""}
	if _, err := r.db.Exec(query, p.Key, vector, p.Amount, string(p.Type), customer, p.TargetAccountID); err != nil {
		return fmt.Errorf("failed to upsert pattern: %w", err)
	}

	return nil
}

// All returns every persisted pattern.
func (r *Repository) All() ([]Pattern, error) {
	query := `
		SELECT pattern_key, description_vector, amount, transaction_type, customer_name, target_account_id
		FROM mapping_patterns`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []Pattern
	for rows.Next() {
		var (
			p        Pattern
			vector   []byte
			txType   string
			customer sql.NullString
		)
		if err := rows.Scan(&p.Key, &vector, &p.Amount, &txType, &customer, &p.TargetAccountID); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}

		if err := msgpack.Unmarshal(vector, &p.DescriptionVector); err != nil {
			// A corrupt vector disables the fast path for this pattern
			// but must not poison the whole load.
			r.log.Warn().Str("key", p.Key).Err(err).Msg("Skipping pattern with undecodable vector")
			continue
		}

		p.Type = domain.TransactionType(txType)
		p.CustomerName = customer.String
		patterns = append(patterns, p)
	}

	return patterns, rows.Err()
}
