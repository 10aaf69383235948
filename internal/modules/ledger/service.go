package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/ledgermap/internal/domain"
	"github.com/aristath/ledgermap/internal/modules/directory"
	"github.com/aristath/ledgermap/internal/modules/features"
	"github.com/aristath/ledgermap/internal/modules/patterns"
)

// RowError reports one raw row that failed ingest validation.
type RowError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// IngestResult summarizes one ingest call. Accepted rows are stored
// atomically; invalid rows are reported and skipped.
type IngestResult struct {
	Accepted int        `json:"accepted"`
	Rejected []RowError `json:"rejected,omitempty"`
}

// Service implements the mapping lifecycle over the transaction repository.
// State transitions go through the domain methods, so the rules live in one
// place; the service adds persistence, account validation, and the learning
// hook on verification.
type Service struct {
	repo      *Repository
	directory *directory.Directory
	patterns  *patterns.Store
	extractor *features.Extractor
	log       zerolog.Logger
}

// NewService creates the lifecycle service.
func NewService(
	repo *Repository,
	dir *directory.Directory,
	store *patterns.Store,
	extractor *features.Extractor,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		directory: dir,
		patterns:  store,
		extractor: extractor,
		log:       log.With().Str("component", "ledger").Logger(),
	}
}

// Ingest normalizes raw rows and stores the valid ones in a single database
// transaction. Rows failing validation are reported per index and skipped;
// a storage failure (for example a duplicate transaction id) rejects the
// whole accepted set so a retry never half-applies.
func (s *Service) Ingest(raws []features.RawTransaction) (IngestResult, error) {
	var (
		result IngestResult
		valid  []domain.Transaction
	)

	for i, raw := range raws {
		t, err := s.extractor.Normalize(raw)
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{Index: i, Error: err.Error()})
			continue
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		valid = append(valid, t)
	}

	if len(valid) > 0 {
		if err := s.repo.InsertBatch(valid); err != nil {
			return IngestResult{Rejected: result.Rejected}, err
		}
	}
	result.Accepted = len(valid)

	s.log.Info().
		Int("accepted", result.Accepted).
		Int("rejected", len(result.Rejected)).
		Msg("Ingested transactions")
	return result, nil
}

// Map maps a transaction to an account. The account must exist in the
// directory; the transition itself is validated by the domain model.
func (s *Service) Map(txID, accountID, mappedBy, notes string, confidence float64) (domain.Transaction, error) {
	t, err := s.repo.Get(txID)
	if err != nil {
		return domain.Transaction{}, err
	}

	if _, err := s.directory.Get(accountID); err != nil {
		return domain.Transaction{}, err
	}

	if err := t.MapToAccount(accountID, mappedBy, notes, confidence, time.Now().UTC()); err != nil {
		return domain.Transaction{}, err
	}

	if err := s.repo.UpdateMapping(t); err != nil {
		return domain.Transaction{}, err
	}

	s.log.Info().
		Str("transaction", txID).
		Str("account", accountID).
		Float64("confidence", confidence).
		Str("by", mappedBy).
		Msg("Transaction mapped")
	return t, nil
}

// Verify confirms a mapped transaction. Verification is the learning signal:
// the confirmed pair becomes a pattern, and the directory reloads so the
// account's historical amounts include this transaction on the next scan.
func (s *Service) Verify(txID string) (domain.Transaction, error) {
	t, err := s.repo.Get(txID)
	if err != nil {
		return domain.Transaction{}, err
	}

	if err := t.Verify(); err != nil {
		return domain.Transaction{}, err
	}

	if err := s.repo.UpdateMapping(t); err != nil {
		return domain.Transaction{}, err
	}

	if err := s.patterns.Learn(t, t.MappedAccountID); err != nil {
		// The verification itself stands; losing one pattern only costs a
		// future fast-path hit.
		s.log.Error().Err(err).Str("transaction", txID).Msg("Failed to learn pattern from verification")
	}
	if err := s.directory.Reload(); err != nil {
		s.log.Error().Err(err).Msg("Failed to reload directory after verification")
	}

	s.log.Info().
		Str("transaction", txID).
		Str("account", t.MappedAccountID).
		Msg("Transaction verified")
	return t, nil
}

// Reject marks a transaction as not mappable to the suggested account and
// returns it to the pool for a later pass.
func (s *Service) Reject(txID, reason string) (domain.Transaction, error) {
	t, err := s.repo.Get(txID)
	if err != nil {
		return domain.Transaction{}, err
	}

	if err := t.Reject(reason); err != nil {
		return domain.Transaction{}, err
	}

	if err := s.repo.UpdateMapping(t); err != nil {
		return domain.Transaction{}, err
	}

	s.log.Info().Str("transaction", txID).Str("reason", reason).Msg("Transaction rejected")
	return t, nil
}

// Get returns a single transaction.
func (s *Service) Get(txID string) (domain.Transaction, error) {
	return s.repo.Get(txID)
}

// List returns transactions matching the filter.
func (s *Service) List(filter ListFilter) ([]domain.Transaction, error) {
	return s.repo.List(filter)
}

// Stats returns lifecycle counts.
func (s *Service) Stats() (Stats, error) {
	return s.repo.Stats()
}

// DeleteAll removes every transaction after the caller has confirmed.
func (s *Service) DeleteAll() (int64, error) {
	count, err := s.repo.DeleteAll()
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}
	return count, nil
}
