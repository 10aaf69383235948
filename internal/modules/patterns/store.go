// Package patterns caches previously confirmed transaction-to-account
// mappings and fast-paths future matches against them.
package patterns

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgermap/internal/domain"
	"github.com/aristath/ledgermap/internal/modules/features"
	"github.com/aristath/ledgermap/internal/modules/scoring"
)

// Pattern is one learned mapping: the feature snapshot of a confirmed
// transaction and the account it was mapped to.
type Pattern struct {
	Key               string
	DescriptionVector []float64
	Amount            float64
	Type              domain.TransactionType
	CustomerName      string // lower-cased, empty when absent
	TargetAccountID   string
}

// Store holds learned patterns in memory, backed by an optional repository.
// Reads (Match) share a read lock; writes (Learn, Load) are serialized, so a
// batch pass can score concurrently while a verify confirms a new mapping.
type Store struct {
	mu        sync.RWMutex
	patterns  map[string]Pattern
	extractor *features.Extractor
	repo      *Repository // nil in tests that don't need persistence
	log       zerolog.Logger
}

// NewStore creates a pattern store. repo may be nil for a purely in-memory store.
func NewStore(extractor *features.Extractor, repo *Repository, log zerolog.Logger) *Store {
	return &Store{
		patterns:  make(map[string]Pattern),
		extractor: extractor,
		repo:      repo,
		log:       log.With().Str("component", "patterns").Logger(),
	}
}

// Load replaces the in-memory pattern set with the persisted one.
func (s *Store) Load() error {
	if s.repo == nil {
		return nil
	}

	loaded, err := s.repo.All()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.patterns = make(map[string]Pattern, len(loaded))
	for _, p := range loaded {
		s.patterns[p.Key] = p
	}
	s.mu.Unlock()

	s.log.Info().Int("patterns", len(loaded)).Msg("Pattern store loaded")
	return nil
}

// PatternKey derives the store key for a transaction/account pair.
func PatternKey(description, accountID string) string {
	return description + "_" + accountID
}

// Learn records a confirmed mapping as a pattern, overwriting any previous
// pattern with the same key. Called only when a human or the orchestrator
// confirms a mapping decision, never from the scan path.
func (s *Store) Learn(tx domain.Transaction, accountID string) error {
	f := s.extractor.Extract(tx)

	p := Pattern{
		Key:               PatternKey(tx.Description, accountID),
		DescriptionVector: f.Vector,
		Amount:            f.Amount,
		Type:              f.Type,
		CustomerName:      f.CustomerName,
		TargetAccountID:   accountID,
	}

	s.mu.Lock()
	s.patterns[p.Key] = p
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Upsert(p); err != nil {
			return err
		}
	}

	s.log.Debug().
		Str("transaction", tx.ID).
		Str("account", accountID).
		Msg("Learned mapping pattern")
	return nil
}

// Match scores the feature set against every stored pattern and returns the
// best-scoring target account with its score. Returns ("", 0) when the store
// is empty. The caller decides whether the score clears the authoritative
// threshold.
//
// Per-pattern score:
//
//	0.4·cosine(description) + 0.3·amountProximity + 0.2·typeExact + 0.1·customerExact
func (s *Store) Match(f *features.FeatureSet) (string, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.patterns) == 0 {
		return "", 0
	}

	// Sorted iteration keeps equal-score results deterministic.
	keys := make([]string, 0, len(s.patterns))
	for k := range s.patterns {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bestAccount := ""
	bestScore := 0.0

	for _, key := range keys {
		p := s.patterns[key]

		score := scoring.CosineSimilarity(f.Vector, p.DescriptionVector) * scoring.PatternWeightDescription
		score += scoring.AmountProximity(f.Amount, p.Amount) * scoring.PatternWeightAmount
		if f.Type == p.Type {
			score += scoring.PatternWeightType
		}
		if f.CustomerName != "" && p.CustomerName != "" && f.CustomerName == p.CustomerName {
			score += scoring.PatternWeightCustomer
		}

		if score > bestScore {
			bestScore = score
			bestAccount = p.TargetAccountID
		}
	}

	return bestAccount, bestScore
}

// Size returns the number of stored patterns.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}
