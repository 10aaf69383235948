// Package batch drives the periodic mapping run: claim pages of pending
// transactions until the pool is drained, score each page concurrently, and
// commit each page's decisions in one database transaction.
package batch

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/ledgermap/internal/database"
	"github.com/aristath/ledgermap/internal/domain"
	"github.com/aristath/ledgermap/internal/modules/directory"
	"github.com/aristath/ledgermap/internal/modules/ledger"
	"github.com/aristath/ledgermap/internal/modules/matching"
	"github.com/aristath/ledgermap/internal/modules/scoring"
)

const (
	// DefaultBatchSize bounds one claim-score-commit cycle within a run.
	DefaultBatchSize = 50
	// DefaultWorkers is the scoring concurrency within a batch.
	DefaultWorkers = 4

	autoMapper = "auto-mapper"
)

// Config tunes a Mapper. Zero values fall back to the defaults.
type Config struct {
	BatchSize int
	Workers   int
}

// Mapper runs batch mapping passes. Multiple mappers (or multiple processes)
// may run concurrently against the same database: row claims guarantee each
// transaction is processed by exactly one run.
type Mapper struct {
	repo         *ledger.Repository
	orchestrator *matching.Orchestrator
	directory    *directory.Directory
	batchSize    int
	workers      int
	log          zerolog.Logger
}

// NewMapper creates a batch mapper.
func NewMapper(
	repo *ledger.Repository,
	orchestrator *matching.Orchestrator,
	dir *directory.Directory,
	cfg Config,
	log zerolog.Logger,
) *Mapper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Mapper{
		repo:         repo,
		orchestrator: orchestrator,
		directory:    dir,
		batchSize:    cfg.BatchSize,
		workers:      cfg.Workers,
		log:          log.With().Str("component", "batch").Logger(),
	}
}

// scored pairs a claimed transaction with its matching outcome.
type scored struct {
	tx    domain.Transaction
	match matching.Match
	err   error
}

// Run drains the PENDING pool and returns the run summary.
//
// The run repeatedly claims up to batchSize unclaimed PENDING rows, scores
// them on a worker pool, and commits each batch's decisions in a single
// database transaction before fetching the next page. Rows another run
// claims first are skipped. Rows that fail scoring are reported in the
// summary and return to the pool when the run ends. A transaction whose best
// score does not clear the auto-map floor keeps PENDING status with the
// suggestion recorded in its confidence and notes; it holds its claim until
// the run ends, so a run visits each row at most once.
func (m *Mapper) Run() (domain.BatchSummary, error) {
	runID := uuid.NewString()
	summary := domain.BatchSummary{RunID: runID}
	log := m.log.With().Str("run", runID).Logger()

	if err := m.directory.Reload(); err != nil {
		return summary, fmt.Errorf("failed to reload account directory: %w", err)
	}
	if m.directory.Size() == 0 {
		return summary, fmt.Errorf("account directory is empty, nothing to map against")
	}

	// Claims still held when the run ends (errored rows, suggestion rows,
	// crashes between claim and commit) must not wedge the pool.
	defer func() {
		if err := m.repo.ReleaseClaims(runID); err != nil {
			log.Error().Err(err).Msg("Failed to release run claims")
		}
	}()

	for {
		page, err := m.repo.PendingPage(m.batchSize)
		if err != nil {
			return summary, err
		}
		if len(page) == 0 {
			break
		}

		claimed := m.claimPage(page, runID, &summary)
		if len(claimed) == 0 {
			// Concurrent runs claimed the whole page between the query and
			// the claim; whoever holds the rows finishes them.
			log.Debug().Int("skipped", summary.Skipped).Msg("No rows claimed")
			break
		}

		if err := m.processBatch(claimed, runID, &summary); err != nil {
			return summary, err
		}
	}

	log.Info().
		Int("processed", summary.Processed).
		Int("mapped", summary.Mapped).
		Int("skipped", summary.Skipped).
		Int("errored", summary.Errored).
		Msg("Batch mapping run complete")
	return summary, nil
}

// claimPage takes ownership of as many page rows as possible. Rows another
// run claims first are counted as skipped.
func (m *Mapper) claimPage(page []domain.Transaction, runID string, summary *domain.BatchSummary) []domain.Transaction {
	now := time.Now().UTC()
	var claimed []domain.Transaction
	for _, tx := range page {
		ok, err := m.repo.Claim(tx.ID, runID, now)
		if err != nil {
			summary.AddError(tx.ID, err)
			continue
		}
		if !ok {
			// Another run got there first.
			summary.Skipped++
			continue
		}
		claimed = append(claimed, tx)
	}
	return claimed
}

// processBatch scores one claimed batch and commits every decision in a
// single database transaction.
func (m *Mapper) processBatch(claimed []domain.Transaction, runID string, summary *domain.BatchSummary) error {
	results := m.scoreAll(claimed)
	now := time.Now().UTC()

	var decided []domain.Transaction
	for _, r := range results {
		summary.Processed++
		if r.err != nil {
			summary.AddError(r.tx.ID, r.err)
			continue
		}

		tx := r.tx
		if r.match.AccountID != "" && r.match.Confidence > scoring.AutoMapFloor {
			note := fmt.Sprintf("Auto-mapped (%s, %.2f)", r.match.Source, r.match.Confidence)
			if err := tx.MapToAccount(r.match.AccountID, autoMapper, note, r.match.Confidence, now); err != nil {
				summary.AddError(tx.ID, err)
				continue
			}
			summary.Mapped++
		} else {
			// Below the floor: stay PENDING, keep the suggestion for review.
			// The commit leaves this row's claim in place so the drain loop
			// does not fetch it again.
			tx.ConfidenceScore = r.match.Confidence
			if r.match.AccountID != "" {
				tx.Notes = fmt.Sprintf("Suggested %s (%s, %.2f)", r.match.AccountID, r.match.Source, r.match.Confidence)
			} else {
				tx.Notes = "No candidate account found"
			}
		}
		decided = append(decided, tx)
	}

	if len(decided) == 0 {
		return nil
	}
	err := database.WithTransaction(m.repo.DB(), func(sqlTx *sql.Tx) error {
		for _, tx := range decided {
			if err := m.repo.UpdateMappingTx(sqlTx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Nothing from this batch was committed; its rows return to the
		// pool when the run's claims are released. Earlier batches stand.
		return fmt.Errorf("failed to commit batch for run %s: %w", runID, err)
	}
	return nil
}

// scoreAll fans the claimed rows out over the worker pool and collects
// results in input order.
func (m *Mapper) scoreAll(claimed []domain.Transaction) []scored {
	jobs := make(chan int)
	results := make([]scored, len(claimed))

	var wg sync.WaitGroup
	for w := 0; w < m.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				match, err := m.orchestrator.Match(claimed[i])
				results[i] = scored{tx: claimed[i], match: match, err: err}
			}
		}()
	}

	for i := range claimed {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
