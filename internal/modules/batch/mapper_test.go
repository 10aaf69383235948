package batch

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ledgermap/internal/database"
	"github.com/aristath/ledgermap/internal/domain"
	"github.com/aristath/ledgermap/internal/modules/directory"
	"github.com/aristath/ledgermap/internal/modules/features"
	"github.com/aristath/ledgermap/internal/modules/ledger"
	"github.com/aristath/ledgermap/internal/modules/matching"
	"github.com/aristath/ledgermap/internal/modules/patterns"
)

type fixture struct {
	db   *database.DB
	repo *ledger.Repository
	dir  *directory.Directory
}

func newFixture(t *testing.T, path string) *fixture {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	extractor := features.NewExtractor(zerolog.Nop())
	dir := directory.New(directory.NewRepository(db.Conn(), zerolog.Nop()), extractor, zerolog.Nop())
	return &fixture{
		db:   db,
		repo: ledger.NewRepository(db.Conn(), zerolog.Nop()),
		dir:  dir,
	}
}

func (f *fixture) newMapper(t *testing.T, cfg Config) *Mapper {
	t.Helper()
	extractor := features.NewExtractor(zerolog.Nop())
	store := patterns.NewStore(extractor, nil, zerolog.Nop())
	orch := matching.NewOrchestrator(f.dir, store, extractor, nil, zerolog.Nop())
	return NewMapper(f.repo, orch, f.dir, cfg, zerolog.Nop())
}

func (f *fixture) seedChart(t *testing.T) {
	t.Helper()
	for _, a := range []domain.Account{
		{ID: "1000", Name: "Current Assets", Type: domain.AccountTypeAsset},
		{ID: "5000", Name: "Operating Expenses", Type: domain.AccountTypeExpense},
		{ID: "5100", Name: "Rent Expense", Type: domain.AccountTypeExpense, ParentID: "5000"},
	} {
		require.NoError(t, f.dir.Add(a))
	}
}

func (f *fixture) seedPending(t *testing.T, ids []string, description string) {
	t.Helper()
	txs := make([]domain.Transaction, 0, len(ids))
	for _, id := range ids {
		txs = append(txs, domain.Transaction{
			ID:          id,
			Date:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			Description: description,
			Amount:      1200,
			Type:        domain.TransactionDebit,
			Status:      domain.StatusPending,
		})
	}
	require.NoError(t, f.repo.InsertBatch(txs))
}

func TestRunMapsHighConfidenceRows(t *testing.T) {
	f := newFixture(t, "file:"+t.Name()+"?mode=memory&cache=shared")
	f.seedChart(t)
	f.seedPending(t, []string{"TX-1", "TX-2", "TX-3"}, "Office Rent Payment")

	summary, err := f.newMapper(t, Config{}).Run()
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 3, summary.Mapped)
	assert.Zero(t, summary.Errored)
	assert.NotEmpty(t, summary.RunID)

	for _, id := range []string{"TX-1", "TX-2", "TX-3"} {
		tx, err := f.repo.Get(id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusMapped, tx.Status)
		assert.Equal(t, "5100", tx.MappedAccountID)
		assert.Equal(t, "auto-mapper", tx.MappedBy)
		assert.Greater(t, tx.ConfidenceScore, 0.7)
		assert.Contains(t, tx.Notes, "Auto-mapped")
	}

	// All claims were released with the commit.
	page, err := f.repo.PendingPage(10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestRunLeavesLowConfidenceSuggestion(t *testing.T) {
	f := newFixture(t, "file:"+t.Name()+"?mode=memory&cache=shared")
	f.seedChart(t)
	f.seedPending(t, []string{"TX-1"}, "Zyxwv Qrst")

	summary, err := f.newMapper(t, Config{}).Run()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.Mapped)

	tx, err := f.repo.Get("TX-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, tx.Status)
	assert.Empty(t, tx.MappedAccountID)
	assert.InDelta(t, 0.5, tx.ConfidenceScore, 1e-9)
	assert.Contains(t, tx.Notes, "Suggested 1000")

	// The row is back in the pool for the next pass or a human.
	page, err := f.repo.PendingPage(10)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestRunEmptyDirectory(t *testing.T) {
	f := newFixture(t, "file:"+t.Name()+"?mode=memory&cache=shared")
	f.seedPending(t, []string{"TX-1"}, "Office Rent Payment")

	_, err := f.newMapper(t, Config{}).Run()
	assert.Error(t, err)
}

func TestRunNothingPending(t *testing.T) {
	f := newFixture(t, "file:"+t.Name()+"?mode=memory&cache=shared")
	f.seedChart(t)

	summary, err := f.newMapper(t, Config{}).Run()
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	assert.Zero(t, summary.Mapped)
}

func TestRunDrainsPendingSetInBatches(t *testing.T) {
	f := newFixture(t, "file:"+t.Name()+"?mode=memory&cache=shared")
	f.seedChart(t)
	ids := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		ids = append(ids, fmt.Sprintf("TX-%02d", i))
	}
	f.seedPending(t, ids, "Office Rent Payment")
	// Rows the scorer cannot place must not make the drain loop spin.
	f.seedPending(t, []string{"TX-S1", "TX-S2"}, "Zyxwv Qrst")

	summary, err := f.newMapper(t, Config{BatchSize: 4}).Run()
	require.NoError(t, err)

	// One Run covers the whole pool, not just the first page.
	assert.Equal(t, 12, summary.Processed)
	assert.Equal(t, 10, summary.Mapped)
	assert.Zero(t, summary.Errored)

	stats, err := f.repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Mapped)
	assert.Equal(t, 2, stats.Pending)

	// Suggestion rows return to the pool once the run ends.
	page, err := f.repo.PendingPage(20)
	require.NoError(t, err)
	require.Len(t, page, 2)
	for _, tx := range page {
		assert.Contains(t, tx.Notes, "Suggested 1000")
	}
}

func TestConcurrentRunsMapEachRowExactlyOnce(t *testing.T) {
	// A real file under WAL, the deployment shape for two runs racing on
	// one database.
	path := filepath.Join(t.TempDir(), "ledger.db")
	f := newFixture(t, path)
	f.seedChart(t)

	ids := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		ids = append(ids, fmt.Sprintf("TX-%03d", i))
	}
	f.seedPending(t, ids, "Office Rent Payment")

	// Small batches force both runs to page through the pool while racing.
	a := f.newMapper(t, Config{BatchSize: 30, Workers: 4})
	b := f.newMapper(t, Config{BatchSize: 30, Workers: 4})

	var (
		wg         sync.WaitGroup
		summaryA   domain.BatchSummary
		summaryB   domain.BatchSummary
		errA, errB error
	)
	wg.Add(2)
	go func() { defer wg.Done(); summaryA, errA = a.Run() }()
	go func() { defer wg.Done(); summaryB, errB = b.Run() }()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)

	stats, err := f.repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, 100, stats.Mapped, "every row mapped")
	assert.Zero(t, stats.Pending)

	assert.Equal(t, 100, summaryA.Mapped+summaryB.Mapped, "each row mapped by exactly one run")
	assert.Zero(t, summaryA.Errored)
	assert.Zero(t, summaryB.Errored)

	// No claims survive the runs.
	page, err := f.repo.PendingPage(100)
	require.NoError(t, err)
	assert.Empty(t, page)
}
