package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ledgermap/internal/database"
	"github.com/aristath/ledgermap/internal/domain"
	"github.com/aristath/ledgermap/internal/modules/batch"
	"github.com/aristath/ledgermap/internal/modules/directory"
	"github.com/aristath/ledgermap/internal/modules/features"
	"github.com/aristath/ledgermap/internal/modules/ledger"
	"github.com/aristath/ledgermap/internal/modules/matching"
	"github.com/aristath/ledgermap/internal/modules/patterns"
)

func newJobFixture(t *testing.T) (*ledger.Repository, *batch.Mapper, *database.DB) {
	t.Helper()

	db, err := database.New(database.Config{
		Path: "file:" + t.Name() + "?mode=memory&cache=shared",
		Name: "ledger",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	extractor := features.NewExtractor(zerolog.Nop())
	dir := directory.New(directory.NewRepository(db.Conn(), zerolog.Nop()), extractor, zerolog.Nop())
	require.NoError(t, dir.Add(domain.Account{ID: "5100", Name: "Rent Expense", Type: domain.AccountTypeExpense}))

	repo := ledger.NewRepository(db.Conn(), zerolog.Nop())
	store := patterns.NewStore(extractor, nil, zerolog.Nop())
	orch := matching.NewOrchestrator(dir, store, extractor, nil, zerolog.Nop())
	mapper := batch.NewMapper(repo, orch, dir, batch.Config{}, zerolog.Nop())
	return repo, mapper, db
}

func TestMapPendingJob(t *testing.T) {
	repo, mapper, _ := newJobFixture(t)
	require.NoError(t, repo.Insert(domain.Transaction{
		ID:          "TX-1",
		Date:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Description: "Office Rent Payment",
		Amount:      1200,
		Type:        domain.TransactionDebit,
	}))

	job := NewMapPendingJob(mapper, zerolog.Nop())
	assert.Equal(t, "map_pending", job.Name())
	require.NoError(t, job.Run())

	tx, err := repo.Get("TX-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMapped, tx.Status)
}

func TestMaintenanceJobReleasesStaleClaims(t *testing.T) {
	repo, _, db := newJobFixture(t)
	require.NoError(t, repo.Insert(domain.Transaction{
		ID:          "TX-1",
		Date:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Description: "Office Rent Payment",
		Amount:      1200,
		Type:        domain.TransactionDebit,
	}))

	ok, err := repo.Claim("TX-1", "run-dead", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	job := NewMaintenanceJob(db, nil, repo, zerolog.Nop())
	assert.Equal(t, "maintenance", job.Name())
	require.NoError(t, job.Run())

	page, err := repo.PendingPage(10)
	require.NoError(t, err)
	assert.Len(t, page, 1, "stale claim released back to the pool")
}
