package directory

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ledgermap/internal/database"
	"github.com/aristath/ledgermap/internal/domain"
	"github.com/aristath/ledgermap/internal/modules/features"
)

func newTestDirectory(t *testing.T) (*Directory, *database.DB) {
	t.Helper()

	db, err := database.New(database.Config{
		Path: "file:" + t.Name() + "?mode=memory&cache=shared",
		Name: "ledger",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	repo := NewRepository(db.Conn(), zerolog.Nop())
	extractor := features.NewExtractor(zerolog.Nop())
	return New(repo, extractor, zerolog.Nop()), db
}

func seedAccounts(t *testing.T, d *Directory) {
	t.Helper()
	accounts := []domain.Account{
		{ID: "1000", Name: "Current Assets", Type: domain.AccountTypeAsset},
		{ID: "1010", Name: "Cash", Type: domain.AccountTypeAsset, ParentID: "1000"},
		{ID: "5000", Name: "Operating Expenses", Type: domain.AccountTypeExpense},
		{ID: "5100", Name: "Rent Expense", Type: domain.AccountTypeExpense, ParentID: "5000"},
		{ID: "4100", Name: "Sales Revenue", Type: domain.AccountTypeRevenue},
	}
	for _, a := range accounts {
		require.NoError(t, d.Add(a))
	}
}

func TestPartitionBySectionConvention(t *testing.T) {
	d, _ := newTestDirectory(t)
	seedAccounts(t, d)

	var regularIDs, sectionIDs []string
	for _, c := range d.RegularCandidates() {
		regularIDs = append(regularIDs, c.Account.ID)
	}
	for _, c := range d.SectionCandidates() {
		sectionIDs = append(sectionIDs, c.Account.ID)
	}

	assert.Equal(t, []string{"1010", "4100", "5100"}, regularIDs)
	assert.Equal(t, []string{"1000", "5000"}, sectionIDs)
}

func TestGet(t *testing.T) {
	d, _ := newTestDirectory(t)
	seedAccounts(t, d)

	a, err := d.Get("5100")
	require.NoError(t, err)
	assert.Equal(t, "Rent Expense", a.Name)

	_, err = d.Get("9999")
	var nfe *domain.NotFoundError
	require.True(t, errors.As(err, &nfe))
	assert.Equal(t, "account", nfe.Kind)
}

func TestListByType(t *testing.T) {
	d, _ := newTestDirectory(t)
	seedAccounts(t, d)

	expenses := d.ListByType(domain.AccountTypeExpense)
	var ids []string
	for _, a := range expenses {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"5000", "5100"}, ids)
}

func TestCandidatesHaveNameVectors(t *testing.T) {
	d, _ := newTestDirectory(t)
	seedAccounts(t, d)

	for _, c := range d.RegularCandidates() {
		assert.Len(t, c.NameVector, features.VectorDim, "account %s", c.Account.ID)
	}
}

func TestReloadPicksUpHistoricalAmounts(t *testing.T) {
	d, db := newTestDirectory(t)
	seedAccounts(t, d)

	_, err := db.Exec(`
		INSERT INTO transactions (transaction_id, date, description, amount, transaction_type, status, mapped_account_id)
		VALUES ('TX-1', '2025-01-01', 'Rent January', 1200, 'DEBIT', 'VERIFIED', '5100'),
		       ('TX-2', '2025-02-01', 'Rent February', 1200, 'DEBIT', 'MAPPED', '5100'),
		       ('TX-3', '2025-02-02', 'Something pending', 50, 'DEBIT', 'PENDING', NULL)`)
	require.NoError(t, err)

	require.NoError(t, d.Reload())

	var rent *[]float64
	for _, c := range d.RegularCandidates() {
		if c.Account.ID == "5100" {
			h := c.HistoricalAmounts
			rent = &h
		}
	}
	require.NotNil(t, rent)
	assert.Len(t, *rent, 2)
}

func TestAddRejectsUnknownType(t *testing.T) {
	d, _ := newTestDirectory(t)

	err := d.Add(domain.Account{ID: "9000", Name: "Mystery", Type: "WEIRD"})
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Zero(t, d.Size())
}

func TestDeleteAllGuardedByMappedTransactions(t *testing.T) {
	d, db := newTestDirectory(t)
	seedAccounts(t, d)

	_, err := db.Exec(`
		INSERT INTO transactions (transaction_id, date, description, amount, transaction_type, status, mapped_account_id)
		VALUES ('TX-1', '2025-01-01', 'Rent', 1200, 'DEBIT', 'MAPPED', '5100')`)
	require.NoError(t, err)

	repo := NewRepository(db.Conn(), zerolog.Nop())
	_, err = repo.DeleteAll()
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))
}
