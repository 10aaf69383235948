package matching

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ledgermap/internal/database"
	"github.com/aristath/ledgermap/internal/domain"
	"github.com/aristath/ledgermap/internal/modules/directory"
	"github.com/aristath/ledgermap/internal/modules/features"
	"github.com/aristath/ledgermap/internal/modules/patterns"
	"github.com/aristath/ledgermap/internal/modules/scoring"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *directory.Directory, *patterns.Store) {
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
	store := patterns.NewStore(extractor, nil, zerolog.Nop())

	return NewOrchestrator(dir, store, extractor, nil, zerolog.Nop()), dir, store
}

func seedChart(t *testing.T, dir *directory.Directory) {
	t.Helper()
	accounts := []domain.Account{
		{ID: "1000", Name: "Current Assets", Type: domain.AccountTypeAsset},
		{ID: "1010", Name: "Cash", Type: domain.AccountTypeAsset, ParentID: "1000"},
		{ID: "5000", Name: "Operating Expenses", Type: domain.AccountTypeExpense},
		{ID: "5100", Name: "Rent Expense", Type: domain.AccountTypeExpense, ParentID: "5000"},
		{ID: "4100", Name: "Sales Revenue", Type: domain.AccountTypeRevenue},
	}
	for _, a := range accounts {
		require.NoError(t, dir.Add(a))
	}
}

func TestMatchRegularScan(t *testing.T) {
	o, dir, _ := newTestOrchestrator(t)
	seedChart(t, dir)

	tx := domain.Transaction{
		ID:          "TX-1",
		Description: "Office Rent Payment",
		Amount:      1200,
		Type:        domain.TransactionDebit,
	}

	m, err := o.Match(tx)
	require.NoError(t, err)
	assert.Equal(t, "5100", m.AccountID)
	assert.Equal(t, SourceRegular, m.Source)
	assert.Greater(t, m.Confidence, scoring.AutoMapFloor)
	assert.Contains(t, m.Components, "description")
}

func TestMatchRuleShortCircuits(t *testing.T) {
	o, dir, _ := newTestOrchestrator(t)
	seedChart(t, dir)

	require.NoError(t, o.Rules().Add(Rule{
		Name:            "payroll to operating expenses",
		TargetAccountID: "5000",
		Conditions: []Condition{
			{Field: FieldDescription, Op: OpContains, Value: "payroll"},
		},
	}))

	m, err := o.Match(domain.Transaction{
		ID:          "TX-2",
		Description: "Monthly Payroll Run",
		Amount:      9500,
		Type:        domain.TransactionDebit,
	})
	require.NoError(t, err)
	assert.Equal(t, "5000", m.AccountID)
	assert.Equal(t, SourceRule, m.Source)
	assert.Equal(t, 1.0, m.Confidence)
}

func TestMatchPatternFastPath(t *testing.T) {
	o, dir, store := newTestOrchestrator(t)
	seedChart(t, dir)

	learned := domain.Transaction{
		ID:           "TX-OLD",
		Description:  "Acme Ltd Invoice 42",
		CustomerName: "Acme Ltd",
		Amount:       310.25,
		Type:         domain.TransactionCredit,
	}
	require.NoError(t, store.Learn(learned, "4100"))

	repeat := learned
	repeat.ID = "TX-NEW"

	m, err := o.Match(repeat)
	require.NoError(t, err)
	assert.Equal(t, "4100", m.AccountID)
	assert.Equal(t, SourcePattern, m.Source)
	assert.Greater(t, m.Confidence, scoring.PatternConfidenceFloor)
}

func TestMatchSectionFallback(t *testing.T) {
	o, dir, _ := newTestOrchestrator(t)
	seedChart(t, dir)

	// Nothing in the description resembles a regular account name, so the
	// regular best is type compatibility alone (0.3) and the scan falls
	// through to sections. Both DEBIT-compatible sections score 0.5; the
	// strict improvement test keeps the lowest id.
	m, err := o.Match(domain.Transaction{
		ID:          "TX-3",
		Description: "Zyxwv Qrst",
		Amount:      77,
		Type:        domain.TransactionDebit,
	})
	require.NoError(t, err)
	assert.Equal(t, SourceSection, m.Source)
	assert.Equal(t, "1000", m.AccountID)
	assert.InDelta(t, 0.5, m.Confidence, 1e-9)
}

func TestMatchTieBreaksToLowestAccountID(t *testing.T) {
	o, dir, _ := newTestOrchestrator(t)
	require.NoError(t, dir.Add(domain.Account{ID: "5200", Name: "Rent Expense", Type: domain.AccountTypeExpense}))
	require.NoError(t, dir.Add(domain.Account{ID: "5100", Name: "Rent Expense", Type: domain.AccountTypeExpense}))

	m, err := o.Match(domain.Transaction{
		ID:          "TX-4",
		Description: "Office Rent Payment",
		Amount:      1200,
		Type:        domain.TransactionDebit,
	})
	require.NoError(t, err)
	assert.Equal(t, "5100", m.AccountID)
}

func TestMatchIsDeterministic(t *testing.T) {
	o, dir, store := newTestOrchestrator(t)
	seedChart(t, dir)
	require.NoError(t, store.Learn(domain.Transaction{
		ID:          "TX-SEED",
		Description: "Utility Bill",
		Amount:      90,
		Type:        domain.TransactionDebit,
	}, "5000"))

	tx := domain.Transaction{
		ID:          "TX-5",
		Description: "Office Rent Payment",
		Amount:      1200,
		Type:        domain.TransactionDebit,
	}

	first, err := o.Match(tx)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := o.Match(tx)
		require.NoError(t, err)
		assert.Equal(t, first.AccountID, again.AccountID)
		assert.Equal(t, first.Confidence, again.Confidence)
		assert.Equal(t, first.Source, again.Source)
	}
}

func TestMatchEmptyDirectory(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	_, err := o.Match(domain.Transaction{ID: "TX-6", Description: "Anything", Type: domain.TransactionDebit})
	var serr *domain.ScoringError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "TX-6", serr.TransactionID)
}
