package scorers

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/ledgermap/internal/domain"
	"github.com/aristath/ledgermap/internal/modules/features"
)

func featureSetFor(t *testing.T, description string, amount float64, txType domain.TransactionType) *features.FeatureSet {
	t.Helper()
	e := features.NewExtractor(zerolog.Nop())
	return e.Extract(domain.Transaction{
		ID:          "TX-TEST",
		Description: description,
		Amount:      amount,
		Type:        txType,
	})
}

func candidateFor(account domain.Account, history ...float64) Candidate {
	e := features.NewExtractor(zerolog.Nop())
	return Candidate{
		Account:           account,
		NameVector:        e.DescriptionVector(account.Name),
		HistoricalAmounts: history,
	}
}

func TestScoreRegularRentExample(t *testing.T) {
	f := featureSetFor(t, "Office Rent Payment", 1200.00, domain.TransactionDebit)

	rent := candidateFor(domain.Account{ID: "5100", Name: "Rent Expense", Type: domain.AccountTypeExpense})
	cash := candidateFor(domain.Account{ID: "1000", Name: "Cash", Type: domain.AccountTypeAsset})

	rentScore := ScoreRegular(f, rent)
	cashScore := ScoreRegular(f, cash)

	assert.Greater(t, rentScore.Score, scoringAutoMapFloor,
		"rent expense should clear the auto-map floor, got %v (components %v)", rentScore.Score, rentScore.Components)
	assert.Greater(t, rentScore.Score, cashScore.Score)
	assert.Equal(t, 1.0, rentScore.Components["type_compat"])
	assert.Equal(t, 1.0, rentScore.Components["entity"])
}

const scoringAutoMapFloor = 0.7

func TestScoreRegularTypeCompatibility(t *testing.T) {
	tests := []struct {
		name     string
		txType   domain.TransactionType
		acctType domain.AccountType
		expected float64
	}{
		{name: "debit asset", txType: domain.TransactionDebit, acctType: domain.AccountTypeAsset, expected: 1},
		{name: "debit expense", txType: domain.TransactionDebit, acctType: domain.AccountTypeExpense, expected: 1},
		{name: "debit revenue", txType: domain.TransactionDebit, acctType: domain.AccountTypeRevenue, expected: 0},
		{name: "credit liability", txType: domain.TransactionCredit, acctType: domain.AccountTypeLiability, expected: 1},
		{name: "credit equity", txType: domain.TransactionCredit, acctType: domain.AccountTypeEquity, expected: 1},
		{name: "credit revenue", txType: domain.TransactionCredit, acctType: domain.AccountTypeRevenue, expected: 1},
		{name: "credit asset", txType: domain.TransactionCredit, acctType: domain.AccountTypeAsset, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, typeCompatibility(tt.txType, tt.acctType))
		})
	}
}

func TestEntityOverlapBinary(t *testing.T) {
	entities := []features.Entity{
		{Text: "Rent", Label: features.LabelTerm},
		{Text: "Office", Label: features.LabelTerm},
	}

	// One match is enough; additional matches do not accumulate
	assert.Equal(t, 1.0, entityOverlap(entities, "Office Rent Expense"))
	assert.Equal(t, 1.0, entityOverlap(entities, "rent expense"))
	assert.Equal(t, 0.0, entityOverlap(entities, "Utilities"))
	assert.Equal(t, 0.0, entityOverlap(nil, "Rent Expense"))
}

func TestHistoricalAffinity(t *testing.T) {
	assert.Equal(t, 0.0, historicalAffinity(100, nil))
	assert.InDelta(t, 0.5, historicalAffinity(100, []float64{100.005, 250}), 1e-12)
	assert.InDelta(t, 1.0, historicalAffinity(100, []float64{100, 100, 100.001}), 1e-12)
	// Tolerance boundary: exactly 0.01 away is not "similar"
	assert.Equal(t, 0.0, historicalAffinity(100, []float64{100.01}))
}

func TestScoreSectionUsesOnlyTwoFactors(t *testing.T) {
	f := featureSetFor(t, "Miscellaneous office things", 10, domain.TransactionDebit)
	section := candidateFor(domain.Account{ID: "5000", Name: "Operating Expenses", Type: domain.AccountTypeExpense})

	score := ScoreSection(f, section)
	assert.Len(t, score.Components, 2)
	assert.Equal(t, 1.0, score.Components["type_compat"])
	assert.GreaterOrEqual(t, score.Score, 0.5)
	assert.LessOrEqual(t, score.Score, 1.0)
}

func TestScoresAlwaysInUnitInterval(t *testing.T) {
	f := featureSetFor(t, "Totally unrelated gibberish zzz", 7.77, domain.TransactionCredit)

	candidates := []Candidate{
		candidateFor(domain.Account{ID: "4000", Name: "Sales Revenue", Type: domain.AccountTypeRevenue}, 7.77, 12),
		candidateFor(domain.Account{ID: "2100", Name: "Accounts Payable", Type: domain.AccountTypeLiability}),
		candidateFor(domain.Account{ID: "1000", Name: "Cash", Type: domain.AccountTypeAsset}),
	}

	for _, c := range candidates {
		for _, s := range []AccountScore{ScoreRegular(f, c), ScoreSection(f, c)} {
			assert.GreaterOrEqual(t, s.Score, 0.0)
			assert.LessOrEqual(t, s.Score, 1.0)
		}
	}
}
