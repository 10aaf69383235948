package matching

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ledgermap/internal/domain"
)

func TestRuleSetAddValidation(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{
			name: "missing name",
			rule: Rule{TargetAccountID: "5000", Conditions: []Condition{{Field: FieldDescription, Op: OpEquals, Value: "x"}}},
		},
		{
			name: "missing target",
			rule: Rule{Name: "r", Conditions: []Condition{{Field: FieldDescription, Op: OpEquals, Value: "x"}}},
		},
		{
			name: "no conditions",
			rule: Rule{Name: "r", TargetAccountID: "5000"},
		},
		{
			name: "unknown field",
			rule: Rule{Name: "r", TargetAccountID: "5000", Conditions: []Condition{{Field: "vibes", Op: OpEquals, Value: "x"}}},
		},
		{
			name: "unknown op",
			rule: Rule{Name: "r", TargetAccountID: "5000", Conditions: []Condition{{Field: FieldDescription, Op: "regex", Value: "x"}}},
		},
		{
			name: "contains on amount",
			rule: Rule{Name: "r", TargetAccountID: "5000", Conditions: []Condition{{Field: FieldAmount, Op: OpContains, Value: "12"}}},
		},
		{
			name: "non-numeric amount value",
			rule: Rule{Name: "r", TargetAccountID: "5000", Conditions: []Condition{{Field: FieldAmount, Op: OpEquals, Value: "twelve"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := NewRuleSet()
			err := rs.Add(tt.rule)
			var verr *domain.ValidationError
			assert.True(t, errors.As(err, &verr))
			assert.Empty(t, rs.Rules())
		})
	}
}

func TestRuleSetEvaluate(t *testing.T) {
	rs := NewRuleSet()
	require.NoError(t, rs.Add(Rule{
		Name:            "rent by description and amount",
		TargetAccountID: "5100",
		Conditions: []Condition{
			{Field: FieldDescription, Op: OpContains, Value: "rent"},
			{Field: FieldAmount, Op: OpEquals, Value: "1200"},
		},
	}))
	require.NoError(t, rs.Add(Rule{
		Name:            "acme revenue",
		TargetAccountID: "4100",
		Conditions: []Condition{
			{Field: FieldCustomerName, Op: OpEquals, Value: "Acme Ltd"},
			{Field: FieldType, Op: OpEquals, Value: "CREDIT"},
		},
	}))

	tests := []struct {
		name    string
		tx      domain.Transaction
		want    string
		matched bool
	}{
		{
			name:    "all conditions match, case-insensitive",
			tx:      domain.Transaction{Description: "Office RENT Payment", Amount: 1200, Type: domain.TransactionDebit},
			want:    "5100",
			matched: true,
		},
		{
			name:    "amount off by more than tolerance",
			tx:      domain.Transaction{Description: "Office Rent Payment", Amount: 1200.5, Type: domain.TransactionDebit},
			matched: false,
		},
		{
			name:    "second rule on customer and type",
			tx:      domain.Transaction{Description: "Invoice 42", CustomerName: "acme ltd", Amount: 310.25, Type: domain.TransactionCredit},
			want:    "4100",
			matched: true,
		},
		{
			name:    "type mismatch blocks second rule",
			tx:      domain.Transaction{Description: "Invoice 42", CustomerName: "acme ltd", Amount: 310.25, Type: domain.TransactionDebit},
			matched: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := rs.Evaluate(tt.tx)
			assert.Equal(t, tt.matched, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuleSetFirstMatchWins(t *testing.T) {
	rs := NewRuleSet()
	require.NoError(t, rs.Add(Rule{
		Name:            "broad",
		TargetAccountID: "5000",
		Conditions:      []Condition{{Field: FieldDescription, Op: OpContains, Value: "rent"}},
	}))
	require.NoError(t, rs.Add(Rule{
		Name:            "narrow",
		TargetAccountID: "5100",
		Conditions:      []Condition{{Field: FieldDescription, Op: OpEquals, Value: "office rent"}},
	}))

	got, ok := rs.Evaluate(domain.Transaction{Description: "Office Rent"})
	require.True(t, ok)
	assert.Equal(t, "5000", got)
}
