// Package scorers implements the per-account scoring factors used by the
// matching orchestrator.
package scorers

import (
	"strings"

	"github.com/aristath/ledgermap/internal/domain"
	"github.com/aristath/ledgermap/internal/modules/features"
	"github.com/aristath/ledgermap/internal/modules/scoring"
)

// Candidate bundles everything the scorer needs to know about one account:
// the account itself, its precomputed name vector, and the amounts of its
// historical (already mapped) transactions.
type Candidate struct {
	Account           domain.Account
	NameVector        []float64
	HistoricalAmounts []float64
}

// AccountScore is the scored result for one candidate account.
type AccountScore struct {
	AccountID  string             `json:"account_id"`
	Score      float64            `json:"score"`
	Components map[string]float64 `json:"components"`
}

// historicalAmountTolerance - historical transactions within this distance of
// the current amount count as "similar".
const historicalAmountTolerance = 0.01

// ScoreRegular scores a regular (non-section) account candidate.
// Components:
//   - description (40%): cosine similarity of description and account name vectors
//   - type compatibility (30%): debit pairs with asset/expense, credit with the rest
//   - entity overlap (20%): any extracted entity appearing in the account name
//   - history (10%): share of past transactions with a near-identical amount
func ScoreRegular(f *features.FeatureSet, c Candidate) AccountScore {
	desc := scoring.CosineSimilarity(f.Vector, c.NameVector)
	typeCompat := typeCompatibility(f.Type, c.Account.Type)
	entity := entityOverlap(f.Entities, c.Account.Name)
	history := historicalAffinity(f.Amount, c.HistoricalAmounts)

	score := desc*scoring.RegularWeightDescription +
		typeCompat*scoring.RegularWeightType +
		entity*scoring.RegularWeightEntity +
		history*scoring.RegularWeightHistory

	return AccountScore{
		AccountID: c.Account.ID,
		Score:     score,
		Components: map[string]float64{
			"description": desc,
			"type_compat": typeCompat,
			"entity":      entity,
			"history":     history,
		},
	}
}

// ScoreSection scores a section (aggregation) account candidate. Sections
// are a coarser fallback, so only description similarity and type
// compatibility apply, split evenly.
func ScoreSection(f *features.FeatureSet, c Candidate) AccountScore {
	desc := scoring.CosineSimilarity(f.Vector, c.NameVector)
	typeCompat := typeCompatibility(f.Type, c.Account.Type)

	score := desc*scoring.SectionWeightDescription +
		typeCompat*scoring.SectionWeightType

	return AccountScore{
		AccountID: c.Account.ID,
		Score:     score,
		Components: map[string]float64{
			"description": desc,
			"type_compat": typeCompat,
		},
	}
}

// typeCompatibility awards the full factor when the transaction side pairs
// with the account class under double-entry convention: debits increase
// assets and expenses, credits increase liabilities, equity, and revenue.
func typeCompatibility(txType domain.TransactionType, acctType domain.AccountType) float64 {
	if txType == domain.TransactionDebit {
		if acctType == domain.AccountTypeAsset || acctType == domain.AccountTypeExpense {
			return 1.0
		}
		return 0
	}
	if acctType == domain.AccountTypeLiability ||
		acctType == domain.AccountTypeEquity ||
		acctType == domain.AccountTypeRevenue {
		return 1.0
	}
	return 0
}

// entityOverlap awards the full factor if any extracted entity text is a
// substring of the account name. Binary, first match wins.
func entityOverlap(entities []features.Entity, accountName string) float64 {
	name := strings.ToLower(accountName)
	for _, ent := range entities {
		if strings.Contains(name, strings.ToLower(ent.Text)) {
			return 1.0
		}
	}
	return 0
}

// historicalAffinity is the fraction of the account's past transactions
// whose amount is within historicalAmountTolerance of the current amount,
// capped at 1.0.
func historicalAffinity(amount float64, pastAmounts []float64) float64 {
	if len(pastAmounts) == 0 {
		return 0
	}

	similar := 0
	for _, past := range pastAmounts {
		diff := past - amount
		if diff < 0 {
			diff = -diff
		}
		if diff < historicalAmountTolerance {
			similar++
		}
	}

	ratio := float64(similar) / float64(len(pastAmounts))
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}
