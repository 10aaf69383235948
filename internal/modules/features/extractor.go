// Package features turns raw transaction fields into a canonical,
// scoring-ready representation: normalized tokens, extracted entities, and a
// deterministic dense description vector.
package features

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgermap/internal/domain"
)

// FeatureSet is the ephemeral, per-transaction representation used during
// scoring. It is produced and consumed entirely within one matching call and
// never persisted.
type FeatureSet struct {
	Tokens       []string
	Entities     []Entity
	Vector       []float64
	Amount       float64
	Type         domain.TransactionType
	Date         time.Time
	CustomerName string // lower-cased, empty when absent
}

// RawTransaction holds unparsed transaction fields as delivered by the
// ingestion boundary.
type RawTransaction struct {
	ID           string `json:"transaction_id"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Description  string `json:"description"`
	CustomerName string `json:"customer_name"`
	Amount       string `json:"amount"`
	Type         string `json:"transaction_type"`
}

// Extractor computes feature sets from transactions.
type Extractor struct {
	log zerolog.Logger
}

// NewExtractor creates a new feature extractor.
func NewExtractor(log zerolog.Logger) *Extractor {
	return &Extractor{
		log: log.With().Str("component", "features").Logger(),
	}
}

// Extract computes the feature set for an already-normalized transaction.
func (e *Extractor) Extract(tx domain.Transaction) *FeatureSet {
	tokens := Tokenize(tx.Description)
	return &FeatureSet{
		Tokens:       tokens,
		Entities:     ExtractEntities(tx.Description),
		Vector:       EmbedTokens(tokens),
		Amount:       tx.Amount,
		Type:         tx.Type,
		Date:         tx.Date,
		CustomerName: strings.ToLower(strings.TrimSpace(tx.CustomerName)),
	}
}

// Normalize validates and converts a raw transaction into a domain
// transaction in PENDING status. It fails with a domain.ValidationError when
// the amount is not a decimal number, the type does not normalize to
// DEBIT/CREDIT, or the date is unparseable.
func (e *Extractor) Normalize(raw RawTransaction) (domain.Transaction, error) {
	if strings.TrimSpace(raw.Description) == "" {
		return domain.Transaction{}, &domain.ValidationError{Field: "description", Reason: "description is required"}
	}

	amount, err := CleanAmount(raw.Amount)
	if err != nil {
		return domain.Transaction{}, err
	}

	txType, err := NormalizeType(raw.Type)
	if err != nil {
		return domain.Transaction{}, err
	}

	date, err := ParseDate(raw.Date)
	if err != nil {
		return domain.Transaction{}, err
	}

	return domain.Transaction{
		ID:           strings.TrimSpace(raw.ID),
		Date:         date,
		Time:         strings.TrimSpace(raw.Time),
		Description:  strings.TrimSpace(raw.Description),
		CustomerName: strings.TrimSpace(raw.CustomerName),
		Amount:       amount,
		Type:         txType,
		Status:       domain.StatusPending,
	}, nil
}

// DescriptionVector embeds arbitrary text (e.g. an account name) into the
// same vector space as transaction descriptions.
func (e *Extractor) DescriptionVector(text string) []float64 {
	return EmbedTokens(Tokenize(text))
}

// CleanAmount strips currency symbols, thousands separators, and other
// non-numeric noise from an amount string and parses the remaining decimal.
// The sign is discarded: amounts are non-negative magnitudes, direction is
// carried by the transaction type.
func CleanAmount(raw string) (float64, error) {
	var b strings.Builder
	for _, c := range raw {
		if (c >= '0' && c <= '9') || c == '.' || c == '-' {
			b.WriteRune(c)
		}
	}

	cleaned := b.String()
	if cleaned == "" {
		return 0, &domain.ValidationError{Field: "amount", Reason: "not a number: " + strings.TrimSpace(raw)}
	}

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, &domain.ValidationError{Field: "amount", Reason: "not a number: " + strings.TrimSpace(raw)}
	}

	return math.Abs(amount), nil
}

// NormalizeType maps the short bank-statement forms onto DEBIT/CREDIT.
// DR and D mean DEBIT; CR and C mean CREDIT. Anything else is an error.
func NormalizeType(raw string) (domain.TransactionType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBIT", "DR", "D":
		return domain.TransactionDebit, nil
	case "CREDIT", "CR", "C":
		return domain.TransactionCredit, nil
	}
	return "", &domain.ValidationError{Field: "transaction_type", Reason: "invalid transaction type: " + strings.TrimSpace(raw)}
}

// dateLayouts are tried in order when parsing transaction dates.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02 Jan 2006",
}

// ParseDate parses a transaction date string.
func ParseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &domain.ValidationError{Field: "date", Reason: "unparseable date: " + trimmed}
}
