// Package domain contains the core business entities for ledgermap.
// The domain layer is pure: no database, HTTP, or logging dependencies.
package domain

import (
	"strings"
	"time"
)

// AccountType is one of the five standard account classes.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// ParseAccountType normalizes a raw account type string.
func ParseAccountType(raw string) (AccountType, error) {
	switch AccountType(strings.ToUpper(strings.TrimSpace(raw))) {
	case AccountTypeAsset:
		return AccountTypeAsset, nil
	case AccountTypeLiability:
		return AccountTypeLiability, nil
	case AccountTypeEquity:
		return AccountTypeEquity, nil
	case AccountTypeRevenue:
		return AccountTypeRevenue, nil
	case AccountTypeExpense:
		return AccountTypeExpense, nil
	}
	return "", &ValidationError{Field: "account_type", Reason: "unknown account type: " + raw}
}

// sectionSuffix marks aggregation accounts in the chart of accounts
// numbering convention: thousand-level IDs ("1000", "5000") are section
// headers, sub-coded IDs ("5100", "5110") are regular leaf accounts.
const sectionSuffix = "000"

// Account is a single entry in the chart of accounts.
type Account struct {
	ID       string
	Name     string
	Type     AccountType
	ParentID string // empty when the account has no parent
}

// IsSection reports whether the account is an aggregation (section) account,
// derived from the ID naming convention.
func (a Account) IsSection() bool {
	return strings.HasSuffix(a.ID, sectionSuffix)
}

// TransactionType is the debit/credit side of a transaction.
type TransactionType string

const (
	TransactionDebit  TransactionType = "DEBIT"
	TransactionCredit TransactionType = "CREDIT"
)

// TransactionStatus is the mapping lifecycle state of a transaction.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "PENDING"
	StatusMapped   TransactionStatus = "MAPPED"
	StatusVerified TransactionStatus = "VERIFIED"
	StatusRejected TransactionStatus = "REJECTED"
)

// Transaction is a single financial transaction moving through the
// mapping lifecycle. Mapping state is mutated only through MapToAccount,
// Verify, and Reject.
type Transaction struct {
	ID           string
	Date         time.Time
	Time         string // optional "HH:MM:SS", empty when absent
	Description  string
	CustomerName string // optional
	Amount       float64
	Type         TransactionType

	Status          TransactionStatus
	MappedAccountID string
	ConfidenceScore float64
	MappedBy        string
	MappedAt        *time.Time
	Notes           string
}

// MapToAccount transitions the transaction to MAPPED, recording the target
// account and audit fields. PENDING, REJECTED, and MAPPED transactions may
// be (re-)mapped; a VERIFIED transaction is immutable with respect to mapping.
func (t *Transaction) MapToAccount(accountID, mappedBy, notes string, confidence float64, now time.Time) error {
	if t.Status == StatusVerified {
		return &InvalidStateError{TransactionID: t.ID, Status: t.Status, Operation: "map"}
	}
	if accountID == "" {
		return &ValidationError{Field: "account_id", Reason: "account id is required"}
	}
	if confidence < 0 || confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: "confidence must be in [0,1]"}
	}

	t.MappedAccountID = accountID
	t.ConfidenceScore = confidence
	t.MappedBy = mappedBy
	t.MappedAt = &now
	t.Notes = notes
	t.Status = StatusMapped
	return nil
}

// Verify transitions a MAPPED transaction to VERIFIED. VERIFIED is terminal.
func (t *Transaction) Verify() error {
	if t.MappedAccountID == "" {
		return &ValidationError{Field: "mapped_account_id", Reason: "cannot verify transaction without a mapped account"}
	}
	t.Status = StatusVerified
	return nil
}

// Reject transitions the transaction to REJECTED, clearing the account
// reference and recording the reason. A rejected transaction may be
// re-mapped on a later pass.
func (t *Transaction) Reject(reason string) error {
	if t.Status == StatusVerified {
		return &InvalidStateError{TransactionID: t.ID, Status: t.Status, Operation: "reject"}
	}
	t.MappedAccountID = ""
	t.ConfidenceScore = 0
	t.Notes = "Rejected: " + reason
	t.Status = StatusRejected
	return nil
}

// MappingDecision is the per-transaction result exposed to collaborators.
type MappingDecision struct {
	TransactionID string            `json:"transaction_id"`
	AccountID     string            `json:"account_id,omitempty"`
	Confidence    float64           `json:"confidence"`
	Status        TransactionStatus `json:"status"`
	Notes         string            `json:"notes,omitempty"`
}

// BatchError describes a single failed row during a batch run.
type BatchError struct {
	TransactionID string `json:"transaction_id"`
	Error         string `json:"error"`
}

// MaxBatchErrorDetails bounds the error payload returned to callers.
const MaxBatchErrorDetails = 10

// BatchSummary aggregates the outcome of one batch mapping run.
type BatchSummary struct {
	RunID        string       `json:"run_id"`
	Processed    int          `json:"processed"`
	Mapped       int          `json:"mapped"`
	Errored      int          `json:"errored"`
	Skipped      int          `json:"skipped"`
	ErrorDetails []BatchError `json:"error_details,omitempty"`
}

// AddError records a failed row, keeping at most MaxBatchErrorDetails details.
func (s *BatchSummary) AddError(txID string, err error) {
	s.Errored++
	if len(s.ErrorDetails) < MaxBatchErrorDetails {
		s.ErrorDetails = append(s.ErrorDetails, BatchError{TransactionID: txID, Error: err.Error()})
	}
}
