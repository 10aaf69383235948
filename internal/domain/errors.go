package domain

import "fmt"

// ValidationError reports malformed input: an unparseable amount, type, or
// date, or a lifecycle transition whose preconditions are not met.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a referenced entity absent from its store.
type NotFoundError struct {
	Kind string // "account", "transaction"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ConcurrencyConflictError reports a transaction row already claimed by a
// concurrent run. Non-fatal: the row is skipped and picked up on a later pass.
type ConcurrencyConflictError struct {
	TransactionID string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("transaction %s is locked by another run", e.TransactionID)
}

// InvalidStateError reports a lifecycle operation that is not allowed in the
// transaction's current status (e.g. re-mapping a VERIFIED transaction).
type InvalidStateError struct {
	TransactionID string
	Status        TransactionStatus
	Operation     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s transaction %s in status %s", e.Operation, e.TransactionID, e.Status)
}

// ScoringError wraps an unexpected failure while computing features or
// similarity for a single transaction. Isolated to that transaction.
type ScoringError struct {
	TransactionID string
	Err           error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring transaction %s: %v", e.TransactionID, e.Err)
}

func (e *ScoringError) Unwrap() error {
	return e.Err
}
