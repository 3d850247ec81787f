package domain

import "fmt"

// ValidationError is a bad input the caller can correct.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// DuplicateTransactionError means a transaction with this reference ID was
// already committed. It is an idempotent no-op, not a failure: callers should
// treat the existing transaction as the result.
type DuplicateTransactionError struct {
	ReferenceID string
	Existing    *Transaction
}

func (e *DuplicateTransactionError) Error() string {
	return fmt.Sprintf("transaction with reference %q already exists", e.ReferenceID)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InvalidStatusError means the operation is not allowed in the aggregate's
// current status, e.g. a payment against a closed loan.
type InvalidStatusError struct {
	Entity string
	Status string
	Reason string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("%s in status %q: %s", e.Entity, e.Status, e.Reason)
}

// MatchingError means no loan could be confidently attributed to a verified
// payment event; the caller stages the payment for manual reconciliation.
type MatchingError struct {
	ReferenceID string
	Reason      string
}

func (e *MatchingError) Error() string {
	return fmt.Sprintf("payment %s could not be matched: %s", e.ReferenceID, e.Reason)
}

// ProcessingError wraps an unexpected storage or internal failure.
type ProcessingError struct {
	Op    string
	Cause error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Cause)
}

func (e *ProcessingError) Unwrap() error { return e.Cause }
