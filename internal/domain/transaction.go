package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypePayment      TransactionType = "payment"
	TransactionTypeDisbursement TransactionType = "disbursement"
	TransactionTypeFee          TransactionType = "fee"
	TransactionTypeAdjustment   TransactionType = "adjustment"
)

// Transaction is the immutable record of one applied payment. Rows are created
// exactly once per reference ID and never updated or deleted.
type Transaction struct {
	ID          uuid.UUID
	ReferenceID string
	LoanID      int64
	Type        TransactionType

	Amount      decimal.Decimal
	ToPenalties decimal.Decimal
	ToInterest  decimal.Decimal
	ToPrincipal decimal.Decimal
	Remaining   decimal.Decimal

	BalanceAfter   decimal.Decimal
	PenaltiesAfter decimal.Decimal
	StatusAfter    LoanStatus

	Method *string
	Source *string
	Notes  *string

	OperatorID *int64

	PaymentDate    time.Time
	DaysSincePrior int
	RateApplied    decimal.Decimal

	CreatedAt time.Time
}
