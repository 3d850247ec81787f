package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PendingPaymentStatus string

const (
	PendingStatusUnmatched PendingPaymentStatus = "unmatched"
	PendingStatusMatched   PendingPaymentStatus = "matched"
	PendingStatusProcessed PendingPaymentStatus = "processed"
	PendingStatusRejected  PendingPaymentStatus = "rejected"
)

// PendingPayment is a bank-verified payment that automatic matching could not
// attribute to a loan. It stays in the queue until an operator matches and
// processes it, or rejects it.
type PendingPayment struct {
	ID          int64
	ReferenceID string

	Amount decimal.Decimal
	PaidAt time.Time

	SenderName      *string
	SenderAccount   *string
	ReceiverAccount *string
	BankCode        *string
	RawPayload      []byte

	Status PendingPaymentStatus

	MatchedLoanID *int64
	MatchedBy     *int64
	Notes         *string
	RejectReason  *string
	TransactionID *uuid.UUID

	CreatedAt  time.Time
	MatchedAt  *time.Time
	ResolvedAt *time.Time
}

// VerifiedPayment is an inbound bank-transfer event that has already been
// verified by the upstream provider. It is matched against open loans; the
// reference ID doubles as the ledger idempotency key.
type VerifiedPayment struct {
	ReferenceID string
	Amount      decimal.Decimal
	PaidAt      time.Time

	SenderName      string
	SenderAccount   string
	ReceiverAccount string
	BankCode        string
	Narrative       string

	RawPayload []byte
}
