package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanStatusActive  LoanStatus = "active"
	LoanStatusOverdue LoanStatus = "overdue"
	LoanStatusClosed  LoanStatus = "closed"
)

type Loan struct {
	ID     int64
	Number string

	ClientID int64

	ApprovedAmount decimal.Decimal
	InterestRate   decimal.Decimal // annual, percent
	TermMonths     int

	OutstandingBalance   decimal.Decimal
	PenaltiesOutstanding decimal.Decimal

	PrincipalPaid decimal.Decimal
	InterestPaid  decimal.Decimal
	PenaltiesPaid decimal.Decimal

	LastPaymentDate   *time.Time
	LastPaymentAmount decimal.Decimal

	Status          LoanStatus
	PreviousStatus  *LoanStatus
	StatusChangedAt *time.Time

	// DueDay is the contractual day of month a payment is expected on.
	DueDay    int
	StartDate time.Time

	CreatedAt *time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
}

// AccrualAnchor is the date interest accrues from: the last applied payment,
// or contract start if the loan has never been paid.
func (l *Loan) AccrualAnchor() time.Time {
	if l.LastPaymentDate != nil {
		return *l.LastPaymentDate
	}
	return l.StartDate
}
