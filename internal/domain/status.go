package domain

import "github.com/shopspring/decimal"

// ResolveStatus computes the loan's status after a payment. A balance at or
// below zero closes the loan no matter what; an overdue loan whose overdue
// amount has been cleared returns to active; otherwise the status is kept.
// Nothing reopens a closed loan automatically.
func ResolveStatus(current LoanStatus, newBalance, remainingOverdue decimal.Decimal) LoanStatus {
	if newBalance.Sign() <= 0 {
		return LoanStatusClosed
	}
	if current == LoanStatusOverdue && remainingOverdue.Sign() <= 0 {
		return LoanStatusActive
	}
	return current
}
