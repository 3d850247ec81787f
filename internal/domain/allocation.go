package domain

import "github.com/shopspring/decimal"

// Allocation is the waterfall split of one payment. The four parts always sum
// to the original payment amount.
type Allocation struct {
	ToPenalties decimal.Decimal `json:"to_penalties"`
	ToInterest  decimal.Decimal `json:"to_interest"`
	ToPrincipal decimal.Decimal `json:"to_principal"`
	Remaining   decimal.Decimal `json:"remaining"`
}

// Allocate applies a payment across the borrower's debt in fixed priority
// order: penalties, then accrued interest, then principal. No bucket receives
// more than it is owed; whatever survives all three is the overpayment.
func Allocate(payment, penaltiesOwed, interestOwed, principalOwed decimal.Decimal) Allocation {
	left := payment

	toPenalties := decimal.Min(left, maxZero(penaltiesOwed))
	left = left.Sub(toPenalties)

	toInterest := decimal.Min(left, maxZero(interestOwed))
	left = left.Sub(toInterest)

	toPrincipal := decimal.Min(left, maxZero(principalOwed))
	left = left.Sub(toPrincipal)

	return Allocation{
		ToPenalties: toPenalties,
		ToInterest:  toInterest,
		ToPrincipal: toPrincipal,
		Remaining:   left,
	}
}

func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
