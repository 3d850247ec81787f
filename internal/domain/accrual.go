package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	daysInYear = decimal.NewFromInt(365)
	hundred    = decimal.NewFromInt(100)
)

// AccrueInterest computes simple interest owed on an outstanding principal
// between two dates: principal * (rate/100) * days/365, rounded to two
// decimal places once, at the end. Elapsed days are whole calendar days,
// floored and never negative.
func AccrueInterest(principal, annualRatePct decimal.Decimal, from, to time.Time) decimal.Decimal {
	days := DaysBetween(from, to)
	if days == 0 || principal.Sign() <= 0 || annualRatePct.Sign() <= 0 {
		return decimal.Zero
	}

	return principal.
		Mul(annualRatePct).Div(hundred).
		Mul(decimal.NewFromInt(int64(days))).Div(daysInYear).
		Round(2)
}

// DaysBetween returns whole calendar days from one date to another, floored
// at zero.
func DaysBetween(from, to time.Time) int {
	f := truncateToDate(from)
	t := truncateToDate(to)
	days := int(t.Sub(f).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
