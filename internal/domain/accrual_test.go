package domain

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAccrueInterest(t *testing.T) {
	cases := []struct {
		name      string
		principal string
		rate      string
		from, to  string
		want      string
	}{
		// 10000 * 0.15 * 30/365 = 123.287..., rounded once at the end
		{"thirty days at 15pct", "10000.00", "15", "2025-01-01", "2025-01-31", "123.29"},
		{"zero days", "10000.00", "15", "2025-01-01", "2025-01-01", "0"},
		{"one day", "10000.00", "15", "2025-01-01", "2025-01-02", "4.11"},
		{"full year", "10000.00", "15", "2024-03-01", "2025-03-01", "1500"},
		{"zero principal", "0", "15", "2025-01-01", "2025-02-01", "0"},
		{"zero rate", "10000.00", "0", "2025-01-01", "2025-02-01", "0"},
		{"negative span floors to zero", "10000.00", "15", "2025-02-01", "2025-01-01", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AccrueInterest(d(tc.principal), d(tc.rate), day(tc.from), day(tc.to))
			if !got.Equal(d(tc.want)) {
				t.Errorf("AccrueInterest(%s, %s%%, %s..%s) = %s, want %s",
					tc.principal, tc.rate, tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestAccrueInterest_Linearity(t *testing.T) {
	from, to := day("2025-01-01"), day("2025-01-31")

	base := AccrueInterest(d("10000.00"), d("15"), from, to)

	doublePrincipal := AccrueInterest(d("20000.00"), d("15"), from, to)
	doubleRate := AccrueInterest(d("10000.00"), d("30"), from, to)

	eps := d("0.01")
	if doublePrincipal.Sub(base.Mul(d("2"))).Abs().GreaterThan(eps) {
		t.Errorf("doubling principal: got %s, want ~%s", doublePrincipal, base.Mul(d("2")))
	}
	if doubleRate.Sub(base.Mul(d("2"))).Abs().GreaterThan(eps) {
		t.Errorf("doubling rate: got %s, want ~%s", doubleRate, base.Mul(d("2")))
	}
}

func TestDaysBetween(t *testing.T) {
	if got := DaysBetween(day("2025-01-01"), day("2025-01-31")); got != 30 {
		t.Errorf("DaysBetween = %d, want 30", got)
	}
	if got := DaysBetween(day("2025-01-31"), day("2025-01-01")); got != 0 {
		t.Errorf("negative span: got %d, want 0", got)
	}
	// partial day floors away
	a := time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2025, 1, 2, 1, 0, 0, 0, time.UTC)
	if got := DaysBetween(a, b); got != 1 {
		t.Errorf("calendar day boundary: got %d, want 1", got)
	}
}
