// Package core holds the domain model: categories, transactions, money
// and the aggregate computations the API exposes.
//
// Money is stored as integer cents everywhere inside the system; decimal
// parsing and rounding happens only at the JSON boundary.
package core

import (
	"github.com/shopspring/decimal"
)

// Money is a non-negative amount in cents.
type Money struct {
	Cents int64
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// MoneyFromDecimal converts a boundary decimal value to cents with
// half-up rounding on the third decimal place. Negative amounts are
// rejected.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
	return Money{Cents: cents}, nil
}

// MoneyFromFloat converts a float64 amount (as decoded from JSON) to cents.
func MoneyFromFloat(f float64) (Money, error) {
	return MoneyFromDecimal(decimal.NewFromFloat(f))
}

// Decimal returns the 2-place decimal representation.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float returns the amount as a float64 for JSON encoding. Use cents for
// arithmetic; this is a presentation conversion only.
func (m Money) Float() float64 {
	return m.Decimal().InexactFloat64()
}

// Percentage returns part/total as a percentage rounded to two decimal
// places. Returns 0 when total is zero.
func Percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	p := decimal.NewFromInt(part).
		Div(decimal.NewFromInt(total)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	return p.InexactFloat64()
}
