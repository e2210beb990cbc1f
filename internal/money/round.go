// Package money provides the rounding helpers shared by every monetary
// computation. Amounts are carried as float64 through the calculation
// pipeline and rounded half-up to two decimals only at the edge.
package money

import "github.com/shopspring/decimal"

const places = 2

// Round rounds a value half-up to two decimal places.
func Round(v float64) float64 {
	out, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return out
}

// RoundPtr rounds an optional amount, preserving absence.
func RoundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := Round(*v)
	return &r
}

// Ptr returns a pointer to v. Convenience for optional amounts.
func Ptr(v float64) *float64 {
	return &v
}

// Equal reports whether two amounts match once rounded to the cent.
func Equal(a, b float64) bool {
	return decimal.NewFromFloat(a).Round(places).Equal(decimal.NewFromFloat(b).Round(places))
}
