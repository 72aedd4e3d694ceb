// Package rounding keeps monetary and distance rounding in one place.
package rounding

import "github.com/shopspring/decimal"

// Round rounds v to the given number of decimal places (half away from zero).
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Money rounds to cents.
func Money(v float64) float64 {
	return Round(v, 2)
}

// Sum adds values in decimal space to avoid float drift across many rows.
func Sum(vals ...float64) float64 {
	total := decimal.Zero
	for _, v := range vals {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.InexactFloat64()
}
