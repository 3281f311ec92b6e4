// Package pricing computes line and document totals for quotes, orders and
// sales. All functions are pure: recomputing from the same item set always
// yields the same totals.
package pricing

import "math"

// Round2 rounds to two decimal places using round-half-up.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

// Line is one priced document line. When DiscountAmount is non-zero it is
// used as an explicit currency discount, otherwise DiscountPercent applies.
type Line struct {
	Quantity        int
	UnitPrice       float64
	DiscountAmount  float64
	DiscountPercent float64
}

// Gross returns quantity * unit price rounded to two decimals.
func (l Line) Gross() float64 {
	return Round2(float64(l.Quantity) * l.UnitPrice)
}

// Discount returns the currency discount applied to the line.
func (l Line) Discount() float64 {
	if l.DiscountAmount != 0 {
		return Round2(l.DiscountAmount)
	}
	return Round2(l.Gross() * l.DiscountPercent / 100)
}

// Total returns the line total after discount.
func (l Line) Total() float64 {
	return Round2(l.Gross() - l.Discount())
}

// Totals aggregates document-level amounts. The invariant
// Total == Subtotal - Discount + Tax holds by construction.
type Totals struct {
	Subtotal float64
	Discount float64
	Tax      float64
	Total    float64
}

// Calculate computes document totals from lines, an optional document-level
// discount and a tax rate expressed as a percentage. Tax applies to the
// discounted subtotal.
func Calculate(lines []Line, documentDiscount, taxRatePercent float64) Totals {
	var subtotal, discount float64
	for _, l := range lines {
		subtotal += l.Gross()
		discount += l.Discount()
	}
	subtotal = Round2(subtotal)
	discount = Round2(discount + documentDiscount)
	tax := Round2((subtotal - discount) * taxRatePercent / 100)
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    Round2(subtotal - discount + tax),
	}
}
