package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRound2HalfUp(t *testing.T) {
	require.Equal(t, 1.01, Round2(1.005))
	require.Equal(t, 1.0, Round2(1.004))
	require.Equal(t, 0.13, Round2(0.125))
	require.Equal(t, 100.0, Round2(99.999))
}

func TestLineDiscountPercent(t *testing.T) {
	l := Line{Quantity: 2, UnitPrice: 50, DiscountPercent: 10}
	require.Equal(t, 100.0, l.Gross())
	require.Equal(t, 10.0, l.Discount())
	require.Equal(t, 90.0, l.Total())
}

func TestLineExplicitDiscountWins(t *testing.T) {
	l := Line{Quantity: 1, UnitPrice: 80, DiscountAmount: 5, DiscountPercent: 50}
	require.Equal(t, 5.0, l.Discount())
	require.Equal(t, 75.0, l.Total())
}

func TestCalculateTotalsInvariant(t *testing.T) {
	lines := []Line{
		{Quantity: 2, UnitPrice: 50, DiscountPercent: 10},
		{Quantity: 1, UnitPrice: 33.33},
	}
	totals := Calculate(lines, 0, 19)
	require.Equal(t, 133.33, totals.Subtotal)
	require.Equal(t, 10.0, totals.Discount)
	require.Equal(t, Round2((133.33-10)*0.19), totals.Tax)
	require.Equal(t, totals.Total, Round2(totals.Subtotal-totals.Discount+totals.Tax))
}

func TestCalculateIdempotent(t *testing.T) {
	lines := []Line{{Quantity: 3, UnitPrice: 19.99, DiscountPercent: 7.5}}
	first := Calculate(lines, 2.5, 19)
	second := Calculate(lines, 2.5, 19)
	require.Equal(t, first, second)
}

func TestScenarioQuoteTotals(t *testing.T) {
	// subtotal 100.00, discount 10.00, tax 19% of 90 = 17.10
	lines := []Line{{Quantity: 2, UnitPrice: 50, DiscountAmount: 10}}
	totals := Calculate(lines, 0, 19)
	require.Equal(t, 100.0, totals.Subtotal)
	require.Equal(t, 10.0, totals.Discount)
	require.Equal(t, 17.1, totals.Tax)
	require.Equal(t, 107.1, totals.Total)
}
