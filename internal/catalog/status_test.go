package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveStatusBoundaries(t *testing.T) {
	cases := []struct {
		quantity  int
		threshold int
		want      Status
	}{
		{0, 10, StatusStockOut},
		{-1, 10, StatusStockOut},
		{10, 10, StatusStockLow},
		{1, 10, StatusStockLow},
		{11, 10, StatusAvailable},
		{5, 0, StatusAvailable}, // no threshold, never low
		{0, 0, StatusStockOut},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ResolveStatus(tc.quantity, tc.threshold),
			"quantity=%d threshold=%d", tc.quantity, tc.threshold)
	}
}

func TestThresholdFallback(t *testing.T) {
	reorder := 7
	minStock := 3

	p := Product{ReorderPoint: &reorder, MinStock: &minStock}
	require.Equal(t, 7, p.Threshold())

	p = Product{MinStock: &minStock}
	require.Equal(t, 3, p.Threshold())

	p = Product{}
	require.Equal(t, 0, p.Threshold())
}

func TestDeriveStateVariantless(t *testing.T) {
	minStock := 4
	p := Product{Quantity: 2, Price: 9, MinStock: &minStock}
	status, agg := DeriveState(p, nil)
	require.Equal(t, StatusStockLow, status)
	require.Equal(t, 2, agg.Quantity)
	require.Equal(t, float64(9), agg.Price)
}

func TestDeriveStateWithVariants(t *testing.T) {
	p := Product{HasVariants: true}
	variants := []Variant{
		{Price: 12, Quantity: 3, IsActive: true},
		{Price: 8, Quantity: 0, IsActive: true},
	}
	status, agg := DeriveState(p, variants)
	require.Equal(t, StatusAvailable, status)
	require.Equal(t, 3, agg.Quantity)
	require.Equal(t, float64(8), agg.Price)

	// All stock gone: out, regardless of prices.
	variants[0].Quantity = 0
	status, agg = DeriveState(p, variants)
	require.Equal(t, StatusStockOut, status)
	require.Equal(t, 0, agg.Quantity)
}
