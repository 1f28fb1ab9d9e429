package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeAggregateExcludesInactive(t *testing.T) {
	variants := []Variant{
		{Price: 10, Quantity: 5, IsActive: true},
		{Price: 15, Quantity: 0, IsActive: true},
		{Price: 5, Quantity: 3, IsActive: false},
	}
	agg := ComputeAggregate(variants)
	require.Equal(t, float64(10), agg.Price)
	require.Equal(t, 5, agg.Quantity)
	require.Equal(t, float64(10), agg.MinPrice)
	require.Equal(t, float64(15), agg.MaxPrice)
}

func TestComputeAggregateNoActiveVariants(t *testing.T) {
	agg := ComputeAggregate([]Variant{{Price: 5, Quantity: 3, IsActive: false}})
	require.Equal(t, Aggregate{}, agg)

	require.Equal(t, Aggregate{}, ComputeAggregate(nil))
}

func TestComputeAggregateSingleActive(t *testing.T) {
	agg := ComputeAggregate([]Variant{{Price: 42, Quantity: 7, IsActive: true}})
	require.Equal(t, float64(42), agg.Price)
	require.Equal(t, float64(42), agg.MinPrice)
	require.Equal(t, float64(42), agg.MaxPrice)
	require.Equal(t, 7, agg.Quantity)
}
