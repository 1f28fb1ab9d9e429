package catalog

// ResolveStatus derives the lifecycle status from the current aggregate
// quantity and the reorder threshold. Evaluated in order: out of stock first,
// then low stock. A threshold of zero means the product is never flagged low.
func ResolveStatus(quantity, threshold int) Status {
	if quantity <= 0 {
		return StatusStockOut
	}
	if threshold > 0 && quantity <= threshold {
		return StatusStockLow
	}
	return StatusAvailable
}

// Threshold resolves the effective reorder threshold for a product:
// ReorderPoint falling back to MinStock falling back to zero.
func (p Product) Threshold() int {
	if p.ReorderPoint != nil {
		return *p.ReorderPoint
	}
	if p.MinStock != nil {
		return *p.MinStock
	}
	return 0
}

// VariantThreshold resolves a variant's own reorder threshold.
func (v Variant) VariantThreshold() int {
	if v.ReorderPoint != nil {
		return *v.ReorderPoint
	}
	return 0
}

// DeriveState computes the persisted derived fields for a product given its
// variants. For variant-less products the stored quantity is authoritative and
// the aggregate mirrors it.
func DeriveState(p Product, variants []Variant) (Status, Aggregate) {
	if !p.HasVariants {
		agg := Aggregate{Price: p.Price, Quantity: p.Quantity, MinPrice: p.Price, MaxPrice: p.Price}
		return ResolveStatus(p.Quantity, p.Threshold()), agg
	}
	agg := ComputeAggregate(variants)
	return ResolveStatus(agg.Quantity, p.Threshold()), agg
}
