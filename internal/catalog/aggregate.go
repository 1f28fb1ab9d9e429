package catalog

// Aggregate summarises a product's active variants.
type Aggregate struct {
	Price    float64
	Quantity int
	MinPrice float64
	MaxPrice float64
}

// ComputeAggregate derives display price and total quantity from the active
// variants. The display price is the minimum active variant price. With no
// active variants every field is zero; that is the "no pricing" sentinel, not
// an error. Pure function, safe to call on every read.
func ComputeAggregate(variants []Variant) Aggregate {
	var agg Aggregate
	seen := false
	for _, v := range variants {
		if !v.IsActive {
			continue
		}
		agg.Quantity += v.Quantity
		if !seen {
			agg.MinPrice = v.Price
			agg.MaxPrice = v.Price
			seen = true
			continue
		}
		if v.Price < agg.MinPrice {
			agg.MinPrice = v.Price
		}
		if v.Price > agg.MaxPrice {
			agg.MaxPrice = v.Price
		}
	}
	agg.Price = agg.MinPrice
	return agg
}
