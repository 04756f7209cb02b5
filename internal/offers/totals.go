package offers

// All money math is integer, minor currency units. Prices are tax-inclusive;
// the 19% VAT share is split out of the gross total.

const vatPercent = 19

type Totals struct {
	Subtotal       int64 // sum of item gross amounts before discounts
	DiscountAmount int64
	NetTotal       int64
	TaxAmount      int64
	GrossTotal     int64 // tax-inclusive, what the customer pays
}

// ItemDiscount resolves the discount for one item: a fixed amount wins over
// a percentage of the item's gross subtotal.
func ItemDiscount(it OfferItem) int64 {
	gross := it.UnitPrice * int64(it.Quantity)
	if it.DiscountAmount > 0 {
		if it.DiscountAmount > gross {
			return gross
		}
		return it.DiscountAmount
	}
	if it.DiscountPercentage > 0 {
		return roundDiv(gross*int64(it.DiscountPercentage), 100)
	}
	return 0
}

// ItemNet is the item's gross minus its discount, floored at zero.
func ItemNet(it OfferItem) int64 {
	net := it.UnitPrice*int64(it.Quantity) - ItemDiscount(it)
	if net < 0 {
		return 0
	}
	return net
}

// Calculate recomputes offer totals from the item set.
func Calculate(items []OfferItem) Totals {
	var t Totals
	for _, it := range items {
		t.Subtotal += it.UnitPrice * int64(it.Quantity)
		t.DiscountAmount += ItemDiscount(it)
		t.GrossTotal += ItemNet(it)
	}
	// net = gross / 1.19, rounded half up on integer math
	t.NetTotal = roundDiv(t.GrossTotal*100, 100+vatPercent)
	t.TaxAmount = t.GrossTotal - t.NetTotal
	return t
}

// Apply writes the totals back onto the offer and its items.
func Apply(o *Offer) {
	for i := range o.Items {
		o.Items[i].TotalPrice = ItemNet(o.Items[i])
	}
	t := Calculate(o.Items)
	o.Subtotal = t.Subtotal
	o.DiscountAmount = t.DiscountAmount
	o.TaxAmount = t.TaxAmount
	o.TotalAmount = t.GrossTotal
}

// roundDiv divides with half-up rounding for non-negative operands.
func roundDiv(num, den int64) int64 {
	return (num + den/2) / den
}
