package offers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemNet_PercentageDiscount(t *testing.T) {
	it := OfferItem{Quantity: 2, UnitPrice: 5000, DiscountPercentage: 10}
	assert.Equal(t, int64(1000), ItemDiscount(it))
	assert.Equal(t, int64(9000), ItemNet(it))
}

func TestItemNet_FixedDiscountWinsOverPercentage(t *testing.T) {
	it := OfferItem{Quantity: 1, UnitPrice: 10000, DiscountAmount: 2500, DiscountPercentage: 10}
	assert.Equal(t, int64(2500), ItemDiscount(it))
	assert.Equal(t, int64(7500), ItemNet(it))
}

func TestItemNet_DiscountNeverExceedsGross(t *testing.T) {
	it := OfferItem{Quantity: 1, UnitPrice: 500, DiscountAmount: 900}
	assert.Equal(t, int64(500), ItemDiscount(it))
	assert.Equal(t, int64(0), ItemNet(it))
}

func TestCalculate_VATSplit(t *testing.T) {
	items := []OfferItem{{Quantity: 2, UnitPrice: 5000, DiscountPercentage: 10}}
	tot := Calculate(items)

	assert.Equal(t, int64(10000), tot.Subtotal)
	assert.Equal(t, int64(1000), tot.DiscountAmount)
	assert.Equal(t, int64(9000), tot.GrossTotal)
	assert.Equal(t, int64(7563), tot.NetTotal)
	assert.Equal(t, int64(1437), tot.TaxAmount)
}

func TestCalculate_MultipleItems(t *testing.T) {
	items := []OfferItem{
		{Quantity: 3, UnitPrice: 2000},                      // 6000
		{Quantity: 1, UnitPrice: 4999, DiscountAmount: 999}, // 4000
		{Quantity: 2, UnitPrice: 0},                         // free line
	}
	tot := Calculate(items)

	assert.Equal(t, int64(10999), tot.Subtotal)
	assert.Equal(t, int64(999), tot.DiscountAmount)
	assert.Equal(t, int64(10000), tot.GrossTotal)
	assert.Equal(t, tot.GrossTotal, tot.NetTotal+tot.TaxAmount)
}

func TestCalculate_Empty(t *testing.T) {
	tot := Calculate(nil)
	assert.Zero(t, tot.GrossTotal)
	assert.Zero(t, tot.TaxAmount)
}

func TestApply_WritesTotalsOntoOffer(t *testing.T) {
	o := &Offer{Items: []OfferItem{{Quantity: 2, UnitPrice: 5000, DiscountPercentage: 10}}}
	Apply(o)

	assert.Equal(t, int64(9000), o.Items[0].TotalPrice)
	assert.Equal(t, int64(9000), o.TotalAmount)
	assert.Equal(t, int64(1437), o.TaxAmount)
	assert.Equal(t, int64(10000), o.Subtotal)
	assert.Equal(t, int64(1000), o.DiscountAmount)
}
