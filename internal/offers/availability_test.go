package offers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestChecker(gw *fakeGateway) *AvailabilityChecker {
	return NewAvailabilityChecker(gw, "sc_test", 5, zap.NewNop())
}

func TestCheck_Classification(t *testing.T) {
	gw := newFakeGateway()
	gw.availability["var_out"] = 0
	gw.availability["var_neg"] = -3
	gw.availability["var_short"] = 4
	gw.availability["var_low"] = 5
	gw.availability["var_ok"] = 80

	checker := newTestChecker(gw)

	items := []OfferItem{
		{ID: "it_svc", Type: ItemTypeService, Quantity: 1},
		{ID: "it_novar", Type: ItemTypeProduct, SKU: "SKU-NV", Quantity: 1},
		{ID: "it_out", Type: ItemTypeProduct, SKU: "SKU-O", VariantID: "var_out", Quantity: 1},
		{ID: "it_neg", Type: ItemTypeProduct, SKU: "SKU-N", VariantID: "var_neg", Quantity: 1},
		{ID: "it_short", Type: ItemTypeProduct, SKU: "SKU-S", VariantID: "var_short", Quantity: 10},
		{ID: "it_low", Type: ItemTypeProduct, SKU: "SKU-L", VariantID: "var_low", Quantity: 2},
		{ID: "it_ok", Type: ItemTypeProduct, SKU: "SKU-OK", VariantID: "var_ok", Quantity: 10},
	}

	report := checker.Check(context.Background(), items)
	require.Len(t, report.Items, len(items))

	byID := map[string]ItemAvailability{}
	for _, ia := range report.Items {
		byID[ia.ItemID] = ia
	}

	assert.Equal(t, StockService, byID["it_svc"].Status)
	assert.Equal(t, StockNoVariant, byID["it_novar"].Status)
	assert.Equal(t, StockOut, byID["it_out"].Status)
	assert.Equal(t, StockOut, byID["it_neg"].Status)
	assert.Equal(t, StockInsufficient, byID["it_short"].Status)
	assert.Equal(t, 4, byID["it_short"].Available)
	assert.Equal(t, 10, byID["it_short"].Required)
	assert.Equal(t, StockLow, byID["it_low"].Status)
	assert.Equal(t, StockAvailable, byID["it_ok"].Status)

	assert.False(t, report.CanComplete)
	assert.True(t, report.HasLowStock)
}

func TestCheck_CanCompleteWhenCovered(t *testing.T) {
	gw := newFakeGateway()
	gw.availability["var_a"] = 100
	checker := newTestChecker(gw)

	report := checker.Check(context.Background(), []OfferItem{
		{ID: "it_a", Type: ItemTypeProduct, SKU: "SKU-A", VariantID: "var_a", Quantity: 10},
		{ID: "it_svc", Type: ItemTypeService, Quantity: 3},
	})

	assert.True(t, report.CanComplete)
	assert.False(t, report.HasLowStock)
	assert.Empty(t, report.Blocking())
}

// A failed lookup for one variant fails closed for that item only.
func TestCheck_LookupFailureFailsClosed(t *testing.T) {
	gw := newFakeGateway()
	gw.availability["var_ok"] = 50
	gw.availErr["var_bad"] = errors.New("inventory down")
	checker := newTestChecker(gw)

	report := checker.Check(context.Background(), []OfferItem{
		{ID: "it_bad", Type: ItemTypeProduct, SKU: "SKU-B", VariantID: "var_bad", Quantity: 2},
		{ID: "it_ok", Type: ItemTypeProduct, SKU: "SKU-OK", VariantID: "var_ok", Quantity: 2},
	})

	byID := map[string]ItemAvailability{}
	for _, ia := range report.Items {
		byID[ia.ItemID] = ia
	}
	assert.Equal(t, StockOut, byID["it_bad"].Status)
	assert.Zero(t, byID["it_bad"].Available)
	assert.Equal(t, StockAvailable, byID["it_ok"].Status, "remaining items still evaluated")
	assert.False(t, report.CanComplete)
}

func TestBlocking_NamesShortfalls(t *testing.T) {
	gw := newFakeGateway()
	gw.availability["var_short"] = 4
	checker := newTestChecker(gw)

	report := checker.Check(context.Background(), []OfferItem{
		{ID: "it_short", Type: ItemTypeProduct, SKU: "SKU-S", VariantID: "var_short", Quantity: 10},
	})

	blocking := report.Blocking()
	require.Len(t, blocking, 1)
	assert.Equal(t, StockShortfall{ItemID: "it_short", SKU: "SKU-S", Required: 10, Available: 4}, blocking[0])
}
