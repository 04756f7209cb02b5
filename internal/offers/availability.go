package offers

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/angebot/offers/internal/inventory"
)

type StockStatus string

const (
	StockService      StockStatus = "service"      // non-product line, always fulfillable
	StockNoVariant    StockStatus = "no_variant"   // product without a variant reference
	StockOut          StockStatus = "out_of_stock" // available <= 0
	StockInsufficient StockStatus = "insufficient" // 0 < available < required
	StockLow          StockStatus = "low_stock"    // enough, but at or under the threshold
	StockAvailable    StockStatus = "available"
)

type ItemAvailability struct {
	ItemID    string      `json:"item_id"`
	SKU       string      `json:"sku"`
	VariantID string      `json:"variant_id,omitempty"`
	Status    StockStatus `json:"status"`
	Required  int         `json:"required"`
	Available int         `json:"available"`
}

type AvailabilityReport struct {
	Items       []ItemAvailability `json:"items"`
	CanComplete bool               `json:"can_complete"`
	HasLowStock bool               `json:"has_low_stock"`
}

// Blocking returns the items that prevent an availability-gated transition.
func (r AvailabilityReport) Blocking() []StockShortfall {
	var out []StockShortfall
	for _, it := range r.Items {
		switch it.Status {
		case StockOut, StockInsufficient, StockNoVariant:
			out = append(out, StockShortfall{
				ItemID:    it.ItemID,
				SKU:       it.SKU,
				Required:  it.Required,
				Available: it.Available,
			})
		}
	}
	return out
}

// AvailabilityChecker queries live sellable availability per variant and
// classifies each line item. Lookups for the same variant are collapsed
// with singleflight so concurrent checks hit the gateway once.
type AvailabilityChecker struct {
	gw             inventory.Gateway
	salesChannelID string
	lowStock       int
	log            *zap.Logger
	sf             singleflight.Group
}

func NewAvailabilityChecker(gw inventory.Gateway, salesChannelID string, lowStock int, log *zap.Logger) *AvailabilityChecker {
	if lowStock <= 0 {
		lowStock = 5
	}
	return &AvailabilityChecker{
		gw:             gw,
		salesChannelID: salesChannelID,
		lowStock:       lowStock,
		log:            log.Named("availability"),
	}
}

// Check evaluates every item. A gateway failure for one variant classifies
// that item out_of_stock (fail closed) and is logged, so the rest of the
// items are still evaluated.
func (c *AvailabilityChecker) Check(ctx context.Context, items []OfferItem) AvailabilityReport {
	report := AvailabilityReport{CanComplete: true}

	for _, it := range items {
		ia := ItemAvailability{
			ItemID:    it.ID,
			SKU:       it.SKU,
			VariantID: it.VariantID,
			Required:  it.Quantity,
		}

		switch {
		case !it.IsProduct():
			ia.Status = StockService
		case it.VariantID == "":
			ia.Status = StockNoVariant
			report.CanComplete = false
		default:
			avail, err := c.liveAvailability(ctx, it.VariantID)
			if err != nil {
				c.log.Warn("availability lookup failed, treating as out of stock",
					zap.String("variant_id", it.VariantID), zap.String("sku", it.SKU), zap.Error(err))
				avail = 0
			}
			ia.Available = avail
			switch {
			case avail <= 0:
				ia.Status = StockOut
				report.CanComplete = false
			case avail < it.Quantity:
				ia.Status = StockInsufficient
				report.CanComplete = false
			case avail <= c.lowStock:
				ia.Status = StockLow
				report.HasLowStock = true
			default:
				ia.Status = StockAvailable
			}
		}

		report.Items = append(report.Items, ia)
	}

	return report
}

func (c *AvailabilityChecker) liveAvailability(ctx context.Context, variantID string) (int, error) {
	key := fmt.Sprintf("%s|%s", variantID, c.salesChannelID)
	v, err, _ := c.sf.Do(key, func() (any, error) {
		m, err := c.gw.GetLiveAvailability(ctx, []string{variantID}, c.salesChannelID)
		if err != nil {
			return 0, err
		}
		return m[variantID], nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}
