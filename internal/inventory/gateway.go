package inventory

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable marks transport-level failures against the inventory service.
	ErrUnavailable = errors.New("inventory service unavailable")
	// ErrNotFound marks a missing inventory item or reservation.
	ErrNotFound = errors.New("inventory record not found")
)

// Item is one inventory record, resolved by SKU.
type Item struct {
	ID             string          `json:"id"`
	SKU            string          `json:"sku"`
	LocationLevels []LocationLevel `json:"location_levels"`
}

// LocationLevel is the stock position of an item at one stock location.
type LocationLevel struct {
	LocationID       string `json:"location_id"`
	StockedQuantity  int    `json:"stocked_quantity"`
	ReservedQuantity int    `json:"reserved_quantity"`
}

// Tag is the ownership metadata attached to every reservation this system
// creates. It is what lets us find and clean up our own reservations without
// keeping a separate index.
type Tag struct {
	Type        string `json:"type"` // always "offer"
	OfferID     string `json:"offer_id"`
	OfferItemID string `json:"offer_item_id"`
	VariantID   string `json:"variant_id,omitempty"`
	SKU         string `json:"sku,omitempty"`
}

const TagTypeOffer = "offer"

// Reservation is a soft hold against an inventory item.
type Reservation struct {
	ID              string `json:"id"`
	InventoryItemID string `json:"inventory_item_id"`
	LocationID      string `json:"location_id"`
	Quantity        int    `json:"quantity"`
	AllowBackorder  bool   `json:"allow_backorder"`
	Tag             Tag    `json:"metadata"`
}

// CreateReservationInput carries everything needed for one reservation.
type CreateReservationInput struct {
	InventoryItemID string `json:"inventory_item_id"`
	LocationID      string `json:"location_id"`
	Quantity        int    `json:"quantity"`
	AllowBackorder  bool   `json:"allow_backorder"`
	Tag             Tag    `json:"metadata"`
}

// Gateway is the full contract against the external inventory subsystem.
// Every mutation the offer core performs goes through here.
type Gateway interface {
	// ListItemsBySKU resolves inventory records for a SKU.
	ListItemsBySKU(ctx context.Context, sku string) ([]Item, error)
	// ListLevels returns the per-location stock positions of an item.
	ListLevels(ctx context.Context, inventoryItemID string) ([]LocationLevel, error)

	// CreateReservation returns the new reservation id.
	CreateReservation(ctx context.Context, in CreateReservationInput) (string, error)
	// UpdateReservation changes the quantity of an existing reservation in place.
	UpdateReservation(ctx context.Context, id string, quantity int) error
	// GetReservation returns ErrNotFound when the reservation no longer exists.
	GetReservation(ctx context.Context, id string) (Reservation, error)
	// DeleteReservation must treat "not found" as success.
	DeleteReservation(ctx context.Context, id string) error
	// ListReservationsByOffer finds every reservation tagged with the offer id.
	ListReservationsByOffer(ctx context.Context, offerID string) ([]Reservation, error)

	// AdjustStock changes stocked_quantity by delta (negative for fulfillment).
	AdjustStock(ctx context.Context, inventoryItemID, locationID string, delta int) error

	// GetLiveAvailability returns sellable quantity per variant for a sales channel.
	GetLiveAvailability(ctx context.Context, variantIDs []string, salesChannelID string) (map[string]int, error)
}
