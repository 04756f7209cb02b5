package offers

import "time"

type ItemType string

const (
	ItemTypeProduct ItemType = "product"
	ItemTypeService ItemType = "service"
)

// Offer is one quote moving through the lifecycle in status.go.
// Money fields are integer minor currency units and always the result of
// recomputing totals from the current item set.
type Offer struct {
	ID             string
	SequenceNumber int64
	Number         string // e.g. "ANG-00001"
	Status         Status

	CustomerName  string
	CustomerEmail string
	CurrencyCode  string

	Subtotal       int64
	DiscountAmount int64
	TaxAmount      int64
	TotalAmount    int64

	HasReservations      bool
	ReservationExpiresAt *time.Time

	AcceptedAt  *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Items []OfferItem
}

// OfferItem is one line of an offer. ReservationID is non-nil iff a matching
// reservation is believed to exist in the inventory subsystem; the
// reservation coordinator keeps that truthful.
type OfferItem struct {
	ID      string
	OfferID string
	Type    ItemType

	ProductID string
	VariantID string
	ServiceID string
	SKU       string
	Title     string

	Quantity           int
	UnitPrice          int64
	DiscountPercentage int
	DiscountAmount     int64
	TaxRate            float64
	TotalPrice         int64

	ManageInventory bool
	ReservationID   *string
}

// IsProduct reports whether the item participates in inventory handling.
func (it OfferItem) IsProduct() bool { return it.Type == ItemTypeProduct }

// NeedsReservation: product items that have not opted out of inventory management.
func (it OfferItem) NeedsReservation() bool { return it.IsProduct() && it.ManageInventory }

type HistoryEventType string

const (
	HistoryEventCreated            HistoryEventType = "created"
	HistoryEventStatusChange       HistoryEventType = "status_change"
	HistoryEventReservation        HistoryEventType = "reservation"
	HistoryEventReservationUpdate  HistoryEventType = "reservation_update"
	HistoryEventReservationRelease HistoryEventType = "reservation_release"
	HistoryEventFulfillment        HistoryEventType = "fulfillment"
)

// StatusHistory is one append-only audit row. Rows are written by the
// orchestrator only, never by callers, and never updated or deleted.
type StatusHistory struct {
	ID              string
	OfferID         string
	PreviousStatus  Status
	NewStatus       Status
	EventType       HistoryEventType
	Description     string
	ChangedBy       string
	SystemChange    bool
	InventoryImpact string
	CreatedAt       time.Time
}
