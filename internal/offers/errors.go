package offers

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOfferNotFound = errors.New("offer not found")
	ErrItemNotFound  = errors.New("offer item not found")
)

// ValidationError rejects malformed input before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NoOpTransitionError: requested status equals the current one.
type NoOpTransitionError struct {
	Status Status
}

func (e *NoOpTransitionError) Error() string {
	return fmt.Sprintf("offer is already %s", e.Status)
}

// InvalidTransitionError: the edge is not in the transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition offer from %s to %s", e.From, e.To)
}

// StockShortfall names one item blocking an availability-gated transition.
type StockShortfall struct {
	ItemID    string
	SKU       string
	Required  int
	Available int
}

// InsufficientInventoryError blocks accepted/completed when live availability
// does not cover the requested quantities.
type InsufficientInventoryError struct {
	Items []StockShortfall
}

func (e *InsufficientInventoryError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		parts = append(parts, fmt.Sprintf("%s (required %d, available %d)", it.SKU, it.Required, it.Available))
	}
	return "insufficient inventory: " + strings.Join(parts, ", ")
}

// ReservationError is one item's failed inventory call during a multi-item
// coordinator operation.
type ReservationError struct {
	OfferItemID string
	SKU         string
	Op          string // reserve | update | release | fulfill
	Err         error
}

func (e *ReservationError) Error() string {
	return fmt.Sprintf("%s failed for item %s (sku %s): %v", e.Op, e.OfferItemID, e.SKU, e.Err)
}

func (e *ReservationError) Unwrap() error { return e.Err }

// ReservationErrors aggregates per-item failures so one bad item does not
// hide the others.
type ReservationErrors struct {
	Errors []*ReservationError
}

func (e *ReservationErrors) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, re := range e.Errors {
		parts = append(parts, re.Error())
	}
	return fmt.Sprintf("%d reservation operation(s) failed: %s", len(e.Errors), strings.Join(parts, "; "))
}

// FulfillmentError aborts the completed transition; stock may be partially
// reduced and needs manual reconciliation.
type FulfillmentError struct {
	OfferID string
	Err     error
}

func (e *FulfillmentError) Error() string {
	return fmt.Sprintf("fulfillment failed for offer %s: %v", e.OfferID, e.Err)
}

func (e *FulfillmentError) Unwrap() error { return e.Err }
