package offers

import (
	"encoding/json"
	"time"
)

const (
	EventOfferCreated       = "OfferCreated"
	EventOfferStatusChanged = "OfferStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`   // uuid
	EventType     string          `json:"event_type"` // one of the consts above
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"` // RFC3339
	Producer      string          `json:"producer"`    // e.g. "offer-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // offer_id
	Payload       json.RawMessage `json:"payload"`
}

type OfferCreatedPayload struct {
	OfferID     string `json:"offer_id"`
	OfferNumber string `json:"offer_number"`
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`
	ItemCount   int    `json:"item_count"`
}

// OfferStatusChangedPayload is what the notification/PDF subsystem consumes.
type OfferStatusChangedPayload struct {
	OfferID        string `json:"offer_id"`
	OfferNumber    string `json:"offer_number"`
	PreviousStatus Status `json:"previous_status"`
	NewStatus      Status `json:"new_status"`
	CustomerEmail  string `json:"customer_email"`
	CustomerName   string `json:"customer_name"`
}
