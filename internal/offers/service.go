package offers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/angebot/offers/internal/clock"
	kafkax "github.com/angebot/offers/internal/kafka"
)

// Repository is the persistence surface the orchestrator needs.
type Repository interface {
	ReservationStore
	CreateOfferWithItems(ctx context.Context, o *Offer) error
	GetOffer(ctx context.Context, id string) (*Offer, error)
	ListOffers(ctx context.Context, limit int) ([]Offer, error)
	UpdateStatus(ctx context.Context, offerID string, status Status, at time.Time) error
	UpdateTotals(ctx context.Context, o *Offer) error
	InsertItem(ctx context.Context, it *OfferItem) error
	UpdateItem(ctx context.Context, it OfferItem) error
	DeleteItem(ctx context.Context, itemID string) error
}

type HistoryStore interface {
	Append(ctx context.Context, h *StatusHistory) error
}

// Coordinator is the reservation saga engine (see reservations.go).
type Coordinator interface {
	Reserve(ctx context.Context, o *Offer) error
	Update(ctx context.Context, o *Offer, ch UpdateChanges) (UpdateResult, error)
	Release(ctx context.Context, o *Offer) (int, error)
	Fulfill(ctx context.Context, o *Offer) error
}

// Checker gates availability-sensitive transitions.
type Checker interface {
	Check(ctx context.Context, items []OfferItem) AvailabilityReport
}

// EventPublisher matches the async kafka producer; one publisher per topic.
type EventPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service composes the status machine, the reservation coordinator, the
// availability gate and persistence into the offer lifecycle operations.
type Service struct {
	repo        Repository
	history     HistoryStore
	coordinator Coordinator
	checker     Checker
	pubCreated  EventPublisher // topic offer.created
	pubStatus   EventPublisher // topic offer.status_changed
	clock       clock.Clock
	log         *zap.Logger

	serviceName string
	notify      bool
}

func NewService(repo Repository, history HistoryStore, coordinator Coordinator, checker Checker,
	pubCreated, pubStatus EventPublisher, clk clock.Clock, serviceName string, notificationsEnabled bool, log *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		history:     history,
		coordinator: coordinator,
		checker:     checker,
		pubCreated:  pubCreated,
		pubStatus:   pubStatus,
		clock:       clk,
		log:         log.Named("offers"),
		serviceName: serviceName,
		notify:      notificationsEnabled,
	}
}

// ItemInput is one line item supplied by a caller.
type ItemInput struct {
	Type               ItemType `json:"type"`
	ProductID          string   `json:"product_id,omitempty"`
	VariantID          string   `json:"variant_id,omitempty"`
	ServiceID          string   `json:"service_id,omitempty"`
	SKU                string   `json:"sku,omitempty"`
	Title              string   `json:"title"`
	Quantity           int      `json:"quantity"`
	UnitPrice          int64    `json:"unit_price"`
	DiscountPercentage int      `json:"discount_percentage,omitempty"`
	DiscountAmount     int64    `json:"discount_amount,omitempty"`
	TaxRate            float64  `json:"tax_rate,omitempty"`
	ManageInventory    *bool    `json:"manage_inventory,omitempty"`
}

type CreateOfferInput struct {
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	CurrencyCode  string      `json:"currency_code,omitempty"`
	Items         []ItemInput `json:"items"`
}

// CreateOfferWithItems creates a draft offer, computes totals and writes the
// "created" audit row. Zero items is allowed: drafts can be filled later.
func (s *Service) CreateOfferWithItems(ctx context.Context, in CreateOfferInput, actor string) (*Offer, error) {
	if in.CustomerName == "" {
		return nil, &ValidationError{Field: "customer_name", Reason: "required"}
	}
	items := make([]OfferItem, 0, len(in.Items))
	for i, ii := range in.Items {
		it, err := buildItem(ii, i)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	o := &Offer{
		ID:            uuid.NewString(),
		Status:        StatusDraft,
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
		CurrencyCode:  in.CurrencyCode,
		Items:         items,
	}
	if o.CurrencyCode == "" {
		o.CurrencyCode = "EUR"
	}
	Apply(o)

	if err := s.repo.CreateOfferWithItems(ctx, o); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, &StatusHistory{
		OfferID:     o.ID,
		NewStatus:   StatusDraft,
		EventType:   HistoryEventCreated,
		Description: fmt.Sprintf("offer %s created with %d item(s)", o.Number, len(o.Items)),
		ChangedBy:   actor,
	})
	s.emit(s.pubCreated, EventOfferCreated, o.ID, OfferCreatedPayload{
		OfferID:     o.ID,
		OfferNumber: o.Number,
		TotalAmount: o.TotalAmount,
		Currency:    o.CurrencyCode,
		ItemCount:   len(o.Items),
	})
	return o, nil
}

func (s *Service) GetOffer(ctx context.Context, id string) (*Offer, error) {
	return s.repo.GetOffer(ctx, id)
}

func (s *Service) ListOffers(ctx context.Context, limit int) ([]Offer, error) {
	return s.repo.ListOffers(ctx, limit)
}

// CheckAvailability reports live stock coverage for every offer item.
func (s *Service) CheckAvailability(ctx context.Context, offerID string) (AvailabilityReport, error) {
	o, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return AvailabilityReport{}, err
	}
	return s.checker.Check(ctx, o.Items), nil
}

// TransitionStatus runs the full saga for one status edge: validate the
// transition, gate it on live availability where required, perform the
// matching reservation action with compensation, persist status and
// timestamps, append the audit trail and emit the status-changed event.
func (s *Service) TransitionStatus(ctx context.Context, offerID string, newStatus Status, actor string) (*Offer, error) {
	if !newStatus.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", newStatus)}
	}

	o, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	prev := o.Status

	if err := CheckTransition(prev, newStatus); err != nil {
		return nil, err
	}

	if requiresAvailabilityGate(newStatus) {
		report := s.checker.Check(ctx, o.Items)
		if blocking := report.Blocking(); len(blocking) > 0 {
			return nil, &InsufficientInventoryError{Items: blocking}
		}
	}

	impact := ""
	steps := []sagaStep{}

	if st, ok := s.reservationStep(prev, newStatus, o, &impact); ok {
		steps = append(steps, st)
	}

	now := s.clock.Now()
	steps = append(steps, sagaStep{
		name: "status-update",
		run: func(ctx context.Context) error {
			return s.repo.UpdateStatus(ctx, o.ID, newStatus, now)
		},
		compensate: func(ctx context.Context) error {
			// revert the status field only; reservation compensation is its own step
			return s.repo.UpdateStatus(ctx, o.ID, prev, now)
		},
	})

	if err := newSaga(s.log, steps...).execute(ctx); err != nil {
		return nil, err
	}

	o.Status = newStatus
	switch newStatus {
	case StatusAccepted:
		o.AcceptedAt = &now
	case StatusCompleted:
		o.CompletedAt = &now
	case StatusCancelled:
		o.CancelledAt = &now
	}

	s.appendHistory(ctx, &StatusHistory{
		OfferID:         o.ID,
		PreviousStatus:  prev,
		NewStatus:       newStatus,
		EventType:       HistoryEventStatusChange,
		Description:     fmt.Sprintf("status changed from %s to %s", prev, newStatus),
		ChangedBy:       actor,
		InventoryImpact: impact,
	})
	if impact != "" {
		s.appendHistory(ctx, &StatusHistory{
			OfferID:         o.ID,
			PreviousStatus:  prev,
			NewStatus:       newStatus,
			EventType:       reservationEventType(prev, newStatus),
			Description:     impact,
			SystemChange:    true,
			InventoryImpact: impact,
		})
	}

	s.emit(s.pubStatus, EventOfferStatusChanged, o.ID, OfferStatusChangedPayload{
		OfferID:        o.ID,
		OfferNumber:    o.Number,
		PreviousStatus: prev,
		NewStatus:      newStatus,
		CustomerEmail:  o.CustomerEmail,
		CustomerName:   o.CustomerName,
	})
	return o, nil
}

// reservationStep maps a status edge to its inventory side effect and the
// compensation that undoes it.
func (s *Service) reservationStep(prev, next Status, o *Offer, impact *string) (sagaStep, bool) {
	switch {
	case prev == StatusDraft && next == StatusActive:
		return sagaStep{
			name: "reserve",
			run: func(ctx context.Context) error {
				if err := s.coordinator.Reserve(ctx, o); err != nil {
					return err
				}
				*impact = fmt.Sprintf("reserved stock for %d item(s)", countReserved(o.Items))
				return nil
			},
			compensate: func(ctx context.Context) error {
				_, err := s.coordinator.Release(ctx, o)
				return err
			},
		}, true

	case next == StatusCancelled, prev == StatusActive && next == StatusDraft:
		return sagaStep{
			name: "release",
			run: func(ctx context.Context) error {
				n, err := s.coordinator.Release(ctx, o)
				if err != nil {
					return err
				}
				*impact = fmt.Sprintf("released %d reservation(s)", n)
				return nil
			},
			compensate: func(ctx context.Context) error {
				// best effort: re-create the reservations we just dropped
				return s.coordinator.Reserve(ctx, o)
			},
		}, true

	case prev == StatusAccepted && next == StatusCompleted:
		return sagaStep{
			name: "fulfill",
			run: func(ctx context.Context) error {
				if err := s.coordinator.Fulfill(ctx, o); err != nil {
					return err
				}
				*impact = fmt.Sprintf("fulfilled %d item(s), stock reduced", countProducts(o.Items))
				return nil
			},
			// stock reduction is not safely reversible; nil compensate makes
			// the saga log a manual-reconciliation error instead of guessing
			compensate: nil,
		}, true
	}
	return sagaStep{}, false
}

// ItemUpdateInput carries changed fields for one existing item.
type ItemUpdateInput struct {
	ItemID             string   `json:"item_id"`
	Quantity           *int     `json:"quantity,omitempty"`
	UnitPrice          *int64   `json:"unit_price,omitempty"`
	DiscountPercentage *int     `json:"discount_percentage,omitempty"`
	DiscountAmount     *int64   `json:"discount_amount,omitempty"`
	VariantID          *string  `json:"variant_id,omitempty"`
	SKU                *string  `json:"sku,omitempty"`
	Title              *string  `json:"title,omitempty"`
}

// ReconciliationResult is what reconcileItems returns to the API layer.
type ReconciliationResult struct {
	Offer       *Offer       `json:"offer"`
	Reservation UpdateResult `json:"reservation"`
}

// ReconcileItems applies deletions, updates and creations to the item set.
// In draft it only persists and recomputes totals; while the offer is active
// or accepted it also reconciles inventory reservations, collecting per-item
// failures without rolling back the items that succeeded.
func (s *Service) ReconcileItems(ctx context.Context, offerID string, deletions []string,
	updates []ItemUpdateInput, creations []ItemInput, actor string) (*ReconciliationResult, error) {

	o, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.Status.IsTerminal() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("offer is %s and read-only", o.Status)}
	}

	byID := make(map[string]*OfferItem, len(o.Items))
	for i := range o.Items {
		byID[o.Items[i].ID] = &o.Items[i]
	}

	var ch UpdateChanges

	for _, id := range deletions {
		it, ok := byID[id]
		if !ok {
			return nil, &ValidationError{Field: "deletions", Reason: fmt.Sprintf("unknown item %s", id)}
		}
		ch.Deleted = append(ch.Deleted, *it)
	}
	for _, up := range updates {
		it, ok := byID[up.ItemID]
		if !ok {
			return nil, &ValidationError{Field: "updates", Reason: fmt.Sprintf("unknown item %s", up.ItemID)}
		}
		next := *it
		applyItemUpdate(&next, up)
		if next.Quantity <= 0 {
			return nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
		}
		ch.Updated = append(ch.Updated, next)
	}
	for i, ii := range creations {
		it, err := buildItem(ii, i)
		if err != nil {
			return nil, err
		}
		it.ID = uuid.NewString()
		it.OfferID = o.ID
		ch.Created = append(ch.Created, it)
	}

	// persist item rows first, then reconcile reservations against the new set
	for _, it := range ch.Deleted {
		if err := s.repo.DeleteItem(ctx, it.ID); err != nil {
			return nil, err
		}
	}
	for _, it := range ch.Updated {
		it.TotalPrice = ItemNet(it)
		if err := s.repo.UpdateItem(ctx, it); err != nil {
			return nil, err
		}
	}
	for i := range ch.Created {
		ch.Created[i].TotalPrice = ItemNet(ch.Created[i])
		if err := s.repo.InsertItem(ctx, &ch.Created[i]); err != nil {
			return nil, err
		}
	}

	fresh, err := s.repo.GetOffer(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	Apply(fresh)
	if err := s.repo.UpdateTotals(ctx, fresh); err != nil {
		return nil, err
	}

	result := &ReconciliationResult{Offer: fresh}

	if fresh.Status == StatusActive || fresh.Status == StatusAccepted {
		res, uerr := s.coordinator.Update(ctx, fresh, ch)
		result.Reservation = res
		s.appendHistory(ctx, &StatusHistory{
			OfferID:         o.ID,
			PreviousStatus:  fresh.Status,
			NewStatus:       fresh.Status,
			EventType:       HistoryEventReservationUpdate,
			Description:     fmt.Sprintf("items reconciled: %d deleted, %d updated, %d added", len(ch.Deleted), len(ch.Updated), len(ch.Created)),
			ChangedBy:       actor,
			SystemChange:    true,
			InventoryImpact: fmt.Sprintf("released %d, updated %d, created %d reservation(s)", res.Released, res.Updated, res.Created),
		})
		if uerr != nil {
			// successes stay committed; the caller sees which items failed
			return result, uerr
		}
	}

	return result, nil
}

func applyItemUpdate(it *OfferItem, up ItemUpdateInput) {
	if up.Quantity != nil {
		it.Quantity = *up.Quantity
	}
	if up.UnitPrice != nil {
		it.UnitPrice = *up.UnitPrice
	}
	if up.DiscountPercentage != nil {
		it.DiscountPercentage = *up.DiscountPercentage
	}
	if up.DiscountAmount != nil {
		it.DiscountAmount = *up.DiscountAmount
	}
	if up.VariantID != nil {
		it.VariantID = *up.VariantID
	}
	if up.SKU != nil {
		it.SKU = *up.SKU
	}
	if up.Title != nil {
		it.Title = *up.Title
	}
}

func buildItem(in ItemInput, idx int) (OfferItem, error) {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", idx, name) }

	if in.Type == "" {
		in.Type = ItemTypeProduct
	}
	if in.Type != ItemTypeProduct && in.Type != ItemTypeService {
		return OfferItem{}, &ValidationError{Field: field("type"), Reason: "must be product or service"}
	}
	if in.Quantity <= 0 {
		return OfferItem{}, &ValidationError{Field: field("quantity"), Reason: "must be positive"}
	}
	if in.UnitPrice < 0 {
		return OfferItem{}, &ValidationError{Field: field("unit_price"), Reason: "must not be negative"}
	}
	if in.DiscountPercentage < 0 || in.DiscountPercentage > 100 {
		return OfferItem{}, &ValidationError{Field: field("discount_percentage"), Reason: "must be between 0 and 100"}
	}
	if in.Type == ItemTypeProduct && in.SKU == "" {
		return OfferItem{}, &ValidationError{Field: field("sku"), Reason: "required for product items"}
	}

	manage := true
	if in.ManageInventory != nil {
		manage = *in.ManageInventory
	}
	taxRate := in.TaxRate
	if taxRate == 0 {
		taxRate = float64(vatPercent)
	}

	it := OfferItem{
		ID:                 uuid.NewString(),
		Type:               in.Type,
		ProductID:          in.ProductID,
		VariantID:          in.VariantID,
		ServiceID:          in.ServiceID,
		SKU:                in.SKU,
		Title:              in.Title,
		Quantity:           in.Quantity,
		UnitPrice:          in.UnitPrice,
		DiscountPercentage: in.DiscountPercentage,
		DiscountAmount:     in.DiscountAmount,
		TaxRate:            taxRate,
		ManageInventory:    manage,
	}
	it.TotalPrice = ItemNet(it)
	return it, nil
}

func (s *Service) appendHistory(ctx context.Context, h *StatusHistory) {
	if err := s.history.Append(ctx, h); err != nil {
		s.log.Error("history append failed", zap.String("offer_id", h.OfferID),
			zap.String("event_type", string(h.EventType)), zap.Error(err))
	}
}

// emit publishes an event envelope; emission failure is never fatal to the
// transition, and the producer itself only logs write errors.
func (s *Service) emit(pub EventPublisher, eventType, offerID string, payload any) {
	if pub == nil || !s.notify {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.clock.Now(),
		Producer:      s.serviceName,
		CorrelationID: offerID,
		Payload:       kafkax.MustMarshal(payload),
	}
	pub.Publish(PartitionKey(offerID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func reservationEventType(prev, next Status) HistoryEventType {
	switch {
	case prev == StatusDraft && next == StatusActive:
		return HistoryEventReservation
	case prev == StatusAccepted && next == StatusCompleted:
		return HistoryEventFulfillment
	default:
		return HistoryEventReservationRelease
	}
}

func countReserved(items []OfferItem) int {
	n := 0
	for _, it := range items {
		if it.ReservationID != nil {
			n++
		}
	}
	return n
}

func countProducts(items []OfferItem) int {
	n := 0
	for _, it := range items {
		if it.NeedsReservation() {
			n++
		}
	}
	return n
}
