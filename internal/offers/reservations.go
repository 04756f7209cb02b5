package offers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/angebot/offers/internal/clock"
	"github.com/angebot/offers/internal/inventory"
)

// ReservationStore is the slice of persistence the coordinator needs to keep
// the reservation_id columns truthful.
type ReservationStore interface {
	UpdateItemReservation(ctx context.Context, itemID string, reservationID *string) error
	UpdateOfferReservationState(ctx context.Context, offerID string, hasReservations bool, expiresAt *time.Time) error
}

// ReservationCoordinator owns every inventory mutation of the offer
// lifecycle: reserve on activation, diff-based update on item edits, release
// on cancellation, fulfill on completion. All four operations are idempotent
// for repeated invocation on the same offer, and every operation re-fetches
// reservation state from the gateway instead of trusting stale memory.
type ReservationCoordinator struct {
	gw    inventory.Gateway
	store ReservationStore
	clock clock.Clock
	ttl   time.Duration
	log   *zap.Logger
}

func NewReservationCoordinator(gw inventory.Gateway, store ReservationStore, clk clock.Clock, ttl time.Duration, log *zap.Logger) *ReservationCoordinator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ReservationCoordinator{gw: gw, store: store, clock: clk, ttl: ttl, log: log.Named("reservations")}
}

// Reserve creates one reservation per manage-inventory product item, with
// backorder allowed: offers may promise stock ahead of replenishment, so
// available going negative is fine here (the accepted/completed gate is a
// separate, stricter rule). Pre-existing reservations tagged to this offer
// are cleared first so retries cannot stack duplicates. If any item fails,
// reservations created by this call are compensated away and an aggregate
// error is returned.
func (c *ReservationCoordinator) Reserve(ctx context.Context, o *Offer) error {
	if err := c.clearTagged(ctx, o); err != nil {
		return err
	}

	type created struct {
		itemIdx       int
		reservationID string
	}
	var (
		made     []created
		failures []*ReservationError
	)

	for i := range o.Items {
		it := &o.Items[i]
		if !it.NeedsReservation() {
			continue
		}
		rid, err := c.reserveItem(ctx, o.ID, *it)
		if err != nil {
			failures = append(failures, &ReservationError{OfferItemID: it.ID, SKU: it.SKU, Op: "reserve", Err: err})
			continue
		}
		made = append(made, created{itemIdx: i, reservationID: rid})
	}

	if len(failures) > 0 {
		// compensate: release what this call just created
		for _, m := range made {
			if err := c.gw.DeleteReservation(ctx, m.reservationID); err != nil {
				c.log.Error("rollback of fresh reservation failed",
					zap.String("offer_id", o.ID), zap.String("reservation_id", m.reservationID), zap.Error(err))
			}
		}
		return &ReservationErrors{Errors: failures}
	}

	for _, m := range made {
		it := &o.Items[m.itemIdx]
		rid := m.reservationID
		if err := c.store.UpdateItemReservation(ctx, it.ID, &rid); err != nil {
			return fmt.Errorf("persist reservation id for item %s: %w", it.ID, err)
		}
		it.ReservationID = &rid
	}

	expires := c.clock.Now().Add(c.ttl)
	if err := c.store.UpdateOfferReservationState(ctx, o.ID, true, &expires); err != nil {
		return fmt.Errorf("persist reservation state: %w", err)
	}
	o.HasReservations = true
	o.ReservationExpiresAt = &expires
	return nil
}

// UpdateChanges is the diff the orchestrator computed from an item edit.
type UpdateChanges struct {
	Deleted []OfferItem
	Updated []OfferItem
	Created []OfferItem
}

// UpdateResult summarizes a reconciliation run.
type UpdateResult struct {
	Released int `json:"released"`
	Updated  int `json:"updated"`
	Created  int `json:"created"`
}

// Update reconciles reservations after item edits on an active or accepted
// offer. The three change sets touch disjoint inventory records, so per-item
// sub-operations run concurrently; failures are collected and raised together
// once every item was attempted, leaving successful items committed.
func (c *ReservationCoordinator) Update(ctx context.Context, o *Offer, ch UpdateChanges) (UpdateResult, error) {
	var (
		mu       sync.Mutex
		res      UpdateResult
		failures []*ReservationError
	)
	fail := func(it OfferItem, op string, err error) {
		mu.Lock()
		failures = append(failures, &ReservationError{OfferItemID: it.ID, SKU: it.SKU, Op: op, Err: err})
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, it := range ch.Deleted {
		it := it
		g.Go(func() error {
			if it.ReservationID == nil {
				return nil
			}
			if err := c.deleteReservation(gctx, *it.ReservationID); err != nil {
				fail(it, "release", err)
				return nil
			}
			if err := c.store.UpdateItemReservation(gctx, it.ID, nil); err != nil {
				// item row may already be deleted, which is fine
				if !errors.Is(err, ErrItemNotFound) {
					fail(it, "release", err)
					return nil
				}
			}
			mu.Lock()
			res.Released++
			mu.Unlock()
			return nil
		})
	}

	for _, it := range ch.Updated {
		it := it
		g.Go(func() error {
			if !it.NeedsReservation() {
				return nil
			}
			rid, created, err := c.updateOrCreate(gctx, o.ID, it)
			if err != nil {
				fail(it, "update", err)
				return nil
			}
			if err := c.store.UpdateItemReservation(gctx, it.ID, &rid); err != nil {
				fail(it, "update", err)
				return nil
			}
			mu.Lock()
			if created {
				res.Created++
			} else {
				res.Updated++
			}
			mu.Unlock()
			return nil
		})
	}

	for _, it := range ch.Created {
		it := it
		g.Go(func() error {
			if !it.NeedsReservation() {
				return nil
			}
			rid, err := c.reserveItem(gctx, o.ID, it)
			if err != nil {
				fail(it, "reserve", err)
				return nil
			}
			if err := c.store.UpdateItemReservation(gctx, it.ID, &rid); err != nil {
				fail(it, "reserve", err)
				return nil
			}
			mu.Lock()
			res.Created++
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait() // sub-operations report through failures, never through errgroup

	if len(failures) > 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].OfferItemID < failures[j].OfferItemID })
		return res, &ReservationErrors{Errors: failures}
	}
	return res, nil
}

// Release drops every reservation the offer still holds. An absent
// reservation, or an unreachable inventory service, counts as already
// released: cancellation must always make forward progress, so gateway
// trouble is logged and reservation_id is nulled regardless. Returns the
// number of reservations actually deleted, so a second call reports zero.
func (c *ReservationCoordinator) Release(ctx context.Context, o *Offer) (int, error) {
	released := 0
	for i := range o.Items {
		it := &o.Items[i]
		if it.ReservationID == nil {
			continue
		}
		rid := *it.ReservationID

		_, err := c.gw.GetReservation(ctx, rid)
		switch {
		case errors.Is(err, inventory.ErrNotFound):
			// orphaned id, nothing to delete
			c.log.Info("reservation already gone", zap.String("offer_id", o.ID), zap.String("reservation_id", rid))
		case err != nil:
			c.log.Warn("reservation lookup failed during release, treating as released",
				zap.String("offer_id", o.ID), zap.String("reservation_id", rid), zap.Error(err))
		default:
			if derr := c.gw.DeleteReservation(ctx, rid); derr != nil {
				c.log.Warn("reservation delete failed during release, treating as released",
					zap.String("offer_id", o.ID), zap.String("reservation_id", rid), zap.Error(derr))
			} else {
				released++
			}
		}

		if err := c.store.UpdateItemReservation(ctx, it.ID, nil); err != nil {
			return released, fmt.Errorf("clear reservation id for item %s: %w", it.ID, err)
		}
		it.ReservationID = nil
	}

	if err := c.store.UpdateOfferReservationState(ctx, o.ID, false, nil); err != nil {
		return released, fmt.Errorf("persist reservation state: %w", err)
	}
	o.HasReservations = false
	o.ReservationExpiresAt = nil
	return released, nil
}

// Fulfill converts the offer's reservations into permanent stock deductions.
// Per item it walks the stock locations, reducing stocked_quantity by the
// lesser of the location's free quantity and what is still owed, then hands
// off to Release to clear the consumed reservations. This is the
// irreversible step of the saga: any failure aborts the transition.
func (c *ReservationCoordinator) Fulfill(ctx context.Context, o *Offer) error {
	for i := range o.Items {
		it := o.Items[i]
		if !it.NeedsReservation() {
			continue
		}
		if err := c.fulfillItem(ctx, o.ID, it); err != nil {
			return &FulfillmentError{OfferID: o.ID, Err: err}
		}
	}
	if _, err := c.Release(ctx, o); err != nil {
		return &FulfillmentError{OfferID: o.ID, Err: err}
	}
	return nil
}

func (c *ReservationCoordinator) fulfillItem(ctx context.Context, offerID string, it OfferItem) error {
	invItem, err := c.resolveItem(ctx, it.SKU)
	if err != nil {
		return err
	}
	levels, err := c.gw.ListLevels(ctx, invItem.ID)
	if err != nil {
		return err
	}

	remaining := it.Quantity
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		free := lvl.StockedQuantity - lvl.ReservedQuantity
		take := remaining
		if free < take {
			take = free
		}
		if take <= 0 {
			continue
		}
		if err := c.gw.AdjustStock(ctx, invItem.ID, lvl.LocationID, -take); err != nil {
			return fmt.Errorf("reduce stock at location %s: %w", lvl.LocationID, err)
		}
		remaining -= take
	}
	if remaining > 0 {
		// backordered portion has no stock to deduct yet
		c.log.Warn("fulfillment left a backordered remainder",
			zap.String("offer_id", offerID), zap.String("sku", it.SKU),
			zap.Int("requested", it.Quantity), zap.Int("unfulfilled", remaining))
	}
	return nil
}

// clearTagged deletes every reservation already tagged to the offer. This is
// what makes Reserve safe to retry: a half-finished earlier attempt leaves
// tagged reservations behind, and they are swept before new ones are made.
func (c *ReservationCoordinator) clearTagged(ctx context.Context, o *Offer) error {
	tagged, err := c.gw.ListReservationsByOffer(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("list reservations for offer %s: %w", o.ID, err)
	}
	for _, r := range tagged {
		if err := c.gw.DeleteReservation(ctx, r.ID); err != nil {
			return fmt.Errorf("clear stale reservation %s: %w", r.ID, err)
		}
	}
	for i := range o.Items {
		if o.Items[i].ReservationID == nil {
			continue
		}
		if err := c.store.UpdateItemReservation(ctx, o.Items[i].ID, nil); err != nil {
			return fmt.Errorf("clear reservation id for item %s: %w", o.Items[i].ID, err)
		}
		o.Items[i].ReservationID = nil
	}
	return nil
}

// reserveItem resolves the SKU, picks a location and creates one backorder-
// allowed reservation carrying the offer's ownership tag.
func (c *ReservationCoordinator) reserveItem(ctx context.Context, offerID string, it OfferItem) (string, error) {
	invItem, err := c.resolveItem(ctx, it.SKU)
	if err != nil {
		return "", err
	}
	locationID, err := pickLocation(invItem)
	if err != nil {
		return "", err
	}
	return c.gw.CreateReservation(ctx, inventory.CreateReservationInput{
		InventoryItemID: invItem.ID,
		LocationID:      locationID,
		Quantity:        it.Quantity,
		AllowBackorder:  true,
		Tag: inventory.Tag{
			Type:        inventory.TagTypeOffer,
			OfferID:     offerID,
			OfferItemID: it.ID,
			VariantID:   it.VariantID,
			SKU:         it.SKU,
		},
	})
}

// updateOrCreate adjusts an existing reservation in place, or creates one
// when the stored id no longer resolves (orphan repair). Never creates a
// second reservation for the same item.
func (c *ReservationCoordinator) updateOrCreate(ctx context.Context, offerID string, it OfferItem) (rid string, created bool, err error) {
	if it.ReservationID != nil {
		_, err := c.gw.GetReservation(ctx, *it.ReservationID)
		switch {
		case err == nil:
			if uerr := c.gw.UpdateReservation(ctx, *it.ReservationID, it.Quantity); uerr != nil {
				return "", false, uerr
			}
			return *it.ReservationID, false, nil
		case errors.Is(err, inventory.ErrNotFound):
			// fall through to create
		default:
			return "", false, err
		}
	}
	newID, err := c.reserveItem(ctx, offerID, it)
	if err != nil {
		return "", false, err
	}
	return newID, true, nil
}

func (c *ReservationCoordinator) deleteReservation(ctx context.Context, rid string) error {
	err := c.gw.DeleteReservation(ctx, rid)
	if errors.Is(err, inventory.ErrNotFound) {
		return nil
	}
	return err
}

func (c *ReservationCoordinator) resolveItem(ctx context.Context, sku string) (inventory.Item, error) {
	items, err := c.gw.ListItemsBySKU(ctx, sku)
	if err != nil {
		return inventory.Item{}, err
	}
	if len(items) == 0 {
		return inventory.Item{}, fmt.Errorf("no inventory item for sku %s: %w", sku, inventory.ErrNotFound)
	}
	return items[0], nil
}

// pickLocation prefers the location with the most free stock; with backorder
// allowed any location works, so ties and negatives still pick one.
func pickLocation(item inventory.Item) (string, error) {
	if len(item.LocationLevels) == 0 {
		return "", fmt.Errorf("inventory item %s has no stock locations", item.ID)
	}
	best := item.LocationLevels[0]
	for _, lvl := range item.LocationLevels[1:] {
		if lvl.StockedQuantity-lvl.ReservedQuantity > best.StockedQuantity-best.ReservedQuantity {
			best = lvl
		}
	}
	return best.LocationID, nil
}
