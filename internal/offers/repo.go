package offers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const offerColumns = `id, sequence_number, number, status, customer_name, customer_email,
	currency_code, subtotal, discount_amount, tax_amount, total_amount,
	has_reservations, reservation_expires_at, accepted_at, completed_at, cancelled_at,
	created_at, updated_at`

// CreateOfferWithItems inserts the offer and its items in one tx. The number
// comes from a dedicated sequence and is formatted ANG-00001 style.
func (r *Repo) CreateOfferWithItems(ctx context.Context, o *Offer) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.QueryRow(ctx, `SELECT nextval('offer_number_seq')`).Scan(&o.SequenceNumber); err != nil {
		return fmt.Errorf("next offer number: %w", err)
	}
	o.Number = fmt.Sprintf("ANG-%05d", o.SequenceNumber)
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO offers(id, sequence_number, number, status, customer_name, customer_email,
		                   currency_code, subtotal, discount_amount, tax_amount, total_amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		o.ID, o.SequenceNumber, o.Number, o.Status, o.CustomerName, o.CustomerEmail,
		o.CurrencyCode, o.Subtotal, o.DiscountAmount, o.TaxAmount, o.TotalAmount,
	)
	if err != nil {
		return err
	}

	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.OfferID = o.ID
		if err := insertItem(ctx, tx, *it); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func insertItem(ctx context.Context, tx pgx.Tx, it OfferItem) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO offer_items(id, offer_id, item_type, product_id, variant_id, service_id,
		                        sku, title, quantity, unit_price, discount_percentage,
		                        discount_amount, tax_rate, total_price, manage_inventory, reservation_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		it.ID, it.OfferID, it.Type, nullable(it.ProductID), nullable(it.VariantID), nullable(it.ServiceID),
		it.SKU, it.Title, it.Quantity, it.UnitPrice, it.DiscountPercentage,
		it.DiscountAmount, it.TaxRate, it.TotalPrice, it.ManageInventory, it.ReservationID,
	)
	return err
}

func (r *Repo) GetOffer(ctx context.Context, id string) (*Offer, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id=$1`, id)
	o, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, err
	}

	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *Repo) ListOffers(ctx context.Context, limit int) ([]Offer, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.DB.Query(ctx, `SELECT `+offerColumns+` FROM offers ORDER BY sequence_number DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *Repo) listItems(ctx context.Context, offerID string) ([]OfferItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, offer_id, item_type, COALESCE(product_id,''), COALESCE(variant_id,''), COALESCE(service_id,''),
		       sku, title, quantity, unit_price, discount_percentage, discount_amount,
		       tax_rate, total_price, manage_inventory, reservation_id
		FROM offer_items WHERE offer_id=$1 ORDER BY id`, offerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OfferItem
	for rows.Next() {
		var it OfferItem
		if err := rows.Scan(&it.ID, &it.OfferID, &it.Type, &it.ProductID, &it.VariantID, &it.ServiceID,
			&it.SKU, &it.Title, &it.Quantity, &it.UnitPrice, &it.DiscountPercentage, &it.DiscountAmount,
			&it.TaxRate, &it.TotalPrice, &it.ManageInventory, &it.ReservationID); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateStatus persists the new status and stamps the matching lifecycle
// timestamp. Used both forward and for the status-revert compensation.
func (r *Repo) UpdateStatus(ctx context.Context, offerID string, status Status, at time.Time) error {
	col := ""
	switch status {
	case StatusAccepted:
		col = ", accepted_at=$3"
	case StatusCompleted:
		col = ", completed_at=$3"
	case StatusCancelled:
		col = ", cancelled_at=$3"
	}
	var (
		ct  pgconn.CommandTag
		err error
	)
	if col != "" {
		ct, err = r.DB.Exec(ctx, `UPDATE offers SET status=$2, updated_at=now()`+col+` WHERE id=$1`, offerID, status, at)
	} else {
		ct, err = r.DB.Exec(ctx, `UPDATE offers SET status=$2, updated_at=now() WHERE id=$1`, offerID, status)
	}
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrOfferNotFound
	}
	return nil
}

// UpdateTotals writes the recomputed money fields.
func (r *Repo) UpdateTotals(ctx context.Context, o *Offer) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE offers SET subtotal=$2, discount_amount=$3, tax_amount=$4, total_amount=$5, updated_at=now()
		WHERE id=$1`,
		o.ID, o.Subtotal, o.DiscountAmount, o.TaxAmount, o.TotalAmount)
	return err
}

func (r *Repo) InsertItem(ctx context.Context, it *OfferItem) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := insertItem(ctx, tx, *it); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) UpdateItem(ctx context.Context, it OfferItem) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE offer_items SET quantity=$2, unit_price=$3, discount_percentage=$4, discount_amount=$5,
		       variant_id=$6, sku=$7, title=$8, total_price=$9
		WHERE id=$1`,
		it.ID, it.Quantity, it.UnitPrice, it.DiscountPercentage, it.DiscountAmount,
		nullable(it.VariantID), it.SKU, it.Title, it.TotalPrice)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *Repo) DeleteItem(ctx context.Context, itemID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM offer_items WHERE id=$1`, itemID)
	return err
}

// UpdateItemReservation keeps the reservation_id column truthful; part of
// the ReservationStore contract.
func (r *Repo) UpdateItemReservation(ctx context.Context, itemID string, reservationID *string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE offer_items SET reservation_id=$2 WHERE id=$1`, itemID, reservationID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *Repo) UpdateOfferReservationState(ctx context.Context, offerID string, hasReservations bool, expiresAt *time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE offers SET has_reservations=$2, reservation_expires_at=$3, updated_at=now()
		WHERE id=$1`, offerID, hasReservations, expiresAt)
	return err
}

func scanOffer(row pgx.Row) (*Offer, error) {
	var o Offer
	err := row.Scan(&o.ID, &o.SequenceNumber, &o.Number, &o.Status, &o.CustomerName, &o.CustomerEmail,
		&o.CurrencyCode, &o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.TotalAmount,
		&o.HasReservations, &o.ReservationExpiresAt, &o.AcceptedAt, &o.CompletedAt, &o.CancelledAt,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
