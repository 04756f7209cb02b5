package offers

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryRepo is append-only: rows are never updated or deleted.
type HistoryRepo struct{ DB *pgxpool.Pool }

func (r *HistoryRepo) Append(ctx context.Context, h *StatusHistory) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO offer_status_history(id, offer_id, previous_status, new_status, event_type,
		                                 description, changed_by, system_change, inventory_impact)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		h.ID, h.OfferID, h.PreviousStatus, h.NewStatus, h.EventType,
		h.Description, h.ChangedBy, h.SystemChange, h.InventoryImpact)
	return err
}

func (r *HistoryRepo) ListByOffer(ctx context.Context, offerID string) ([]StatusHistory, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, offer_id, previous_status, new_status, event_type,
		       description, changed_by, system_change, inventory_impact, created_at
		FROM offer_status_history WHERE offer_id=$1 ORDER BY created_at`, offerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusHistory
	for rows.Next() {
		var h StatusHistory
		if err := rows.Scan(&h.ID, &h.OfferID, &h.PreviousStatus, &h.NewStatus, &h.EventType,
			&h.Description, &h.ChangedBy, &h.SystemChange, &h.InventoryImpact, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
