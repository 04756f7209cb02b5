package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/angebot/offers/internal/offers"
	"github.com/angebot/offers/internal/redisx"
)

// OfferService is the slice of the orchestrator the API layer consumes.
type OfferService interface {
	CreateOfferWithItems(ctx context.Context, in offers.CreateOfferInput, actor string) (*offers.Offer, error)
	GetOffer(ctx context.Context, id string) (*offers.Offer, error)
	ListOffers(ctx context.Context, limit int) ([]offers.Offer, error)
	TransitionStatus(ctx context.Context, offerID string, newStatus offers.Status, actor string) (*offers.Offer, error)
	ReconcileItems(ctx context.Context, offerID string, deletions []string,
		updates []offers.ItemUpdateInput, creations []offers.ItemInput, actor string) (*offers.ReconciliationResult, error)
	CheckAvailability(ctx context.Context, offerID string) (offers.AvailabilityReport, error)
}

type HistoryReader interface {
	ListByOffer(ctx context.Context, offerID string) ([]offers.StatusHistory, error)
}

type OffersHandler struct {
	Service OfferService
	History HistoryReader
	Redis   *redis.Client
	Log     *zap.Logger
}

func (h *OffersHandler) Register(r *chi.Mux) {
	r.Post("/offers", h.createOffer)
	r.Get("/offers", h.listOffers)
	r.Get("/offers/{id}", h.getOffer)
	r.Get("/offers/{id}/status", h.getStatus)
	r.Post("/offers/{id}/status", h.transitionStatus)
	r.Put("/offers/{id}/items", h.reconcileItems)
	r.Get("/offers/{id}/availability", h.checkAvailability)
	r.Get("/offers/{id}/history", h.listHistory)
}

type createOfferReq struct {
	offers.CreateOfferInput
	Actor string `json:"actor,omitempty"`
}

func (h *OffersHandler) createOffer(w http.ResponseWriter, r *http.Request) {
	var req createOfferReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid json"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// optional fast-path idempotency via header; the DB stays the truth
	idemKey := ""
	if k := r.Header.Get("Idempotency-Key"); k != "" {
		idemKey = fmt.Sprintf(redisx.KeyIdemOfferCreate, k)
		if id, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && id != "" {
			if o, gerr := h.Service.GetOffer(ctx, id); gerr == nil {
				writeJSON(w, http.StatusOK, o)
				return
			}
		}
	}

	o, err := h.Service.CreateOfferWithItems(ctx, req.CreateOfferInput, req.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if idemKey != "" {
		_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	}
	h.cacheStatus(ctx, o)

	writeJSON(w, http.StatusCreated, o)
}

func (h *OffersHandler) listOffers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Service.ListOffers(ctx, 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": out})
}

func (h *OffersHandler) getOffer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.GetOffer(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getStatus serves from the Redis cache first, falling back to the DB.
func (h *OffersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	offerID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOfferStatus, offerID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(s))
		return
	}

	o, err := h.Service.GetOffer(ctx, offerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, statusBody(o))
}

type transitionReq struct {
	Status offers.Status `json:"status"`
	Actor  string        `json:"actor,omitempty"`
}

func (h *OffersHandler) transitionStatus(w http.ResponseWriter, r *http.Request) {
	var req transitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid json"))
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, errBody("missing status"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	o, err := h.Service.TransitionStatus(ctx, chi.URLParam(r, "id"), req.Status, req.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

type reconcileReq struct {
	Deletions []string                 `json:"deletions,omitempty"`
	Updates   []offers.ItemUpdateInput `json:"updates,omitempty"`
	Creations []offers.ItemInput       `json:"creations,omitempty"`
	Actor     string                   `json:"actor,omitempty"`
}

func (h *OffersHandler) reconcileItems(w http.ResponseWriter, r *http.Request) {
	var req reconcileReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid json"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := h.Service.ReconcileItems(ctx, chi.URLParam(r, "id"), req.Deletions, req.Updates, req.Creations, req.Actor)
	if err != nil {
		var resErrs *offers.ReservationErrors
		if errors.As(err, &resErrs) && result != nil {
			// items were applied; report which reservations failed
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"result": result,
				"error":  resErrs.Error(),
			})
			return
		}
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *OffersHandler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	report, err := h.Service.CheckAvailability(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *OffersHandler) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rows, err := h.History.ListByOffer(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": rows})
}

func (h *OffersHandler) cacheStatus(ctx context.Context, o *offers.Offer) {
	key := fmt.Sprintf(redisx.KeyOfferStatus, o.ID)
	b, _ := json.Marshal(statusBody(o))
	if err := h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err(); err != nil {
		h.Log.Debug("status cache write failed", zap.String("offer_id", o.ID), zap.Error(err))
	}
}

func statusBody(o *offers.Offer) map[string]any {
	return map[string]any{"status": o.Status, "number": o.Number}
}

// writeError maps the error taxonomy onto HTTP statuses with enough detail
// for a user-facing message.
func (h *OffersHandler) writeError(w http.ResponseWriter, err error) {
	var (
		valErr   *offers.ValidationError
		noopErr  *offers.NoOpTransitionError
		transErr *offers.InvalidTransitionError
		stockErr *offers.InsufficientInventoryError
		resErrs  *offers.ReservationErrors
		fulErr   *offers.FulfillmentError
	)
	switch {
	case errors.Is(err, offers.ErrOfferNotFound), errors.Is(err, offers.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, errBody(err.Error()))
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, errBody(valErr.Error()))
	case errors.As(err, &noopErr):
		writeJSON(w, http.StatusConflict, errBody(noopErr.Error()))
	case errors.As(err, &transErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":            transErr.Error(),
			"current_status":   transErr.From,
			"requested_status": transErr.To,
		})
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": stockErr.Error(),
			"items": stockErr.Items,
		})
	case errors.As(err, &resErrs), errors.As(err, &fulErr):
		writeJSON(w, http.StatusBadGateway, errBody(err.Error()))
	default:
		h.Log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errBody("internal error"))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func errBody(msg string) map[string]string { return map[string]string{"error": msg} }
