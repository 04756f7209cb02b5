package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client talks JSON over HTTP to the inventory service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL, token string, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log.Named("inventory-client"),
	}
}

func (c *Client) ListItemsBySKU(ctx context.Context, sku string) ([]Item, error) {
	var out struct {
		Items []Item `json:"inventory_items"`
	}
	q := url.Values{"sku": {sku}}
	if err := c.do(ctx, http.MethodGet, "/inventory-items?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) ListLevels(ctx context.Context, inventoryItemID string) ([]LocationLevel, error) {
	var out struct {
		Levels []LocationLevel `json:"location_levels"`
	}
	path := fmt.Sprintf("/inventory-items/%s/location-levels", url.PathEscape(inventoryItemID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Levels, nil
}

func (c *Client) CreateReservation(ctx context.Context, in CreateReservationInput) (string, error) {
	var out struct {
		Reservation Reservation `json:"reservation"`
	}
	if err := c.do(ctx, http.MethodPost, "/reservations", in, &out); err != nil {
		return "", err
	}
	return out.Reservation.ID, nil
}

func (c *Client) UpdateReservation(ctx context.Context, id string, quantity int) error {
	body := map[string]int{"quantity": quantity}
	path := "/reservations/" + url.PathEscape(id)
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) GetReservation(ctx context.Context, id string) (Reservation, error) {
	var out struct {
		Reservation Reservation `json:"reservation"`
	}
	path := "/reservations/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Reservation{}, err
	}
	return out.Reservation, nil
}

func (c *Client) DeleteReservation(ctx context.Context, id string) error {
	path := "/reservations/" + url.PathEscape(id)
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if errors.Is(err, ErrNotFound) {
		// already gone counts as released
		return nil
	}
	return err
}

func (c *Client) ListReservationsByOffer(ctx context.Context, offerID string) ([]Reservation, error) {
	var out struct {
		Reservations []Reservation `json:"reservations"`
	}
	q := url.Values{"type": {TagTypeOffer}, "offer_id": {offerID}}
	if err := c.do(ctx, http.MethodGet, "/reservations?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Reservations, nil
}

func (c *Client) AdjustStock(ctx context.Context, inventoryItemID, locationID string, delta int) error {
	body := map[string]any{"location_id": locationID, "adjustment": delta}
	path := fmt.Sprintf("/inventory-items/%s/stock-adjustments", url.PathEscape(inventoryItemID))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) GetLiveAvailability(ctx context.Context, variantIDs []string, salesChannelID string) (map[string]int, error) {
	var out struct {
		Availability map[string]int `json:"availability"`
	}
	q := url.Values{
		"variant_ids":      {strings.Join(variantIDs, ",")},
		"sales_channel_id": {salesChannelID},
	}
	if err := c.do(ctx, http.MethodGet, "/availability?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Availability, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("inventory call failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("inventory rejected %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
