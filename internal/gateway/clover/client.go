// Package clover adapts the Clover REST API to the pipeline's POSGateway
// port: create the order, attach its line items, record the payment, then
// lock the order to finalise the sale.
package clover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jcmexdev/kiosk-checkout/internal/checkout"
	"github.com/jcmexdev/kiosk-checkout/internal/checkout/pipeline"
	"github.com/jcmexdev/kiosk-checkout/internal/pricing"
)

// Config carries the merchant credentials and the per-fulfilment-type
// order type IDs configured in the Clover dashboard.
type Config struct {
	BaseURL         string `mapstructure:"base_url"`
	MerchantID      string `mapstructure:"merchant_id"`
	APIToken        string `mapstructure:"api_token"`
	TenderID        string `mapstructure:"tender_id"`
	OrderTypeDineIn string `mapstructure:"order_type_dine_in"`
	OrderTypeToGo   string `mapstructure:"order_type_to_go"`
}

// Client implements pipeline.POSGateway over the Clover REST API.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient, now: time.Now}
}

type idRef struct {
	ID string `json:"id"`
}

type orderResponse struct {
	ID string `json:"id"`
}

// RecordSale runs the four Clover calls in order. Line items within the
// order are independent sub-requests and are issued concurrently; the
// stage succeeds only if all of them succeed.
func (c *Client) RecordSale(ctx context.Context, sale pipeline.Sale) (string, error) {
	orderID, err := c.createOrder(ctx, sale)
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "clover order created", "clover_order_id", orderID, "table", sale.TableLabel)

	if err := c.addLineItems(ctx, orderID, sale.LineItems); err != nil {
		return "", err
	}

	if err := c.recordPayment(ctx, orderID, sale); err != nil {
		return "", err
	}

	if err := c.lockOrder(ctx, orderID); err != nil {
		return "", err
	}

	return orderID, nil
}

func (c *Client) createOrder(ctx context.Context, sale pipeline.Sale) (string, error) {
	title := "Kiosk Order"
	if sale.TableLabel != "" {
		title = "Table #" + sale.TableLabel
	}

	payload := map[string]any{
		"state":             "open",
		"title":             title,
		"total":             pricing.MinorUnits(sale.TotalAmount),
		"manualTransaction": false,
	}
	if id := c.orderTypeID(sale.OrderType); id != "" {
		payload["orderType"] = idRef{ID: id}
	}

	var res orderResponse
	if err := c.post(ctx, fmt.Sprintf("/v3/merchants/%s/orders", c.cfg.MerchantID), payload, &res); err != nil {
		return "", fmt.Errorf("clover: create order: %w", err)
	}
	return res.ID, nil
}

func (c *Client) addLineItems(ctx context.Context, orderID string, items []pipeline.LineItem) error {
	g, ctx := errgroup.WithContext(ctx)
	path := fmt.Sprintf("/v3/merchants/%s/orders/%s/line_items", c.cfg.MerchantID, orderID)

	for _, item := range items {
		item := item
		g.Go(func() error {
			payload := map[string]any{
				"unitQty": item.Quantity,
			}
			// Inventory-linked recording when the catalog ID is known;
			// free-text name and price otherwise.
			if item.POSItemID != "" {
				payload["item"] = idRef{ID: item.POSItemID}
			} else {
				payload["name"] = item.Name
				payload["price"] = pricing.MinorUnits(item.Price)
			}
			if err := c.post(ctx, path, payload, &struct{}{}); err != nil {
				return fmt.Errorf("clover: add line item %q: %w", item.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Client) recordPayment(ctx context.Context, orderID string, sale pipeline.Sale) error {
	payload := map[string]any{
		"tender":            idRef{ID: c.cfg.TenderID},
		"amount":            pricing.MinorUnits(sale.TotalAmount),
		"result":            "SUCCESS",
		"tipAmount":         pricing.MinorUnits(sale.TipAmount),
		"externalPaymentId": fmt.Sprintf("KIOSK-%d", c.now().UnixMilli()),
	}
	path := fmt.Sprintf("/v3/merchants/%s/orders/%s/payments", c.cfg.MerchantID, orderID)
	if err := c.post(ctx, path, payload, &struct{}{}); err != nil {
		return fmt.Errorf("clover: record payment for %s: %w", orderID, err)
	}
	return nil
}

// lockOrder finalises the order so it counts toward reported sales.
func (c *Client) lockOrder(ctx context.Context, orderID string) error {
	payload := map[string]any{"state": "locked"}
	path := fmt.Sprintf("/v3/merchants/%s/orders/%s", c.cfg.MerchantID, orderID)
	if err := c.post(ctx, path, payload, &struct{}{}); err != nil {
		return fmt.Errorf("clover: lock order %s: %w", orderID, err)
	}
	return nil
}

func (c *Client) orderTypeID(orderType string) string {
	if orderType == string(checkout.OrderTypeToGo) {
		return c.cfg.OrderTypeToGo
	}
	return c.cfg.OrderTypeDineIn
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode >= 400 {
		return fmt.Errorf("clover API %d: %s", res.StatusCode, bytes.TrimSpace(resBody))
	}
	return json.Unmarshal(resBody, out)
}
