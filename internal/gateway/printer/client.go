// Package printer adapts the local receipt/kitchen printer bridge (a small
// relay process next to the kiosk) to the pipeline's PrintGateway port.
package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jcmexdev/kiosk-checkout/internal/checkout/pipeline"
)

// Config points at the bridge. The bridge runs on the kiosk machine
// itself, so the default is localhost.
type Config struct {
	URL string `mapstructure:"url"`
}

const defaultBridgeURL = "http://localhost:4000/print"

// Client implements pipeline.PrintGateway.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.URL == "" {
		cfg.URL = defaultBridgeURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{url: cfg.URL, http: httpClient}
}

// PrintTicket POSTs the structured ticket to the bridge. The bridge owns
// ESC/POS formatting; the kiosk only ships the data.
func (c *Client) PrintTicket(ctx context.Context, ticket pipeline.Ticket) error {
	body, err := json.Marshal(ticket)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("printer bridge unreachable at %s: %w", c.url, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return fmt.Errorf("printer bridge returned %d", res.StatusCode)
	}
	return nil
}
