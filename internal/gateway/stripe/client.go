// Package stripe adapts the Stripe Terminal REST API to the pipeline's
// PaymentGateway port: create a PaymentIntent, hand it to the card reader,
// then poll until the payment is captured.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jcmexdev/kiosk-checkout/internal/pricing"
)

const defaultBaseURL = "https://api.stripe.com"

// ErrConfirmationTimeout is returned when the reader does not report a
// captured payment within the bounded polling window. The pipeline treats
// it as fatal.
var ErrConfirmationTimeout = errors.New("stripe: payment confirmation timed out")

// ErrDeclined is returned when the intent ends in a non-capturable state
// (card removed, declined, cancelled on the reader).
var ErrDeclined = errors.New("stripe: payment declined")

// Config carries the terminal credentials and polling bounds.
type Config struct {
	SecretKey    string        `mapstructure:"secret_key"`
	ReaderID     string        `mapstructure:"reader_id"`
	BaseURL      string        `mapstructure:"base_url"`
	PollAttempts int           `mapstructure:"poll_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Client implements pipeline.PaymentGateway over the Stripe REST API.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 30
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient}
}

type paymentIntent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type readerState struct {
	Action struct {
		Status         string `json:"status"`
		FailureMessage string `json:"failure_message"`
	} `json:"action"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Charge creates a card_present PaymentIntent for the display-unit amount
// (converted to minor units here, at the gateway boundary), sends it to the
// configured terminal reader, and polls for capture. On success the
// PaymentIntent ID is the charge identifier.
func (c *Client) Charge(ctx context.Context, amount float64) (string, error) {
	if c.cfg.ReaderID == "" {
		return "", errors.New("stripe: terminal reader ID is not configured")
	}

	intent, err := c.createIntent(ctx, pricing.MinorUnits(amount))
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "payment intent created", "payment_intent_id", intent.ID)

	if err := c.processOnReader(ctx, intent.ID); err != nil {
		return "", err
	}

	if err := c.awaitCapture(ctx, intent.ID); err != nil {
		return "", err
	}
	return intent.ID, nil
}

func (c *Client) createIntent(ctx context.Context, amountCents int64) (*paymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", "usd")
	form.Set("payment_method_types[]", "card_present")
	form.Set("capture_method", "automatic")

	var intent paymentIntent
	if err := c.post(ctx, "/v1/payment_intents", form, &intent); err != nil {
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return &intent, nil
}

func (c *Client) processOnReader(ctx context.Context, intentID string) error {
	form := url.Values{}
	form.Set("payment_intent", intentID)

	path := fmt.Sprintf("/v1/terminal/readers/%s/process_payment_intent", c.cfg.ReaderID)
	if err := c.post(ctx, path, form, &struct{}{}); err != nil {
		return fmt.Errorf("stripe: send intent to reader %s: %w", c.cfg.ReaderID, err)
	}
	return nil
}

// awaitCapture polls the intent status a bounded number of times with a
// fixed delay. Exhausting the attempts is a timeout failure; the pipeline
// never blocks indefinitely on a stuck reader.
func (c *Client) awaitCapture(ctx context.Context, intentID string) error {
	for attempt := 0; attempt < c.cfg.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}

		var intent paymentIntent
		if err := c.get(ctx, "/v1/payment_intents/"+intentID, &intent); err != nil {
			slog.WarnContext(ctx, "payment intent poll failed", "payment_intent_id", intentID, "error", err)
			continue
		}

		switch intent.Status {
		case "succeeded":
			return nil
		case "canceled":
			return fmt.Errorf("%w: intent %s was canceled", ErrDeclined, intentID)
		}

		// A declined card drops the intent back to requires_payment_method,
		// which is also the waiting-for-tap state. The reader action tells
		// the two apart, so a decline fails fast instead of timing out.
		var reader readerState
		if err := c.get(ctx, "/v1/terminal/readers/"+c.cfg.ReaderID, &reader); err != nil {
			slog.WarnContext(ctx, "reader status poll failed", "reader_id", c.cfg.ReaderID, "error", err)
			continue
		}
		if reader.Action.Status == "failed" {
			return fmt.Errorf("%w: %s", ErrDeclined, reader.Action.FailureMessage)
		}
	}
	return fmt.Errorf("%w: intent %s not captured after %d attempts", ErrConfirmationTimeout, intentID, c.cfg.PollAttempts)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	if res.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("stripe API %d: %s", res.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("stripe API %d", res.StatusCode)
	}

	return json.Unmarshal(body, out)
}
