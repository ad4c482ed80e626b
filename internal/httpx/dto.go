package httpx

import (
	"time"

	"github.com/jcmexdev/kiosk-checkout/internal/cart"
	"github.com/jcmexdev/kiosk-checkout/internal/catalog"
	"github.com/jcmexdev/kiosk-checkout/internal/pricing"
)

type AddItemRequest struct {
	ItemID  string   `json:"item_id"`
	Options []string `json:"options"`
}

type ConfirmTableRequest struct {
	Table string `json:"table"`
}

type SelectOrderTypeRequest struct {
	OrderType string `json:"order_type"`
}

type SelectTipRequest struct {
	Tip float64 `json:"tip"`
}

type CartResponse struct {
	Entries []cart.Entry   `json:"entries"`
	Totals  pricing.Totals `json:"totals"`
}

type MenuResponse struct {
	Categories []catalog.Category               `json:"categories"`
	Items      []catalog.MenuItem               `json:"items"`
	Modifiers  map[string]catalog.ModifierGroup `json:"modifiers"`
}

type CheckoutStartedResponse struct {
	CheckoutID string `json:"checkout_id"`
}

type CheckoutLogResponse struct {
	CheckoutID    string    `json:"checkout_id"`
	Status        string    `json:"status"`
	Stage         string    `json:"stage,omitempty"`
	ErrorMessages string    `json:"error_messages,omitempty"`
	TraceID       string    `json:"trace_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
