package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/kiosk-checkout/internal/checkout"
	"github.com/jcmexdev/kiosk-checkout/internal/checkout/oplog"
	"github.com/jcmexdev/kiosk-checkout/internal/kiosk"
)

// Handler serves the kiosk session API: menu browsing, cart manipulation,
// and the checkout wizard.
type Handler struct {
	session *kiosk.Session
	logs    oplog.Reader
}

func NewHandler(session *kiosk.Session, logs oplog.Reader) *Handler {
	return &Handler{session: session, logs: logs}
}

// GetMenu returns the full catalog snapshot.
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	cat := h.session.Catalog()
	writeJSON(w, http.StatusOK, MenuResponse{
		Categories: cat.Categories,
		Items:      cat.Items,
		Modifiers:  cat.Modifiers,
	})
}

// GetMenuCategory returns one category's items and records it as the
// active menu view.
func (h *Handler) GetMenuCategory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "category")
	cat := h.session.Catalog()

	known := false
	for _, c := range cat.Categories {
		if c.Name == name {
			known = true
			break
		}
	}
	if !known {
		writeError(w, http.StatusNotFound, "category_not_found", "")
		return
	}

	h.session.SelectCategory(name)
	writeJSON(w, http.StatusOK, cat.ItemsByCategory(name))
}

// GetCart returns the entries and the totals recomputed from them.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	entries, totals := h.session.CartView()
	writeJSON(w, http.StatusOK, CartResponse{Entries: entries, Totals: totals})
}

// AddCartItem adds an item with its selected options; bundle companions
// come back in the same response.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "item_id is required")
		return
	}

	added, err := h.session.AddItem(req.ItemID, req.Options)
	if err != nil {
		var reqErr *kiosk.RequiredSelectionError
		switch {
		case errors.Is(err, kiosk.ErrUnknownItem):
			writeError(w, http.StatusNotFound, "item_not_found", err.Error())
		case errors.Is(err, kiosk.ErrUnknownOption):
			writeError(w, http.StatusBadRequest, "unknown_option", err.Error())
		case errors.As(err, &reqErr):
			writeError(w, http.StatusUnprocessableEntity, "selection_required", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "add_failed", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// RemoveCartItem deletes a line; bundled groups cascade.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	h.session.RemoveEntry(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.session.ClearCart()
	w.WriteHeader(http.StatusNoContent)
}

// StartCheckout opens the wizard.
func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.StartCheckout(); err != nil {
		writeWizardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// ConfirmTable records the number-stand label.
func (h *Handler) ConfirmTable(w http.ResponseWriter, r *http.Request) {
	var req ConfirmTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := h.session.ConfirmTable(req.Table); err != nil {
		writeWizardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// SelectOrderType records dine-in vs to-go.
func (h *Handler) SelectOrderType(w http.ResponseWriter, r *http.Request) {
	var req SelectOrderTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := h.session.SelectOrderType(checkout.OrderType(req.OrderType)); err != nil {
		writeWizardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// SelectTip records the tip and launches the payment pipeline. 202: the
// pipeline outcome is observed via GetCheckoutStatus.
func (h *Handler) SelectTip(w http.ResponseWriter, r *http.Request) {
	var req SelectTipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	checkoutID, err := h.session.SelectTip(r.Context(), req.Tip)
	if err != nil {
		writeWizardError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CheckoutStartedResponse{CheckoutID: checkoutID})
}

// CancelCheckout aborts from a collecting or failed state.
func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.CancelCheckout(); err != nil {
		writeWizardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// RetryCheckout restarts a failed checkout from the table step.
func (h *Handler) RetryCheckout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.RetryCheckout(); err != nil {
		writeWizardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// GetCheckoutStatus returns the wizard state the kiosk screen renders.
func (h *Handler) GetCheckoutStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Status())
}

// GetCheckoutLog returns the last operation-log entry for a checkout ID.
// Back-office reconciliation view: where a given pipeline run ended up and
// which trace to pull for it.
func (h *Handler) GetCheckoutLog(w http.ResponseWriter, r *http.Request) {
	entry, err := h.logs.GetLatest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, oplog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "checkout_not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "log_read_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, CheckoutLogResponse{
		CheckoutID:    entry.CheckoutID,
		Status:        string(entry.Status),
		Stage:         entry.Stage,
		ErrorMessages: entry.ErrorMessages,
		TraceID:       entry.TraceID,
		UpdatedAt:     entry.UpdatedAt,
	})
}

// Touch reports user activity; the middleware already reset the idle
// timer, so this is just the explicit endpoint for input events that hit
// no other route.
func (h *Handler) Touch(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func writeWizardError(w http.ResponseWriter, err error) {
	var transErr *checkout.TransitionError
	switch {
	case errors.As(err, &transErr):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusUnprocessableEntity, "cart_empty", err.Error())
	case errors.Is(err, checkout.ErrInvalidTable),
		errors.Is(err, checkout.ErrInvalidOrderType),
		errors.Is(err, checkout.ErrNegativeTip):
		writeError(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "checkout_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
