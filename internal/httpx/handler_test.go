package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jcmexdev/kiosk-checkout/internal/cart"
	"github.com/jcmexdev/kiosk-checkout/internal/catalog"
	"github.com/jcmexdev/kiosk-checkout/internal/checkout"
	"github.com/jcmexdev/kiosk-checkout/internal/checkout/oplog"
	"github.com/jcmexdev/kiosk-checkout/internal/checkout/pipeline"
	"github.com/jcmexdev/kiosk-checkout/internal/kiosk"
	"github.com/jcmexdev/kiosk-checkout/internal/orderstore"
	"github.com/jcmexdev/kiosk-checkout/internal/pricing"
)

type okPayment struct{}

func (okPayment) Charge(ctx context.Context, amount float64) (string, error) {
	return "pi_1", nil
}

type okStore struct{}

func (okStore) CreateOrder(ctx context.Context, order *orderstore.Order) (string, error) {
	return "ord_1", nil
}

func (okStore) CreateOrderItems(ctx context.Context, orderID string, items []orderstore.Item) error {
	return nil
}

type okPOS struct{}

func (okPOS) RecordSale(ctx context.Context, sale pipeline.Sale) (string, error) {
	return "clv_1", nil
}

type okPrinter struct{}

func (okPrinter) PrintTicket(ctx context.Context, ticket pipeline.Ticket) error { return nil }

// memOplog keeps the latest entry per checkout so the log endpoint can be
// exercised end to end.
type memOplog struct {
	mu     sync.Mutex
	latest map[string]*oplog.Entry
}

func newMemOplog() *memOplog {
	return &memOplog{latest: make(map[string]*oplog.Entry)}
}

func (m *memOplog) Save(ctx context.Context, entry *oplog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[entry.CheckoutID] = entry
	return nil
}

func (m *memOplog) GetLatest(ctx context.Context, checkoutID string) (*oplog.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.latest[checkoutID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", oplog.ErrNotFound, checkoutID)
	}
	return entry, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	categories := []catalog.Category{
		{ID: "c1", Name: "Specials", SortOrder: 1},
		{ID: "c2", Name: "Drinks", SortOrder: 2},
	}
	items := []catalog.MenuItem{
		{ID: "item-special", Name: "Burger Special", Price: 12.50, Category: "Specials",
			Description: "Served with a soft drink", Available: true},
		{ID: "item-plate", Name: "House Plate", Price: 10.00, Category: "Specials", Available: true},
		{ID: "item-drink", Name: "Soft Drink", Price: 2.49, Category: "Drinks", Available: true},
	}
	rules := []catalog.BundleRule{
		{Category: "Specials", Keywords: []string{"drink"}, CompanionNames: []string{"Soft Drink"}, Prefix: "(Set) "},
	}
	cat := catalog.New(categories, items, nil, rules)

	logs := newMemOplog()
	session := kiosk.NewSession(cat, pricing.DefaultRates, kiosk.Gateways{
		Payment: okPayment{},
		POS:     okPOS{},
		Printer: okPrinter{},
		Orders:  okStore{},
		Oplog:   logs,
	}, kiosk.Config{
		IdleTimeout:    time.Hour,
		SuccessDisplay: time.Hour,
	})

	srv := httptest.NewServer(NewRouter(NewHandler(session, logs), session))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestGetMenuAndCategory(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/menu")
	if err != nil {
		t.Fatal(err)
	}
	menu := decode[MenuResponse](t, resp)
	if len(menu.Categories) != 2 || len(menu.Items) != 3 {
		t.Errorf("menu = %d categories, %d items", len(menu.Categories), len(menu.Items))
	}

	resp, err = http.Get(srv.URL + "/menu/Drinks")
	if err != nil {
		t.Fatal(err)
	}
	drinks := decode[[]catalog.MenuItem](t, resp)
	if len(drinks) != 1 || drinks[0].Name != "Soft Drink" {
		t.Errorf("drinks = %+v", drinks)
	}

	resp, err = http.Get(srv.URL + "/menu/Nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown category status = %d, want 404", resp.StatusCode)
	}
}

func TestAddItemValidation(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/cart/items", AddItemRequest{ItemID: "nope"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown item status = %d, want 404", resp.StatusCode)
	}
	errResp := decode[ErrorResponse](t, resp)
	if errResp.Error != "item_not_found" {
		t.Errorf("error code = %q", errResp.Error)
	}

	resp = postJSON(t, srv.URL+"/cart/items", AddItemRequest{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing item_id status = %d, want 400", resp.StatusCode)
	}

	r, err := http.Post(srv.URL+"/cart/items", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatal(err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", r.StatusCode)
	}
}

func TestCartBundleCascadeOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/cart/items", AddItemRequest{ItemID: "item-special"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d, want 201", resp.StatusCode)
	}
	added := decode[[]cart.Entry](t, resp)
	if len(added) != 2 {
		t.Fatalf("expected the special plus its drink, got %d entries", len(added))
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/cart/items/"+added[1].ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	dresp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	dresp.Body.Close()
	if dresp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", dresp.StatusCode)
	}

	gresp, err := http.Get(srv.URL + "/cart")
	if err != nil {
		t.Fatal(err)
	}
	view := decode[CartResponse](t, gresp)
	if len(view.Entries) != 0 {
		t.Errorf("expected an empty cart after the cascade, got %+v", view.Entries)
	}
}

func TestCheckoutGuards(t *testing.T) {
	srv := newTestServer(t)

	// Empty cart cannot start a checkout.
	resp := postJSON(t, srv.URL+"/checkout/start", struct{}{})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("empty-cart start status = %d, want 422", resp.StatusCode)
	}
	errResp := decode[ErrorResponse](t, resp)
	if errResp.Error != "cart_empty" {
		t.Errorf("error code = %q", errResp.Error)
	}

	// Order type before a table is an invalid transition.
	postJSON(t, srv.URL+"/cart/items", AddItemRequest{ItemID: "item-plate"}).Body.Close()
	postJSON(t, srv.URL+"/checkout/start", struct{}{}).Body.Close()

	resp = postJSON(t, srv.URL+"/checkout/order-type", SelectOrderTypeRequest{OrderType: "dine_in"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("out-of-order step status = %d, want 409", resp.StatusCode)
	}

	// Table label must be 1-3 digits.
	resp = postJSON(t, srv.URL+"/checkout/table", ConfirmTableRequest{Table: "12a"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("bad table status = %d, want 422", resp.StatusCode)
	}
}

func TestFullCheckoutFlow(t *testing.T) {
	srv := newTestServer(t)

	postJSON(t, srv.URL+"/cart/items", AddItemRequest{ItemID: "item-plate"}).Body.Close()

	resp := postJSON(t, srv.URL+"/checkout/start", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/checkout/table", ConfirmTableRequest{Table: "12"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("table status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/checkout/order-type", SelectOrderTypeRequest{OrderType: "to_go"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("order-type status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/checkout/tip", SelectTipRequest{Tip: 2.00})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("tip status = %d, want 202", resp.StatusCode)
	}
	started := decode[CheckoutStartedResponse](t, resp)
	if started.CheckoutID == "" {
		t.Fatal("expected a checkout id")
	}

	// The pipeline runs detached; poll until it settles.
	deadline := time.Now().Add(2 * time.Second)
	var status kiosk.Status
	for time.Now().Before(deadline) {
		sresp, err := http.Get(srv.URL + "/checkout/status")
		if err != nil {
			t.Fatal(err)
		}
		status = decode[kiosk.Status](t, sresp)
		if status.State != checkout.StateProcessing {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if status.State != checkout.StateSuccess {
		t.Fatalf("final state = %s, want %s (last error %q)", status.State, checkout.StateSuccess, status.LastError)
	}
	if status.LastCheckoutID != started.CheckoutID {
		t.Errorf("status checkout id = %q, want %q", status.LastCheckoutID, started.CheckoutID)
	}

	gresp, err := http.Get(srv.URL + "/cart")
	if err != nil {
		t.Fatal(err)
	}
	view := decode[CartResponse](t, gresp)
	if len(view.Entries) != 0 {
		t.Error("cart should be empty after a successful checkout")
	}

	// The operation log ends up reflecting the finished run.
	lresp, err := http.Get(srv.URL + "/checkout/log/" + started.CheckoutID)
	if err != nil {
		t.Fatal(err)
	}
	if lresp.StatusCode != http.StatusOK {
		t.Fatalf("log status = %d, want 200", lresp.StatusCode)
	}
	logView := decode[CheckoutLogResponse](t, lresp)
	if logView.CheckoutID != started.CheckoutID || logView.Status != "COMPLETED" {
		t.Errorf("log entry = %+v", logView)
	}
}

func TestCheckoutLogUnknownID(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/checkout/log/nope")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	errResp := decode[ErrorResponse](t, resp)
	if errResp.Error != "checkout_not_found" {
		t.Errorf("error code = %q", errResp.Error)
	}
}

func TestSessionTouchEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/session/touch", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("touch status = %d, want 204", resp.StatusCode)
	}
}
