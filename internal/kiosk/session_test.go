package kiosk

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jcmexdev/kiosk-checkout/internal/catalog"
	"github.com/jcmexdev/kiosk-checkout/internal/checkout"
	"github.com/jcmexdev/kiosk-checkout/internal/checkout/oplog"
	"github.com/jcmexdev/kiosk-checkout/internal/checkout/pipeline"
	"github.com/jcmexdev/kiosk-checkout/internal/orderstore"
	"github.com/jcmexdev/kiosk-checkout/internal/pricing"
)

type stubPayment struct {
	err    error
	gate   chan struct{} // when non-nil, Charge blocks until closed
	amount float64
	calls  int
}

func (s *stubPayment) Charge(ctx context.Context, amount float64) (string, error) {
	s.calls++
	s.amount = amount
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return "", s.err
	}
	return "pi_1", nil
}

type stubStore struct {
	orders []orderstore.Order
	items  []orderstore.Item
}

func (s *stubStore) CreateOrder(ctx context.Context, order *orderstore.Order) (string, error) {
	s.orders = append(s.orders, *order)
	return "ord_1", nil
}

func (s *stubStore) CreateOrderItems(ctx context.Context, orderID string, items []orderstore.Item) error {
	s.items = append(s.items, items...)
	return nil
}

type stubPOS struct {
	err   error
	calls int
}

func (s *stubPOS) RecordSale(ctx context.Context, sale pipeline.Sale) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "clv_1", nil
}

type stubPrinter struct {
	err   error
	calls int
}

func (s *stubPrinter) PrintTicket(ctx context.Context, ticket pipeline.Ticket) error {
	s.calls++
	return s.err
}

type stubOplog struct{}

func (stubOplog) Save(ctx context.Context, entry *oplog.Entry) error { return nil }

func testCatalog() *catalog.Catalog {
	categories := []catalog.Category{
		{ID: "c1", Name: "Specials", SortOrder: 1},
		{ID: "c2", Name: "Sides", SortOrder: 2},
		{ID: "c3", Name: "Drinks", SortOrder: 3},
		{ID: "c4", Name: "Desserts", SortOrder: 4},
	}
	items := []catalog.MenuItem{
		{ID: "item-special", Name: "Burger Special", POSName: "BGR-SPC", Price: 12.50,
			Category: "Specials", Description: "Served with fries and a soft drink", Available: true},
		{ID: "item-plate", Name: "House Plate", Price: 10.00, Category: "Specials",
			Description: "No sides included", Available: true},
		{ID: "item-ff", Name: "French Fries", POSName: "1/2 FF", Price: 3.99,
			Category: "Sides", Available: true},
		{ID: "item-drink", Name: "Soft Drink", Price: 2.49, Category: "Drinks", Available: true},
		{ID: "item-shake", Name: "Oreo Milkshake", Price: 6.00, Category: "Desserts",
			ModifierGroups: []string{"Milkshake Size"}, Available: true},
	}
	modifiers := map[string]catalog.ModifierGroup{
		"Milkshake Size": {Name: "Milkshake Size", Options: []catalog.ModifierOption{
			{Name: "Small", Price: 0},
			{Name: "Large", Price: 1.50},
		}},
	}
	rules := []catalog.BundleRule{
		{Category: "Specials", Keywords: []string{"fries"}, CompanionNames: []string{"French Fries"}, Prefix: "(Set) "},
		{Category: "Specials", Keywords: []string{"drink"}, CompanionNames: []string{"Soft Drink"}, Prefix: "(Set) "},
	}
	return catalog.New(categories, items, modifiers, rules)
}

func testSession(gw Gateways) *Session {
	return NewSession(testCatalog(), pricing.DefaultRates, gw, Config{
		IdleTimeout:    time.Hour,
		SuccessDisplay: time.Hour,
		RequiredSelections: []RequiredSelection{
			{ItemKeyword: "milkshake", GroupKeywords: []string{"size"}},
		},
	})
}

func defaultGateways(pay *stubPayment, pos *stubPOS, prn *stubPrinter) Gateways {
	return Gateways{
		Payment: pay,
		POS:     pos,
		Printer: prn,
		Orders:  &stubStore{},
		Oplog:   stubOplog{},
	}
}

func waitForState(t *testing.T, s *Session, leave checkout.State) checkout.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := s.Status().State; st != leave {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never left %s", leave)
	return leave
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAddItemExpandsBundle(t *testing.T) {
	s := testSession(defaultGateways(&stubPayment{}, &stubPOS{}, &stubPrinter{}))

	added, err := s.AddItem("item-special", nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(added) != 3 {
		t.Fatalf("expected 3 entries for the set, got %d", len(added))
	}
	if added[1].Name != "(Set) French Fries" || added[2].Name != "(Set) Soft Drink" {
		t.Errorf("companion names = %q, %q", added[1].Name, added[2].Name)
	}
	if added[1].Total != 0 || added[2].Total != 0 {
		t.Error("companions must be zero-priced")
	}

	// Removing any set member clears the whole set.
	s.RemoveEntry(added[2].ID)
	entries, totals := s.CartView()
	if len(entries) != 0 {
		t.Fatalf("expected empty cart after cascade, got %d entries", len(entries))
	}
	if totals.GrandTotal != 0 {
		t.Errorf("grand total = %v, want 0", totals.GrandTotal)
	}
}

func TestAddItemUnknownItem(t *testing.T) {
	s := testSession(defaultGateways(&stubPayment{}, &stubPOS{}, &stubPrinter{}))
	if _, err := s.AddItem("nope", nil); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("expected ErrUnknownItem, got %v", err)
	}
}

func TestAddItemUnknownOption(t *testing.T) {
	s := testSession(defaultGateways(&stubPayment{}, &stubPOS{}, &stubPrinter{}))
	if _, err := s.AddItem("item-shake", []string{"Mega"}); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}
}

func TestAddItemEnforcesRequiredSelection(t *testing.T) {
	s := testSession(defaultGateways(&stubPayment{}, &stubPOS{}, &stubPrinter{}))

	_, err := s.AddItem("item-shake", nil)
	var reqErr *RequiredSelectionError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequiredSelectionError, got %v", err)
	}
	if reqErr.Group != "size" {
		t.Errorf("missing group = %q, want size", reqErr.Group)
	}

	added, err := s.AddItem("item-shake", []string{"Large"})
	if err != nil {
		t.Fatalf("add with size: %v", err)
	}
	if got, want := added[0].Total, 7.50; got != want {
		t.Errorf("line total = %v, want %v", got, want)
	}
}

func TestCheckoutChargesFinalTotalAndClearsCart(t *testing.T) {
	pay := &stubPayment{}
	pos := &stubPOS{}
	prn := &stubPrinter{}
	store := &stubStore{}
	gw := defaultGateways(pay, pos, prn)
	gw.Orders = store
	s := testSession(gw)

	if _, err := s.AddItem("item-plate", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.StartCheckout(); err != nil {
		t.Fatal(err)
	}
	if err := s.ConfirmTable("12"); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectOrderType(checkout.OrderTypeDineIn); err != nil {
		t.Fatal(err)
	}

	checkoutID, err := s.SelectTip(context.Background(), 2.00)
	if err != nil {
		t.Fatal(err)
	}
	if checkoutID == "" {
		t.Fatal("expected a checkout id")
	}

	state := waitForState(t, s, checkout.StateProcessing)
	if state != checkout.StateSuccess {
		t.Fatalf("state = %s, want %s", state, checkout.StateSuccess)
	}

	// 10.00 + 7% tax, 3% card fee on the taxed amount, plus the tip.
	want := 10.00*1.07*1.03 + 2.00
	if !almostEqual(pay.amount, want) {
		t.Errorf("charged %v, want %v", pay.amount, want)
	}

	if len(store.orders) != 1 || !almostEqual(store.orders[0].TotalAmount, want) {
		t.Errorf("persisted orders = %+v", store.orders)
	}
	if store.orders[0].Status != orderstore.StatusPaid {
		t.Errorf("order status = %q, want %q", store.orders[0].Status, orderstore.StatusPaid)
	}
	if pos.calls != 1 || prn.calls != 1 {
		t.Errorf("pos calls = %d, print calls = %d, want 1 each", pos.calls, prn.calls)
	}

	entries, _ := s.CartView()
	if len(entries) != 0 {
		t.Error("cart must be cleared after a successful checkout")
	}
	if st := s.Status(); st.LastCheckoutID != checkoutID || st.Warnings != 0 {
		t.Errorf("status = %+v", st)
	}
}

func TestChargeFailureKeepsCartForRetry(t *testing.T) {
	pay := &stubPayment{err: errors.New("card declined")}
	s := testSession(defaultGateways(pay, &stubPOS{}, &stubPrinter{}))

	if _, err := s.AddItem("item-plate", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.StartCheckout(); err != nil {
		t.Fatal(err)
	}
	if err := s.ConfirmTable("3"); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectOrderType(checkout.OrderTypeToGo); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SelectTip(context.Background(), 0); err != nil {
		t.Fatal(err)
	}

	state := waitForState(t, s, checkout.StateProcessing)
	if state != checkout.StateFailed {
		t.Fatalf("state = %s, want %s", state, checkout.StateFailed)
	}
	if s.Status().LastError == "" {
		t.Error("expected the failure reason to be surfaced")
	}

	entries, _ := s.CartView()
	if len(entries) != 1 {
		t.Fatal("cart must survive a failed charge")
	}

	if err := s.RetryCheckout(); err != nil {
		t.Fatal(err)
	}
	if st := s.Status().State; st != checkout.StateCollectingTable {
		t.Errorf("state after retry = %s, want %s", st, checkout.StateCollectingTable)
	}
}

func TestSoftFailuresStillSucceedWithWarnings(t *testing.T) {
	pay := &stubPayment{}
	pos := &stubPOS{err: errors.New("clover 500")}
	prn := &stubPrinter{err: errors.New("bridge offline")}
	s := testSession(defaultGateways(pay, pos, prn))

	if _, err := s.AddItem("item-plate", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.StartCheckout(); err != nil {
		t.Fatal(err)
	}
	if err := s.ConfirmTable("3"); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectOrderType(checkout.OrderTypeDineIn); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SelectTip(context.Background(), 0); err != nil {
		t.Fatal(err)
	}

	state := waitForState(t, s, checkout.StateProcessing)
	if state != checkout.StateSuccess {
		t.Fatalf("state = %s, want %s", state, checkout.StateSuccess)
	}
	if got := s.Status().Warnings; got != 2 {
		t.Errorf("warnings = %d, want 2", got)
	}

	entries, _ := s.CartView()
	if len(entries) != 0 {
		t.Error("cart clears even when POS sync and print fail")
	}
}

func TestIdleResetSkippedWhileProcessing(t *testing.T) {
	pay := &stubPayment{gate: make(chan struct{})}
	s := testSession(defaultGateways(pay, &stubPOS{}, &stubPrinter{}))

	if _, err := s.AddItem("item-plate", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.StartCheckout(); err != nil {
		t.Fatal(err)
	}
	if err := s.ConfirmTable("3"); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectOrderType(checkout.OrderTypeDineIn); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SelectTip(context.Background(), 0); err != nil {
		t.Fatal(err)
	}

	if !s.processing() {
		t.Fatal("session should be processing while the charge is in flight")
	}

	// An idle expiry during processing must not touch the session.
	s.resetOnIdle()
	entries, _ := s.CartView()
	if len(entries) != 1 {
		t.Fatal("idle expiry must not clear the cart mid-payment")
	}

	close(pay.gate)
	waitForState(t, s, checkout.StateProcessing)
}

func TestIdleResetRestoresDefaults(t *testing.T) {
	s := testSession(defaultGateways(&stubPayment{}, &stubPOS{}, &stubPrinter{}))

	if _, err := s.AddItem("item-plate", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.StartCheckout(); err != nil {
		t.Fatal(err)
	}
	if err := s.ConfirmTable("3"); err != nil {
		t.Fatal(err)
	}
	s.SelectCategory("Desserts")

	s.resetOnIdle()

	st := s.Status()
	if st.State != checkout.StateIdle {
		t.Errorf("state = %s, want %s", st.State, checkout.StateIdle)
	}
	if st.ActiveCategory != "Specials" {
		t.Errorf("active category = %q, want the first category", st.ActiveCategory)
	}
	entries, _ := s.CartView()
	if len(entries) != 0 {
		t.Error("cart must be empty after an idle reset")
	}
}

func TestIdleMonitorFiresAfterTimeout(t *testing.T) {
	fired := make(chan struct{})
	m := NewIdleMonitor(20*time.Millisecond, func() bool { return false }, func() {
		close(fired)
	})
	m.Start()
	defer m.Stop()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("idle monitor never fired")
	}
}

func TestIdleMonitorTouchDefersExpiry(t *testing.T) {
	var mu sync.Mutex
	fired := false
	m := NewIdleMonitor(250*time.Millisecond, func() bool { return false }, func() {
		mu.Lock()
		fired = true
		mu.Unlock()
	})
	m.Start()
	defer m.Stop()

	for i := 0; i < 4; i++ {
		time.Sleep(50 * time.Millisecond)
		m.Touch()
	}
	mu.Lock()
	f := fired
	mu.Unlock()
	if f {
		t.Fatal("monitor fired despite continuous activity")
	}
}

func TestIdleMonitorReArmsWhileBusy(t *testing.T) {
	var mu sync.Mutex
	busy := true
	fired := make(chan struct{})
	m := NewIdleMonitor(15*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return busy
	}, func() {
		close(fired)
	})
	m.Start()
	defer m.Stop()

	time.Sleep(60 * time.Millisecond)
	select {
	case <-fired:
		t.Fatal("monitor fired while busy")
	default:
	}

	mu.Lock()
	busy = false
	mu.Unlock()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never fired after the guard cleared")
	}
}
