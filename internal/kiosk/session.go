// Package kiosk owns the single active kiosk session: the cart, the
// checkout wizard, the idle monitor, and the wiring between them and the
// payment pipeline. The cart and checkout context are exclusively owned by
// this session; all access is serialised through its mutex.
package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/kiosk-checkout/internal/cart"
	"github.com/jcmexdev/kiosk-checkout/internal/catalog"
	"github.com/jcmexdev/kiosk-checkout/internal/checkout"
	"github.com/jcmexdev/kiosk-checkout/internal/checkout/oplog"
	"github.com/jcmexdev/kiosk-checkout/internal/checkout/pipeline"
	"github.com/jcmexdev/kiosk-checkout/internal/orderstore"
	"github.com/jcmexdev/kiosk-checkout/internal/pricing"
)

var (
	ErrUnknownItem   = errors.New("kiosk: unknown menu item")
	ErrUnknownOption = errors.New("kiosk: unknown modifier option")
)

// RequiredSelectionError blocks an add-to-cart missing a mandatory pick
// (e.g. a milkshake without a size). Surfaced inline; no network call is
// attempted.
type RequiredSelectionError struct {
	Group string
}

func (e *RequiredSelectionError) Error() string {
	return fmt.Sprintf("kiosk: a %s selection is required", e.Group)
}

// RequiredSelection declares a mandatory modifier pick: items whose name
// contains ItemKeyword must have at least one option selected from every
// modifier group whose name contains one of GroupKeywords.
type RequiredSelection struct {
	ItemKeyword   string   `mapstructure:"item_keyword"`
	GroupKeywords []string `mapstructure:"group_keywords"`
}

// Config tunes the session's behaviour.
type Config struct {
	// IdleTimeout is the inactivity window before a full session reset.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// SuccessDisplay is how long the success screen shows before the
	// session returns to idle on its own.
	SuccessDisplay time.Duration `mapstructure:"success_display"`
	// TogoTableLabel, when set, replaces the stand number on to-go orders.
	TogoTableLabel string `mapstructure:"togo_table_label"`
	// RequiredSelections are the mandatory modifier picks enforced on add.
	RequiredSelections []RequiredSelection `mapstructure:"required_selections"`
}

// Gateways bundles the outbound dependencies the pipeline needs. All are
// constructed once per application session and injected here; nothing in
// the session reaches for a global client.
type Gateways struct {
	Payment pipeline.PaymentGateway
	POS     pipeline.POSGateway
	Printer pipeline.PrintGateway
	Orders  orderstore.Store
	Oplog   oplog.Repository
}

// Status is the wizard view the HTTP layer renders.
type Status struct {
	State          checkout.State `json:"state"`
	TableLabel     string         `json:"table_label,omitempty"`
	OrderType      string         `json:"order_type,omitempty"`
	Tip            float64        `json:"tip"`
	ActiveCategory string         `json:"active_category,omitempty"`
	LastCheckoutID string         `json:"last_checkout_id,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	Warnings       int            `json:"warnings,omitempty"`
}

// Session is the single in-memory kiosk session.
type Session struct {
	mu      sync.Mutex
	catalog *catalog.Catalog
	cart    *cart.Cart
	wizard  *checkout.Wizard
	rates   pricing.Rates
	gw      Gateways
	cfg     Config
	idle    *IdleMonitor

	activeCategory string
	lastCheckoutID string
	lastError      string
	warnings       int
	successTimer   *time.Timer
}

// NewSession wires a session over a loaded catalog. The idle monitor is
// armed by Start.
func NewSession(cat *catalog.Catalog, rates pricing.Rates, gw Gateways, cfg Config) *Session {
	s := &Session{
		catalog: cat,
		cart:    cart.New(),
		wizard:  checkout.NewWizard(),
		rates:   rates,
		gw:      gw,
		cfg:     cfg,
	}
	s.wizard.TogoTableLabel = cfg.TogoTableLabel
	if len(cat.Categories) > 0 {
		s.activeCategory = cat.Categories[0].Name
	}
	s.idle = NewIdleMonitor(cfg.IdleTimeout, s.processing, s.resetOnIdle)
	return s
}

// Start arms the idle monitor.
func (s *Session) Start() { s.idle.Start() }

// Stop disarms the idle monitor. Used on shutdown and in tests.
func (s *Session) Stop() { s.idle.Stop() }

// Touch reports user activity to the idle monitor.
func (s *Session) Touch() { s.idle.Touch() }

// Catalog returns the immutable menu snapshot.
func (s *Session) Catalog() *catalog.Catalog { return s.catalog }

// SelectCategory records the menu view's active category so an idle reset
// can restore the default.
func (s *Session) SelectCategory(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeCategory = name
}

// AddItem validates the selection and adds the item (plus any bundle
// companions) to the cart. optionNames are resolved against the item's
// modifier groups in order.
func (s *Session) AddItem(itemID string, optionNames []string) ([]cart.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.catalog.ItemByID(itemID)
	if !ok {
		return nil, ErrUnknownItem
	}

	options, err := s.resolveOptions(item, optionNames)
	if err != nil {
		return nil, err
	}

	if err := s.checkRequiredSelections(item, options); err != nil {
		return nil, err
	}

	return s.cart.Add(item, options, s.catalog.CompanionsFor(item.ID)), nil
}

// RemoveEntry removes a cart line, cascading over its bundle group.
func (s *Session) RemoveEntry(entryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart.Remove(entryID)
}

// ClearCart empties the cart.
func (s *Session) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart.Clear()
}

// CartView returns the current entries and the totals derived from them.
// Totals are always recomputed from the live cart.
func (s *Session) CartView() ([]cart.Entry, pricing.Totals) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.cart.Entries()
	return entries, pricing.Compute(entries, s.rates, s.wizard.Context().Tip)
}

// StartCheckout enters the wizard; requires a non-empty cart.
func (s *Session) StartCheckout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wizard.Start(s.cart.Len())
}

func (s *Session) ConfirmTable(table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wizard.ConfirmTable(table)
}

func (s *Session) SelectOrderType(t checkout.OrderType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wizard.SelectOrderType(t)
}

func (s *Session) CancelCheckout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wizard.Cancel()
}

func (s *Session) RetryCheckout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wizard.Retry()
}

// SelectTip records the tip and launches the payment pipeline. The
// pipeline runs detached from the caller's request context so sending the
// HTTP response does not cancel an in-flight charge.
func (s *Session) SelectTip(ctx context.Context, tip float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.wizard.SelectTip(tip); err != nil {
		return "", err
	}

	entries := s.cart.Entries()
	wctx := s.wizard.Context()
	totals := pricing.Compute(entries, s.rates, wctx.Tip)

	checkoutID := uuid.NewString()
	s.lastCheckoutID = checkoutID
	s.lastError = ""
	s.warnings = 0

	orch := s.buildPipeline(checkoutID, entries, wctx, totals)

	go s.runPipeline(context.WithoutCancel(ctx), orch)

	return checkoutID, nil
}

// Status returns the wizard view.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	wctx := s.wizard.Context()
	return Status{
		State:          s.wizard.State(),
		TableLabel:     wctx.TableLabel,
		OrderType:      string(wctx.OrderType),
		Tip:            wctx.Tip,
		ActiveCategory: s.activeCategory,
		LastCheckoutID: s.lastCheckoutID,
		LastError:      s.lastError,
		Warnings:       s.warnings,
	}
}

// buildPipeline assembles the four stages in their mandated order. Caller
// holds the lock.
func (s *Session) buildPipeline(checkoutID string, entries []cart.Entry, wctx checkout.Context, totals pricing.Totals) *pipeline.Orchestrator {
	lines := make([]pipeline.LineItem, len(entries))
	items := make([]orderstore.Item, len(entries))
	for i, e := range entries {
		lines[i] = pipeline.LineItem{
			POSItemID: e.POSItemID,
			Name:      e.Name,
			Price:     e.Total,
			Quantity:  e.Quantity,
		}
		items[i] = orderstore.Item{
			ItemID:   e.ItemID,
			Name:     e.Name,
			Price:    e.Total,
			Quantity: e.Quantity,
		}
	}

	order := orderstore.Order{
		TotalAmount: totals.FinalTotal,
		Status:      orderstore.StatusPaid,
		TableLabel:  wctx.TableLabel,
		OrderType:   string(wctx.OrderType),
		TipAmount:   wctx.Tip,
	}

	sale := pipeline.Sale{
		LineItems:   lines,
		TotalAmount: totals.FinalTotal,
		TableLabel:  wctx.TableLabel,
		OrderType:   string(wctx.OrderType),
		TipAmount:   wctx.Tip,
	}

	ticket := pipeline.Ticket{
		TableLabel:  wctx.TableLabel,
		OrderType:   string(wctx.OrderType),
		LineItems:   lines,
		Subtotal:    totals.Subtotal,
		Tax:         totals.Tax,
		CardFee:     totals.CardFee,
		TipAmount:   wctx.Tip,
		TotalAmount: totals.FinalTotal,
		Timestamp:   time.Now(),
	}

	pos := pipeline.NewPOSSyncStage(s.gw.POS, sale)
	stages := []pipeline.Stage{
		pipeline.NewChargeStage(s.gw.Payment, totals.FinalTotal),
		pipeline.NewPersistStage(s.gw.Orders, order, items),
		pos,
		pipeline.NewPrintStage(s.gw.Printer, ticket, pos),
	}

	payload, _ := json.Marshal(map[string]any{
		"table":       wctx.TableLabel,
		"order_type":  wctx.OrderType,
		"tip":         wctx.Tip,
		"final_total": totals.FinalTotal,
		"lines":       len(entries),
	})

	return pipeline.NewOrchestrator(checkoutID, stages, s.gw.Oplog, string(payload))
}

func (s *Session) runPipeline(ctx context.Context, orch *pipeline.Orchestrator) {
	result, err := orch.Start(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.lastError = err.Error()
		if ferr := s.wizard.Fail(); ferr != nil {
			slog.ErrorContext(ctx, "failed to mark checkout failed", "error", ferr)
		}
		return
	}

	if result.SoftErrors != nil {
		s.warnings = result.SoftErrors.Len()
	}
	if serr := s.wizard.Succeed(); serr != nil {
		slog.ErrorContext(ctx, "failed to mark checkout succeeded", "error", serr)
		return
	}
	s.cart.Clear()
	s.scheduleIdleReturn()
}

// scheduleIdleReturn arms the success-screen timer. Caller holds the lock.
func (s *Session) scheduleIdleReturn() {
	if s.successTimer != nil {
		s.successTimer.Stop()
	}
	s.successTimer = time.AfterFunc(s.cfg.SuccessDisplay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.wizard.State() == checkout.StateSuccess {
			s.wizard.Reset()
		}
	})
}

// processing reports whether the pipeline owns the session right now.
func (s *Session) processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wizard.State() == checkout.StateProcessing
}

// resetOnIdle performs the full session reset on idle expiry: clear cart,
// reset wizard and context, return the menu to its default category.
func (s *Session) resetOnIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wizard.State() == checkout.StateProcessing {
		return
	}

	slog.Info("idle timeout, resetting session")
	s.cart.Clear()
	s.wizard.Reset()
	s.lastError = ""
	s.warnings = 0
	if len(s.catalog.Categories) > 0 {
		s.activeCategory = s.catalog.Categories[0].Name
	}
}

// resolveOptions maps selected option names to the item's modifier
// options. Caller holds the lock.
func (s *Session) resolveOptions(item catalog.MenuItem, names []string) ([]catalog.ModifierOption, error) {
	if len(names) == 0 {
		return nil, nil
	}

	byName := make(map[string]catalog.ModifierOption)
	for _, groupName := range item.ModifierGroups {
		group, ok := s.catalog.Group(groupName)
		if !ok {
			continue
		}
		for _, opt := range group.Options {
			if _, exists := byName[opt.Name]; !exists {
				byName[opt.Name] = opt
			}
		}
	}

	options := make([]catalog.ModifierOption, 0, len(names))
	for _, name := range names {
		opt, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q for item %q", ErrUnknownOption, name, item.Name)
		}
		options = append(options, opt)
	}
	return options, nil
}

// checkRequiredSelections enforces the mandatory picks declared in config.
// Caller holds the lock.
func (s *Session) checkRequiredSelections(item catalog.MenuItem, selected []catalog.ModifierOption) error {
	itemName := strings.ToLower(item.Name)

	for _, rule := range s.cfg.RequiredSelections {
		if !strings.Contains(itemName, strings.ToLower(rule.ItemKeyword)) {
			continue
		}
		for _, groupKeyword := range rule.GroupKeywords {
			if !s.hasSelectionInGroup(item, selected, groupKeyword) {
				return &RequiredSelectionError{Group: groupKeyword}
			}
		}
	}
	return nil
}

func (s *Session) hasSelectionInGroup(item catalog.MenuItem, selected []catalog.ModifierOption, groupKeyword string) bool {
	kw := strings.ToLower(groupKeyword)
	for _, groupName := range item.ModifierGroups {
		if !strings.Contains(strings.ToLower(groupName), kw) {
			continue
		}
		group, ok := s.catalog.Group(groupName)
		if !ok {
			continue
		}
		for _, opt := range group.Options {
			for _, sel := range selected {
				if sel.Name == opt.Name {
					return true
				}
			}
		}
	}
	return false
}
