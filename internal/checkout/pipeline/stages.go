package pipeline

import (
	"context"
	"fmt"

	"github.com/jcmexdev/kiosk-checkout/internal/orderstore"
)

// --- ChargeStage ---

// ChargeStage submits the final total to the payment gateway. Fatal: a
// declined or failed charge aborts the whole checkout with nothing else
// attempted.
type ChargeStage struct {
	gateway  PaymentGateway
	amount   float64
	chargeID string
}

func NewChargeStage(gateway PaymentGateway, amount float64) *ChargeStage {
	return &ChargeStage{gateway: gateway, amount: amount}
}

func (s *ChargeStage) Name() string { return "charge" }
func (s *ChargeStage) Fatal() bool  { return true }

func (s *ChargeStage) Execute(ctx context.Context) error {
	id, err := s.gateway.Charge(ctx, s.amount)
	if err != nil {
		return fmt.Errorf("failed to charge %.2f: %w", s.amount, err)
	}
	s.chargeID = id
	return nil
}

// ChargeID returns the gateway's charge identifier once Execute succeeded.
func (s *ChargeStage) ChargeID() string { return s.chargeID }

// --- PersistStage ---

// PersistStage writes the order record and its line items. Fatal even
// though the charge already happened: proceeding to POS sync and print
// would encode a sale with no order record. The charge-without-order gap
// is accepted and backstopped by the gateway's own reconciliation.
type PersistStage struct {
	store   orderstore.Store
	order   orderstore.Order
	items   []orderstore.Item
	orderID string
}

func NewPersistStage(store orderstore.Store, order orderstore.Order, items []orderstore.Item) *PersistStage {
	return &PersistStage{store: store, order: order, items: items}
}

func (s *PersistStage) Name() string { return "persist" }
func (s *PersistStage) Fatal() bool  { return true }

func (s *PersistStage) Execute(ctx context.Context) error {
	id, err := s.store.CreateOrder(ctx, &s.order)
	if err != nil {
		return fmt.Errorf("failed to create order record: %w", err)
	}
	s.orderID = id

	if err := s.store.CreateOrderItems(ctx, id, s.items); err != nil {
		return fmt.Errorf("failed to create order items for %s: %w", id, err)
	}
	return nil
}

// OrderID returns the persisted order's identifier once Execute succeeded.
func (s *PersistStage) OrderID() string { return s.orderID }

// --- POSSyncStage ---

// POSSyncStage forwards the sale to the POS for sales recording and the
// kitchen ticket. Non-fatal: the customer is already charged, so a sync
// failure is surfaced as a warning only.
type POSSyncStage struct {
	gateway POSGateway
	sale    Sale
	orderID string
}

func NewPOSSyncStage(gateway POSGateway, sale Sale) *POSSyncStage {
	return &POSSyncStage{gateway: gateway, sale: sale}
}

func (s *POSSyncStage) Name() string { return "pos_sync" }
func (s *POSSyncStage) Fatal() bool  { return false }

func (s *POSSyncStage) Execute(ctx context.Context) error {
	id, err := s.gateway.RecordSale(ctx, s.sale)
	if err != nil {
		return fmt.Errorf("failed to sync sale to POS: %w", err)
	}
	s.orderID = id
	return nil
}

// POSOrderID returns the POS-side order ID, empty when the sync failed.
func (s *POSSyncStage) POSOrderID() string { return s.orderID }

// --- PrintStage ---

// PrintStage sends the structured ticket to the local printer bridge.
// Non-fatal for the same reason as POS sync. The POS order ID is read at
// execute time so the ticket carries it when the sync succeeded.
type PrintStage struct {
	gateway PrintGateway
	ticket  Ticket
	pos     *POSSyncStage
}

func NewPrintStage(gateway PrintGateway, ticket Ticket, pos *POSSyncStage) *PrintStage {
	return &PrintStage{gateway: gateway, ticket: ticket, pos: pos}
}

func (s *PrintStage) Name() string { return "print" }
func (s *PrintStage) Fatal() bool  { return false }

func (s *PrintStage) Execute(ctx context.Context) error {
	if s.pos != nil {
		s.ticket.OrderID = s.pos.POSOrderID()
	}
	if err := s.gateway.PrintTicket(ctx, s.ticket); err != nil {
		return fmt.Errorf("failed to print ticket: %w", err)
	}
	return nil
}
