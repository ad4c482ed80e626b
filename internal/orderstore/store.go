// Package orderstore defines the port for persisting orders and their line
// items to the backing database.
package orderstore

import (
	"context"
	"time"
)

// Order is the persisted order record.
type Order struct {
	ID          string
	TotalAmount float64
	Status      string
	TableLabel  string
	OrderType   string
	TipAmount   float64
	CreatedAt   time.Time
}

// Item is one persisted order line.
type Item struct {
	ItemID   string
	Name     string
	Price    float64
	Quantity int
}

// StatusPaid is the status written by the kiosk: an order record only
// exists once the card has been charged.
const StatusPaid = "paid"

// Store is the port the payment pipeline writes through.
type Store interface {
	CreateOrder(ctx context.Context, order *Order) (string, error)
	CreateOrderItems(ctx context.Context, orderID string, items []Item) error
}
