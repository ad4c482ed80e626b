// Package postgres persists orders and line items to the backing Postgres
// database.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jcmexdev/kiosk-checkout/internal/orderstore"
)

// Repository implements orderstore.Store over a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateOrder inserts the order record and returns its generated ID.
func (r *Repository) CreateOrder(ctx context.Context, order *orderstore.Order) (string, error) {
	const q = `
        INSERT INTO orders (total_amount, status, table_number, order_type, tip_amount)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, q,
		order.TotalAmount,
		order.Status,
		order.TableLabel,
		order.OrderType,
		order.TipAmount,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("orderstore: insert order: %w", err)
	}
	return order.ID, nil
}

// CreateOrderItems bulk-inserts the order's line items.
func (r *Repository) CreateOrderItems(ctx context.Context, orderID string, items []orderstore.Item) error {
	if len(items) == 0 {
		return nil
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "item_id", "name", "price", "quantity"},
		pgx.CopyFromSlice(len(items), func(i int) ([]interface{}, error) {
			return []interface{}{
				orderID,
				items[i].ItemID,
				items[i].Name,
				items[i].Price,
				items[i].Quantity,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("orderstore: insert order items for %s: %w", orderID, err)
	}
	return nil
}
