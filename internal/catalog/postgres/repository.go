// Package postgres loads the menu catalog from the backing Postgres
// database (the same schema the kiosk's admin tooling writes to).
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jcmexdev/kiosk-checkout/internal/catalog"
)

// Repository reads the catalog tables and assembles a resolved
// catalog.Catalog. It implements catalog.Provider.
type Repository struct {
	pool  *pgxpool.Pool
	rules []catalog.BundleRule
}

func NewRepository(pool *pgxpool.Pool, rules []catalog.BundleRule) *Repository {
	return &Repository{pool: pool, rules: rules}
}

// Load fetches categories, items, and modifier groups in catalog order and
// joins them in memory. Sort order is the explicit sort_order column, never
// insertion order.
func (r *Repository) Load(ctx context.Context) (*catalog.Catalog, error) {
	categories, err := r.loadCategories(ctx)
	if err != nil {
		return nil, err
	}

	items, err := r.loadItems(ctx)
	if err != nil {
		return nil, err
	}

	groups, itemGroups, err := r.loadModifierGroups(ctx)
	if err != nil {
		return nil, err
	}

	for i := range items {
		items[i].ModifierGroups = itemGroups[items[i].ID]
	}

	return catalog.New(categories, items, groups, r.rules), nil
}

func (r *Repository) loadCategories(ctx context.Context) ([]catalog.Category, error) {
	const q = `
        SELECT id, name, sort_order
        FROM categories
        ORDER BY sort_order ASC`

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("catalog: query categories: %w", err)
	}
	defer rows.Close()

	var categories []catalog.Category
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.SortOrder); err != nil {
			return nil, fmt.Errorf("catalog: scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *Repository) loadItems(ctx context.Context) ([]catalog.MenuItem, error) {
	const q = `
        SELECT i.id, i.name, COALESCE(i.pos_name, ''), i.price,
               c.name, COALESCE(i.description, ''), COALESCE(i.image_url, ''),
               i.is_available, COALESCE(i.clover_id, '')
        FROM items i
        JOIN categories c ON c.id = i.category_id
        ORDER BY c.sort_order ASC, i.sort_order ASC`

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("catalog: query items: %w", err)
	}
	defer rows.Close()

	var items []catalog.MenuItem
	for rows.Next() {
		var it catalog.MenuItem
		err := rows.Scan(
			&it.ID,
			&it.Name,
			&it.POSName,
			&it.Price,
			&it.Category,
			&it.Description,
			&it.ImageURL,
			&it.Available,
			&it.POSItemID,
		)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// loadModifierGroups returns the group table keyed by name plus the
// item -> ordered group-name relation.
func (r *Repository) loadModifierGroups(ctx context.Context) (map[string]catalog.ModifierGroup, map[string][]string, error) {
	const groupsQ = `
        SELECT g.name, m.name, m.price
        FROM modifier_groups g
        JOIN modifiers m ON m.group_id = g.id
        ORDER BY g.name ASC, m.sort_order ASC`

	rows, err := r.pool.Query(ctx, groupsQ)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: query modifier groups: %w", err)
	}
	defer rows.Close()

	groups := make(map[string]catalog.ModifierGroup)
	for rows.Next() {
		var groupName string
		var opt catalog.ModifierOption
		if err := rows.Scan(&groupName, &opt.Name, &opt.Price); err != nil {
			return nil, nil, fmt.Errorf("catalog: scan modifier: %w", err)
		}
		g := groups[groupName]
		g.Name = groupName
		g.Options = append(g.Options, opt)
		groups[groupName] = g
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	const relQ = `
        SELECT img.item_id, g.name
        FROM item_modifier_groups img
        JOIN modifier_groups g ON g.id = img.group_id
        ORDER BY img.item_id ASC, img.sort_order ASC`

	relRows, err := r.pool.Query(ctx, relQ)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: query item modifier groups: %w", err)
	}
	defer relRows.Close()

	itemGroups := make(map[string][]string)
	for relRows.Next() {
		var itemID, groupName string
		if err := relRows.Scan(&itemID, &groupName); err != nil {
			return nil, nil, fmt.Errorf("catalog: scan item modifier group: %w", err)
		}
		itemGroups[itemID] = append(itemGroups[itemID], groupName)
	}
	return groups, itemGroups, relRows.Err()
}
