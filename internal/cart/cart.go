// Package cart implements the in-memory order cart: an ordered collection
// of line entries with automatic set-menu bundling on add and cascade
// removal of bundled groups.
package cart

import (
	"github.com/google/uuid"

	"github.com/jcmexdev/kiosk-checkout/internal/catalog"
)

// Entry is one cart line. Entries created together as a set share a
// non-empty GroupID; standalone entries have none.
type Entry struct {
	ID        string                   `json:"id"`
	ItemID    string                   `json:"item_id"`
	Name      string                   `json:"name"`
	POSName   string                   `json:"pos_name"`
	POSItemID string                   `json:"pos_item_id,omitempty"`
	Options   []catalog.ModifierOption `json:"options"`
	Total     float64                  `json:"total"`
	Quantity  int                      `json:"quantity"`
	GroupID   string                   `json:"group_id,omitempty"`
}

// LineTotal implements pricing.LineTotaler.
func (e Entry) LineTotal() float64 { return e.Total }

// Cart is an ordered list of entries. It is not safe for concurrent use;
// the owning session serialises access.
type Cart struct {
	entries []Entry
}

func New() *Cart {
	return &Cart{}
}

// Add creates the entry for item plus, when the catalog resolved bundle
// companions for it, one zero-priced companion entry per rule, all sharing
// a fresh group ID. The new entries are appended in one step so the cart
// is never observed with a partially added set.
func (c *Cart) Add(item catalog.MenuItem, options []catalog.ModifierOption, companions []catalog.Companion) []Entry {
	total := item.Price
	for _, opt := range options {
		total += opt.Price
	}

	main := Entry{
		ID:        uuid.NewString(),
		ItemID:    item.ID,
		Name:      item.Name,
		POSName:   item.POSName,
		POSItemID: item.POSItemID,
		Options:   options,
		Total:     total,
		Quantity:  1,
	}

	added := []Entry{main}
	if len(companions) > 0 {
		groupID := uuid.NewString()
		added[0].GroupID = groupID
		for _, comp := range companions {
			added = append(added, Entry{
				ID:        uuid.NewString(),
				ItemID:    comp.Item.ID,
				Name:      comp.Prefix + comp.Item.Name,
				POSName:   comp.Item.POSName,
				POSItemID: comp.Item.POSItemID,
				Total:     0,
				Quantity:  1,
				GroupID:   groupID,
			})
		}
	}

	c.entries = append(c.entries, added...)
	return added
}

// Remove deletes the entry with the given ID. If the entry belongs to a
// set, every entry sharing its group ID is deleted too, regardless of
// which member was targeted. Removing an unknown ID is a no-op.
func (c *Cart) Remove(entryID string) {
	groupID := ""
	found := false
	for _, e := range c.entries {
		if e.ID == entryID {
			groupID = e.GroupID
			found = true
			break
		}
	}
	if !found {
		return
	}

	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.ID == entryID {
			continue
		}
		if groupID != "" && e.GroupID == groupID {
			continue
		}
		kept = append(kept, e)
	}
	c.entries = kept
}

// Clear empties the cart unconditionally.
func (c *Cart) Clear() {
	c.entries = nil
}

// Entries returns a copy of the current lines in order.
func (c *Cart) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Cart) Len() int { return len(c.entries) }

func (c *Cart) IsEmpty() bool { return len(c.entries) == 0 }
