// Package catalog defines the menu domain: categories, items, modifier
// groups, and the bundle rules that expand set items into zero-priced
// companion entries at add-to-cart time.
//
// The catalog is immutable once loaded. Bundle companions are resolved
// exactly once, when the catalog is built, so the cart never has to scan
// item descriptions on every add.
package catalog

import (
	"context"
	"sort"
	"strings"
)

// Category groups menu items and carries the explicit display order.
type Category struct {
	ID        string
	Name      string
	SortOrder int
}

// ModifierOption is a single selectable option with a non-negative
// price delta.
type ModifierOption struct {
	Name  string
	Price float64
}

// ModifierGroup is a named, ordered list of options. The name doubles as
// the lookup key items reference.
type ModifierGroup struct {
	Name    string
	Options []ModifierOption
}

// MenuItem is one orderable item as fetched from the catalog provider.
// POSName is the name the POS system matches on; POSItemID is the external
// catalog identifier used for inventory-linked sales recording when present.
type MenuItem struct {
	ID             string
	Name           string
	POSName        string
	Price          float64
	Category       string
	Description    string
	ImageURL       string
	ModifierGroups []string
	Available      bool
	POSItemID      string
}

// Companion is a pre-resolved bundle expansion target: when the parent item
// is added to the cart, one zero-priced entry is created per companion.
type Companion struct {
	Item   MenuItem
	Prefix string
}

// Catalog is the immutable, fully resolved menu snapshot the kiosk serves
// from. Companions maps parent item ID to its bundle expansions.
type Catalog struct {
	Categories []Category
	Items      []MenuItem
	Modifiers  map[string]ModifierGroup
	companions map[string][]Companion
}

// Provider is the port the kiosk loads its menu through.
type Provider interface {
	Load(ctx context.Context) (*Catalog, error)
}

// BundleRule declares one companion expansion: items in Category whose
// description contains any of Keywords (case-insensitive) gain a zero-priced
// companion, looked up by the first of CompanionNames that matches an item's
// display or POS name. A rule that matches no catalog item is skipped.
type BundleRule struct {
	Category       string   `mapstructure:"category"`
	Keywords       []string `mapstructure:"keywords"`
	CompanionNames []string `mapstructure:"companion_names"`
	Prefix         string   `mapstructure:"prefix"`
}

// New builds a resolved catalog from raw provider data. Unavailable items
// are dropped, categories and items are ordered by their sort fields, and
// bundle rules are resolved into the companion table.
func New(categories []Category, items []MenuItem, modifiers map[string]ModifierGroup, rules []BundleRule) *Catalog {
	sort.SliceStable(categories, func(i, j int) bool {
		return categories[i].SortOrder < categories[j].SortOrder
	})

	available := make([]MenuItem, 0, len(items))
	for _, it := range items {
		if it.Available {
			available = append(available, it)
		}
	}

	c := &Catalog{
		Categories: categories,
		Items:      available,
		Modifiers:  modifiers,
		companions: make(map[string][]Companion),
	}
	c.resolveBundles(rules)
	return c
}

// ItemByID returns the item and true when present.
func (c *Catalog) ItemByID(id string) (MenuItem, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return MenuItem{}, false
}

// ItemsByCategory returns the items of one category in catalog order.
func (c *Catalog) ItemsByCategory(category string) []MenuItem {
	var out []MenuItem
	for _, it := range c.Items {
		if it.Category == category {
			out = append(out, it)
		}
	}
	return out
}

// CompanionsFor returns the pre-resolved bundle companions for an item,
// or nil for standalone items.
func (c *Catalog) CompanionsFor(itemID string) []Companion {
	return c.companions[itemID]
}

// Group resolves a modifier group by name.
func (c *Catalog) Group(name string) (ModifierGroup, bool) {
	g, ok := c.Modifiers[name]
	return g, ok
}

// resolveBundles walks the rule table once and records, per parent item,
// which companion items its rules expand to. Each rule contributes at most
// one companion per parent; a missing companion item is silently skipped.
func (c *Catalog) resolveBundles(rules []BundleRule) {
	for _, rule := range rules {
		companion, ok := c.findByNames(rule.CompanionNames)
		if !ok {
			continue
		}
		for _, it := range c.Items {
			if it.Category != rule.Category {
				continue
			}
			if !containsAny(strings.ToLower(it.Description), rule.Keywords) {
				continue
			}
			c.companions[it.ID] = append(c.companions[it.ID], Companion{
				Item:   companion,
				Prefix: rule.Prefix,
			})
		}
	}
}

func (c *Catalog) findByNames(names []string) (MenuItem, bool) {
	for _, name := range names {
		for _, it := range c.Items {
			if it.Name == name || it.POSName == name {
				return it, true
			}
		}
	}
	return MenuItem{}, false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
