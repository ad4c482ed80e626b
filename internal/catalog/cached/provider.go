// Package cached decorates a catalog.Provider with a Redis read-through
// cache so kiosk restarts and periodic reloads do not hammer the database.
package cached

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jcmexdev/kiosk-checkout/internal/catalog"
	"github.com/jcmexdev/kiosk-checkout/internal/pkg/cache"
)

// snapshot is the serialisable part of a catalog. Bundle companions are
// rebuilt from the rule table after unmarshalling, never cached.
type snapshot struct {
	Categories []catalog.Category               `json:"categories"`
	Items      []catalog.MenuItem               `json:"items"`
	Modifiers  map[string]catalog.ModifierGroup `json:"modifiers"`
}

type Provider struct {
	inner catalog.Provider
	cache cache.Cache
	rules []catalog.BundleRule
	ttl   time.Duration
}

func NewProvider(inner catalog.Provider, c cache.Cache, rules []catalog.BundleRule, ttl time.Duration) *Provider {
	return &Provider{inner: inner, cache: c, rules: rules, ttl: ttl}
}

// Load returns the cached catalog when present, falling back to the inner
// provider. Cache failures are logged and treated as misses; the database
// remains the source of truth.
func (p *Provider) Load(ctx context.Context) (*catalog.Catalog, error) {
	key := p.cache.GenerateKey("catalog", "menu")

	if raw, err := p.cache.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "catalog cache read failed", "error", err)
	} else if raw != "" {
		var snap snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err == nil {
			return catalog.New(snap.Categories, snap.Items, snap.Modifiers, p.rules), nil
		}
		slog.WarnContext(ctx, "catalog cache entry corrupt, reloading", "key", key)
	}

	cat, err := p.inner.Load(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(snapshot{
		Categories: cat.Categories,
		Items:      cat.Items,
		Modifiers:  cat.Modifiers,
	})
	if err == nil {
		if err := p.cache.Set(ctx, key, raw, p.ttl); err != nil {
			slog.WarnContext(ctx, "catalog cache write failed", "error", err)
		}
	}

	return cat, nil
}
