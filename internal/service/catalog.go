package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/pkg/apperror"

	"github.com/shopspring/decimal"
)

// Catalog is the in-memory table of tradeable assets. It is the price
// snapshot trades execute against.
type Catalog struct {
	mu      sync.RWMutex
	assets  map[string]domain.Asset
	journal *Journal
	now     func() time.Time
}

func NewCatalog(assets []domain.Asset, journal *Journal) *Catalog {
	c := &Catalog{
		assets:  make(map[string]domain.Asset, len(assets)),
		journal: journal,
		now:     time.Now,
	}
	for _, a := range assets {
		c.assets[a.Key] = a
	}
	return c
}

// Restore overlays persisted prices on top of the configured catalog.
func (c *Catalog) Restore(assets []domain.Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range assets {
		c.assets[a.Key] = a
	}
}

func (c *Catalog) Asset(key string) (domain.Asset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.assets[key]
	return a, ok
}

// List returns all assets sorted by key.
func (c *Catalog) List() []domain.Asset {
	c.mu.RLock()
	out := make([]domain.Asset, 0, len(c.assets))
	for _, a := range c.assets {
		out = append(out, a)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Snapshot returns a copy of the table keyed by asset.
func (c *Catalog) Snapshot() map[string]domain.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.Asset, len(c.assets))
	for k, a := range c.assets {
		out[k] = a
	}
	return out
}

// Upsert applies a price feed update. Empty name and category keep the
// existing values.
func (c *Catalog) Upsert(a domain.Asset) (domain.Asset, error) {
	if a.Key == "" {
		return domain.Asset{}, apperror.Validation("asset key is required")
	}
	if !a.UnitPrice.IsPositive() {
		return domain.Asset{}, apperror.Validation("unit_price must be positive")
	}
	if a.FeePercent.IsNegative() || a.FeePercent.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return domain.Asset{}, apperror.Validation("fee_percent must be in [0, 1)")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.assets[a.Key]; ok {
		if a.Name == "" {
			a.Name = prev.Name
		}
		if a.Category == "" {
			a.Category = prev.Category
		}
	}
	a.UpdatedAt = c.now().UTC()
	c.assets[a.Key] = a
	c.journal.AssetUpdated(a)
	return a, nil
}

// UnitPrice implements ports.PriceSource from the snapshot.
func (c *Catalog) UnitPrice(_ context.Context, key string) (decimal.Decimal, error) {
	a, ok := c.Asset(key)
	if !ok {
		return decimal.Zero, apperror.ErrNotFound("asset")
	}
	return a.UnitPrice, nil
}
