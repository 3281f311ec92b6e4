package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PriceCache is a read-through cache for catalog entries. It is invalidated
// on every write so the cached price can never drift from the store.
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPriceCache constructs a PriceCache. A nil client disables caching.
func NewPriceCache(client *redis.Client, ttl time.Duration) *PriceCache {
	return &PriceCache{client: client, ttl: ttl}
}

func cacheKey(ref ItemRef) string {
	return fmt.Sprintf("catalog:%s:%d", ref.Kind, ref.ID)
}

// GetProduct returns a cached product, or nil on miss.
func (c *PriceCache) GetProduct(ctx context.Context, id int64) *Product {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := c.client.Get(ctx, cacheKey(ItemRef{Kind: KindProduct, ID: id})).Bytes()
	if err != nil {
		return nil
	}
	var p Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	return &p
}

// GetLens returns a cached lens, or nil on miss.
func (c *PriceCache) GetLens(ctx context.Context, id int64) *Lens {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := c.client.Get(ctx, cacheKey(ItemRef{Kind: KindLens, ID: id})).Bytes()
	if err != nil {
		return nil
	}
	var l Lens
	if err := json.Unmarshal(data, &l); err != nil {
		return nil
	}
	return &l
}

// StoreProduct caches a product. Failures are ignored; the store stays
// authoritative.
func (c *PriceCache) StoreProduct(ctx context.Context, p *Product) {
	if c == nil || c.client == nil || p == nil {
		return
	}
	if data, err := json.Marshal(p); err == nil {
		c.client.Set(ctx, cacheKey(ItemRef{Kind: KindProduct, ID: p.ID}), data, c.ttl)
	}
}

// StoreLens caches a lens.
func (c *PriceCache) StoreLens(ctx context.Context, l *Lens) {
	if c == nil || c.client == nil || l == nil {
		return
	}
	if data, err := json.Marshal(l); err == nil {
		c.client.Set(ctx, cacheKey(ItemRef{Kind: KindLens, ID: l.ID}), data, c.ttl)
	}
}

// Invalidate drops the cached entry for a reference.
func (c *PriceCache) Invalidate(ctx context.Context, ref ItemRef) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, cacheKey(ref))
}
