// Package inventory serves product reads through a Redis read-through cache
// and evicts those entries when checkout or cancellation moves stock.
//
// Stock itself is only ever changed by orders.ProductRepo.DecrementStock and
// IncrementStock inside a checkout or cancel transaction; cached products are
// for display and are never used to decide whether stock suffices.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/ariefcatur/go-checkout-core/internal/redisx"
	"github.com/sirupsen/logrus"
)

type Catalog struct {
	Products orders.ProductRepo
	Cache    redisx.KV
	TTL      time.Duration
	Log      logrus.FieldLogger
}

func CatalogKey(productID string) string {
	return fmt.Sprintf(redisx.KeyCatalogProduct, productID)
}

// GetProduct reads from cache and falls back to the store, repopulating the
// cache. Cache failures degrade to a store read.
func (c *Catalog) GetProduct(ctx context.Context, id string) (*orders.Product, error) {
	key := CatalogKey(id)
	if s, err := c.Cache.Get(ctx, key); err == nil {
		var p orders.Product
		if jerr := json.Unmarshal([]byte(s), &p); jerr == nil {
			return &p, nil
		}
		c.Log.WithField("key", key).Warn("dropping undecodable catalog entry")
	} else if !errors.Is(err, redisx.ErrMiss) {
		c.Log.WithError(err).Warn("catalog cache get")
	}

	p, err := c.Products.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(p); err == nil {
		if err := c.Cache.Set(ctx, key, string(b), c.ttl()); err != nil {
			c.Log.WithError(err).Warn("catalog cache set")
		}
	}
	return p, nil
}

func (c *Catalog) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return redisx.TTLCatalog
}

// evict drops the cached catalog entries of the given products.
func evict(ctx context.Context, kv redisx.KV, productIDs []string) error {
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, CatalogKey(id))
	}
	return kv.Del(ctx, keys...)
}
