package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{user_id}:{key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Catalog read-through cache: catalog:product:{product_id} -> product json
	KeyCatalogProduct = "catalog:product:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLCatalog     = 60 * time.Second
	TTLDedup       = 48 * time.Hour
)
