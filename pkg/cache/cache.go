// Package cache defines the short-lived price cache consumed by the pricing
// service. Implementations live in infra/cache.
package cache

import (
	"context"
	"time"

	"github.com/numgate/numgate/pkg/money"
)

// PriceCache caches provider unit prices keyed by service:country[:operator].
// A miss is reported as found == false, never as an error.
type PriceCache interface {
	Get(ctx context.Context, key string) (price money.Money, found bool, err error)
	Set(ctx context.Context, key string, price money.Money, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
