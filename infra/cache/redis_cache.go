package cache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/numgate/numgate/pkg/cache"
	"github.com/numgate/numgate/pkg/money"
	"github.com/redis/go-redis/v9"
)

// RedisPriceCache implements cache.PriceCache backed by Redis, so price
// lookups are shared across instances.
type RedisPriceCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisPriceCache creates a RedisPriceCache from redis.Options.
func NewRedisPriceCache(opt *redis.Options, prefix string, logger *slog.Logger) *RedisPriceCache {
	return &RedisPriceCache{
		client: redis.NewClient(opt),
		prefix: prefix,
		logger: logger,
	}
}

func (c *RedisPriceCache) key(key string) string { return c.prefix + key }

// encode stores the minor-unit amount and currency as "amount|code".
func encode(price money.Money) string {
	return strconv.FormatInt(price.Amount(), 10) + "|" + price.Currency().String()
}

func decode(val string) (money.Money, error) {
	parts := strings.SplitN(val, "|", 2)
	if len(parts) != 2 {
		return money.Money{}, errors.New("malformed cached price")
	}
	amount, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return money.Money{}, err
	}
	return money.NewFromSmallestUnit(amount, money.Code(parts[1]))
}

// Get retrieves a price. Redis misses and decode failures are reported as misses.
func (c *RedisPriceCache) Get(ctx context.Context, key string) (money.Money, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return money.Money{}, false, nil
	}
	if err != nil {
		c.logger.Error("redis price cache get failed", "key", key, "error", err)
		return money.Money{}, false, err
	}
	price, err := decode(val)
	if err != nil {
		c.logger.Warn("dropping malformed cached price", "key", key, "error", err)
		_ = c.client.Del(ctx, c.key(key)).Err()
		return money.Money{}, false, nil
	}
	return price, true, nil
}

// Set stores a price with a TTL.
func (c *RedisPriceCache) Set(ctx context.Context, key string, price money.Money, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), encode(price), ttl).Err()
}

// Delete removes a cached price.
func (c *RedisPriceCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

var _ cache.PriceCache = (*RedisPriceCache)(nil)
