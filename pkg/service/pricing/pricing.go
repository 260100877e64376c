// Package pricing computes the customer-facing price of a virtual number:
// the provider's current cost times a configured markup, cached so the
// provider price list is not fetched on every quote.
package pricing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/numgate/numgate/pkg/cache"
	"github.com/numgate/numgate/pkg/config"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/money"
	"github.com/numgate/numgate/pkg/provider/sms"
)

// PriceSource fetches provider prices. Implemented by *dispatch.Gateway.
type PriceSource interface {
	FetchPrices(ctx context.Context, service, country string) (sms.PriceList, error)
}

// Service quotes prices for (service, country) pairs.
type Service struct {
	source PriceSource
	cache  cache.PriceCache
	cfg    *config.Pricing
	logger *slog.Logger
}

// New creates a pricing service.
func New(source PriceSource, priceCache cache.PriceCache, cfg *config.Pricing, logger *slog.Logger) *Service {
	return &Service{
		source: source,
		cache:  priceCache,
		cfg:    cfg,
		logger: logger.With("component", "pricing"),
	}
}

// ProviderCost returns the provider's current cost for the pair, consulting
// the cache first. A pair the provider has no stock for quotes as
// domain.ErrServiceUnavailable.
func (s *Service) ProviderCost(ctx context.Context, service, country string) (money.Money, error) {
	key := s.cacheKey(service, country)
	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("price cache read failed", "key", key, "error", err)
	} else if ok {
		return cached, nil
	}

	prices, err := s.source.FetchPrices(ctx, service, country)
	if err != nil {
		return money.Money{}, fmt.Errorf("fetch prices: %w", err)
	}
	cost, ok := prices[sms.PriceKey(service, country)]
	if !ok || cost.IsZero() {
		return money.Money{}, domain.ErrServiceUnavailable
	}

	if err := s.cache.Set(ctx, key, cost, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("price cache write failed", "key", key, "error", err)
	}
	return cost, nil
}

// Quote returns the customer price: provider cost times the markup
// multiplier. When maxPrice is set and the quote exceeds it, the quote fails
// with domain.ErrPriceExceeded.
func (s *Service) Quote(ctx context.Context, service, country string, maxPrice *money.Money) (money.Money, error) {
	cost, err := s.ProviderCost(ctx, service, country)
	if err != nil {
		return money.Money{}, err
	}
	price := cost.MulFloat(s.cfg.MarkupMultiplier)
	if maxPrice != nil {
		over, err := price.GreaterThan(*maxPrice)
		if err != nil {
			return money.Money{}, err
		}
		if over {
			return money.Money{}, fmt.Errorf("%w: quoted %d, ceiling %d",
				domain.ErrPriceExceeded, price.Amount(), maxPrice.Amount())
		}
	}
	return price, nil
}

// Invalidate drops a cached pair, forcing the next quote to refetch.
func (s *Service) Invalidate(ctx context.Context, service, country string) error {
	return s.cache.Delete(ctx, s.cacheKey(service, country))
}

func (s *Service) cacheKey(service, country string) string {
	return s.cfg.CachePrefix + service + ":" + country
}
