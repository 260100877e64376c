// Package initializer builds the application dependency graph from config:
// logger, database, unit of work, provider clients, dispatcher, cache and
// event bus.
package initializer

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/numgate/numgate/infra"
	infracache "github.com/numgate/numgate/infra/cache"
	infrabus "github.com/numgate/numgate/infra/eventbus"
	"github.com/numgate/numgate/infra/provider/paygate"
	infrarepo "github.com/numgate/numgate/infra/repository"
	"github.com/numgate/numgate/infra/repository/model"
	"github.com/numgate/numgate/pkg/app"
	"github.com/numgate/numgate/pkg/cache"
	"github.com/numgate/numgate/pkg/config"
	"github.com/numgate/numgate/pkg/dispatch"
	"github.com/numgate/numgate/pkg/exchange"
	"github.com/numgate/numgate/pkg/money"
	"github.com/numgate/numgate/pkg/provider/sms"
	"github.com/redis/go-redis/v9"
)

// InitializeDependencies wires every infrastructure dependency the services
// need. The returned Deps owns a running dispatcher; callers must Close it
// on shutdown.
func InitializeDependencies(cfg *config.App) (*app.Deps, error) {
	deps := &app.Deps{}
	logger := setupLogger(cfg.Log)
	deps.Logger = logger

	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := model.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	deps.Uow = infrarepo.NewUoW(db)

	deps.PriceCache, err = newPriceCache(cfg, logger)
	if err != nil {
		return nil, err
	}

	deps.EventBus = infrabus.NewMemoryBus(logger)

	deps.RateProvider, err = exchange.NewStaticProvider(pairRates(cfg.Exchange))
	if err != nil {
		return nil, fmt.Errorf("invalid exchange rate table: %w", err)
	}

	client := sms.NewClient(cfg.SMSProvider, money.Code(cfg.SMSProvider.Currency), logger)
	deps.Dispatcher = dispatch.New(client, cfg.SMSProvider, logger)
	gateway := dispatch.NewGateway(deps.Dispatcher)
	deps.Gateway = gateway
	deps.PriceSource = gateway

	deps.PaymentProvider = paygate.NewClient(cfg.Payment, logger)
	deps.Verifier = paygate.NewHMACVerifier(cfg.Payment.WebhookSecret)

	return deps, nil
}

// newPriceCache prefers Redis so price lookups are shared across instances;
// without a Redis URL it degrades to an in-process cache.
func newPriceCache(cfg *config.App, logger *slog.Logger) (cache.PriceCache, error) {
	if cfg.Redis.URL == "" {
		return infracache.NewMemoryPriceCache(), nil
	}
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.PoolSize = cfg.Redis.PoolSize
	opt.DialTimeout = cfg.Redis.DialTimeout
	opt.ReadTimeout = cfg.Redis.ReadTimeout
	opt.WriteTimeout = cfg.Redis.WriteTimeout
	prefix := cfg.Redis.KeyPrefix + cfg.Pricing.CachePrefix
	return infracache.NewRedisPriceCache(opt, prefix, logger), nil
}

// pairRates expands the configured per-currency rates into the "FROM:TO"
// pairs the static provider expects. Config keys name the source currency;
// the target is always the settlement currency.
func pairRates(cfg *config.Exchange) map[string]float64 {
	settlement := strings.ToUpper(cfg.SettlementCurrency)
	pairs := make(map[string]float64, len(cfg.Rates))
	for from, rate := range cfg.Rates {
		pairs[strings.ToUpper(from)+":"+settlement] = rate
	}
	return pairs
}
