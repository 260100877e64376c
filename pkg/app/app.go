// Package app assembles the services from their infrastructure dependencies.
package app

import (
	"context"
	"log/slog"

	"github.com/numgate/numgate/pkg/cache"
	"github.com/numgate/numgate/pkg/config"
	"github.com/numgate/numgate/pkg/dispatch"
	"github.com/numgate/numgate/pkg/domain/events"
	"github.com/numgate/numgate/pkg/eventbus"
	"github.com/numgate/numgate/pkg/exchange"
	"github.com/numgate/numgate/pkg/money"
	"github.com/numgate/numgate/pkg/provider/payment"
	"github.com/numgate/numgate/pkg/repository"
	"github.com/numgate/numgate/pkg/service/deposit"
	"github.com/numgate/numgate/pkg/service/pricing"
	"github.com/numgate/numgate/pkg/service/purchase"
	"github.com/numgate/numgate/pkg/service/settlement"
	"github.com/numgate/numgate/pkg/service/wallet"
)

// Deps contains the infrastructure dependencies the services are built from.
// Dispatcher is owned by whoever built the Deps and must be closed on
// shutdown.
type Deps struct {
	Uow             repository.UnitOfWork
	Dispatcher      *dispatch.Dispatcher
	Gateway         purchase.NumberGateway
	PriceSource     pricing.PriceSource
	PaymentProvider payment.Provider
	Verifier        payment.SignatureVerifier
	RateProvider    exchange.RateProvider
	PriceCache      cache.PriceCache
	EventBus        eventbus.Bus
	Logger          *slog.Logger
}

// App carries the wired services and the config they were built with.
type App struct {
	Deps   *Deps
	Config *config.App

	PricingService    *pricing.Service
	PurchaseService   *purchase.Service
	DepositService    *deposit.Service
	SettlementService *settlement.Service
	WalletService     *wallet.Service
}

// New wires all services.
func New(deps *Deps, cfg *config.App) *App {
	settlementCurrency := money.Code(cfg.Exchange.SettlementCurrency)
	converter := exchange.NewConverter(deps.RateProvider, settlementCurrency)

	a := &App{Deps: deps, Config: cfg}
	a.PricingService = pricing.New(deps.PriceSource, deps.PriceCache, cfg.Pricing, deps.Logger)
	a.PurchaseService = purchase.New(
		deps.Gateway, a.PricingService, deps.Uow, deps.EventBus,
		cfg.SMSProvider, cfg.Cancellation, deps.Logger,
	)
	a.DepositService = deposit.New(
		deps.PaymentProvider, converter, deps.Uow, cfg.Payment, deps.Logger,
	)
	a.SettlementService = settlement.New(
		deps.Verifier, deps.PaymentProvider, deps.Uow, deps.EventBus, deps.Logger,
	)
	a.WalletService = wallet.New(deps.Uow, settlementCurrency, deps.Logger)

	registerNotifications(deps.EventBus, deps.Logger)
	return a
}

// registerNotifications subscribes the notification log to every customer
// facing event. Delivery channels hang off the same registrations.
func registerNotifications(bus eventbus.Bus, logger *slog.Logger) {
	notificationLogger := logger.With("component", "notifications")
	notify := func(ctx context.Context, event events.Event) error {
		notificationLogger.InfoContext(ctx, "notification",
			"type", event.Type(), "user", event.User())
		return nil
	}
	for _, eventType := range []string{
		events.TypePurchaseCompleted,
		events.TypePurchaseCancelled,
		events.TypeCodeReceived,
		events.TypeDepositSettled,
		events.TypeDepositFailed,
	} {
		bus.Register(eventType, notify)
	}
}
