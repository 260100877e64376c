// Package webapi wires the HTTP surface: middleware, health route, number
// and wallet endpoints, and the payment webhook.
package webapi

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/numgate/numgate/pkg/app"
	"github.com/numgate/numgate/webapi/common"
	"github.com/numgate/numgate/webapi/numbers"
	"github.com/numgate/numgate/webapi/wallet"
	"github.com/numgate/numgate/webapi/webhook"
)

// SetupApp initializes Fiber with middleware and all routes.
func SetupApp(a *app.App) *fiber.App {
	fiberApp := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return common.ProblemDetailsJSON(c, fe.Message, err, fe.Code)
			}
			return common.ProblemDetailsJSON(c, "Internal Server Error", err)
		},
	})

	// The webhook route is registered before the limiter; provider
	// redeliveries must never be throttled away.
	fiberApp.Post("/webhooks/payment",
		webhook.PaymentHandler(a.SettlementService, a.Deps.Logger))

	fiberApp.Use(limiter.New(limiter.Config{
		Max:        a.Config.RateLimit.MaxRequests,
		Expiration: a.Config.RateLimit.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if forwardedFor := c.Get("X-Forwarded-For"); forwardedFor != "" {
				if commaIndex := strings.Index(forwardedFor, ","); commaIndex != -1 {
					return strings.TrimSpace(forwardedFor[:commaIndex])
				}
				return strings.TrimSpace(forwardedFor)
			}
			if realIP := c.Get("X-Real-IP"); realIP != "" {
				return realIP
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return common.ProblemDetailsJSON(c, "Too Many Requests",
				errors.New("rate limit exceeded"), fiber.StatusTooManyRequests)
		},
	}))
	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New())

	fiberApp.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("NumGate API is running! 🚀")
	})

	numbers.Routes(fiberApp, a.PurchaseService, a.PricingService, a.Config)
	wallet.Routes(fiberApp, a.WalletService, a.DepositService, a.SettlementService, a.Config)
	return fiberApp
}
