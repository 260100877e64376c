// Package webhook exposes the inbound payment notification endpoint.
package webhook

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/numgate/numgate/pkg/service/settlement"
)

// SignatureHeader carries the provider's HMAC over the raw request body.
const SignatureHeader = "X-Paygate-Signature"

// PaymentHandler processes payment webhooks. Once the delivery is logged the
// provider always gets a 200, whatever the processing outcome; anything else
// would make the provider redeliver notifications we already have on record.
func PaymentHandler(settlementSvc *settlement.Service, logger *slog.Logger) fiber.Handler {
	log := logger.With("component", "webhook")
	return func(c *fiber.Ctx) error {
		body := c.Body()
		raw := make([]byte, len(body))
		copy(raw, body) // fiber reuses the buffer after the handler returns

		outcome, err := settlementSvc.Receive(c.Context(), raw, c.Get(SignatureHeader))
		if errors.Is(err, settlement.ErrAuditLogUnavailable) {
			// Not logged, so not acknowledged; the provider will redeliver.
			log.Error("webhook dropped before logging", "error", err)
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		if err != nil {
			log.Warn("webhook not processed", "outcome", string(outcome), "error", err)
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"outcome": string(outcome)})
	}
}
