// Package numbers exposes the virtual-number endpoints: quoting, purchase,
// code polling, cancellation and completion.
package numbers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/numgate/numgate/pkg/config"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/middleware"
	"github.com/numgate/numgate/pkg/money"
	"github.com/numgate/numgate/pkg/service/pricing"
	"github.com/numgate/numgate/pkg/service/purchase"
	"github.com/numgate/numgate/webapi/common"
)

// Routes registers the number endpoints under /api/numbers.
func Routes(app *fiber.App, purchaseSvc *purchase.Service, pricingSvc *pricing.Service, cfg *config.App) {
	group := app.Group("/api/numbers", middleware.JwtProtected(cfg.Jwt))
	group.Get("/price", Price(pricingSvc))
	group.Post("/", Purchase(purchaseSvc))
	group.Get("/", List(purchaseSvc))
	group.Get("/:activationID/code", PollCode(purchaseSvc))
	group.Post("/:activationID/cancel", Cancel(purchaseSvc))
	group.Post("/:activationID/complete", Complete(purchaseSvc))
}

// PurchaseInput is the purchase request body.
type PurchaseInput struct {
	Service  string  `json:"service" validate:"required"`
	Country  string  `json:"country" validate:"required"`
	Operator string  `json:"operator"`
	MaxPrice float64 `json:"max_price" validate:"omitempty,gt=0"`
	Currency string  `json:"currency" validate:"omitempty,len=3"`
}

// PurchaseResponse is the purchase result payload.
type PurchaseResponse struct {
	ActivationID string    `json:"activation_id"`
	PhoneNumber  string    `json:"phone_number"`
	Service      string    `json:"service"`
	Country      string    `json:"country"`
	Price        float64   `json:"price"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func purchaseResponse(p *domain.NumberPurchase) PurchaseResponse {
	return PurchaseResponse{
		ActivationID: p.ActivationID,
		PhoneNumber:  p.PhoneNumber,
		Service:      p.ServiceCode,
		Country:      p.CountryCode,
		Price:        p.Price.AmountFloat(),
		Currency:     p.Price.Currency().String(),
		Status:       string(p.Status),
		ExpiresAt:    p.ExpiresAt,
	}
}

// Price quotes the customer price for a (service, country) pair.
func Price(pricingSvc *pricing.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		service := c.Query("service")
		country := c.Query("country")
		if service == "" || country == "" {
			return common.ProblemDetailsJSON(c, "Missing query parameters",
				fiber.ErrBadRequest, fiber.StatusBadRequest)
		}
		price, err := pricingSvc.Quote(c.Context(), service, country, nil)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Price unavailable", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Price quoted", fiber.Map{
			"service":  service,
			"country":  country,
			"price":    price.AmountFloat(),
			"currency": price.Currency().String(),
		})
	}
}

// Purchase leases a number and debits the balance.
func Purchase(purchaseSvc *purchase.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.UserID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err, fiber.StatusUnauthorized)
		}
		input, err := common.BindAndValidate[PurchaseInput](c)
		if input == nil {
			return err
		}
		var maxPrice *money.Money
		if input.MaxPrice > 0 {
			currency := money.DefaultCode
			if input.Currency != "" {
				currency = money.Code(input.Currency)
			}
			ceiling, err := money.New(input.MaxPrice, currency)
			if err != nil {
				return common.ProblemDetailsJSON(c, "Invalid max price", err, fiber.StatusBadRequest)
			}
			maxPrice = &ceiling
		}
		p, err := purchaseSvc.Purchase(c.Context(), userID,
			input.Service, input.Country, input.Operator, maxPrice)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Purchase failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Number purchased", purchaseResponse(p))
	}
}

// List returns the user's purchases, newest first.
func List(purchaseSvc *purchase.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.UserID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err, fiber.StatusUnauthorized)
		}
		limit := c.QueryInt("limit", 50)
		purchases, err := purchaseSvc.List(c.Context(), userID, limit)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Listing failed", err)
		}
		out := make([]PurchaseResponse, 0, len(purchases))
		for _, p := range purchases {
			out = append(out, purchaseResponse(p))
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Purchases", out)
	}
}

// PollCode fetches the activation state and returns any received code.
func PollCode(purchaseSvc *purchase.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.UserID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err, fiber.StatusUnauthorized)
		}
		p, err := purchaseSvc.PollCode(c.Context(), userID, c.Params("activationID"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Poll failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Activation state", fiber.Map{
			"activation_id": p.ActivationID,
			"status":        string(p.Status),
			"sms_code":      p.SMSCode,
			"sms_text":      p.SMSText,
		})
	}
}

// Cancel cancels a purchase and refunds per policy.
func Cancel(purchaseSvc *purchase.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.UserID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err, fiber.StatusUnauthorized)
		}
		refund, err := purchaseSvc.Cancel(c.Context(), userID, c.Params("activationID"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Cancellation failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Purchase cancelled", fiber.Map{
			"refund":   refund.AmountFloat(),
			"currency": refund.Currency().String(),
		})
	}
}

// Complete marks a purchase as used.
func Complete(purchaseSvc *purchase.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.UserID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err, fiber.StatusUnauthorized)
		}
		if err := purchaseSvc.Complete(c.Context(), userID, c.Params("activationID")); err != nil {
			return common.ProblemDetailsJSON(c, "Completion failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Purchase completed", nil)
	}
}
