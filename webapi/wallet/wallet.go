// Package wallet exposes balance, ledger history and deposit endpoints.
package wallet

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/numgate/numgate/pkg/config"
	"github.com/numgate/numgate/pkg/middleware"
	"github.com/numgate/numgate/pkg/money"
	depositsvc "github.com/numgate/numgate/pkg/service/deposit"
	"github.com/numgate/numgate/pkg/service/settlement"
	walletsvc "github.com/numgate/numgate/pkg/service/wallet"
	"github.com/numgate/numgate/webapi/common"
)

// Routes registers the wallet endpoints under /api/wallet.
func Routes(
	app *fiber.App,
	walletSvc *walletsvc.Service,
	depositSvc *depositsvc.Service,
	settlementSvc *settlement.Service,
	cfg *config.App,
) {
	group := app.Group("/api/wallet", middleware.JwtProtected(cfg.Jwt))
	group.Get("/balance", Balance(walletSvc))
	group.Get("/transactions", Transactions(walletSvc))
	group.Post("/deposits", InitiateDeposit(depositSvc))
	group.Post("/deposits/:reference/verify", VerifyDeposit(settlementSvc))
	group.Post("/deposits/:reference/cancel", CancelDeposit(depositSvc))
}

// Balance returns the account's balance and cumulative totals.
func Balance(walletSvc *walletsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.UserID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err, fiber.StatusUnauthorized)
		}
		acct, err := walletSvc.Balance(c.Context(), userID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Balance lookup failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Balance", fiber.Map{
			"balance":         acct.Balance.AmountFloat(),
			"currency":        acct.Balance.Currency().String(),
			"total_deposited": acct.TotalDeposited.AmountFloat(),
			"total_spent":     acct.TotalSpent.AmountFloat(),
		})
	}
}

// TransactionResponse is one ledger entry payload.
type TransactionResponse struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	BalanceBefore float64   `json:"balance_before"`
	BalanceAfter  float64   `json:"balance_after"`
	Reference     string    `json:"reference"`
	Description   string    `json:"description"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Transactions returns the user's ledger entries, newest first.
func Transactions(walletSvc *walletsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.UserID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err, fiber.StatusUnauthorized)
		}
		limit := c.QueryInt("limit", 50)
		records, err := walletSvc.Transactions(c.Context(), userID, limit)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Transaction lookup failed", err)
		}
		out := make([]TransactionResponse, 0, len(records))
		for _, record := range records {
			out = append(out, TransactionResponse{
				ID:            record.ID.String(),
				Type:          string(record.Type),
				Amount:        record.Amount.AmountFloat(),
				Currency:      record.Amount.Currency().String(),
				BalanceBefore: record.BalanceBefore.AmountFloat(),
				BalanceAfter:  record.BalanceAfter.AmountFloat(),
				Reference:     record.Reference,
				Description:   record.Description,
				Status:        string(record.Status),
				CreatedAt:     record.CreatedAt,
			})
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Transactions", out)
	}
}

// DepositInput is the deposit initiation body.
type DepositInput struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency" validate:"required,len=3"`
	Email    string  `json:"email" validate:"required,email"`
}

// InitiateDeposit opens a hosted checkout session.
func InitiateDeposit(depositSvc *depositsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.UserID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err, fiber.StatusUnauthorized)
		}
		input, err := common.BindAndValidate[DepositInput](c)
		if input == nil {
			return err
		}
		amount, err := money.New(input.Amount, money.Code(input.Currency))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid amount", err, fiber.StatusBadRequest)
		}
		d, err := depositSvc.Initiate(c.Context(), userID, input.Email, amount)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Deposit initiation failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Deposit initiated", fiber.Map{
			"reference":    d.Reference,
			"checkout_url": d.CheckoutURL,
			"expires_at":   d.ExpiresAt,
		})
	}
}

// VerifyDeposit re-checks the caller's deposit against the payment provider.
func VerifyDeposit(settlementSvc *settlement.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.UserID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err, fiber.StatusUnauthorized)
		}
		outcome, err := settlementSvc.Verify(c.Context(), userID, c.Params("reference"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Verification failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Verification result", fiber.Map{
			"outcome": string(outcome),
		})
	}
}

// CancelDeposit abandons a pending deposit.
func CancelDeposit(depositSvc *depositsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.UserID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err, fiber.StatusUnauthorized)
		}
		if err := depositSvc.Cancel(c.Context(), userID, c.Params("reference")); err != nil {
			return common.ProblemDetailsJSON(c, "Cancellation failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Deposit cancelled", nil)
	}
}
