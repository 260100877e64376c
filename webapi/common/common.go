// Package common provides the response envelope, RFC 9457 problem responses
// and request binding shared by all API routes.
package common

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/provider/sms"
)

// Response is the standard success envelope.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ProblemDetails follows RFC 9457 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Code     string `json:"code,omitempty"`
	Instance string `json:"instance,omitempty"`
	Errors   any    `json:"errors,omitempty"`
}

// SuccessResponseJSON writes the success envelope.
func SuccessResponseJSON(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{Status: status, Message: message, Data: data})
}

// ProblemDetailsJSON writes an RFC 9457 problem response. When no explicit
// status is given the domain error mapping decides it.
func ProblemDetailsJSON(c *fiber.Ctx, title string, err error, status ...int) error {
	code := fiber.StatusInternalServerError
	if len(status) > 0 {
		code = status[0]
	} else if err != nil {
		code = ErrorToStatusCode(err)
	}
	pd := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   code,
		Instance: c.OriginalURL(),
	}
	if err != nil {
		pd.Detail = err.Error()
		pd.Code = errorCode(err)
	}
	c.Set(fiber.HeaderContentType, "application/problem+json")
	return c.Status(code).JSON(pd)
}

// ErrorToStatusCode maps domain and provider errors to HTTP status codes.
func ErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrPurchaseNotFound),
		errors.Is(err, domain.ErrDepositNotFound),
		errors.Is(err, domain.ErrAccountNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrPriceExceeded),
		errors.Is(err, domain.ErrCancelTooEarly),
		errors.Is(err, domain.ErrCancelNotAllowed),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrDepositNotPending),
		errors.Is(err, domain.ErrPaymentNotActivated):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNoInventory):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrServiceUnavailable):
		return fiber.StatusServiceUnavailable
	}
	if pe, ok := sms.AsProviderError(err); ok {
		switch pe.Kind {
		case sms.KindNoInventory:
			return fiber.StatusConflict
		case sms.KindRateLimited:
			// Internal retries were exhausted; the client may try later.
			return fiber.StatusServiceUnavailable
		case sms.KindInvalidRequest:
			return fiber.StatusBadRequest
		case sms.KindTimeout:
			return fiber.StatusGatewayTimeout
		default:
			return fiber.StatusBadGateway
		}
	}
	return fiber.StatusInternalServerError
}

// errorCode returns a stable machine-readable code for known failures.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoInventory):
		return "NO_NUMBERS_AVAILABLE"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE"
	case errors.Is(err, domain.ErrPriceExceeded):
		return "PRICE_EXCEEDED"
	case errors.Is(err, domain.ErrCancelTooEarly):
		return "CANCEL_TOO_EARLY"
	case errors.Is(err, domain.ErrServiceUnavailable):
		return "SERVICE_UNAVAILABLE"
	}
	if pe, ok := sms.AsProviderError(err); ok {
		switch pe.Kind {
		case sms.KindNoInventory:
			return "NO_NUMBERS_AVAILABLE"
		case sms.KindRateLimited:
			return "PROVIDER_BUSY"
		}
	}
	return ""
}

// BindAndValidate parses and validates the request body. On failure the
// error response is already written and the returned pointer is nil.
func BindAndValidate[T any](c *fiber.Ctx) (*T, error) {
	var input T
	if err := c.BodyParser(&input); err != nil {
		_ = ProblemDetailsJSON(c, "Invalid request body", err, fiber.StatusBadRequest)
		return nil, err
	}
	validate := validator.New()
	if err := validate.Struct(input); err != nil {
		_ = ProblemDetailsJSON(c, "Validation failed", err, fiber.StatusBadRequest)
		return nil, err
	}
	return &input, nil
}
