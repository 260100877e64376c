// Package payment defines the outbound port to the payment provider. The
// HTTP implementation lives in infra/provider/paygate.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/numgate/numgate/pkg/money"
)

var (
	// ErrCheckoutFailed indicates the provider rejected a checkout request.
	ErrCheckoutFailed = errors.New("checkout initialization failed")

	// ErrVerifyFailed indicates the provider could not verify a transaction.
	ErrVerifyFailed = errors.New("transaction verification failed")
)

// CheckoutRequest asks the provider to open a hosted payment session.
type CheckoutRequest struct {
	Reference   string // locally generated, globally unique
	Email       string
	Amount      money.Money
	CallbackURL string
}

// CheckoutSession is the provider's answer to a checkout request.
type CheckoutSession struct {
	Reference   string
	CheckoutURL string
	AccessCode  string
}

// TxStatus is the provider-side state of a payment transaction.
type TxStatus string

const (
	TxSuccess   TxStatus = "success"
	TxFailed    TxStatus = "failed"
	TxAbandoned TxStatus = "abandoned"
	TxPending   TxStatus = "pending"
)

// Transaction is the provider's record of one payment, as returned by the
// verification endpoint or carried in a webhook event.
type Transaction struct {
	ProviderTxID string
	Reference    string
	Status       TxStatus
	Amount       money.Money
	PaidAt       time.Time
	Channel      string
}

// Provider is the payment-provider client surface the services consume.
type Provider interface {
	// InitializeCheckout opens a hosted checkout session for the request.
	InitializeCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	// VerifyTransaction fetches the authoritative state of a transaction by
	// our reference. Used by the manual verification path.
	VerifyTransaction(ctx context.Context, reference string) (Transaction, error)
}

// SignatureVerifier validates webhook authenticity over the raw body bytes.
type SignatureVerifier interface {
	Verify(body []byte, signature string) bool
}
