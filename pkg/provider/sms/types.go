package sms

import "github.com/numgate/numgate/pkg/money"

// Provider actions. The wire vocabulary is fixed; anything else is rejected
// by the provider with a bad-action token.
const (
	ActionGetNumber  = "getNumber"
	ActionGetStatus  = "getStatus"
	ActionSetStatus  = "setStatus"
	ActionGetPrices  = "getPrices"
	ActionGetBalance = "getBalance"
)

// Activation status values the provider reports for setStatus.
const (
	SetStatusReady    = "1"
	SetStatusComplete = "6"
	SetStatusCancel   = "8"
)

// Param is one ordered request parameter.
type Param struct {
	Key   string
	Value string
}

// Lease is a successfully provisioned number.
type Lease struct {
	ActivationID string
	PhoneNumber  string
}

// ActivationState classifies a getStatus poll result.
type ActivationState int

const (
	// StateWaiting means no SMS has arrived yet.
	StateWaiting ActivationState = iota
	// StateCodeReceived means the provider delivered a code.
	StateCodeReceived
	// StateCancelled means the activation was cancelled provider-side.
	StateCancelled
)

// Activation is a decoded getStatus result.
type Activation struct {
	State ActivationState
	Code  string
	Text  string
}

// Ack is a decoded setStatus acknowledgement.
type Ack struct {
	Token string
}

// PriceList maps "service:country" keys to provider unit cost.
type PriceList map[string]money.Money
