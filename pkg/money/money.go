// Package money provides a fixed-point monetary value object.
//
// Invariants:
//   - Amount is always stored in the smallest currency unit (e.g., cents for USD).
//   - Currency code must be valid ISO 4217 (3 uppercase letters).
//   - All arithmetic operations require matching currencies.
package money

import (
	"encoding/json"
	"fmt"
	"math"
)

var (
	// ErrInvalidAmount is returned when an amount cannot be represented exactly.
	ErrInvalidAmount = fmt.Errorf("invalid amount")

	// ErrInvalidCurrency is returned for malformed currency codes.
	ErrInvalidCurrency = fmt.Errorf("invalid currency code")

	// ErrCurrencyMismatch is returned when operating on money in different currencies.
	ErrCurrencyMismatch = fmt.Errorf("currency mismatch")
)

// Amount is a monetary amount in the smallest currency unit.
type Amount = int64

// Code is a 3-letter ISO 4217 currency code (e.g., "USD").
type Code string

// Common currency codes.
const (
	USD Code = "USD"
	EUR Code = "EUR"
	NGN Code = "NGN"
	RUB Code = "RUB"
)

// DefaultCode is the ledger settlement currency used when none is configured.
var DefaultCode = USD

// IsValid checks if the currency code is well formed.
func (c Code) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	return c[0] >= 'A' && c[0] <= 'Z' &&
		c[1] >= 'A' && c[1] <= 'Z' &&
		c[2] >= 'A' && c[2] <= 'Z'
}

// String returns the string representation of the currency code.
func (c Code) String() string { return string(c) }

// decimals returns the number of minor-unit decimal places for the code.
// Every currency the gateway settles in uses two.
func (c Code) decimals() int { return 2 }

// Money represents a monetary value in a specific currency.
type Money struct {
	amount   Amount
	currency Code
}

// New creates a Money value from a major-unit amount (e.g., dollars).
// The amount must be exactly representable in the currency's minor unit.
func New(amount float64, currency Code) (Money, error) {
	if !currency.IsValid() {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Money{}, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	scaled := amount * math.Pow10(currency.decimals())
	rounded := math.Round(scaled)
	if math.Abs(scaled-rounded) > 1e-6 {
		return Money{}, fmt.Errorf("%w: %v has sub-minor-unit precision", ErrInvalidAmount, amount)
	}
	if rounded > float64(math.MaxInt64) || rounded < float64(math.MinInt64) {
		return Money{}, fmt.Errorf("%w: %v overflows", ErrInvalidAmount, amount)
	}
	return Money{amount: Amount(rounded), currency: currency}, nil
}

// NewFromSmallestUnit creates a Money value from a minor-unit amount (e.g., cents).
func NewFromSmallestUnit(amount Amount, currency Code) (Money, error) {
	if !currency.IsValid() {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	return Money{amount: amount, currency: currency}, nil
}

// NewFromData reconstructs a Money value from persisted columns without
// validation. Only for mapping rows that were validated on the way in.
func NewFromData(amount Amount, currency string) Money {
	return Money{amount: amount, currency: Code(currency)}
}

// Must creates a Money value and panics on invalid input. For tests and constants.
func Must(amount float64, currency Code) Money {
	m, err := New(amount, currency)
	if err != nil {
		panic(fmt.Sprintf("money.Must(%v, %v): %v", amount, currency, err))
	}
	return m
}

// Zero returns a zero amount in the given currency.
func Zero(currency Code) Money {
	return Money{amount: 0, currency: currency}
}

// Amount returns the amount in the smallest currency unit.
func (m Money) Amount() Amount { return m.amount }

// AmountFloat returns the amount in the major currency unit.
func (m Money) AmountFloat() float64 {
	return float64(m.amount) / math.Pow10(m.currency.decimals())
}

// Currency returns the currency code.
func (m Money) Currency() Code { return m.currency }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.amount == 0 }

// IsNegative reports whether the amount is negative.
func (m Money) IsNegative() bool { return m.amount < 0 }

// IsPositive reports whether the amount is strictly positive.
func (m Money) IsPositive() bool { return m.amount > 0 }

// Add returns the sum. Currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return Money{amount: m.amount + other.amount, currency: m.currency}, nil
}

// Sub returns the difference. The result may be negative. Currencies must match.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return Money{amount: m.amount - other.amount, currency: m.currency}, nil
}

// MulFloat scales the amount by a factor, rounding half away from zero to the
// nearest minor unit. Used for markup and refund-fraction policies.
func (m Money) MulFloat(factor float64) Money {
	scaled := math.Round(float64(m.amount) * factor)
	return Money{amount: Amount(scaled), currency: m.currency}
}

// GreaterThan reports whether m > other. Currencies must match.
func (m Money) GreaterThan(other Money) (bool, error) {
	if m.currency != other.currency {
		return false, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return m.amount > other.amount, nil
}

// LessThan reports whether m < other. Currencies must match.
func (m Money) LessThan(other Money) (bool, error) {
	if m.currency != other.currency {
		return false, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return m.amount < other.amount, nil
}

// Equals reports whether the two values have the same amount and currency.
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount == other.amount
}

// String formats the amount with the currency's decimal places, e.g. "12.50 USD".
func (m Money) String() string {
	d := m.currency.decimals()
	return fmt.Sprintf("%.*f %s", d, m.AmountFloat(), m.currency)
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"amount":   m.amount,
		"currency": m.currency,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Money) UnmarshalJSON(data []byte) error {
	var aux struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	code := Code(aux.Currency)
	if !code.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, aux.Currency)
	}
	m.amount = aux.Amount
	m.currency = code
	return nil
}
