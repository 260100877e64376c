// Package exchange converts between the currency a user pays in and the
// currency the ledger settles in.
package exchange

import (
	"errors"
	"fmt"

	"github.com/numgate/numgate/pkg/money"
)

var (
	// ErrUnsupportedCurrencyPair indicates no rate is configured for the pair.
	ErrUnsupportedCurrencyPair = errors.New("unsupported currency pair")

	// ErrInvalidRate indicates a non-positive configured rate.
	ErrInvalidRate = errors.New("invalid exchange rate")
)

// RateProvider resolves the rate to multiply a `from` amount by to obtain
// the `to` amount. Same-currency pairs always resolve to 1.
type RateProvider interface {
	Rate(from, to money.Code) (float64, error)
}

// Converter converts monetary values into a fixed settlement currency.
type Converter struct {
	provider   RateProvider
	settlement money.Code
}

// NewConverter creates a converter targeting the given settlement currency.
func NewConverter(provider RateProvider, settlement money.Code) *Converter {
	return &Converter{provider: provider, settlement: settlement}
}

// SettlementCurrency returns the currency all conversions target.
func (c *Converter) SettlementCurrency() money.Code { return c.settlement }

// ToSettlement converts m into the settlement currency and returns the
// converted amount alongside the rate used.
func (c *Converter) ToSettlement(m money.Money) (money.Money, float64, error) {
	rate, err := c.provider.Rate(m.Currency(), c.settlement)
	if err != nil {
		return money.Money{}, 0, err
	}
	converted := m.MulFloat(rate)
	return money.NewFromData(converted.Amount(), c.settlement.String()), rate, nil
}

// StaticProvider serves rates from a fixed table, keyed "FROM:TO". The
// inverse of a configured pair is derived automatically.
type StaticProvider struct {
	rates map[string]float64
}

// NewStaticProvider builds a provider from configured pair rates.
func NewStaticProvider(rates map[string]float64) (*StaticProvider, error) {
	for pair, rate := range rates {
		if rate <= 0 {
			return nil, fmt.Errorf("%w: %s=%v", ErrInvalidRate, pair, rate)
		}
	}
	return &StaticProvider{rates: rates}, nil
}

// Rate implements RateProvider.
func (p *StaticProvider) Rate(from, to money.Code) (float64, error) {
	if from == to {
		return 1, nil
	}
	if rate, ok := p.rates[pairKey(from, to)]; ok {
		return rate, nil
	}
	if rate, ok := p.rates[pairKey(to, from)]; ok {
		return 1 / rate, nil
	}
	return 0, fmt.Errorf("%w: %s -> %s", ErrUnsupportedCurrencyPair, from, to)
}

func pairKey(from, to money.Code) string {
	return from.String() + ":" + to.String()
}
