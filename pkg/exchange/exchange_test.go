package exchange

import (
	"testing"

	"github.com/numgate/numgate/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProvider_Rate(t *testing.T) {
	provider, err := NewStaticProvider(map[string]float64{
		"NGN:USD": 0.00065,
		"EUR:USD": 1.08,
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		from    money.Code
		to      money.Code
		want    float64
		wantErr error
	}{
		{name: "identity", from: money.USD, to: money.USD, want: 1},
		{name: "configured pair", from: money.NGN, to: money.USD, want: 0.00065},
		{name: "derived inverse", from: money.USD, to: money.EUR, want: 1 / 1.08},
		{name: "unknown pair", from: money.RUB, to: money.USD, wantErr: ErrUnsupportedCurrencyPair},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, err := provider.Rate(tt.from, tt.to)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, rate, 1e-9)
		})
	}
}

func TestNewStaticProvider_RejectsNonPositiveRate(t *testing.T) {
	_, err := NewStaticProvider(map[string]float64{"NGN:USD": 0})
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestConverter_ToSettlement(t *testing.T) {
	provider, err := NewStaticProvider(map[string]float64{"NGN:USD": 0.00065})
	require.NoError(t, err)
	conv := NewConverter(provider, money.USD)

	// 100,000 NGN at 0.00065 settles as 65 USD.
	settled, rate, err := conv.ToSettlement(money.Must(100_000, money.NGN))
	require.NoError(t, err)
	assert.Equal(t, money.USD, settled.Currency())
	assert.Equal(t, int64(6500), settled.Amount())
	assert.InDelta(t, 0.00065, rate, 1e-9)
}

func TestConverter_SameCurrencyPassThrough(t *testing.T) {
	provider, err := NewStaticProvider(nil)
	require.NoError(t, err)
	conv := NewConverter(provider, money.USD)

	settled, rate, err := conv.ToSettlement(money.Must(25, money.USD))
	require.NoError(t, err)
	assert.Equal(t, int64(2500), settled.Amount())
	assert.Equal(t, 1.0, rate)
}
