package coins

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubNeverGoesNegative(t *testing.T) {
	a := FromInt64(TON, 100)
	b := FromInt64(TON, 101)

	_, err := a.Sub(b)
	require.ErrorIs(t, err, ErrNegative)

	res, err := b.Sub(a)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Quantity().Int64())
}

func TestCurrenciesAreNeverCombined(t *testing.T) {
	_, err := FromInt64(TON, 1).Add(FromInt64(USDT, 1))
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = FromInt64(TON, 1).Sub(FromInt64(TGR, 1))
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	require.False(t, FromInt64(TON, 1).Less(FromInt64(USDT, 2)))
}

func TestAmountsAreImmutable(t *testing.T) {
	q := big.NewInt(500)
	a := New(TON, q)
	q.SetInt64(1)
	require.Equal(t, int64(500), a.Quantity().Int64())

	out := a.Quantity()
	out.SetInt64(7)
	require.Equal(t, int64(500), a.Quantity().Int64())
}

func TestMul(t *testing.T) {
	total, err := FromInt64(TGR, 100).Mul(3)
	require.NoError(t, err)
	require.True(t, total.Equal(FromInt64(TGR, 300)))

	_, err = FromInt64(TGR, 100).Mul(-1)
	require.ErrorIs(t, err, ErrNegative)
}

func TestParseAndFormat(t *testing.T) {
	a, err := Parse(TON, "1.25")
	require.NoError(t, err)
	require.Equal(t, int64(1_250_000_000), a.Quantity().Int64())
	require.Equal(t, "1.25 TON", a.String())

	usdt, err := Parse(USDT, "0.000001")
	require.NoError(t, err)
	require.Equal(t, int64(1), usdt.Quantity().Int64())

	_, err = Parse(USDT, "0.0000001")
	require.ErrorIs(t, err, ErrPrecision)

	_, err = Parse(TON, "-1")
	require.ErrorIs(t, err, ErrNegative)

	_, err = Parse(TON, "abc")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Zero(USDT).Validate())
	require.ErrorIs(t, New(TON, big.NewInt(-1)).Validate(), ErrNegative)

	err := FromInt64(Currency(42), 1).Validate()
	require.True(t, errors.Is(err, ErrUnknownCurrency))
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency("usdt")
	require.NoError(t, err)
	require.Equal(t, USDT, c)

	_, err = ParseCurrency("BTC")
	require.ErrorIs(t, err, ErrUnknownCurrency)
}
