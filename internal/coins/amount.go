package coins

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// ErrNegative is returned when an operation would produce a negative amount.
	ErrNegative = errors.New("amount would be negative")
	// ErrCurrencyMismatch is returned when two amounts of different currencies are combined.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrUnknownCurrency is returned for codes or tickers outside the catalog.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrPrecision is returned when a decimal string has more fractional digits than the currency allows.
	ErrPrecision = errors.New("too many fractional digits")
)

// Amount is an exact, currency-tagged quantity in minimal units. Values are
// immutable: every operation returns a fresh Amount.
type Amount struct {
	Currency Currency
	quantity *big.Int
}

// New builds an Amount holding a copy of q. A nil q means zero.
func New(c Currency, q *big.Int) Amount {
	v := new(big.Int)
	if q != nil {
		v.Set(q)
	}
	return Amount{Currency: c, quantity: v}
}

// FromInt64 builds an Amount from a minimal-unit integer.
func FromInt64(c Currency, q int64) Amount {
	return Amount{Currency: c, quantity: big.NewInt(q)}
}

// Zero returns the zero amount for c.
func Zero(c Currency) Amount {
	return Amount{Currency: c, quantity: new(big.Int)}
}

// Quantity returns a copy of the minimal-unit quantity.
func (a Amount) Quantity() *big.Int {
	if a.quantity == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.quantity)
}

func (a Amount) q() *big.Int {
	if a.quantity == nil {
		return new(big.Int)
	}
	return a.quantity
}

// Sign returns -1, 0 or +1.
func (a Amount) Sign() int { return a.q().Sign() }

// IsZero reports whether the quantity is zero.
func (a Amount) IsZero() bool { return a.Sign() == 0 }

// Validate checks that the amount is non-negative and of a known currency.
func (a Amount) Validate() error {
	if !a.Currency.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownCurrency, uint8(a.Currency))
	}
	if a.Sign() < 0 {
		return ErrNegative
	}
	return nil
}

// Add returns a + b.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, a.Currency, b.Currency)
	}
	return Amount{Currency: a.Currency, quantity: new(big.Int).Add(a.q(), b.q())}, nil
}

// Sub returns a - b, failing with ErrNegative instead of going below zero.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, a.Currency, b.Currency)
	}
	res := new(big.Int).Sub(a.q(), b.q())
	if res.Sign() < 0 {
		return Amount{}, ErrNegative
	}
	return Amount{Currency: a.Currency, quantity: res}, nil
}

// Mul returns a × n for n ≥ 0.
func (a Amount) Mul(n int64) (Amount, error) {
	if n < 0 {
		return Amount{}, ErrNegative
	}
	return Amount{Currency: a.Currency, quantity: new(big.Int).Mul(a.q(), big.NewInt(n))}, nil
}

// Cmp compares quantities. Amounts of different currencies are not comparable.
func (a Amount) Cmp(b Amount) (int, error) {
	if a.Currency != b.Currency {
		return 0, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, a.Currency, b.Currency)
	}
	return a.q().Cmp(b.q()), nil
}

// Less reports a < b; amounts of different currencies are never less.
func (a Amount) Less(b Amount) bool {
	c, err := a.Cmp(b)
	return err == nil && c < 0
}

// Equal reports whether both currency and quantity match.
func (a Amount) Equal(b Amount) bool {
	c, err := a.Cmp(b)
	return err == nil && c == 0
}

// Decimal returns the human-facing value scaled by the currency precision.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.q(), -int32(a.Currency.Spec().Decimals))
}

// String renders "1.25 TON".
func (a Amount) String() string {
	return a.Decimal().String() + " " + a.Currency.Ticker()
}

// Parse converts a human-facing decimal string into minimal units.
func Parse(c Currency, s string) (Amount, error) {
	if !c.Valid() {
		return Amount{}, fmt.Errorf("%w: %d", ErrUnknownCurrency, uint8(c))
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.Sign() < 0 {
		return Amount{}, ErrNegative
	}
	scaled := d.Shift(int32(c.Spec().Decimals))
	if !scaled.IsInteger() {
		return Amount{}, fmt.Errorf("%w: %s allows %d", ErrPrecision, c.Ticker(), c.Spec().Decimals)
	}
	return Amount{Currency: c, quantity: scaled.BigInt()}, nil
}
