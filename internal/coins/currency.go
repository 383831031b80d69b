package coins

import (
	"fmt"
	"math/big"
	"strings"
)

// Currency is the enumerated currency code. The numeric value is persisted
// and must never be renumbered.
type Currency uint8

const (
	TON Currency = iota
	TGR
	USDT
)

// Spec describes precision and fee parameters of a currency. All quantities
// are expressed in minimal units.
type Spec struct {
	Ticker            string
	Decimals          int
	MinAmount         *big.Int
	Fee               *big.Int
	NetworkFeeReserve *big.Int
}

var catalog = map[Currency]Spec{
	TON: {
		Ticker:            "TON",
		Decimals:          9,
		MinAmount:         big.NewInt(100_000_000),
		Fee:               big.NewInt(20_000_000),
		NetworkFeeReserve: big.NewInt(50_000_000),
	},
	TGR: {
		Ticker:            "TGR",
		Decimals:          9,
		MinAmount:         big.NewInt(10_000_000_000),
		Fee:               big.NewInt(1_000_000_000),
		NetworkFeeReserve: big.NewInt(0),
	},
	USDT: {
		Ticker:            "USDT",
		Decimals:          6,
		MinAmount:         big.NewInt(1_000_000),
		Fee:               big.NewInt(500_000),
		NetworkFeeReserve: big.NewInt(0),
	},
}

// Currencies lists every known currency in code order.
func Currencies() []Currency {
	return []Currency{TON, TGR, USDT}
}

// Valid reports whether c is a known currency code.
func (c Currency) Valid() bool {
	_, ok := catalog[c]
	return ok
}

// Spec returns the currency parameters. Unknown codes yield a zero Spec.
func (c Currency) Spec() Spec {
	return catalog[c]
}

// Ticker returns the display symbol.
func (c Currency) Ticker() string {
	if s, ok := catalog[c]; ok {
		return s.Ticker
	}
	return fmt.Sprintf("CUR(%d)", uint8(c))
}

func (c Currency) String() string { return c.Ticker() }

// MinAmount is the smallest transactable amount.
func (c Currency) MinAmount() Amount { return New(c, c.Spec().MinAmount) }

// Fee is the flat per-operation fee.
func (c Currency) Fee() Amount { return New(c, c.Spec().Fee) }

// NetworkFeeReserve is kept aside to pay for on-chain forwarding.
func (c Currency) NetworkFeeReserve() Amount { return New(c, c.Spec().NetworkFeeReserve) }

// ParseCurrency resolves a ticker, case-insensitively.
func ParseCurrency(ticker string) (Currency, error) {
	for code, s := range catalog {
		if strings.EqualFold(s.Ticker, ticker) {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, ticker)
}
