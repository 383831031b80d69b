package wallet

import (
	"errors"
	"time"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/ledger"
)

var (
	// ErrAddressNotFound is returned when no user owns a deposit address.
	ErrAddressNotFound = errors.New("deposit address not found")
	// ErrAddressExists is returned when a user already has an address on record.
	ErrAddressExists = errors.New("deposit address already assigned")
)

// DepositAddress is the on-chain wallet a user tops up custody through.
// Address is the raw workchain:hex form.
type DepositAddress struct {
	User      ledger.UserID
	Address   string
	CreatedAt time.Time
}

// CurrencyBalance is one line of a wallet overview.
type CurrencyBalance struct {
	Currency coins.Currency
	Active   coins.Amount
	Frozen   coins.Amount
	// Withdrawable is the active balance minus the withdrawal fee, never negative.
	Withdrawable coins.Amount
}

// Overview lists every currency balance of a user.
type Overview struct {
	User     ledger.UserID
	Balances []CurrencyBalance
	AsOf     time.Time
}
