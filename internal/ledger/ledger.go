package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tegro-money/custody/internal/coins"
)

var (
	// ErrInsufficientFunds occurs when the active partition cannot cover a
	// requested debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvariantViolation indicates the frozen partition does not cover an
	// obligation it is supposed to back. It is never a user error.
	ErrInvariantViolation = errors.New("ledger invariant violation")

	// ErrInvalidAmount rejects non-positive, malformed or unknown-currency amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrSameAccount rejects transfers whose source and destination coincide.
	ErrSameAccount = errors.New("source and destination are the same account")
)

// UserID identifies a ledger owner.
type UserID = uuid.UUID

// Balance is the active/frozen pair of one (user, currency).
type Balance struct {
	Active coins.Amount
	Frozen coins.Amount
}

// ZeroBalance returns the implicit balance of an account never referenced before.
func ZeroBalance(c coins.Currency) Balance {
	return Balance{Active: coins.Zero(c), Frozen: coins.Zero(c)}
}

// Total returns active + frozen.
func (b Balance) Total() coins.Amount {
	t, err := b.Active.Add(b.Frozen)
	if err != nil {
		return coins.Zero(b.Active.Currency)
	}
	return t
}

// WalletState is a snapshot of every currency balance of one user.
type WalletState struct {
	User     UserID
	Balances map[coins.Currency]Balance
}

// Balance returns the balance for c, zero when the user never held it.
func (w WalletState) Balance(c coins.Currency) Balance {
	if b, ok := w.Balances[c]; ok {
		return b
	}
	return ZeroBalance(c)
}

// Mutator is the set of balance mutations. Implementations serialize every
// operation against the same (user, currency) key.
type Mutator interface {
	// Freeze moves amount from active to frozen.
	Freeze(ctx context.Context, user UserID, amount coins.Amount) error
	// Unfreeze moves amount from frozen back to active.
	Unfreeze(ctx context.Context, user UserID, amount coins.Amount) error
	// Transfer debits from.active and credits to.active.
	Transfer(ctx context.Context, from, to UserID, amount coins.Amount) error
	// TransferFrozen settles a reserved obligation: from.frozen to to.active.
	TransferFrozen(ctx context.Context, from, to UserID, amount coins.Amount) error
	// DebitFrozen removes reserved value that has left custody.
	DebitFrozen(ctx context.Context, user UserID, amount coins.Amount) error
	// UpdateActive applies fn to the active amount and stores the result.
	UpdateActive(ctx context.Context, user UserID, currency coins.Currency, fn func(coins.Amount) (coins.Amount, error)) (coins.Amount, error)
}

// Ledger defines the contract implemented by ledger backends.
type Ledger interface {
	Mutator
	// Credit adds external inflow (for example a detected on-chain deposit) to active.
	Credit(ctx context.Context, user UserID, amount coins.Amount) error
	Balance(ctx context.Context, user UserID, currency coins.Currency) (Balance, error)
	LoadWalletState(ctx context.Context, user UserID) (WalletState, error)
}
