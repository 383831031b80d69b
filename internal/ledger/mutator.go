package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/metrics"
)

// balanceStore is the row-level persistence a backend provides. load must
// lock the row for the remainder of the enclosing unit of work.
type balanceStore interface {
	load(ctx context.Context, user UserID, currency coins.Currency) (Balance, error)
	save(ctx context.Context, user UserID, currency coins.Currency, b Balance) error
}

// mutator implements Mutator on top of any balanceStore. It must run inside
// a unit of work that is already exclusive for the keys it touches.
type mutator struct {
	store balanceStore
}

func (m mutator) Freeze(ctx context.Context, user UserID, amount coins.Amount) (err error) {
	defer observe("freeze", &err)
	if err := checkAmount(amount); err != nil {
		return err
	}
	b, err := m.store.load(ctx, user, amount.Currency)
	if err != nil {
		return err
	}
	active, err := b.Active.Sub(amount)
	if err != nil {
		return ErrInsufficientFunds
	}
	frozen, err := b.Frozen.Add(amount)
	if err != nil {
		return err
	}
	return m.store.save(ctx, user, amount.Currency, Balance{Active: active, Frozen: frozen})
}

func (m mutator) Unfreeze(ctx context.Context, user UserID, amount coins.Amount) (err error) {
	defer observe("unfreeze", &err)
	if err := checkAmount(amount); err != nil {
		return err
	}
	b, err := m.store.load(ctx, user, amount.Currency)
	if err != nil {
		return err
	}
	frozen, err := b.Frozen.Sub(amount)
	if err != nil {
		return violation("unfreeze", user, amount, b)
	}
	active, err := b.Active.Add(amount)
	if err != nil {
		return err
	}
	return m.store.save(ctx, user, amount.Currency, Balance{Active: active, Frozen: frozen})
}

func (m mutator) Transfer(ctx context.Context, from, to UserID, amount coins.Amount) (err error) {
	defer observe("transfer", &err)
	if err := checkAmount(amount); err != nil {
		return err
	}
	if from == to {
		return ErrSameAccount
	}
	src, dst, err := m.loadPair(ctx, from, to, amount.Currency)
	if err != nil {
		return err
	}
	if src.Active, err = src.Active.Sub(amount); err != nil {
		return ErrInsufficientFunds
	}
	if dst.Active, err = dst.Active.Add(amount); err != nil {
		return err
	}
	return m.savePair(ctx, from, to, amount.Currency, src, dst)
}

func (m mutator) TransferFrozen(ctx context.Context, from, to UserID, amount coins.Amount) (err error) {
	defer observe("transfer_frozen", &err)
	if err := checkAmount(amount); err != nil {
		return err
	}
	if from == to {
		return ErrSameAccount
	}
	src, dst, err := m.loadPair(ctx, from, to, amount.Currency)
	if err != nil {
		return err
	}
	frozen, err := src.Frozen.Sub(amount)
	if err != nil {
		return violation("transfer frozen", from, amount, src)
	}
	src.Frozen = frozen
	if dst.Active, err = dst.Active.Add(amount); err != nil {
		return err
	}
	return m.savePair(ctx, from, to, amount.Currency, src, dst)
}

func (m mutator) DebitFrozen(ctx context.Context, user UserID, amount coins.Amount) (err error) {
	defer observe("debit_frozen", &err)
	if err := checkAmount(amount); err != nil {
		return err
	}
	b, err := m.store.load(ctx, user, amount.Currency)
	if err != nil {
		return err
	}
	frozen, err := b.Frozen.Sub(amount)
	if err != nil {
		return violation("debit frozen", user, amount, b)
	}
	b.Frozen = frozen
	return m.store.save(ctx, user, amount.Currency, b)
}

func (m mutator) UpdateActive(ctx context.Context, user UserID, currency coins.Currency, fn func(coins.Amount) (coins.Amount, error)) (_ coins.Amount, err error) {
	defer observe("update_active", &err)
	if !currency.Valid() {
		return coins.Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, coins.ErrUnknownCurrency)
	}
	b, err := m.store.load(ctx, user, currency)
	if err != nil {
		return coins.Amount{}, err
	}
	next, err := fn(b.Active)
	if err != nil {
		return coins.Amount{}, err
	}
	if next.Currency != currency {
		return coins.Amount{}, coins.ErrCurrencyMismatch
	}
	if next.Sign() < 0 {
		return coins.Amount{}, ErrInsufficientFunds
	}
	b.Active = next
	if err := m.store.save(ctx, user, currency, b); err != nil {
		return coins.Amount{}, err
	}
	return next, nil
}

func (m mutator) credit(ctx context.Context, user UserID, amount coins.Amount) (err error) {
	defer observe("credit", &err)
	if err := checkAmount(amount); err != nil {
		return err
	}
	b, err := m.store.load(ctx, user, amount.Currency)
	if err != nil {
		return err
	}
	if b.Active, err = b.Active.Add(amount); err != nil {
		return err
	}
	return m.store.save(ctx, user, amount.Currency, b)
}

// loadPair locks both rows in a canonical order so that concurrent transfers
// in opposite directions cannot deadlock.
func (m mutator) loadPair(ctx context.Context, from, to UserID, currency coins.Currency) (Balance, Balance, error) {
	first, second := from, to
	swapped := bytes.Compare(from[:], to[:]) > 0
	if swapped {
		first, second = to, from
	}
	a, err := m.store.load(ctx, first, currency)
	if err != nil {
		return Balance{}, Balance{}, err
	}
	b, err := m.store.load(ctx, second, currency)
	if err != nil {
		return Balance{}, Balance{}, err
	}
	if swapped {
		return b, a, nil
	}
	return a, b, nil
}

func (m mutator) savePair(ctx context.Context, from, to UserID, currency coins.Currency, src, dst Balance) error {
	if err := m.store.save(ctx, from, currency, src); err != nil {
		return err
	}
	return m.store.save(ctx, to, currency, dst)
}

func checkAmount(amount coins.Amount) error {
	if err := amount.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if amount.IsZero() {
		return fmt.Errorf("%w: zero", ErrInvalidAmount)
	}
	return nil
}

func violation(op string, user UserID, amount coins.Amount, b Balance) error {
	return fmt.Errorf("%w: %s %s for %s exceeds frozen %s", ErrInvariantViolation, op, amount, user, b.Frozen)
}

func observe(op string, err *error) {
	metrics.Custody().ObserveLedger(op, outcome(*err))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSameAccount):
		return "rejected"
	default:
		return "error"
	}
}
