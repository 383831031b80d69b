package ledger

import (
	"context"
	"sync"

	"github.com/tegro-money/custody/internal/coins"
)

type balanceKey struct {
	user     UserID
	currency coins.Currency
}

type inMemoryLedger struct {
	mu       sync.Mutex
	balances map[balanceKey]Balance
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests.
func NewInMemory() Ledger {
	return &inMemoryLedger{balances: make(map[balanceKey]Balance)}
}

// load and save assume l.mu is held.
func (l *inMemoryLedger) load(_ context.Context, user UserID, currency coins.Currency) (Balance, error) {
	b, ok := l.balances[balanceKey{user, currency}]
	if !ok {
		return ZeroBalance(currency), nil
	}
	return b, nil
}

func (l *inMemoryLedger) save(_ context.Context, user UserID, currency coins.Currency, b Balance) error {
	l.balances[balanceKey{user, currency}] = b
	return nil
}

func (l *inMemoryLedger) locked(fn func(m mutator) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(mutator{store: l})
}

func (l *inMemoryLedger) Freeze(ctx context.Context, user UserID, amount coins.Amount) error {
	return l.locked(func(m mutator) error { return m.Freeze(ctx, user, amount) })
}

func (l *inMemoryLedger) Unfreeze(ctx context.Context, user UserID, amount coins.Amount) error {
	return l.locked(func(m mutator) error { return m.Unfreeze(ctx, user, amount) })
}

func (l *inMemoryLedger) Transfer(ctx context.Context, from, to UserID, amount coins.Amount) error {
	return l.locked(func(m mutator) error { return m.Transfer(ctx, from, to, amount) })
}

func (l *inMemoryLedger) TransferFrozen(ctx context.Context, from, to UserID, amount coins.Amount) error {
	return l.locked(func(m mutator) error { return m.TransferFrozen(ctx, from, to, amount) })
}

func (l *inMemoryLedger) DebitFrozen(ctx context.Context, user UserID, amount coins.Amount) error {
	return l.locked(func(m mutator) error { return m.DebitFrozen(ctx, user, amount) })
}

func (l *inMemoryLedger) UpdateActive(ctx context.Context, user UserID, currency coins.Currency, fn func(coins.Amount) (coins.Amount, error)) (coins.Amount, error) {
	var out coins.Amount
	err := l.locked(func(m mutator) error {
		var err error
		out, err = m.UpdateActive(ctx, user, currency, fn)
		return err
	})
	return out, err
}

func (l *inMemoryLedger) Credit(ctx context.Context, user UserID, amount coins.Amount) error {
	return l.locked(func(m mutator) error { return m.credit(ctx, user, amount) })
}

func (l *inMemoryLedger) Balance(ctx context.Context, user UserID, currency coins.Currency) (Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx, user, currency)
}

func (l *inMemoryLedger) LoadWalletState(_ context.Context, user UserID) (WalletState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := WalletState{User: user, Balances: make(map[coins.Currency]Balance)}
	for key, b := range l.balances {
		if key.user == user {
			state.Balances[key.currency] = b
		}
	}
	return state, nil
}
