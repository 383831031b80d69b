package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	bolt "go.etcd.io/bbolt"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/infra"
)

// BalancesBucket holds one record per (user, currency).
var BalancesBucket = []byte("wallet_balances")

// BoltLedger keeps balances in a single bbolt file. Every operation runs
// under the file-wide lock of infra.BoltFile.
type BoltLedger struct {
	file *infra.BoltFile
}

var _ Ledger = (*BoltLedger)(nil)

// NewBoltLedger wraps file, creating the balances bucket when missing.
func NewBoltLedger(file *infra.BoltFile) (*BoltLedger, error) {
	if err := file.EnsureBuckets(BalancesBucket); err != nil {
		return nil, err
	}
	return &BoltLedger{file: file}, nil
}

// InTx exposes the balance mutations inside a read-write transaction the
// caller already holds.
func (l *BoltLedger) InTx(tx *bolt.Tx) Mutator {
	return mutator{store: boltBalances{tx: tx}}
}

func (l *BoltLedger) update(ctx context.Context, fn func(m mutator) error) error {
	return l.file.Update(ctx, func(tx *bolt.Tx) error {
		return fn(mutator{store: boltBalances{tx: tx}})
	})
}

// Freeze moves funds from active to frozen.
func (l *BoltLedger) Freeze(ctx context.Context, user UserID, amount coins.Amount) error {
	return l.update(ctx, func(m mutator) error { return m.Freeze(ctx, user, amount) })
}

// Unfreeze moves funds from frozen back to active.
func (l *BoltLedger) Unfreeze(ctx context.Context, user UserID, amount coins.Amount) error {
	return l.update(ctx, func(m mutator) error { return m.Unfreeze(ctx, user, amount) })
}

// Transfer moves active funds between two users.
func (l *BoltLedger) Transfer(ctx context.Context, from, to UserID, amount coins.Amount) error {
	return l.update(ctx, func(m mutator) error { return m.Transfer(ctx, from, to, amount) })
}

// TransferFrozen settles frozen funds of from into the active balance of to.
func (l *BoltLedger) TransferFrozen(ctx context.Context, from, to UserID, amount coins.Amount) error {
	return l.update(ctx, func(m mutator) error { return m.TransferFrozen(ctx, from, to, amount) })
}

// DebitFrozen removes frozen funds that left custody.
func (l *BoltLedger) DebitFrozen(ctx context.Context, user UserID, amount coins.Amount) error {
	return l.update(ctx, func(m mutator) error { return m.DebitFrozen(ctx, user, amount) })
}

// UpdateActive rewrites the active amount while the file lock is held.
func (l *BoltLedger) UpdateActive(ctx context.Context, user UserID, currency coins.Currency, fn func(coins.Amount) (coins.Amount, error)) (coins.Amount, error) {
	var out coins.Amount
	err := l.update(ctx, func(m mutator) error {
		var err error
		out, err = m.UpdateActive(ctx, user, currency, fn)
		return err
	})
	return out, err
}

// Credit adds external inflow to the active balance.
func (l *BoltLedger) Credit(ctx context.Context, user UserID, amount coins.Amount) error {
	return l.update(ctx, func(m mutator) error { return m.credit(ctx, user, amount) })
}

// Balance returns the stored balance, zero when the user has none.
func (l *BoltLedger) Balance(ctx context.Context, user UserID, currency coins.Currency) (Balance, error) {
	var b Balance
	err := l.file.View(ctx, func(tx *bolt.Tx) error {
		var err error
		b, err = boltBalances{tx: tx}.load(ctx, user, currency)
		return err
	})
	return b, err
}

// LoadWalletState returns every stored currency balance of user.
func (l *BoltLedger) LoadWalletState(ctx context.Context, user UserID) (WalletState, error) {
	state := WalletState{User: user, Balances: make(map[coins.Currency]Balance)}
	err := l.file.View(ctx, func(tx *bolt.Tx) error {
		c := tx.Bucket(BalancesBucket).Cursor()
		prefix := user[:]
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			currency := coins.Currency(k[len(prefix)])
			b, err := decodeBoltBalance(currency, v)
			if err != nil {
				return err
			}
			state.Balances[currency] = b
		}
		return nil
	})
	return state, err
}

type boltRecord struct {
	Active string `json:"active"`
	Frozen string `json:"frozen"`
}

type boltBalances struct {
	tx *bolt.Tx
}

func balanceKeyBytes(user UserID, currency coins.Currency) []byte {
	key := make([]byte, 0, len(user)+1)
	key = append(key, user[:]...)
	return append(key, byte(currency))
}

func (s boltBalances) load(_ context.Context, user UserID, currency coins.Currency) (Balance, error) {
	raw := s.tx.Bucket(BalancesBucket).Get(balanceKeyBytes(user, currency))
	if raw == nil {
		return ZeroBalance(currency), nil
	}
	return decodeBoltBalance(currency, raw)
}

func (s boltBalances) save(_ context.Context, user UserID, currency coins.Currency, b Balance) error {
	raw, err := json.Marshal(boltRecord{
		Active: b.Active.Quantity().String(),
		Frozen: b.Frozen.Quantity().String(),
	})
	if err != nil {
		return err
	}
	return s.tx.Bucket(BalancesBucket).Put(balanceKeyBytes(user, currency), raw)
}

func decodeBoltBalance(currency coins.Currency, raw []byte) (Balance, error) {
	var rec boltRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Balance{}, fmt.Errorf("decode balance record: %w", err)
	}
	active, ok := new(big.Int).SetString(rec.Active, 10)
	if !ok {
		return Balance{}, fmt.Errorf("decode active %q", rec.Active)
	}
	frozen, ok := new(big.Int).SetString(rec.Frozen, 10)
	if !ok {
		return Balance{}, fmt.Errorf("decode frozen %q", rec.Frozen)
	}
	return Balance{Active: coins.New(currency, active), Frozen: coins.New(currency, frozen)}, nil
}
