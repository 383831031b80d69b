package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/infra"
)

// PostgresLedger persists balances in PostgreSQL. Each operation runs in its
// own transaction and locks the touched rows with SELECT ... FOR UPDATE.
type PostgresLedger struct {
	db *pgxpool.Pool
}

var _ Ledger = (*PostgresLedger)(nil)

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// InTx exposes the balance mutations inside a transaction owned by the
// caller, so that ledger changes commit or roll back with the caller's rows.
func (l *PostgresLedger) InTx(tx pgx.Tx) Mutator {
	return mutator{store: pgBalances{tx: tx}}
}

func (l *PostgresLedger) inTx(ctx context.Context, fn func(m mutator) error) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(mutator{store: pgBalances{tx: tx}}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Freeze moves funds from active to frozen.
func (l *PostgresLedger) Freeze(ctx context.Context, user UserID, amount coins.Amount) error {
	return l.inTx(ctx, func(m mutator) error { return m.Freeze(ctx, user, amount) })
}

// Unfreeze moves funds from frozen to active.
func (l *PostgresLedger) Unfreeze(ctx context.Context, user UserID, amount coins.Amount) error {
	return l.inTx(ctx, func(m mutator) error { return m.Unfreeze(ctx, user, amount) })
}

// Transfer moves active funds between two users.
func (l *PostgresLedger) Transfer(ctx context.Context, from, to UserID, amount coins.Amount) error {
	return l.inTx(ctx, func(m mutator) error { return m.Transfer(ctx, from, to, amount) })
}

// TransferFrozen settles frozen funds of from into the active balance of to.
func (l *PostgresLedger) TransferFrozen(ctx context.Context, from, to UserID, amount coins.Amount) error {
	return l.inTx(ctx, func(m mutator) error { return m.TransferFrozen(ctx, from, to, amount) })
}

// DebitFrozen removes frozen funds that left custody.
func (l *PostgresLedger) DebitFrozen(ctx context.Context, user UserID, amount coins.Amount) error {
	return l.inTx(ctx, func(m mutator) error { return m.DebitFrozen(ctx, user, amount) })
}

// UpdateActive rewrites the active amount under a row lock.
func (l *PostgresLedger) UpdateActive(ctx context.Context, user UserID, currency coins.Currency, fn func(coins.Amount) (coins.Amount, error)) (coins.Amount, error) {
	var out coins.Amount
	err := l.inTx(ctx, func(m mutator) error {
		var err error
		out, err = m.UpdateActive(ctx, user, currency, fn)
		return err
	})
	return out, err
}

// Credit adds external inflow to the active balance.
func (l *PostgresLedger) Credit(ctx context.Context, user UserID, amount coins.Amount) error {
	return l.inTx(ctx, func(m mutator) error { return m.credit(ctx, user, amount) })
}

// Balance returns the stored balance without locking.
func (l *PostgresLedger) Balance(ctx context.Context, user UserID, currency coins.Currency) (Balance, error) {
	const query = `SELECT active, frozen FROM wallet_balances WHERE user_id = $1 AND currency = $2`
	rows, err := l.db.Query(ctx, query, user, int16(currency))
	if err != nil {
		return Balance{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		return ZeroBalance(currency), rows.Err()
	}
	var active, frozen pgtype.Numeric
	if err := rows.Scan(&active, &frozen); err != nil {
		return Balance{}, err
	}
	return decodeBalance(currency, active, frozen)
}

// LoadWalletState returns every stored currency balance of the user.
func (l *PostgresLedger) LoadWalletState(ctx context.Context, user UserID) (WalletState, error) {
	const query = `SELECT currency, active, frozen FROM wallet_balances WHERE user_id = $1`
	rows, err := l.db.Query(ctx, query, user)
	if err != nil {
		return WalletState{}, err
	}
	defer rows.Close()

	state := WalletState{User: user, Balances: make(map[coins.Currency]Balance)}
	for rows.Next() {
		var (
			code           int16
			active, frozen pgtype.Numeric
		)
		if err := rows.Scan(&code, &active, &frozen); err != nil {
			return WalletState{}, err
		}
		currency := coins.Currency(code)
		b, err := decodeBalance(currency, active, frozen)
		if err != nil {
			return WalletState{}, err
		}
		state.Balances[currency] = b
	}
	return state, rows.Err()
}

// pgBalances is the row store used inside one transaction.
type pgBalances struct {
	tx pgx.Tx
}

func (s pgBalances) load(ctx context.Context, user UserID, currency coins.Currency) (Balance, error) {
	if _, err := s.tx.Exec(ctx, `INSERT INTO wallet_balances (user_id, currency) VALUES ($1, $2)
        ON CONFLICT (user_id, currency) DO NOTHING`, user, int16(currency)); err != nil {
		return Balance{}, err
	}

	const query = `SELECT active, frozen FROM wallet_balances
        WHERE user_id = $1 AND currency = $2 FOR UPDATE`
	var active, frozen pgtype.Numeric
	if err := s.tx.QueryRow(ctx, query, user, int16(currency)).Scan(&active, &frozen); err != nil {
		return Balance{}, fmt.Errorf("lock balance %s/%s: %w", user, currency, err)
	}
	return decodeBalance(currency, active, frozen)
}

func (s pgBalances) save(ctx context.Context, user UserID, currency coins.Currency, b Balance) error {
	_, err := s.tx.Exec(ctx, `UPDATE wallet_balances SET active = $3, frozen = $4, updated_at = now()
        WHERE user_id = $1 AND currency = $2`,
		user, int16(currency), infra.Numeric(b.Active.Quantity()), infra.Numeric(b.Frozen.Quantity()))
	return err
}

func decodeBalance(currency coins.Currency, active, frozen pgtype.Numeric) (Balance, error) {
	a, err := infra.BigInt(active)
	if err != nil {
		return Balance{}, fmt.Errorf("decode active: %w", err)
	}
	f, err := infra.BigInt(frozen)
	if err != nil {
		return Balance{}, fmt.Errorf("decode frozen: %w", err)
	}
	return Balance{Active: coins.New(currency, a), Frozen: coins.New(currency, f)}, nil
}
