package deposits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/infra"
	"github.com/tegro-money/custody/internal/ledger"
)

// PostgresStore stores deposits in PostgreSQL.
type PostgresStore struct {
	db     *pgxpool.Pool
	ledger *ledger.PostgresLedger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool, l *ledger.PostgresLedger) *PostgresStore {
	return &PostgresStore{db: db, ledger: l}
}

const depositColumns = `id, issuer_id, period_months, yield_percent, finish_date, currency, amount, is_paid, paid_date`

// Insert writes an unpaid deposit row.
func (s *PostgresStore) Insert(ctx context.Context, d Deposit) error {
	_, err := s.db.Exec(ctx, `INSERT INTO deposits (`+depositColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.Issuer, d.Period.Months, d.Period.YieldPercent, d.FinishDate.UTC(),
		int16(d.Coins.Currency), infra.Numeric(d.Coins.Quantity()), d.IsPaid, d.PaidDate)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateDeposit
	}
	return err
}

// Get fetches a deposit by id.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Deposit, error) {
	return scanDeposit(s.db.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id))
}

// ListByUser returns every deposit the user opened.
func (s *PostgresStore) ListByUser(ctx context.Context, user ledger.UserID) ([]Deposit, error) {
	return s.query(ctx, `SELECT `+depositColumns+` FROM deposits
        WHERE issuer_id = $1 ORDER BY finish_date`, user)
}

// Due returns unpaid deposits that reached their finish date.
func (s *PostgresStore) Due(ctx context.Context, now time.Time) ([]Deposit, error) {
	return s.query(ctx, `SELECT `+depositColumns+` FROM deposits
        WHERE NOT is_paid AND finish_date <= $1 ORDER BY finish_date`, now.UTC())
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Deposit, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Atomic runs fn inside one database transaction.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(pgTx{tx: tx, ledger: s.ledger.InTx(tx)}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx     pgx.Tx
	ledger ledger.Mutator
}

func (t pgTx) Lock(ctx context.Context, id uuid.UUID) (Deposit, error) {
	return scanDeposit(t.tx.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`, id))
}

func (t pgTx) MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE deposits SET is_paid = true, paid_date = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownDeposit
	}
	return nil
}

func (t pgTx) Ledger() ledger.Mutator { return t.ledger }

func scanDeposit(row pgx.Row) (Deposit, error) {
	var (
		d        Deposit
		code     int16
		amount   pgtype.Numeric
		paidDate pgtype.Timestamptz
	)
	err := row.Scan(&d.ID, &d.Issuer, &d.Period.Months, &d.Period.YieldPercent, &d.FinishDate,
		&code, &amount, &d.IsPaid, &paidDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deposit{}, ErrUnknownDeposit
		}
		return Deposit{}, err
	}
	q, err := infra.BigInt(amount)
	if err != nil {
		return Deposit{}, err
	}
	d.Coins = coins.New(coins.Currency(code), q)
	d.FinishDate = d.FinishDate.UTC()
	if paidDate.Valid {
		at := paidDate.Time.UTC()
		d.PaidDate = &at
	}
	return d, nil
}
