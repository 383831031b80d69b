package receipts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/infra"
	"github.com/tegro-money/custody/internal/ledger"
)

// PostgresStore stores receipts in PostgreSQL, sharing transactions with
// the Postgres ledger.
type PostgresStore struct {
	db     *pgxpool.Pool
	ledger *ledger.PostgresLedger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool, l *ledger.PostgresLedger) *PostgresStore {
	return &PostgresStore{db: db, ledger: l}
}

const receiptColumns = `id, issue_time, issuer_id, currency, amount, activations, recipient_id, is_active`

// Insert writes a new receipt row.
func (s *PostgresStore) Insert(ctx context.Context, r Receipt) error {
	_, err := s.db.Exec(ctx, `INSERT INTO receipts (`+receiptColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.IssueTime.UTC(), r.Issuer, int16(r.Coins.Currency), infra.Numeric(r.Coins.Quantity()),
		r.Activations, r.Recipient, r.IsActive)
	return err
}

// Get fetches a receipt by id.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Receipt, error) {
	row := s.db.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, id)
	return scanReceipt(row)
}

// ListByIssuer returns every receipt the user issued, oldest first.
func (s *PostgresStore) ListByIssuer(ctx context.Context, issuer ledger.UserID) ([]Receipt, error) {
	rows, err := s.db.Query(ctx, `SELECT `+receiptColumns+` FROM receipts
        WHERE issuer_id = $1 ORDER BY issue_time`, issuer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Activations lists who activated the receipt.
func (s *PostgresStore) Activations(ctx context.Context, id uuid.UUID) ([]Activation, error) {
	rows, err := s.db.Query(ctx, `SELECT user_id, activated_at FROM receipt_activations
        WHERE receipt_id = $1 ORDER BY activated_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Activation
	for rows.Next() {
		a := Activation{ReceiptID: id}
		if err := rows.Scan(&a.User, &a.ActivatedAt); err != nil {
			return nil, err
		}
		a.ActivatedAt = a.ActivatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// AddChat associates a chat with the receipt.
func (s *PostgresStore) AddChat(ctx context.Context, id uuid.UUID, chatID int64) error {
	tag, err := s.db.Exec(ctx, `INSERT INTO receipt_chats (receipt_id, chat_id)
        SELECT id, $2 FROM receipts WHERE id = $1
        ON CONFLICT DO NOTHING`, id, chatID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteChat removes a chat association.
func (s *PostgresStore) DeleteChat(ctx context.Context, id uuid.UUID, chatID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM receipt_chats WHERE receipt_id = $1 AND chat_id = $2`, id, chatID)
	return err
}

// Chats lists chat ids associated with the receipt.
func (s *PostgresStore) Chats(ctx context.Context, id uuid.UUID) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT chat_id FROM receipt_chats WHERE receipt_id = $1 ORDER BY chat_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []int64{}
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, err
		}
		out = append(out, chatID)
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

func (t pgTx) Lock(ctx context.Context, id uuid.UUID) (Receipt, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1 FOR UPDATE`, id)
	return scanReceipt(row)
}

func (t pgTx) HasActivation(ctx context.Context, id uuid.UUID, user ledger.UserID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM receipt_activations
        WHERE receipt_id = $1 AND user_id = $2)`, id, user).Scan(&exists)
	return exists, err
}

func (t pgTx) Save(ctx context.Context, r Receipt) error {
	_, err := t.tx.Exec(ctx, `UPDATE receipts SET activations = $2, is_active = $3 WHERE id = $1`,
		r.ID, r.Activations, r.IsActive)
	return err
}

func (t pgTx) AddActivation(ctx context.Context, a Activation) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO receipt_activations (receipt_id, user_id, activated_at)
        VALUES ($1, $2, $3)`, a.ReceiptID, a.User, a.ActivatedAt.UTC())
	return err
}

func (t pgTx) Ledger() ledger.Mutator { return t.ledger }

func scanReceipt(row pgx.Row) (Receipt, error) {
	var (
		r         Receipt
		issueTime time.Time
		code      int16
		amount    pgtype.Numeric
		recipient pgtype.UUID
	)
	if err := row.Scan(&r.ID, &issueTime, &r.Issuer, &code, &amount, &r.Activations, &recipient, &r.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, ErrUnknownReceipt
		}
		return Receipt{}, err
	}
	q, err := infra.BigInt(amount)
	if err != nil {
		return Receipt{}, err
	}
	r.IssueTime = issueTime.UTC()
	r.Coins = coins.New(coins.Currency(code), q)
	if recipient.Valid {
		id := ledger.UserID(recipient.Bytes)
		r.Recipient = &id
	}
	return r, nil
}
