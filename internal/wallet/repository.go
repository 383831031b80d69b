package wallet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tegro-money/custody/internal/ledger"
)

// Repository persists deposit address assignments.
type Repository interface {
	Create(ctx context.Context, addr DepositAddress) error
	Get(ctx context.Context, user ledger.UserID) (DepositAddress, error)
	FindByAddress(ctx context.Context, address string) (DepositAddress, error)
}

// PostgresRepository stores deposit addresses in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an assignment. A second assignment for the same user fails
// with ErrAddressExists.
func (r *PostgresRepository) Create(ctx context.Context, addr DepositAddress) error {
	_, err := r.db.Exec(ctx, `INSERT INTO deposit_addresses (user_id, address, created_at)
        VALUES ($1, $2, $3)`, addr.User, addr.Address, addr.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAddressExists
	}
	return err
}

// Get fetches the address assigned to user.
func (r *PostgresRepository) Get(ctx context.Context, user ledger.UserID) (DepositAddress, error) {
	row := r.db.QueryRow(ctx, `SELECT user_id, address, created_at
        FROM deposit_addresses WHERE user_id = $1`, user)
	return scanAddress(row)
}

// FindByAddress resolves the owner of a raw address.
func (r *PostgresRepository) FindByAddress(ctx context.Context, address string) (DepositAddress, error) {
	row := r.db.QueryRow(ctx, `SELECT user_id, address, created_at
        FROM deposit_addresses WHERE address = $1`, address)
	return scanAddress(row)
}

func scanAddress(row pgx.Row) (DepositAddress, error) {
	var a DepositAddress
	var createdAt time.Time
	if err := row.Scan(&a.User, &a.Address, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DepositAddress{}, ErrAddressNotFound
		}
		return DepositAddress{}, err
	}
	a.CreatedAt = createdAt.UTC()
	return a, nil
}

type memoryRepository struct {
	mu     sync.RWMutex
	byUser map[ledger.UserID]DepositAddress
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{byUser: make(map[ledger.UserID]DepositAddress)}
}

func (r *memoryRepository) Create(_ context.Context, addr DepositAddress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byUser[addr.User]; exists {
		return ErrAddressExists
	}
	r.byUser[addr.User] = addr
	return nil
}

func (r *memoryRepository) Get(_ context.Context, user ledger.UserID) (DepositAddress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.byUser[user]
	if !ok {
		return DepositAddress{}, ErrAddressNotFound
	}
	return addr, nil
}

func (r *memoryRepository) FindByAddress(_ context.Context, address string) (DepositAddress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, addr := range r.byUser {
		if addr.Address == address {
			return addr, nil
		}
	}
	return DepositAddress{}, ErrAddressNotFound
}
