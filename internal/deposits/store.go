package deposits

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tegro-money/custody/internal/ledger"
)

// Store persists deposits.
type Store interface {
	// Insert fails with ErrDuplicateDeposit when d.ID is already stored.
	Insert(ctx context.Context, d Deposit) error
	Get(ctx context.Context, id uuid.UUID) (Deposit, error)
	ListByUser(ctx context.Context, user ledger.UserID) ([]Deposit, error)
	// Due returns unpaid deposits whose finish date is not after now.
	Due(ctx context.Context, now time.Time) ([]Deposit, error)
	// Atomic runs fn as one unit of work shared with tx.Ledger().
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of a Store inside Atomic.
type Tx interface {
	Lock(ctx context.Context, id uuid.UUID) (Deposit, error)
	MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) error
	Ledger() ledger.Mutator
}

type memoryStore struct {
	mu       sync.Mutex
	ledger   ledger.Ledger
	deposits map[uuid.UUID]Deposit
}

// NewMemoryStore constructs an in-memory store for tests. Ledger mutations
// inside Atomic go straight to l.
func NewMemoryStore(l ledger.Ledger) Store {
	return &memoryStore{ledger: l, deposits: make(map[uuid.UUID]Deposit)}
}

func (s *memoryStore) Insert(_ context.Context, d Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deposits[d.ID]; ok {
		return ErrDuplicateDeposit
	}
	s.deposits[d.ID] = d
	return nil
}

func (s *memoryStore) Get(_ context.Context, id uuid.UUID) (Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deposits[id]
	if !ok {
		return Deposit{}, ErrUnknownDeposit
	}
	return d, nil
}

func (s *memoryStore) ListByUser(_ context.Context, user ledger.UserID) ([]Deposit, error) {
	return s.filter(func(d Deposit) bool { return d.Issuer == user }), nil
}

func (s *memoryStore) Due(_ context.Context, now time.Time) ([]Deposit, error) {
	return s.filter(func(d Deposit) bool { return d.Due(now) }), nil
}

func (s *memoryStore) filter(keep func(Deposit) bool) []Deposit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Deposit
	for _, d := range s.deposits {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinishDate.Before(out[j].FinishDate) })
	return out
}

func (s *memoryStore) Atomic(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memoryTx{store: s, paid: make(map[uuid.UUID]time.Time)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, at := range tx.paid {
		d := s.deposits[id]
		d.IsPaid = true
		d.PaidDate = &at
		s.deposits[id] = d
	}
	return nil
}

type memoryTx struct {
	store *memoryStore
	paid  map[uuid.UUID]time.Time
}

func (t *memoryTx) Lock(_ context.Context, id uuid.UUID) (Deposit, error) {
	d, ok := t.store.deposits[id]
	if !ok {
		return Deposit{}, ErrUnknownDeposit
	}
	if at, ok := t.paid[id]; ok {
		d.IsPaid = true
		d.PaidDate = &at
	}
	return d, nil
}

func (t *memoryTx) MarkPaid(_ context.Context, id uuid.UUID, at time.Time) error {
	if _, ok := t.store.deposits[id]; !ok {
		return ErrUnknownDeposit
	}
	t.paid[id] = at
	return nil
}

func (t *memoryTx) Ledger() ledger.Mutator { return t.store.ledger }
