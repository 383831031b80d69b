package receipts

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tegro-money/custody/internal/ledger"
)

// Store persists receipts, their activation records and chat associations.
type Store interface {
	Insert(ctx context.Context, r Receipt) error
	Get(ctx context.Context, id uuid.UUID) (Receipt, error)
	ListByIssuer(ctx context.Context, issuer ledger.UserID) ([]Receipt, error)
	Activations(ctx context.Context, id uuid.UUID) ([]Activation, error)
	AddChat(ctx context.Context, id uuid.UUID, chatID int64) error
	DeleteChat(ctx context.Context, id uuid.UUID, chatID int64) error
	Chats(ctx context.Context, id uuid.UUID) ([]int64, error)

	// Atomic runs fn as one unit of work. Receipt rows locked through tx and
	// ledger mutations made through tx.Ledger() commit or roll back together.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of a Store inside Atomic.
type Tx interface {
	// Lock returns the authoritative receipt and holds it until the unit ends.
	Lock(ctx context.Context, id uuid.UUID) (Receipt, error)
	HasActivation(ctx context.Context, id uuid.UUID, user ledger.UserID) (bool, error)
	Save(ctx context.Context, r Receipt) error
	AddActivation(ctx context.Context, a Activation) error
	Ledger() ledger.Mutator
}

type memoryStore struct {
	mu          sync.Mutex
	ledger      ledger.Ledger
	receipts    map[uuid.UUID]Receipt
	activations map[uuid.UUID][]Activation
	chats       map[uuid.UUID]map[int64]struct{}
}

// NewMemoryStore constructs an in-memory store for tests. Ledger mutations
// made inside Atomic go straight to l; receipt changes are staged and only
// applied when fn succeeds.
func NewMemoryStore(l ledger.Ledger) Store {
	return &memoryStore{
		ledger:      l,
		receipts:    make(map[uuid.UUID]Receipt),
		activations: make(map[uuid.UUID][]Activation),
		chats:       make(map[uuid.UUID]map[int64]struct{}),
	}
}

func (s *memoryStore) Insert(_ context.Context, r Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[r.ID] = r
	return nil
}

func (s *memoryStore) Get(_ context.Context, id uuid.UUID) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[id]
	if !ok {
		return Receipt{}, ErrUnknownReceipt
	}
	return r, nil
}

func (s *memoryStore) ListByIssuer(_ context.Context, issuer ledger.UserID) ([]Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Receipt
	for _, r := range s.receipts {
		if r.Issuer == issuer {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueTime.Before(out[j].IssueTime) })
	return out, nil
}

func (s *memoryStore) Activations(_ context.Context, id uuid.UUID) ([]Activation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Activation(nil), s.activations[id]...), nil
}

func (s *memoryStore) AddChat(_ context.Context, id uuid.UUID, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[id]; !ok {
		return ErrUnknownReceipt
	}
	if s.chats[id] == nil {
		s.chats[id] = make(map[int64]struct{})
	}
	s.chats[id][chatID] = struct{}{}
	return nil
}

func (s *memoryStore) DeleteChat(_ context.Context, id uuid.UUID, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats[id], chatID)
	return nil
}

func (s *memoryStore) Chats(_ context.Context, id uuid.UUID) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.chats[id]))
	for chatID := range s.chats[id] {
		out = append(out, chatID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *memoryStore) Atomic(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memoryTx{store: s, staged: make(map[uuid.UUID]Receipt)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, r := range tx.staged {
		s.receipts[id] = r
	}
	for _, a := range tx.added {
		s.activations[a.ReceiptID] = append(s.activations[a.ReceiptID], a)
	}
	return nil
}

type memoryTx struct {
	store  *memoryStore
	staged map[uuid.UUID]Receipt
	added  []Activation
}

func (t *memoryTx) Lock(_ context.Context, id uuid.UUID) (Receipt, error) {
	if r, ok := t.staged[id]; ok {
		return r, nil
	}
	r, ok := t.store.receipts[id]
	if !ok {
		return Receipt{}, ErrUnknownReceipt
	}
	return r, nil
}

func (t *memoryTx) HasActivation(_ context.Context, id uuid.UUID, user ledger.UserID) (bool, error) {
	for _, a := range t.store.activations[id] {
		if a.User == user {
			return true, nil
		}
	}
	for _, a := range t.added {
		if a.ReceiptID == id && a.User == user {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) Save(_ context.Context, r Receipt) error {
	t.staged[r.ID] = r
	return nil
}

func (t *memoryTx) AddActivation(_ context.Context, a Activation) error {
	t.added = append(t.added, a)
	return nil
}

func (t *memoryTx) Ledger() ledger.Mutator {
	return t.store.ledger
}
