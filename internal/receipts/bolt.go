package receipts

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/infra"
	"github.com/tegro-money/custody/internal/ledger"
)

var (
	receiptsBucket    = []byte("receipts")
	activationsBucket = []byte("receipt_activations")
	chatsBucket       = []byte("receipt_chats")
)

// BoltStore keeps receipts in the shared single-file backend. Every public
// operation holds the file lock for its full duration.
type BoltStore struct {
	file   *infra.BoltFile
	ledger *ledger.BoltLedger
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore wraps file and creates the receipt buckets.
func NewBoltStore(file *infra.BoltFile, l *ledger.BoltLedger) (*BoltStore, error) {
	if err := file.EnsureBuckets(receiptsBucket, activationsBucket, chatsBucket); err != nil {
		return nil, err
	}
	return &BoltStore{file: file, ledger: l}, nil
}

type receiptRecord struct {
	IssueTime   time.Time  `json:"issue_time"`
	Issuer      uuid.UUID  `json:"issuer"`
	Currency    uint8      `json:"currency"`
	Amount      string     `json:"amount"`
	Activations int        `json:"activations"`
	Recipient   *uuid.UUID `json:"recipient,omitempty"`
	IsActive    bool       `json:"is_active"`
}

func encodeReceipt(r Receipt) ([]byte, error) {
	return json.Marshal(receiptRecord{
		IssueTime:   r.IssueTime.UTC(),
		Issuer:      r.Issuer,
		Currency:    uint8(r.Coins.Currency),
		Amount:      r.Coins.Quantity().String(),
		Activations: r.Activations,
		Recipient:   r.Recipient,
		IsActive:    r.IsActive,
	})
}

func decodeReceipt(id uuid.UUID, raw []byte) (Receipt, error) {
	var rec receiptRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Receipt{}, fmt.Errorf("decode receipt %s: %w", id, err)
	}
	q, ok := new(big.Int).SetString(rec.Amount, 10)
	if !ok {
		return Receipt{}, fmt.Errorf("decode receipt %s: amount %q", id, rec.Amount)
	}
	return Receipt{
		ID:          id,
		IssueTime:   rec.IssueTime,
		Issuer:      rec.Issuer,
		Coins:       coins.New(coins.Currency(rec.Currency), q),
		Activations: rec.Activations,
		Recipient:   rec.Recipient,
		IsActive:    rec.IsActive,
	}, nil
}

func getReceipt(tx *bolt.Tx, id uuid.UUID) (Receipt, error) {
	raw := tx.Bucket(receiptsBucket).Get(id[:])
	if raw == nil {
		return Receipt{}, ErrUnknownReceipt
	}
	return decodeReceipt(id, raw)
}

func putReceipt(tx *bolt.Tx, r Receipt) error {
	raw, err := encodeReceipt(r)
	if err != nil {
		return err
	}
	return tx.Bucket(receiptsBucket).Put(r.ID[:], raw)
}

func pairKey(id uuid.UUID, suffix []byte) []byte {
	key := make([]byte, 0, len(id)+len(suffix))
	key = append(key, id[:]...)
	return append(key, suffix...)
}

func chatKey(id uuid.UUID, chatID int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(chatID))
	return pairKey(id, buf[:])
}

func (s *BoltStore) Insert(ctx context.Context, r Receipt) error {
	return s.file.Update(ctx, func(tx *bolt.Tx) error { return putReceipt(tx, r) })
}

func (s *BoltStore) Get(ctx context.Context, id uuid.UUID) (Receipt, error) {
	var r Receipt
	err := s.file.View(ctx, func(tx *bolt.Tx) error {
		var err error
		r, err = getReceipt(tx, id)
		return err
	})
	return r, err
}

func (s *BoltStore) ListByIssuer(ctx context.Context, issuer ledger.UserID) ([]Receipt, error) {
	var out []Receipt
	err := s.file.View(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(receiptsBucket).ForEach(func(k, v []byte) error {
			id, err := uuid.FromBytes(k)
			if err != nil {
				return err
			}
			r, err := decodeReceipt(id, v)
			if err != nil {
				return err
			}
			if r.Issuer == issuer {
				out = append(out, r)
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].IssueTime.Before(out[j].IssueTime) })
	return out, err
}

func (s *BoltStore) Activations(ctx context.Context, id uuid.UUID) ([]Activation, error) {
	var out []Activation
	err := s.file.View(ctx, func(tx *bolt.Tx) error {
		c := tx.Bucket(activationsBucket).Cursor()
		for k, v := c.Seek(id[:]); k != nil && bytes.HasPrefix(k, id[:]); k, v = c.Next() {
			user, err := uuid.FromBytes(k[len(id):])
			if err != nil {
				return err
			}
			var at time.Time
			if err := at.UnmarshalBinary(v); err != nil {
				return err
			}
			out = append(out, Activation{ReceiptID: id, User: user, ActivatedAt: at.UTC()})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ActivatedAt.Before(out[j].ActivatedAt) })
	return out, err
}

func (s *BoltStore) AddChat(ctx context.Context, id uuid.UUID, chatID int64) error {
	return s.file.Update(ctx, func(tx *bolt.Tx) error {
		if tx.Bucket(receiptsBucket).Get(id[:]) == nil {
			return ErrUnknownReceipt
		}
		return tx.Bucket(chatsBucket).Put(chatKey(id, chatID), []byte{})
	})
}

func (s *BoltStore) DeleteChat(ctx context.Context, id uuid.UUID, chatID int64) error {
	return s.file.Update(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(chatsBucket).Delete(chatKey(id, chatID))
	})
}

func (s *BoltStore) Chats(ctx context.Context, id uuid.UUID) ([]int64, error) {
	out := []int64{}
	err := s.file.View(ctx, func(tx *bolt.Tx) error {
		c := tx.Bucket(chatsBucket).Cursor()
		for k, _ := c.Seek(id[:]); k != nil && bytes.HasPrefix(k, id[:]); k, _ = c.Next() {
			out = append(out, int64(binary.BigEndian.Uint64(k[len(id):])))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, err
}

func (s *BoltStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	return s.file.Update(ctx, func(tx *bolt.Tx) error {
		return fn(boltTx{tx: tx, ledger: s.ledger.InTx(tx)})
	})
}

type boltTx struct {
	tx     *bolt.Tx
	ledger ledger.Mutator
}

func (t boltTx) Lock(_ context.Context, id uuid.UUID) (Receipt, error) {
	return getReceipt(t.tx, id)
}

func (t boltTx) HasActivation(_ context.Context, id uuid.UUID, user ledger.UserID) (bool, error) {
	return t.tx.Bucket(activationsBucket).Get(pairKey(id, user[:])) != nil, nil
}

func (t boltTx) Save(_ context.Context, r Receipt) error {
	return putReceipt(t.tx, r)
}

func (t boltTx) AddActivation(_ context.Context, a Activation) error {
	at, err := a.ActivatedAt.UTC().MarshalBinary()
	if err != nil {
		return err
	}
	return t.tx.Bucket(activationsBucket).Put(pairKey(a.ReceiptID, a.User[:]), at)
}

func (t boltTx) Ledger() ledger.Mutator { return t.ledger }
