package deposits

import (
	"context"
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

var depositsBucket = []byte("deposits")

// BoltStore keeps deposits in the shared single-file backend.
type BoltStore struct {
	file   *infra.BoltFile
	ledger *ledger.BoltLedger
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore wraps file and creates the deposits bucket.
func NewBoltStore(file *infra.BoltFile, l *ledger.BoltLedger) (*BoltStore, error) {
	if err := file.EnsureBuckets(depositsBucket); err != nil {
		return nil, err
	}
	return &BoltStore{file: file, ledger: l}, nil
}

type depositRecord struct {
	Issuer       uuid.UUID  `json:"issuer"`
	Months       int        `json:"months"`
	YieldPercent int        `json:"yield_percent"`
	FinishDate   time.Time  `json:"finish_date"`
	Currency     uint8      `json:"currency"`
	Amount       string     `json:"amount"`
	IsPaid       bool       `json:"is_paid"`
	PaidDate     *time.Time `json:"paid_date,omitempty"`
}

func putDeposit(tx *bolt.Tx, d Deposit) error {
	raw, err := json.Marshal(depositRecord{
		Issuer:       d.Issuer,
		Months:       d.Period.Months,
		YieldPercent: d.Period.YieldPercent,
		FinishDate:   d.FinishDate.UTC(),
		Currency:     uint8(d.Coins.Currency),
		Amount:       d.Coins.Quantity().String(),
		IsPaid:       d.IsPaid,
		PaidDate:     d.PaidDate,
	})
	if err != nil {
		return err
	}
	return tx.Bucket(depositsBucket).Put(d.ID[:], raw)
}

func decodeDeposit(id uuid.UUID, raw []byte) (Deposit, error) {
	var rec depositRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Deposit{}, fmt.Errorf("decode deposit %s: %w", id, err)
	}
	q, ok := new(big.Int).SetString(rec.Amount, 10)
	if !ok {
		return Deposit{}, fmt.Errorf("decode deposit %s: amount %q", id, rec.Amount)
	}
	return Deposit{
		ID:         id,
		Issuer:     rec.Issuer,
		Period:     Period{Months: rec.Months, YieldPercent: rec.YieldPercent},
		FinishDate: rec.FinishDate,
		Coins:      coins.New(coins.Currency(rec.Currency), q),
		IsPaid:     rec.IsPaid,
		PaidDate:   rec.PaidDate,
	}, nil
}

func getDeposit(tx *bolt.Tx, id uuid.UUID) (Deposit, error) {
	raw := tx.Bucket(depositsBucket).Get(id[:])
	if raw == nil {
		return Deposit{}, ErrUnknownDeposit
	}
	return decodeDeposit(id, raw)
}

func (s *BoltStore) Insert(ctx context.Context, d Deposit) error {
	return s.file.Update(ctx, func(tx *bolt.Tx) error {
		if tx.Bucket(depositsBucket).Get(d.ID[:]) != nil {
			return ErrDuplicateDeposit
		}
		return putDeposit(tx, d)
	})
}

func (s *BoltStore) Get(ctx context.Context, id uuid.UUID) (Deposit, error) {
	var d Deposit
	err := s.file.View(ctx, func(tx *bolt.Tx) error {
		var err error
		d, err = getDeposit(tx, id)
		return err
	})
	return d, err
}

func (s *BoltStore) ListByUser(ctx context.Context, user ledger.UserID) ([]Deposit, error) {
	return s.scan(ctx, func(d Deposit) bool { return d.Issuer == user })
}

func (s *BoltStore) Due(ctx context.Context, now time.Time) ([]Deposit, error) {
	return s.scan(ctx, func(d Deposit) bool { return d.Due(now) })
}

func (s *BoltStore) scan(ctx context.Context, keep func(Deposit) bool) ([]Deposit, error) {
	var out []Deposit
	err := s.file.View(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(depositsBucket).ForEach(func(k, v []byte) error {
			id, err := uuid.FromBytes(k)
			if err != nil {
				return err
			}
			d, err := decodeDeposit(id, v)
			if err != nil {
				return err
			}
			if keep(d) {
				out = append(out, d)
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].FinishDate.Before(out[j].FinishDate) })
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

func (t boltTx) Lock(_ context.Context, id uuid.UUID) (Deposit, error) {
	return getDeposit(t.tx, id)
}

func (t boltTx) MarkPaid(_ context.Context, id uuid.UUID, at time.Time) error {
	d, err := getDeposit(t.tx, id)
	if err != nil {
		return err
	}
	at = at.UTC()
	d.IsPaid = true
	d.PaidDate = &at
	return putDeposit(t.tx, d)
}

func (t boltTx) Ledger() ledger.Mutator { return t.ledger }
