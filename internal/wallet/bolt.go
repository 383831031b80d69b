package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/tegro-money/custody/internal/infra"
	"github.com/tegro-money/custody/internal/ledger"
)

var (
	addressesBucket = []byte("deposit_addresses")
	ownersBucket    = []byte("deposit_address_owners")
)

// BoltRepository keeps deposit addresses in the single-file backend with a
// reverse index from address to owner.
type BoltRepository struct {
	file *infra.BoltFile
}

var _ Repository = (*BoltRepository)(nil)

// NewBoltRepository creates the address buckets in file.
func NewBoltRepository(file *infra.BoltFile) (*BoltRepository, error) {
	if err := file.EnsureBuckets(addressesBucket, ownersBucket); err != nil {
		return nil, err
	}
	return &BoltRepository{file: file}, nil
}

type addressRecord struct {
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// Create stores addr and its reverse index entry.
func (r *BoltRepository) Create(ctx context.Context, addr DepositAddress) error {
	return r.file.Update(ctx, func(tx *bolt.Tx) error {
		users := tx.Bucket(addressesBucket)
		owners := tx.Bucket(ownersBucket)
		if users.Get(addr.User[:]) != nil || owners.Get([]byte(addr.Address)) != nil {
			return ErrAddressExists
		}
		raw, err := json.Marshal(addressRecord{Address: addr.Address, CreatedAt: addr.CreatedAt.UTC()})
		if err != nil {
			return err
		}
		if err := users.Put(addr.User[:], raw); err != nil {
			return err
		}
		return owners.Put([]byte(addr.Address), addr.User[:])
	})
}

// Get fetches the address assigned to user.
func (r *BoltRepository) Get(ctx context.Context, user ledger.UserID) (DepositAddress, error) {
	var out DepositAddress
	err := r.file.View(ctx, func(tx *bolt.Tx) error {
		var err error
		out, err = loadAddress(tx, user)
		return err
	})
	return out, err
}

// FindByAddress resolves the owner of a raw address.
func (r *BoltRepository) FindByAddress(ctx context.Context, address string) (DepositAddress, error) {
	var out DepositAddress
	err := r.file.View(ctx, func(tx *bolt.Tx) error {
		owner := tx.Bucket(ownersBucket).Get([]byte(address))
		if owner == nil {
			return ErrAddressNotFound
		}
		user, err := uuid.FromBytes(owner)
		if err != nil {
			return fmt.Errorf("decode address owner: %w", err)
		}
		out, err = loadAddress(tx, user)
		return err
	})
	return out, err
}

func loadAddress(tx *bolt.Tx, user ledger.UserID) (DepositAddress, error) {
	raw := tx.Bucket(addressesBucket).Get(user[:])
	if raw == nil {
		return DepositAddress{}, ErrAddressNotFound
	}
	var rec addressRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return DepositAddress{}, fmt.Errorf("decode deposit address of %s: %w", user, err)
	}
	return DepositAddress{User: user, Address: rec.Address, CreatedAt: rec.CreatedAt}, nil
}
