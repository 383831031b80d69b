package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltFile is the single-file storage backend. Every operation holds one
// process-wide mutex for its full duration, read-modify-write included, so
// stores sharing a BoltFile serialize against each other.
type BoltFile struct {
	mu sync.Mutex
	db *bolt.DB
}

// OpenBoltFile opens (creating if needed) the database at path and ensures
// the given buckets exist.
func OpenBoltFile(path string, buckets ...[]byte) (*BoltFile, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt path is required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt file: %w", err)
	}
	f := &BoltFile{db: db}
	if err := f.EnsureBuckets(buckets...); err != nil {
		_ = db.Close()
		return nil, err
	}
	return f, nil
}

// EnsureBuckets creates missing top-level buckets.
func (f *BoltFile) EnsureBuckets(buckets ...[]byte) error {
	return f.Update(context.Background(), func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Update runs fn in a read-write transaction under the file lock.
func (f *BoltFile) Update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.db.Update(fn)
}

// View runs fn in a read-only transaction under the file lock.
func (f *BoltFile) View(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.db.View(fn)
}

// Ping verifies the file is readable.
func (f *BoltFile) Ping(ctx context.Context) error {
	return f.View(ctx, func(*bolt.Tx) error { return nil })
}

// Close releases the database handle.
func (f *BoltFile) Close() error {
	if f == nil || f.db == nil {
		return nil
	}
	return f.db.Close()
}
