package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tonkeeper/tongo/ton"
)

const (
	lockPrefix  = "withdrawal:v1:lock:"
	seqnoPrefix = "withdrawal:v1:seqno:"
)

var (
	// ErrWalletBusy is returned while another withdrawal holds the hot wallet.
	ErrWalletBusy = errors.New("hot wallet is busy")
	// ErrStaleSeqno is returned when the chain snapshot still shows a seqno
	// that was already used for a submitted message.
	ErrStaleSeqno = errors.New("wallet snapshot is stale")
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// WalletLock serializes message construction per hot wallet across
// processes and remembers the last seqno each wallet used.
type WalletLock struct {
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewWalletLock builds a lock whose reservations expire after ttl.
func NewWalletLock(cache *redis.Client, ttl time.Duration, logger *slog.Logger) *WalletLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WalletLock{cache: cache, ttl: ttl, logger: logger}
}

// Acquire reserves addr and returns the function that releases it. Only the
// holder's own reservation is removed on release.
func (l *WalletLock) Acquire(ctx context.Context, addr ton.AccountID) (func(), error) {
	key := lockPrefix + addr.ToRaw()
	token := uuid.NewString()
	ok, err := l.cache.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve hot wallet: %w", err)
	}
	if !ok {
		return nil, ErrWalletBusy
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.cache, []string{key}, token).Err(); err != nil {
			l.logger.Warn("release hot wallet lock", slog.String("wallet", addr.ToRaw()), slog.Any("error", err))
		}
	}, nil
}

// CheckSeqno fails with ErrStaleSeqno unless seqno is newer than the last
// one recorded for addr.
func (l *WalletLock) CheckSeqno(ctx context.Context, addr ton.AccountID, seqno uint32) error {
	last, ok, err := l.LastSeqno(ctx, addr)
	if err != nil {
		return err
	}
	if ok && seqno <= last {
		return fmt.Errorf("%w: snapshot seqno %d, last used %d", ErrStaleSeqno, seqno, last)
	}
	return nil
}

// LastSeqno returns the last seqno recorded for addr.
func (l *WalletLock) LastSeqno(ctx context.Context, addr ton.AccountID) (uint32, bool, error) {
	raw, err := l.cache.Get(ctx, seqnoPrefix+addr.ToRaw()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read last seqno: %w", err)
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("decode last seqno %q: %w", raw, err)
	}
	return uint32(v), true, nil
}

// RecordSeqno stores seqno as used by addr.
func (l *WalletLock) RecordSeqno(ctx context.Context, addr ton.AccountID, seqno uint32) error {
	if err := l.cache.Set(ctx, seqnoPrefix+addr.ToRaw(), strconv.FormatUint(uint64(seqno), 10), 0).Err(); err != nil {
		return fmt.Errorf("record seqno: %w", err)
	}
	return nil
}
