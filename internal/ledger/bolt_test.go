package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/infra"
)

func openBoltLedger(t *testing.T) (*BoltLedger, *infra.BoltFile) {
	t.Helper()
	file, err := infra.OpenBoltFile(filepath.Join(t.TempDir(), "custody.db"))
	if err != nil {
		t.Fatalf("open bolt file: %v", err)
	}
	t.Cleanup(func() { _ = file.Close() })
	l, err := NewBoltLedger(file)
	if err != nil {
		t.Fatalf("new bolt ledger: %v", err)
	}
	return l, file
}

func TestBoltLedger_FreezeTransferFrozen(t *testing.T) {
	l, _ := openBoltLedger(t)
	ctx := context.Background()
	issuer, recipient := uuid.New(), uuid.New()

	if err := l.Credit(ctx, issuer, ton(1_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := l.Freeze(ctx, issuer, ton(300)); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if err := l.TransferFrozen(ctx, issuer, recipient, ton(100)); err != nil {
		t.Fatalf("transfer frozen: %v", err)
	}
	expectBalance(t, l, issuer, 700, 200)
	expectBalance(t, l, recipient, 100, 0)

	if err := l.Unfreeze(ctx, issuer, ton(500)); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	expectBalance(t, l, issuer, 700, 200)
}

func TestBoltLedger_InTxRollsBackWithCaller(t *testing.T) {
	l, file := openBoltLedger(t)
	ctx := context.Background()
	a := uuid.New()
	if err := l.Credit(ctx, a, ton(500)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	boom := errors.New("boom")
	err := file.Update(ctx, func(tx *bolt.Tx) error {
		if err := l.InTx(tx).Freeze(ctx, a, ton(200)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected caller error, got %v", err)
	}
	expectBalance(t, l, a, 500, 0)
}

func TestBoltLedger_LoadWalletState(t *testing.T) {
	l, _ := openBoltLedger(t)
	ctx := context.Background()
	a, other := uuid.New(), uuid.New()
	for _, amt := range []coins.Amount{ton(7), coins.FromInt64(coins.TGR, 8)} {
		if err := l.Credit(ctx, a, amt); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	if err := l.Credit(ctx, other, ton(9)); err != nil {
		t.Fatalf("credit other: %v", err)
	}

	state, err := l.LoadWalletState(ctx, a)
	if err != nil {
		t.Fatalf("load wallet state: %v", err)
	}
	if len(state.Balances) != 2 {
		t.Fatalf("expected two balances, got %d", len(state.Balances))
	}
	if !state.Balance(coins.TGR).Active.Equal(coins.FromInt64(coins.TGR, 8)) {
		t.Fatalf("unexpected TGR balance %s", state.Balance(coins.TGR).Active)
	}
}

func TestBoltLedger_ConcurrentFreezes(t *testing.T) {
	l, _ := openBoltLedger(t)
	ctx := context.Background()
	a := uuid.New()
	if err := l.Credit(ctx, a, ton(1_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Freeze(ctx, a, ton(100))
			if err != nil && !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("freeze: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("expected exactly 10 successful freezes, got %d", succeeded)
	}
	expectBalance(t, l, a, 0, 1_000)
}
