package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/metrics"
)

func ton(n int64) coins.Amount { return coins.FromInt64(coins.TON, n) }

func mustBalance(t *testing.T, l Ledger, user UserID, currency coins.Currency) Balance {
	t.Helper()
	b, err := l.Balance(context.Background(), user, currency)
	if err != nil {
		t.Fatalf("balance %s: %v", user, err)
	}
	return b
}

func expectBalance(t *testing.T, l Ledger, user UserID, active, frozen int64) {
	t.Helper()
	b := mustBalance(t, l, user, coins.TON)
	if !b.Active.Equal(ton(active)) || !b.Frozen.Equal(ton(frozen)) {
		t.Fatalf("expected %d/%d, got %s/%s", active, frozen, b.Active, b.Frozen)
	}
}

func TestInMemoryLedger_TransferMaintainsBalance(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	SeedBalance(l, a, ton(10_000))

	if err := l.Transfer(ctx, a, b, ton(1_500)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	expectBalance(t, l, a, 8_500, 0)
	expectBalance(t, l, b, 1_500, 0)

	if err := l.Transfer(ctx, a, b, ton(9_000)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	expectBalance(t, l, a, 8_500, 0)
}

func TestInMemoryLedger_RejectsBadArguments(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	a := uuid.New()
	SeedBalance(l, a, ton(100))

	if err := l.Freeze(ctx, a, ton(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for zero, got %v", err)
	}
	if err := l.Transfer(ctx, a, a, ton(1)); !errors.Is(err, ErrSameAccount) {
		t.Fatalf("expected same account error, got %v", err)
	}
	if err := l.Credit(ctx, a, coins.FromInt64(coins.Currency(9), 1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for unknown currency, got %v", err)
	}
	expectBalance(t, l, a, 100, 0)
}

func TestInMemoryLedger_FreezeUnfreezeRoundTrip(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	a := uuid.New()
	SeedBalance(l, a, ton(1_000))

	if err := l.Freeze(ctx, a, ton(300)); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	expectBalance(t, l, a, 700, 300)

	if err := l.Unfreeze(ctx, a, ton(300)); err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	expectBalance(t, l, a, 1_000, 0)

	if err := l.Freeze(ctx, a, ton(1_001)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestInMemoryLedger_UnfreezeNeverClamps(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	a := uuid.New()
	SeedBalance(l, a, ton(1_000))
	if err := l.Freeze(ctx, a, ton(100)); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	before := testutil.ToFloat64(metrics.Custody().LedgerCounter("unfreeze", "invariant_violation"))
	if err := l.Unfreeze(ctx, a, ton(101)); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	after := testutil.ToFloat64(metrics.Custody().LedgerCounter("unfreeze", "invariant_violation"))
	if after != before+1 {
		t.Fatalf("expected violation counter to grow by one, got %v -> %v", before, after)
	}
	expectBalance(t, l, a, 900, 100)
}

func TestInMemoryLedger_TransferFrozenSettlesReservation(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	issuer, recipient := uuid.New(), uuid.New()
	SeedBalance(l, issuer, ton(1_000))

	if err := l.Freeze(ctx, issuer, ton(300)); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if err := l.TransferFrozen(ctx, issuer, recipient, ton(100)); err != nil {
		t.Fatalf("transfer frozen: %v", err)
	}
	expectBalance(t, l, issuer, 700, 200)
	expectBalance(t, l, recipient, 100, 0)

	if err := l.TransferFrozen(ctx, issuer, recipient, ton(201)); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if err := l.DebitFrozen(ctx, issuer, ton(200)); err != nil {
		t.Fatalf("debit frozen: %v", err)
	}
	expectBalance(t, l, issuer, 700, 0)
}

func TestInMemoryLedger_UpdateActive(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	a := uuid.New()
	SeedBalance(l, a, ton(50))

	out, err := l.UpdateActive(ctx, a, coins.TON, func(cur coins.Amount) (coins.Amount, error) {
		return cur.Add(ton(25))
	})
	if err != nil {
		t.Fatalf("update active: %v", err)
	}
	if !out.Equal(ton(75)) {
		t.Fatalf("expected 75, got %s", out)
	}

	_, err = l.UpdateActive(ctx, a, coins.TON, func(cur coins.Amount) (coins.Amount, error) {
		return coins.FromInt64(coins.TON, -1), nil
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected negative result to be rejected, got %v", err)
	}
	expectBalance(t, l, a, 75, 0)
}

func TestInMemoryLedger_LoadWalletState(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	a, other := uuid.New(), uuid.New()
	SeedBalance(l, a, ton(10))
	SeedBalance(l, a, coins.FromInt64(coins.USDT, 20))
	SeedBalance(l, other, ton(30))

	state, err := l.LoadWalletState(ctx, a)
	if err != nil {
		t.Fatalf("load wallet state: %v", err)
	}
	if len(state.Balances) != 2 {
		t.Fatalf("expected two currencies, got %d", len(state.Balances))
	}
	if !state.Balance(coins.USDT).Active.Equal(coins.FromInt64(coins.USDT, 20)) {
		t.Fatalf("unexpected USDT balance %s", state.Balance(coins.USDT).Active)
	}
	if !state.Balance(coins.TGR).Total().IsZero() {
		t.Fatalf("expected implicit zero TGR balance")
	}
}

func TestInMemoryLedger_ConcurrentTransfers(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	SeedBalance(l, a, ton(100_000))
	SeedBalance(l, b, ton(100_000))

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := a, b
			if i%2 == 1 {
				from, to = b, a
			}
			if err := l.Transfer(ctx, from, to, ton(500)); err != nil {
				t.Errorf("transfer %d failed: %v", i, err)
			}
			if err := l.Freeze(ctx, from, ton(10)); err != nil {
				t.Errorf("freeze %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	ba := mustBalance(t, l, a, coins.TON)
	bb := mustBalance(t, l, b, coins.TON)
	total, _ := ba.Total().Add(bb.Total())
	if !total.Equal(ton(200_000)) {
		t.Fatalf("ledger not balanced after concurrency, total=%s", total)
	}
	frozen, _ := ba.Frozen.Add(bb.Frozen)
	if !frozen.Equal(ton(workers * 10)) {
		t.Fatalf("expected frozen %d, got %s", workers*10, frozen)
	}
}
