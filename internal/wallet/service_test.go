package wallet

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/tonkeeper/tongo/ton"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/infra"
	"github.com/tegro-money/custody/internal/ledger"
	"github.com/tegro-money/custody/internal/logging"
	"github.com/tegro-money/custody/internal/tonwallet"
)

var testMaster = bytes.Repeat([]byte{0x5a}, 32)

func newTestService(t *testing.T, repo Repository) (*Service, ledger.Ledger) {
	t.Helper()
	led := ledger.NewInMemory()
	svc, err := NewService(repo, led, testMaster, logging.Discard())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, led
}

func TestServiceOverview(t *testing.T) {
	svc, led := newTestService(t, NewMemoryRepository())
	ctx := context.Background()
	user := uuid.New()

	ledger.SeedBalance(led, user, coins.FromInt64(coins.TON, 5_000_000_000))
	if err := led.Freeze(ctx, user, coins.FromInt64(coins.TON, 1_000_000_000)); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	ledger.SeedBalance(led, user, coins.FromInt64(coins.USDT, 100_000))

	overview, err := svc.Overview(ctx, user)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if len(overview.Balances) != len(coins.Currencies()) {
		t.Fatalf("expected %d balances, got %d", len(coins.Currencies()), len(overview.Balances))
	}

	byCurrency := make(map[coins.Currency]CurrencyBalance)
	for _, b := range overview.Balances {
		byCurrency[b.Currency] = b
	}
	tonBalance := byCurrency[coins.TON]
	if tonBalance.Active.Quantity().Int64() != 4_000_000_000 || tonBalance.Frozen.Quantity().Int64() != 1_000_000_000 {
		t.Fatalf("unexpected TON balance %s / %s", tonBalance.Active, tonBalance.Frozen)
	}
	if tonBalance.Withdrawable.Quantity().Int64() != 3_980_000_000 {
		t.Fatalf("expected withdrawable 3.98 TON, got %s", tonBalance.Withdrawable)
	}
	// 0.1 USDT does not cover the 0.5 USDT fee
	if !byCurrency[coins.USDT].Withdrawable.IsZero() {
		t.Fatalf("expected zero withdrawable USDT, got %s", byCurrency[coins.USDT].Withdrawable)
	}
	if !byCurrency[coins.TGR].Active.IsZero() {
		t.Fatalf("expected implicit zero TGR, got %s", byCurrency[coins.TGR].Active)
	}
}

func TestServiceDepositAddressIsStable(t *testing.T) {
	svc, _ := newTestService(t, NewMemoryRepository())
	ctx := context.Background()
	user := uuid.New()

	first, err := svc.DepositAddress(ctx, user)
	if err != nil {
		t.Fatalf("deposit address: %v", err)
	}
	second, err := svc.DepositAddress(ctx, user)
	if err != nil {
		t.Fatalf("deposit address again: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable address, got %v and %v", first, second)
	}

	want, err := tonwallet.UserAddress(testMaster, user)
	if err != nil {
		t.Fatalf("user address: %v", err)
	}
	if first.Address != want.ToRaw() {
		t.Fatalf("expected %s, got %s", want.ToRaw(), first.Address)
	}

	other, err := svc.DepositAddress(ctx, uuid.New())
	if err != nil {
		t.Fatalf("deposit address for other user: %v", err)
	}
	if other.Address == first.Address {
		t.Fatal("two users share a deposit address")
	}
}

func TestServiceCreditInbound(t *testing.T) {
	svc, led := newTestService(t, NewMemoryRepository())
	ctx := context.Background()
	user := uuid.New()

	addr, err := svc.DepositAddress(ctx, user)
	if err != nil {
		t.Fatalf("deposit address: %v", err)
	}
	id, err := ton.ParseAccountID(addr.Address)
	if err != nil {
		t.Fatalf("parse address: %v", err)
	}

	owner, err := svc.CreditInbound(ctx, id.ToHuman(true, false), coins.FromInt64(coins.TON, 2_000_000_000))
	if err != nil {
		t.Fatalf("credit inbound: %v", err)
	}
	if owner != user {
		t.Fatalf("credited %s, expected %s", owner, user)
	}
	b, err := led.Balance(ctx, user, coins.TON)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if b.Active.Quantity().Int64() != 2_000_000_000 {
		t.Fatalf("expected 2 TON active, got %s", b.Active)
	}

	unknown := ton.AccountID{Workchain: 0}
	if _, err := svc.CreditInbound(ctx, unknown.ToRaw(), coins.FromInt64(coins.TON, 1)); !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("expected ErrAddressNotFound, got %v", err)
	}
	if _, err := svc.CreditInbound(ctx, "not an address", coins.FromInt64(coins.TON, 1)); !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("expected ErrAddressNotFound for garbage, got %v", err)
	}
	if _, err := svc.CreditInbound(ctx, addr.Address, coins.Zero(coins.TON)); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestBoltRepository(t *testing.T) {
	file, err := infra.OpenBoltFile(filepath.Join(t.TempDir(), "custody.db"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	defer file.Close()

	repo, err := NewBoltRepository(file)
	if err != nil {
		t.Fatalf("new bolt repository: %v", err)
	}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()
	user := uuid.New()

	addr, err := svc.DepositAddress(ctx, user)
	if err != nil {
		t.Fatalf("deposit address: %v", err)
	}
	found, err := repo.FindByAddress(ctx, addr.Address)
	if err != nil {
		t.Fatalf("find by address: %v", err)
	}
	if found.User != user {
		t.Fatalf("expected owner %s, got %s", user, found.User)
	}
	if err := repo.Create(ctx, DepositAddress{User: user, Address: "0:00"}); !errors.Is(err, ErrAddressExists) {
		t.Fatalf("expected ErrAddressExists, got %v", err)
	}
	if _, err := repo.Get(ctx, uuid.New()); !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("expected ErrAddressNotFound, got %v", err)
	}
}

func TestNewServiceRejectsShortMaster(t *testing.T) {
	if _, err := NewService(NewMemoryRepository(), ledger.NewInMemory(), []byte("short"), nil); err == nil {
		t.Fatal("expected error for short master key")
	}
}
