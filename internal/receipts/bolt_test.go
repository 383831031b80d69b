package receipts

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tegro-money/custody/internal/infra"
	"github.com/tegro-money/custody/internal/ledger"
	"github.com/tegro-money/custody/internal/logging"
)

func newBoltService(t *testing.T) (*Service, *ledger.BoltLedger) {
	t.Helper()
	file, err := infra.OpenBoltFile(filepath.Join(t.TempDir(), "custody.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })

	led, err := ledger.NewBoltLedger(file)
	require.NoError(t, err)
	store, err := NewBoltStore(file, led)
	require.NoError(t, err)
	return NewService(store, led, nil, logging.Discard()), led
}

func TestBoltStoreLifecycle(t *testing.T) {
	svc, led := newBoltService(t)
	ctx := context.Background()
	issuer, recipient := uuid.New(), uuid.New()
	require.NoError(t, led.Credit(ctx, issuer, ton(1_000)))

	r, err := svc.Create(ctx, CreateInput{Issuer: issuer, Coins: ton(100), Activations: 3})
	require.NoError(t, err)

	_, err = svc.Activate(ctx, r.ID, recipient)
	require.NoError(t, err)
	_, err = svc.Activate(ctx, r.ID, recipient)
	require.ErrorIs(t, err, ErrReceiptNotActive)

	acts, err := svc.Activations(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	require.Equal(t, recipient, acts[0].User)

	stored, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.Activations)
	require.True(t, stored.Coins.Equal(ton(100)))

	list, err := svc.ListByIssuer(ctx, issuer)
	require.NoError(t, err)
	require.Len(t, list, 1)

	released, err := svc.Delete(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, released.Equal(ton(200)))
	requireBalance(t, led, issuer, 900, 0)
	requireBalance(t, led, recipient, 100, 0)

	require.NoError(t, svc.AddChat(ctx, r.ID, 7))
	chats, err := svc.Chats(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, chats)
}

func TestBoltStoreActivationRollsBackOnLedgerFailure(t *testing.T) {
	svc, led := newBoltService(t)
	ctx := context.Background()
	issuer := uuid.New()
	require.NoError(t, led.Credit(ctx, issuer, ton(500)))

	r, err := svc.Create(ctx, CreateInput{Issuer: issuer, Coins: ton(100), Activations: 2})
	require.NoError(t, err)

	// Drain the reservation behind the engine's back.
	require.NoError(t, led.Unfreeze(ctx, issuer, ton(200)))

	_, err = svc.Activate(ctx, r.ID, uuid.New())
	require.ErrorIs(t, err, ledger.ErrInvariantViolation)

	stored, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.Activations)
	acts, err := svc.Activations(ctx, r.ID)
	require.NoError(t, err)
	require.Empty(t, acts)
}
