package receipts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/ledger"
	"github.com/tegro-money/custody/internal/logging"
	"github.com/tegro-money/custody/internal/metrics"
	"github.com/tegro-money/custody/internal/notification"
)

func ton(n int64) coins.Amount { return coins.FromInt64(coins.TON, n) }

type fixture struct {
	svc      *Service
	ledger   ledger.Ledger
	notifier *notification.Recorder
	issuer   ledger.UserID
}

func newFixture(t *testing.T, seed int64) fixture {
	t.Helper()
	led := ledger.NewInMemory()
	rec := &notification.Recorder{}
	issuer := uuid.New()
	ledger.SeedBalance(led, issuer, ton(seed))
	return fixture{
		svc:      NewService(NewMemoryStore(led), led, rec, logging.Discard()),
		ledger:   led,
		notifier: rec,
		issuer:   issuer,
	}
}

func requireBalance(t *testing.T, l ledger.Ledger, user ledger.UserID, active, frozen int64) {
	t.Helper()
	b, err := l.Balance(context.Background(), user, coins.TON)
	require.NoError(t, err)
	require.Truef(t, b.Active.Equal(ton(active)), "active: want %d got %s", active, b.Active)
	require.Truef(t, b.Frozen.Equal(ton(frozen)), "frozen: want %d got %s", frozen, b.Frozen)
}

func TestReceiptLifecycle(t *testing.T) {
	f := newFixture(t, 1_000)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, CreateInput{Issuer: f.issuer, Coins: ton(100), Activations: 3})
	require.NoError(t, err)
	require.True(t, r.IsActive)
	requireBalance(t, f.ledger, f.issuer, 700, 300)

	recipients := []ledger.UserID{uuid.New(), uuid.New(), uuid.New()}
	for i, user := range recipients {
		updated, err := f.svc.Activate(ctx, r.ID, user)
		require.NoError(t, err)
		require.Equal(t, 2-i, updated.Activations)
		requireBalance(t, f.ledger, user, 100, 0)
	}
	requireBalance(t, f.ledger, f.issuer, 700, 0)

	stored, err := f.svc.Get(ctx, r.ID)
	require.NoError(t, err)
	require.False(t, stored.IsActive)
	require.Zero(t, stored.Activations)

	_, err = f.svc.Activate(ctx, r.ID, uuid.New())
	require.ErrorIs(t, err, ErrReceiptNotActive)

	acts, err := f.svc.Activations(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, acts, 3)
	require.Len(t, f.notifier.Messages(), 3)
	require.Equal(t, notification.KindReceiptActivated, f.notifier.Messages()[0].Kind)
	require.Equal(t, f.issuer.String(), f.notifier.Messages()[0].Destination)

	// Nothing is left to release once every activation was redeemed.
	released, err := f.svc.Delete(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, released.IsZero())
	requireBalance(t, f.ledger, f.issuer, 700, 0)
}

func TestCreateRequiresCoverage(t *testing.T) {
	f := newFixture(t, 250)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{Issuer: f.issuer, Coins: ton(100), Activations: 3})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	requireBalance(t, f.ledger, f.issuer, 250, 0)

	_, err = f.svc.Create(ctx, CreateInput{Issuer: f.issuer, Coins: ton(100), Activations: 0})
	require.ErrorIs(t, err, ErrInvalidActivations)

	_, err = f.svc.Create(ctx, CreateInput{Issuer: f.issuer, Coins: ton(0), Activations: 1})
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	self := f.issuer
	_, err = f.svc.Create(ctx, CreateInput{Issuer: f.issuer, Coins: ton(10), Activations: 1, Recipient: &self})
	require.ErrorIs(t, err, ErrInvalidRecipient)
	requireBalance(t, f.ledger, f.issuer, 250, 0)

	list, err := f.svc.ListByIssuer(ctx, f.issuer)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestActivationChecks(t *testing.T) {
	f := newFixture(t, 1_000)
	ctx := context.Background()
	addressee := uuid.New()

	_, err := f.svc.Activate(ctx, uuid.New(), addressee)
	require.ErrorIs(t, err, ErrUnknownReceipt)

	addressed, err := f.svc.Create(ctx, CreateInput{Issuer: f.issuer, Coins: ton(50), Activations: 1, Recipient: &addressee})
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, addressed.ID, uuid.New())
	require.ErrorIs(t, err, ErrInvalidRecipient)
	_, err = f.svc.Activate(ctx, addressed.ID, addressee)
	require.NoError(t, err)

	open, err := f.svc.Create(ctx, CreateInput{Issuer: f.issuer, Coins: ton(10), Activations: 5})
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, open.ID, f.issuer)
	require.ErrorIs(t, err, ErrReceiptIssuerActivation)

	user := uuid.New()
	_, err = f.svc.Activate(ctx, open.ID, user)
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, open.ID, user)
	require.ErrorIs(t, err, ErrReceiptNotActive)
	requireBalance(t, f.ledger, user, 10, 0)

	require.NoError(t, f.svc.Inactivate(ctx, open.ID))
	_, err = f.svc.Activate(ctx, open.ID, uuid.New())
	require.ErrorIs(t, err, ErrReceiptNotActive)
	// Inactivation alone keeps the reservation.
	requireBalance(t, f.ledger, f.issuer, 900, 40)
}

func TestRetirementReleasesRemainingOnce(t *testing.T) {
	f := newFixture(t, 1_000)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, CreateInput{Issuer: f.issuer, Coins: ton(100), Activations: 4})
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, r.ID, uuid.New())
	require.NoError(t, err)
	requireBalance(t, f.ledger, f.issuer, 600, 300)

	released, err := f.svc.Delete(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, released.Equal(ton(300)))
	requireBalance(t, f.ledger, f.issuer, 900, 0)

	released, err = f.svc.Delete(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, released.IsZero())
	requireBalance(t, f.ledger, f.issuer, 900, 0)

	_, err = f.svc.Delete(ctx, uuid.New())
	require.ErrorIs(t, err, ErrUnknownReceipt)
}

func TestConcurrentActivationsNeverOverspend(t *testing.T) {
	f := newFixture(t, 1_000)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, CreateInput{Issuer: f.issuer, Coins: ton(100), Activations: 3})
	require.NoError(t, err)

	const attempts = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Activate(ctx, r.ID, uuid.New())
			if err != nil && !errors.Is(err, ErrReceiptNotActive) {
				t.Errorf("unexpected activation error: %v", err)
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

	require.Equal(t, 3, succeeded)
	requireBalance(t, f.ledger, f.issuer, 700, 0)
}

type failingStore struct {
	Store
	err error
}

func (s failingStore) Insert(context.Context, Receipt) error { return s.err }

func TestCreateReleasesReservationWhenStoreFails(t *testing.T) {
	led := ledger.NewInMemory()
	issuer := uuid.New()
	ledger.SeedBalance(led, issuer, ton(1_000))
	boom := errors.New("disk full")
	svc := NewService(failingStore{Store: NewMemoryStore(led), err: boom}, led, nil, logging.Discard())

	_, err := svc.Create(context.Background(), CreateInput{Issuer: issuer, Coins: ton(100), Activations: 3})
	require.ErrorIs(t, err, boom)
	requireBalance(t, led, issuer, 1_000, 0)
}

func TestActivationMetrics(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	counter := metrics.Custody().ReceiptCounter("activated", "denied")
	before := testutil.ToFloat64(counter)

	_, err := f.svc.Activate(ctx, uuid.New(), uuid.New())
	require.ErrorIs(t, err, ErrUnknownReceipt)
	require.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestChatAssociations(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, CreateInput{Issuer: f.issuer, Coins: ton(10), Activations: 1})
	require.NoError(t, err)

	require.NoError(t, f.svc.AddChat(ctx, r.ID, -100200))
	require.NoError(t, f.svc.AddChat(ctx, r.ID, 42))
	require.NoError(t, f.svc.AddChat(ctx, r.ID, 42))
	chats, err := f.svc.Chats(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{-100200, 42}, chats)

	require.NoError(t, f.svc.DeleteChat(ctx, r.ID, 42))
	chats, err = f.svc.Chats(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{-100200}, chats)

	require.ErrorIs(t, f.svc.AddChat(ctx, uuid.New(), 1), ErrUnknownReceipt)
}
