package server

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tegro-money/custody/internal/deposits"
	"github.com/tegro-money/custody/internal/infra"
	"github.com/tegro-money/custody/internal/ledger"
	"github.com/tegro-money/custody/internal/notification"
	"github.com/tegro-money/custody/internal/payments"
	"github.com/tegro-money/custody/internal/receipts"
	"github.com/tegro-money/custody/internal/wallet"
)

// Backends are the opened storage handles. Exactly one of DB and Bolt is
// set in production; neither selects the in-memory stores.
type Backends struct {
	DB   *pgxpool.Pool
	Bolt *infra.BoltFile
}

// Services are the domain services shared by the HTTP server and the
// settlement command.
type Services struct {
	Ledger   ledger.Ledger
	Wallets  *wallet.Service
	Receipts *receipts.Service
	Deposits *deposits.Service
	Payments *payments.Service
}

// NewServices wires every domain service on top of b.
func NewServices(b Backends, masterKey []byte, logger *slog.Logger) (*Services, error) {
	var (
		led          ledger.Ledger
		receiptStore receipts.Store
		depositStore deposits.Store
		walletRepo   wallet.Repository
	)
	switch {
	case b.DB != nil && b.Bolt != nil:
		return nil, fmt.Errorf("postgres and bolt backends are mutually exclusive")
	case b.DB != nil:
		pg := ledger.NewPostgresLedger(b.DB)
		led = pg
		receiptStore = receipts.NewPostgresStore(b.DB, pg)
		depositStore = deposits.NewPostgresStore(b.DB, pg)
		walletRepo = wallet.NewPostgresRepository(b.DB)
	case b.Bolt != nil:
		bl, err := ledger.NewBoltLedger(b.Bolt)
		if err != nil {
			return nil, err
		}
		led = bl
		if receiptStore, err = receipts.NewBoltStore(b.Bolt, bl); err != nil {
			return nil, err
		}
		if depositStore, err = deposits.NewBoltStore(b.Bolt, bl); err != nil {
			return nil, err
		}
		if walletRepo, err = wallet.NewBoltRepository(b.Bolt); err != nil {
			return nil, err
		}
	default:
		led = ledger.NewInMemory()
		receiptStore = receipts.NewMemoryStore(led)
		depositStore = deposits.NewMemoryStore(led)
		walletRepo = wallet.NewMemoryRepository()
	}

	notifier := notification.NewLoggerNotifier(logger)
	wallets, err := wallet.NewService(walletRepo, led, masterKey, logger)
	if err != nil {
		return nil, err
	}
	return &Services{
		Ledger:   led,
		Wallets:  wallets,
		Receipts: receipts.NewService(receiptStore, led, notifier, logger),
		Deposits: deposits.NewService(depositStore, led, notifier, logger),
		Payments: payments.NewService(led, notifier, logger),
	}, nil
}
