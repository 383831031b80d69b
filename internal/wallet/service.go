package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonkeeper/tongo/ton"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/ledger"
	"github.com/tegro-money/custody/internal/tonwallet"
)

// Service exposes per-user balances and deposit addresses.
type Service struct {
	repo   Repository
	ledger ledger.Ledger
	master []byte
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a wallet service. master is the secret every deposit
// address is derived from.
func NewService(repo Repository, l ledger.Ledger, master []byte, logger *slog.Logger) (*Service, error) {
	if len(master) < 32 {
		return nil, fmt.Errorf("master key must be at least 32 bytes, got %d", len(master))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		ledger: l,
		master: append([]byte(nil), master...),
		logger: logger.With("component", "wallet"),
		now:    time.Now,
	}, nil
}

// Overview returns every currency balance of user, zero for currencies the
// user never held.
func (s *Service) Overview(ctx context.Context, user ledger.UserID) (Overview, error) {
	state, err := s.ledger.LoadWalletState(ctx, user)
	if err != nil {
		return Overview{}, err
	}
	out := Overview{User: user, AsOf: s.now().UTC()}
	for _, cur := range coins.Currencies() {
		b := state.Balance(cur)
		withdrawable, err := b.Active.Sub(cur.Fee())
		if err != nil {
			withdrawable = coins.Zero(cur)
		}
		out.Balances = append(out.Balances, CurrencyBalance{
			Currency:     cur,
			Active:       b.Active,
			Frozen:       b.Frozen,
			Withdrawable: withdrawable,
		})
	}
	return out, nil
}

// DepositAddress returns the address assigned to user, deriving and
// recording it on first use.
func (s *Service) DepositAddress(ctx context.Context, user ledger.UserID) (DepositAddress, error) {
	addr, err := s.repo.Get(ctx, user)
	if err == nil {
		return addr, nil
	}
	if !errors.Is(err, ErrAddressNotFound) {
		return DepositAddress{}, err
	}

	id, err := tonwallet.UserAddress(s.master, user)
	if err != nil {
		return DepositAddress{}, err
	}
	addr = DepositAddress{User: user, Address: id.ToRaw(), CreatedAt: s.now().UTC()}
	if err := s.repo.Create(ctx, addr); err != nil {
		if errors.Is(err, ErrAddressExists) {
			return s.repo.Get(ctx, user)
		}
		return DepositAddress{}, err
	}
	s.logger.InfoContext(ctx, "deposit address assigned", "user", user, "address", addr.Address)
	return addr, nil
}

// CreditInbound books an on-chain deposit that arrived at address to the
// active balance of its owner. address may be raw or user-friendly.
func (s *Service) CreditInbound(ctx context.Context, address string, amount coins.Amount) (ledger.UserID, error) {
	id, err := ton.ParseAccountID(address)
	if err != nil {
		return ledger.UserID{}, fmt.Errorf("%w: %v", ErrAddressNotFound, err)
	}
	addr, err := s.repo.FindByAddress(ctx, id.ToRaw())
	if err != nil {
		return ledger.UserID{}, err
	}
	if err := s.ledger.Credit(ctx, addr.User, amount); err != nil {
		return ledger.UserID{}, err
	}
	s.logger.InfoContext(ctx, "inbound deposit credited", "user", addr.User, "address", addr.Address, "amount", amount.String())
	return addr.User, nil
}
