// Package withdrawal moves user funds out of custody through the hot wallet.
// Funds are reserved in the ledger before a message is built and leave the
// ledger only once the message was handed to the network.
package withdrawal

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/ton"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/ledger"
	"github.com/tegro-money/custody/internal/metrics"
	"github.com/tegro-money/custody/internal/notification"
	"github.com/tegro-money/custody/internal/tonwallet"
)

var (
	// ErrUnsupportedCurrency is returned for currencies the hot wallet cannot send.
	ErrUnsupportedCurrency = errors.New("withdrawals are only supported in TON")
	// ErrBelowMinimum is returned for amounts under the currency minimum.
	ErrBelowMinimum = errors.New("amount is below the withdrawal minimum")
	// ErrHotWalletDrained is returned when the hot wallet cannot cover the
	// transfer plus its network fee reserve.
	ErrHotWalletDrained = errors.New("hot wallet balance too low")
)

const defaultValidFor = time.Minute

// Request describes one withdrawal.
type Request struct {
	User        ledger.UserID
	Amount      coins.Amount
	Destination ton.AccountID
	Comment     string
}

// Result is a submitted withdrawal.
type Result struct {
	Wallet ton.AccountID
	Seqno  uint32
	Hash   [32]byte
	Total  coins.Amount
}

// Dependencies bundles what Service needs. Notifier and Logger may be nil.
type Dependencies struct {
	Ledger    ledger.Ledger
	Lock      *WalletLock
	Source    StateSource
	Submitter Submitter
	HotWallet ed25519.PrivateKey
	Notifier  notification.Notifier
	Logger    *slog.Logger
	// ValidFor bounds how long a signed message stays acceptable.
	ValidFor time.Duration
}

// Service runs withdrawals from the hot wallet.
type Service struct {
	ledger    ledger.Ledger
	lock      *WalletLock
	source    StateSource
	submitter Submitter
	key       ed25519.PrivateKey
	wallet    ton.AccountID
	notifier  notification.Notifier
	logger    *slog.Logger
	validFor  time.Duration
	now       func() time.Time
}

// NewService validates deps and derives the hot wallet address from its key.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Ledger == nil || deps.Lock == nil || deps.Source == nil || deps.Submitter == nil {
		return nil, fmt.Errorf("withdrawal: ledger, lock, source and submitter are required")
	}
	if len(deps.HotWallet) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("withdrawal: hot wallet key must be %d bytes", ed25519.PrivateKeySize)
	}
	addr, err := tonwallet.DeriveAddress(deps.HotWallet.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	validFor := deps.ValidFor
	if validFor <= 0 {
		validFor = defaultValidFor
	}
	return &Service{
		ledger:    deps.Ledger,
		lock:      deps.Lock,
		source:    deps.Source,
		submitter: deps.Submitter,
		key:       deps.HotWallet,
		wallet:    addr,
		notifier:  deps.Notifier,
		logger:    logger.With("component", "withdrawal", "wallet", addr.ToRaw()),
		validFor:  validFor,
		now:       time.Now,
	}, nil
}

// Wallet returns the hot wallet address.
func (s *Service) Wallet() ton.AccountID { return s.wallet }

// Withdraw reserves amount plus the currency fee, signs a transfer from the
// hot wallet and submits it. The reservation is released when anything
// before a successful submission fails.
func (s *Service) Withdraw(ctx context.Context, req Request) (_ Result, err error) {
	defer func() { metrics.Custody().ObserveWithdrawal(req.Amount.Currency.Ticker(), outcome(err)) }()

	if req.Amount.Currency != coins.TON {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, req.Amount.Currency)
	}
	if err := req.Amount.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}
	if req.Amount.Less(req.Amount.Currency.MinAmount()) {
		return Result{}, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, req.Amount, req.Amount.Currency.MinAmount())
	}
	total, err := req.Amount.Add(req.Amount.Currency.Fee())
	if err != nil {
		return Result{}, err
	}

	if err := s.ledger.Freeze(ctx, req.User, total); err != nil {
		return Result{}, err
	}
	submitted := false
	defer func() {
		if submitted {
			return
		}
		if uerr := s.ledger.Unfreeze(context.WithoutCancel(ctx), req.User, total); uerr != nil {
			s.logger.ErrorContext(ctx, "withdrawal reservation not released", "user", req.User, "amount", total.String(), "error", uerr)
			err = errors.Join(err, uerr)
		}
	}()

	release, err := s.lock.Acquire(ctx, s.wallet)
	if err != nil {
		return Result{}, err
	}
	defer release()

	msg, err := s.build(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if err := s.submitter.Submit(ctx, msg); err != nil {
		return Result{}, fmt.Errorf("submit withdrawal: %w", err)
	}
	submitted = true

	done := context.WithoutCancel(ctx)
	if err := s.lock.RecordSeqno(done, s.wallet, msg.Seqno); err != nil {
		s.logger.ErrorContext(ctx, "seqno not recorded after submission", "seqno", msg.Seqno, "error", err)
	}
	if err := s.ledger.DebitFrozen(done, req.User, total); err != nil {
		s.logger.ErrorContext(ctx, "submitted withdrawal not debited", "user", req.User, "amount", total.String(), "error", err)
		return Result{}, err
	}

	res := Result{Wallet: s.wallet, Seqno: msg.Seqno, Hash: msg.Hash, Total: total}
	s.logger.InfoContext(ctx, "withdrawal submitted", "user", req.User, "amount", req.Amount.String(),
		"destination", req.Destination.ToRaw(), "seqno", msg.Seqno)
	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindWithdrawalSubmitted,
		Destination: req.User.String(),
		Body:        fmt.Sprintf("Withdrawal of %s to %s submitted", req.Amount, req.Destination.ToHuman(false, false)),
	})
	return res, nil
}

// build reads a fresh snapshot of the hot wallet and signs the transfer.
// The caller must hold the wallet lock.
func (s *Service) build(ctx context.Context, req Request) (*tonwallet.SignedMessage, error) {
	acc, err := s.source.AccountState(ctx, s.wallet)
	if err != nil {
		return nil, fmt.Errorf("load hot wallet state: %w", err)
	}
	acc.Address = s.wallet
	state, err := tonwallet.ReadState(acc)
	if err != nil {
		return nil, err
	}
	if err := s.lock.CheckSeqno(ctx, s.wallet, state.Seqno); err != nil {
		return nil, err
	}

	need, err := req.Amount.Add(req.Amount.Currency.NetworkFeeReserve())
	if err != nil {
		return nil, err
	}
	if state.Balance.Cmp(need.Quantity()) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrHotWalletDrained,
			coins.New(coins.TON, state.Balance), need)
	}

	var body *boc.Cell
	if req.Comment != "" {
		if body, err = tonwallet.Comment(req.Comment); err != nil {
			return nil, err
		}
	}
	return tonwallet.BuildTransfer(state, s.key, []tonwallet.Transfer{{
		Destination: req.Destination,
		Amount:      req.Amount.Quantity(),
		Body:        body,
	}}, s.now().Add(s.validFor))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, ErrWalletBusy), errors.Is(err, ErrStaleSeqno):
		return "busy"
	case errors.Is(err, ErrUnsupportedCurrency), errors.Is(err, ErrBelowMinimum), errors.Is(err, ledger.ErrInvalidAmount):
		return "denied"
	default:
		return "error"
	}
}
