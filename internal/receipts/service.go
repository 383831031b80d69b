package receipts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/ledger"
	"github.com/tegro-money/custody/internal/metrics"
	"github.com/tegro-money/custody/internal/notification"
)

// Service runs the receipt lifecycle on top of the ledger.
type Service struct {
	store    Store
	ledger   ledger.Ledger
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a receipt service. notifier may be nil.
func NewService(store Store, l ledger.Ledger, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		ledger:   l,
		notifier: notifier,
		logger:   logger.With("component", "receipts"),
		now:      time.Now,
	}
}

// Create reserves coins × activations from the issuer and records the
// receipt. If the record cannot be stored the reservation is released.
func (s *Service) Create(ctx context.Context, in CreateInput) (_ Receipt, err error) {
	defer func() { metrics.Custody().ObserveReceipt("created", outcome(err)) }()

	if in.Activations < 1 {
		return Receipt{}, ErrInvalidActivations
	}
	if in.Recipient != nil && *in.Recipient == in.Issuer {
		return Receipt{}, fmt.Errorf("%w: recipient is the issuer", ErrInvalidRecipient)
	}
	if err := in.Coins.Validate(); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}
	if in.Coins.IsZero() {
		return Receipt{}, fmt.Errorf("%w: zero", ledger.ErrInvalidAmount)
	}
	toFreeze, err := in.Coins.Mul(int64(in.Activations))
	if err != nil {
		return Receipt{}, err
	}

	if err := s.ledger.Freeze(ctx, in.Issuer, toFreeze); err != nil {
		return Receipt{}, err
	}

	r := Receipt{
		ID:          uuid.New(),
		IssueTime:   s.now().UTC(),
		Issuer:      in.Issuer,
		Coins:       in.Coins,
		Activations: in.Activations,
		Recipient:   in.Recipient,
		IsActive:    true,
	}
	if err := s.store.Insert(ctx, r); err != nil {
		if uerr := s.ledger.Unfreeze(ctx, in.Issuer, toFreeze); uerr != nil {
			s.logger.ErrorContext(ctx, "release receipt reservation failed",
				"issuer", in.Issuer, "amount", toFreeze.String(), "error", uerr)
			return Receipt{}, errors.Join(err, uerr)
		}
		return Receipt{}, err
	}

	s.logger.InfoContext(ctx, "receipt created", "receipt_id", r.ID, "issuer", r.Issuer,
		"amount", r.Coins.String(), "activations", r.Activations)
	return r, nil
}

// Activate redeems one activation of the receipt for recipient. The record
// is re-read and locked, so a stale copy held by the caller never matters.
func (s *Service) Activate(ctx context.Context, id uuid.UUID, recipient ledger.UserID) (_ Receipt, err error) {
	defer func() { metrics.Custody().ObserveReceipt("activated", outcome(err)) }()

	var updated Receipt
	err = s.store.Atomic(ctx, func(tx Tx) error {
		r, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if r.Recipient != nil && *r.Recipient != recipient {
			return ErrInvalidRecipient
		}
		if r.Issuer == recipient {
			return ErrReceiptIssuerActivation
		}
		done, err := tx.HasActivation(ctx, id, recipient)
		if err != nil {
			return err
		}
		if done || !r.IsActive || r.Activations < 1 {
			return ErrReceiptNotActive
		}

		if err := tx.Ledger().TransferFrozen(ctx, r.Issuer, recipient, r.Coins); err != nil {
			return err
		}
		r.Activations--
		if r.Activations == 0 {
			r.IsActive = false
		}
		if err := tx.Save(ctx, r); err != nil {
			return err
		}
		if err := tx.AddActivation(ctx, Activation{ReceiptID: id, User: recipient, ActivatedAt: s.now().UTC()}); err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvariantViolation) {
			s.logger.ErrorContext(ctx, "receipt activation broke ledger invariant",
				"receipt_id", id, "recipient", recipient, "error", err)
		}
		return Receipt{}, err
	}

	s.logger.InfoContext(ctx, "receipt activated", "receipt_id", id, "recipient", recipient,
		"remaining", updated.Activations)
	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindReceiptActivated,
		Destination: updated.Issuer.String(),
		Body:        fmt.Sprintf("Receipt %s activated for %s, %d activations left", id, updated.Coins, updated.Activations),
	})
	return updated, nil
}

// Inactivate stops further activations without releasing the reservation.
func (s *Service) Inactivate(ctx context.Context, id uuid.UUID) (err error) {
	defer func() { metrics.Custody().ObserveReceipt("inactivated", outcome(err)) }()
	return s.store.Atomic(ctx, func(tx Tx) error {
		r, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		r.IsActive = false
		return tx.Save(ctx, r)
	})
}

// Delete retires the receipt: it becomes inactive and the reservation for
// the remaining activations returns to the issuer's active balance. The
// remaining count drops to zero, so retiring twice releases nothing.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (_ coins.Amount, err error) {
	defer func() { metrics.Custody().ObserveReceipt("retired", outcome(err)) }()

	var released coins.Amount
	err = s.store.Atomic(ctx, func(tx Tx) error {
		r, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		released = r.Remaining()
		if !released.IsZero() {
			if err := tx.Ledger().Unfreeze(ctx, r.Issuer, released); err != nil {
				return err
			}
		}
		r.IsActive = false
		r.Activations = 0
		return tx.Save(ctx, r)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvariantViolation) {
			s.logger.ErrorContext(ctx, "receipt retirement broke ledger invariant", "receipt_id", id, "error", err)
		}
		return coins.Amount{}, err
	}
	s.logger.InfoContext(ctx, "receipt retired", "receipt_id", id, "released", released.String())
	return released, nil
}

// Get returns the stored receipt.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Receipt, error) {
	return s.store.Get(ctx, id)
}

// ListByIssuer returns the receipts a user issued.
func (s *Service) ListByIssuer(ctx context.Context, issuer ledger.UserID) ([]Receipt, error) {
	return s.store.ListByIssuer(ctx, issuer)
}

// Activations returns who redeemed the receipt so far.
func (s *Service) Activations(ctx context.Context, id uuid.UUID) ([]Activation, error) {
	return s.store.Activations(ctx, id)
}

// AddChat records that the receipt was shared into chatID.
func (s *Service) AddChat(ctx context.Context, id uuid.UUID, chatID int64) error {
	return s.store.AddChat(ctx, id, chatID)
}

// DeleteChat forgets a chat association.
func (s *Service) DeleteChat(ctx context.Context, id uuid.UUID, chatID int64) error {
	return s.store.DeleteChat(ctx, id, chatID)
}

// Chats lists the chats the receipt was shared into.
func (s *Service) Chats(ctx context.Context, id uuid.UUID) ([]int64, error) {
	return s.store.Chats(ctx, id)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, ErrUnknownReceipt),
		errors.Is(err, ErrInvalidRecipient),
		errors.Is(err, ErrReceiptIssuerActivation),
		errors.Is(err, ErrReceiptNotActive),
		errors.Is(err, ErrInvalidActivations),
		errors.Is(err, ledger.ErrInvalidAmount):
		return "denied"
	default:
		return "error"
	}
}
