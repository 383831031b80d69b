package deposits

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

// Service locks principal for a fixed term and pays it back with profit.
type Service struct {
	store    Store
	ledger   ledger.Ledger
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a deposit service. notifier may be nil.
func NewService(store Store, l ledger.Ledger, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		ledger:   l,
		notifier: notifier,
		logger:   logger.With("component", "deposits"),
		now:      time.Now,
	}
}

// Open starts a deposit for issuer that finishes one term from now.
func (s *Service) Open(ctx context.Context, issuer ledger.UserID, amount coins.Amount, period Period) (Deposit, error) {
	return s.Save(ctx, Deposit{
		ID:         uuid.New(),
		Issuer:     issuer,
		Period:     period,
		FinishDate: s.now().UTC().Add(period.Duration()),
		Coins:      amount,
	})
}

// Save freezes the principal and records the deposit as unpaid. The freeze
// is released again if the record cannot be stored.
func (s *Service) Save(ctx context.Context, d Deposit) (_ Deposit, err error) {
	defer func() { metrics.Custody().ObserveDeposit("opened", outcome(err)) }()

	p, err := PeriodFor(d.Period.Months)
	if err != nil {
		return Deposit{}, err
	}
	if p != d.Period {
		return Deposit{}, fmt.Errorf("%w: %s", ErrUnknownPeriod, d.Period)
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.IsPaid = false
	d.PaidDate = nil
	d.FinishDate = d.FinishDate.UTC()

	if err := s.ledger.Freeze(ctx, d.Issuer, d.Coins); err != nil {
		return Deposit{}, err
	}
	if err := s.store.Insert(ctx, d); err != nil {
		if uerr := s.ledger.Unfreeze(ctx, d.Issuer, d.Coins); uerr != nil {
			s.logger.ErrorContext(ctx, "release deposit principal failed",
				"issuer", d.Issuer, "amount", d.Coins.String(), "error", uerr)
			return Deposit{}, errors.Join(err, uerr)
		}
		return Deposit{}, err
	}

	s.logger.InfoContext(ctx, "deposit opened", "deposit_id", d.ID, "issuer", d.Issuer,
		"amount", d.Coins.String(), "period", d.Period.String(), "finish_date", d.FinishDate)
	return d, nil
}

// Get returns a stored deposit.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Deposit, error) {
	return s.store.Get(ctx, id)
}

// ListByUser returns every deposit of user.
func (s *Service) ListByUser(ctx context.Context, user ledger.UserID) ([]Deposit, error) {
	return s.store.ListByUser(ctx, user)
}

// Due returns deposits that reached their finish date and are still unpaid.
func (s *Service) Due(ctx context.Context) ([]Deposit, error) {
	return s.store.Due(ctx, s.now().UTC())
}

// Pay settles the deposit: the principal is unfrozen, the profit credited
// and the paid flag set, all in one unit of work. Paying a settled deposit
// returns a Payout with Paid false and moves nothing. A deposit before its
// finish date fails with ErrNotDue.
func (s *Service) Pay(ctx context.Context, id uuid.UUID) (_ Payout, err error) {
	defer func() { metrics.Custody().ObserveDeposit("paid", outcome(err)) }()

	var out Payout
	err = s.store.Atomic(ctx, func(tx Tx) error {
		d, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if d.IsPaid {
			out = Payout{Deposit: d, Profit: coins.Zero(d.Coins.Currency)}
			return nil
		}
		if !d.Due(s.now()) {
			return fmt.Errorf("%w: finishes %s", ErrNotDue, d.FinishDate.Format(time.RFC3339))
		}

		profit := Profit(d.Coins, d.Period)
		m := tx.Ledger()
		if err := m.Unfreeze(ctx, d.Issuer, d.Coins); err != nil {
			return err
		}
		if !profit.IsZero() {
			_, err := m.UpdateActive(ctx, d.Issuer, d.Coins.Currency, func(cur coins.Amount) (coins.Amount, error) {
				return cur.Add(profit)
			})
			if err != nil {
				return err
			}
		}
		paidAt := s.now().UTC()
		if err := tx.MarkPaid(ctx, d.ID, paidAt); err != nil {
			return err
		}
		d.IsPaid = true
		d.PaidDate = &paidAt
		out = Payout{Deposit: d, Profit: profit, Paid: true}
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvariantViolation) {
			s.logger.ErrorContext(ctx, "deposit payout broke ledger invariant", "deposit_id", id, "error", err)
		}
		return Payout{}, err
	}
	if !out.Paid {
		return out, nil
	}

	d := out.Deposit
	s.logger.InfoContext(ctx, "deposit paid", "deposit_id", d.ID, "issuer", d.Issuer,
		"principal", d.Coins.String(), "profit", out.Profit.String())
	opened := d.FinishDate.Add(-d.Period.Duration())
	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindDepositPaid,
		Destination: d.Issuer.String(),
		Body: fmt.Sprintf("Deposit from %s paid: %s returned with %s profit",
			opened.Format("02.01.2006 15:04"), d.Coins, out.Profit),
	})
	return out, nil
}

// SettleReport summarizes one settlement scan.
type SettleReport struct {
	Paid   []Payout
	Failed map[uuid.UUID]error
}

// SettleDue pays every due deposit. A failing deposit is recorded in the
// report and does not stop the scan.
func (s *Service) SettleDue(ctx context.Context) (SettleReport, error) {
	started := time.Now()
	defer func() { metrics.Custody().ObserveSettleScan(time.Since(started).Seconds()) }()

	due, err := s.Due(ctx)
	if err != nil {
		return SettleReport{}, err
	}
	report := SettleReport{Failed: make(map[uuid.UUID]error)}
	for _, d := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		payout, err := s.Pay(ctx, d.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "deposit settlement failed", "deposit_id", d.ID, "error", err)
			report.Failed[d.ID] = err
			continue
		}
		if payout.Paid {
			report.Paid = append(report.Paid, payout)
		}
	}
	s.logger.InfoContext(ctx, "deposit settlement finished", "due", len(due),
		"paid", len(report.Paid), "failed", len(report.Failed))
	return report, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, ErrUnknownDeposit), errors.Is(err, ErrUnknownPeriod), errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ErrDuplicateDeposit), errors.Is(err, ErrNotDue):
		return "denied"
	default:
		return "error"
	}
}
