package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/ledger"
	"github.com/tegro-money/custody/internal/notification"
)

// Service moves active funds between two custody users.
type Service struct {
	ledger   ledger.Ledger
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a payment service. notifier may be nil.
func NewService(l ledger.Ledger, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, notifier: notifier, logger: logger.With("component", "payments")}
}

// TransferInput captures the data needed to move funds between users.
type TransferInput struct {
	From   ledger.UserID
	To     ledger.UserID
	Amount coins.Amount
	// Reference is an operator-supplied note kept in the log.
	Reference string
}

// TransferResult describes both balances after a transfer.
type TransferResult struct {
	From        ledger.Balance
	To          ledger.Balance
	CompletedAt time.Time
}

// Transfer debits From.active and credits To.active in one step.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if err := s.ledger.Transfer(ctx, in.From, in.To, in.Amount); err != nil {
		return TransferResult{}, err
	}

	from, err := s.ledger.Balance(ctx, in.From, in.Amount.Currency)
	if err != nil {
		return TransferResult{}, err
	}
	to, err := s.ledger.Balance(ctx, in.To, in.Amount.Currency)
	if err != nil {
		return TransferResult{}, err
	}
	s.logger.InfoContext(ctx, "transfer completed", "from", in.From, "to", in.To,
		"amount", in.Amount.String(), "reference", in.Reference)

	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: in.To.String(),
		Body:        fmt.Sprintf("You received %s", in.Amount),
	})
	return TransferResult{From: from, To: to, CompletedAt: time.Now().UTC()}, nil
}
