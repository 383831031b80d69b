package notification

import (
	"context"
	"log/slog"
	"sync"
)

const (
	// KindReceiptActivated tells an issuer that one of their receipts was redeemed.
	KindReceiptActivated = "receipt_activated"
	// KindDepositPaid tells a depositor that principal and profit were released.
	KindDepositPaid = "deposit_paid"
	// KindTransferReceived tells a user that an operator transfer credited them.
	KindTransferReceived = "transfer_received"
	// KindWithdrawalSubmitted tells a user that an on-chain transfer left the hot wallet.
	KindWithdrawalSubmitted = "withdrawal_submitted"
)

// Message describes a notification payload. Destination is the user id the
// chat layer resolves to a conversation.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger instead of a chat.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// Deliver sends message through n when n is set. Delivery failures are
// logged, not returned.
func Deliver(ctx context.Context, n Notifier, logger *slog.Logger, message Message) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, message); err != nil && logger != nil {
		logger.WarnContext(ctx, "notification failed", "kind", message.Kind, "destination", message.Destination, "error", err)
	}
}

// Recorder keeps every message in memory for assertions in tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Send appends message.
func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

// Messages returns a copy of everything sent so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
