package receipts

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/ledger"
)

var (
	// ErrUnknownReceipt is returned when no receipt has the given id.
	ErrUnknownReceipt = errors.New("unknown receipt")
	// ErrInvalidRecipient is returned when a receipt addressed to someone else
	// is activated, or when a receipt is addressed to its own issuer.
	ErrInvalidRecipient = errors.New("receipt is addressed to another recipient")
	// ErrReceiptIssuerActivation forbids issuers from activating their own receipts.
	ErrReceiptIssuerActivation = errors.New("issuer cannot activate own receipt")
	// ErrReceiptNotActive covers retired, exhausted and already-activated receipts.
	ErrReceiptNotActive = errors.New("receipt is not active")
	// ErrInvalidActivations rejects receipts created with fewer than one activation.
	ErrInvalidActivations = errors.New("activations must be positive")
)

// Receipt is a bearer-style voucher: each activation settles Coins from
// the issuer's frozen balance to the activating user.
type Receipt struct {
	ID          uuid.UUID
	IssueTime   time.Time
	Issuer      ledger.UserID
	Coins       coins.Amount
	Activations int
	Recipient   *ledger.UserID
	IsActive    bool
}

// Remaining returns the obligation still reserved for this receipt.
func (r Receipt) Remaining() coins.Amount {
	if r.Activations <= 0 {
		return coins.Zero(r.Coins.Currency)
	}
	out, err := r.Coins.Mul(int64(r.Activations))
	if err != nil {
		return coins.Zero(r.Coins.Currency)
	}
	return out
}

// Activation records that User redeemed the receipt once.
type Activation struct {
	ReceiptID   uuid.UUID
	User        ledger.UserID
	ActivatedAt time.Time
}

// CreateInput captures what an issuer supplies for a new receipt.
type CreateInput struct {
	Issuer      ledger.UserID
	Coins       coins.Amount
	Activations int
	Recipient   *ledger.UserID
}
