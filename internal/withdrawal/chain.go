package withdrawal

import (
	"context"

	"github.com/tonkeeper/tongo/ton"

	"github.com/tegro-money/custody/internal/tonwallet"
)

// StateSource reports the current chain snapshot of an account.
type StateSource interface {
	AccountState(ctx context.Context, addr ton.AccountID) (tonwallet.AccountState, error)
}

// Submitter broadcasts a signed external message.
type Submitter interface {
	Submit(ctx context.Context, msg *tonwallet.SignedMessage) error
}
