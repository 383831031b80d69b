package ledger

import (
	"context"

	"github.com/tegro-money/custody/internal/coins"
)

// SeedBalance is a test helper that credits the active balance of an account.
// For the in-memory ledger the balance is overwritten instead.
func SeedBalance(l Ledger, user UserID, amount coins.Amount) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		b, _ := mem.load(context.Background(), user, amount.Currency)
		b.Active = amount
		mem.balances[balanceKey{user, amount.Currency}] = b
		return
	}
	_ = l.Credit(context.Background(), user, amount)
}
