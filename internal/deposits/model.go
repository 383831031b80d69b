package deposits

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/ledger"
)

var (
	// ErrUnknownDeposit is returned when no deposit has the given id.
	ErrUnknownDeposit = errors.New("unknown deposit")
	// ErrUnknownPeriod rejects terms outside the catalog.
	ErrUnknownPeriod = errors.New("unknown deposit period")
	// ErrDuplicateDeposit is returned when a deposit id is already stored.
	ErrDuplicateDeposit = errors.New("deposit already exists")
	// ErrNotDue is returned when a deposit is paid before its finish date.
	ErrNotDue = errors.New("deposit has not reached its finish date")
)

// Period is a deposit term and its annual yield in whole percent.
type Period struct {
	Months       int
	YieldPercent int
}

var (
	Period3  = Period{Months: 3, YieldPercent: 12}
	Period6  = Period{Months: 6, YieldPercent: 15}
	Period12 = Period{Months: 12, YieldPercent: 20}
)

// Periods lists the offered terms, shortest first.
func Periods() []Period {
	return []Period{Period3, Period6, Period12}
}

// PeriodFor returns the catalog term lasting months.
func PeriodFor(months int) (Period, error) {
	for _, p := range Periods() {
		if p.Months == months {
			return p, nil
		}
	}
	return Period{}, fmt.Errorf("%w: %d months", ErrUnknownPeriod, months)
}

// daysPerMonth is the month length used for the finish date.
const daysPerMonth = 31

// Duration returns how long the principal stays locked.
func (p Period) Duration() time.Duration {
	return time.Duration(p.Months*daysPerMonth) * 24 * time.Hour
}

func (p Period) String() string {
	return fmt.Sprintf("%d months at %d%%", p.Months, p.YieldPercent)
}

// Deposit locks Coins for the issuer until FinishDate.
type Deposit struct {
	ID         uuid.UUID
	Issuer     ledger.UserID
	Period     Period
	FinishDate time.Time
	Coins      coins.Amount
	IsPaid     bool
	PaidDate   *time.Time
}

// Due reports whether the deposit is ready for payout at now.
func (d Deposit) Due(now time.Time) bool {
	return !d.IsPaid && !d.FinishDate.After(now)
}

// Payout is the result of settling a deposit. Paid is false when the
// deposit had already been settled and nothing moved.
type Payout struct {
	Deposit Deposit
	Profit  coins.Amount
	Paid    bool
}

// Profit computes floor(principal × yield × months × 30 / 365 / 100).
func Profit(principal coins.Amount, p Period) coins.Amount {
	q := principal.Quantity()
	q.Mul(q, big.NewInt(int64(p.YieldPercent)))
	q.Mul(q, big.NewInt(int64(p.Months*30)))
	q.Quo(q, big.NewInt(365))
	q.Quo(q, big.NewInt(100))
	return coins.New(principal.Currency, q)
}
