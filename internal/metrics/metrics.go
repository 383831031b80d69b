package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	custodyOnce     sync.Once
	custodyRegistry *CustodyMetrics
)

// CustodyMetrics wraps collectors tracking ledger, receipt, deposit and
// withdrawal activity.
type CustodyMetrics struct {
	ledgerOps      *prometheus.CounterVec
	receiptEvents  *prometheus.CounterVec
	depositEvents  *prometheus.CounterVec
	withdrawals    *prometheus.CounterVec
	settleDuration prometheus.Histogram
}

// Custody returns the lazily registered metrics set.
func Custody() *CustodyMetrics {
	custodyOnce.Do(func() {
		custodyRegistry = &CustodyMetrics{
			ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Balance mutations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			receiptEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "receipts",
				Name:      "events_total",
				Help:      "Receipt lifecycle events segmented by event and outcome.",
			}, []string{"event", "outcome"}),
			depositEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "deposits",
				Name:      "events_total",
				Help:      "Deposit lifecycle events segmented by event and outcome.",
			}, []string{"event", "outcome"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "withdrawals",
				Name:      "total",
				Help:      "On-chain withdrawal attempts segmented by currency and outcome.",
			}, []string{"currency", "outcome"}),
			settleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "custody",
				Subsystem: "deposits",
				Name:      "settle_duration_seconds",
				Help:      "Duration of one due-deposit settlement scan.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			custodyRegistry.ledgerOps,
			custodyRegistry.receiptEvents,
			custodyRegistry.depositEvents,
			custodyRegistry.withdrawals,
			custodyRegistry.settleDuration,
		)
	})
	return custodyRegistry
}

// ObserveLedger counts one balance mutation.
func (m *CustodyMetrics) ObserveLedger(op, outcome string) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(op, outcome).Inc()
}

// ObserveReceipt counts a receipt event such as created or activated.
func (m *CustodyMetrics) ObserveReceipt(event, outcome string) {
	if m == nil {
		return
	}
	m.receiptEvents.WithLabelValues(event, outcome).Inc()
}

// ObserveDeposit counts a deposit event such as opened or paid.
func (m *CustodyMetrics) ObserveDeposit(event, outcome string) {
	if m == nil {
		return
	}
	m.depositEvents.WithLabelValues(event, outcome).Inc()
}

// ObserveWithdrawal counts a withdrawal attempt.
func (m *CustodyMetrics) ObserveWithdrawal(currency, outcome string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(currency, outcome).Inc()
}

// ObserveSettleScan records how long a settlement scan took.
func (m *CustodyMetrics) ObserveSettleScan(seconds float64) {
	if m == nil {
		return
	}
	m.settleDuration.Observe(seconds)
}

// LedgerCounter exposes the ledger counter for assertions in tests.
func (m *CustodyMetrics) LedgerCounter(op, outcome string) prometheus.Counter {
	return m.ledgerOps.WithLabelValues(op, outcome)
}

// ReceiptCounter exposes the receipt counter for assertions in tests.
func (m *CustodyMetrics) ReceiptCounter(event, outcome string) prometheus.Counter {
	return m.receiptEvents.WithLabelValues(event, outcome)
}

// DepositCounter exposes the deposit counter for assertions in tests.
func (m *CustodyMetrics) DepositCounter(event, outcome string) prometheus.Counter {
	return m.depositEvents.WithLabelValues(event, outcome)
}

// WithdrawalCounter exposes the withdrawal counter for assertions in tests.
func (m *CustodyMetrics) WithdrawalCounter(currency, outcome string) prometheus.Counter {
	return m.withdrawals.WithLabelValues(currency, outcome)
}
