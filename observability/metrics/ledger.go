package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type LedgerMetrics struct {
	transactions *prometheus.CounterVec
	execDuration *prometheus.HistogramVec
	lockWait     prometheus.Histogram
	inflight     prometheus.Gauge
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Count of submitted transactions by program, instruction and outcome.",
			}, []string{"program", "instruction", "outcome"}),
			execDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "ledger_transaction_duration_seconds",
				Help:    "Time spent executing and committing a transaction once its locks are held.",
				Buckets: prometheus.DefBuckets,
			}, []string{"program"}),
			lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "ledger_lock_wait_seconds",
				Help:    "Time a transaction waited to acquire its declared account locks.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			}),
			inflight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ledger_transactions_inflight",
				Help: "Transactions currently holding or waiting for account locks.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.transactions,
			ledgerRegistry.execDuration,
			ledgerRegistry.lockWait,
			ledgerRegistry.inflight,
		)
	})
	return ledgerRegistry
}

func (m *LedgerMetrics) ObserveTransaction(program, instruction, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	if program == "" {
		program = "unknown"
	}
	if instruction == "" {
		instruction = "unknown"
	}
	m.transactions.WithLabelValues(program, instruction, outcome).Inc()
	m.execDuration.WithLabelValues(program).Observe(took.Seconds())
}

func (m *LedgerMetrics) ObserveLockWait(wait time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(wait.Seconds())
}

func (m *LedgerMetrics) TrackInflight(delta int) {
	if m == nil {
		return
	}
	m.inflight.Add(float64(delta))
}
